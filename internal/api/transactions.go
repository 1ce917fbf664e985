package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pharmapos/m/domain"
	"pharmapos/m/internal/service"
)

// saleRequest carries only the cart. Totals and prices are computed server-side.
type saleRequest struct {
	CartLines []domain.CartLine `json:"cart_lines"`
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.svc.ProcessSale(r.Context(), req.CartLines)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var query service.TransactionQuery

	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, _, err := parseTimeParam(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "from must be YYYY-MM-DD or RFC 3339")
			return
		}
		query.From = &from
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, dateOnly, err := parseTimeParam(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "to must be YYYY-MM-DD or RFC 3339")
			return
		}
		// a bare date includes the whole day
		if dateOnly {
			to = to.AddDate(0, 0, 1)
		}
		query.To = &to
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		query.Limit = limit
	}

	records, err := h.svc.ListTransactions(r.Context(), query)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.Transaction{}
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

// parseTimeParam accepts a calendar date (UTC midnight) or an RFC 3339 timestamp.
func parseTimeParam(raw string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(dateLayout, raw); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(time.RFC3339, raw)
	return t.UTC(), false, err
}

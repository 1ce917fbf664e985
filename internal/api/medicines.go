package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"pharmapos/m/domain"
	"pharmapos/m/internal/service"
)

type medicineResponse struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Stock            int             `json:"stock"`
	ExpiryDate       *string         `json:"expiry_date"`
	ReorderThreshold int             `json:"reorder_threshold"`
	LowStock         bool            `json:"low_stock"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func toMedicineResponse(m domain.Medicine) medicineResponse {
	resp := medicineResponse{
		ID:               m.ID,
		Name:             m.Name,
		Category:         m.Category,
		UnitPrice:        m.UnitPrice,
		Stock:            m.Stock,
		ReorderThreshold: m.ReorderThreshold,
		LowStock:         m.IsLowStock(),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.ExpiryDate != nil {
		day := m.ExpiryDate.Format(dateLayout)
		resp.ExpiryDate = &day
	}
	return resp
}

func toMedicineResponses(ms []domain.Medicine) []medicineResponse {
	out := make([]medicineResponse, len(ms))
	for i, m := range ms {
		out[i] = toMedicineResponse(m)
	}
	return out
}

type createMedicineRequest struct {
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Stock            int             `json:"stock"`
	ExpiryDate       string          `json:"expiry_date,omitempty"`
	ReorderThreshold *int            `json:"reorder_threshold,omitempty"`
}

type updateMedicineRequest struct {
	Name             *string          `json:"name,omitempty"`
	Category         *string          `json:"category,omitempty"`
	UnitPrice        *decimal.Decimal `json:"unit_price,omitempty"`
	Stock            *int             `json:"stock,omitempty"`
	// an empty string removes the expiry date
	ExpiryDate       *string          `json:"expiry_date,omitempty"`
	ReorderThreshold *int             `json:"reorder_threshold,omitempty"`
}

func (h *Handler) listMedicines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.MedicineFilter{Query: strings.TrimSpace(q.Get("query"))}

	var err error
	if filter.InStockOnly, err = parseBool(q.Get("in_stock")); err != nil {
		respondError(w, http.StatusBadRequest, "in_stock must be true or false")
		return
	}
	if filter.LowStockOnly, err = parseBool(q.Get("low_stock")); err != nil {
		respondError(w, http.StatusBadRequest, "low_stock must be true or false")
		return
	}

	medicines, err := h.svc.ListMedicines(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toMedicineResponses(medicines))
}

func (h *Handler) createMedicine(w http.ResponseWriter, r *http.Request) {
	var req createMedicineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	draft := domain.MedicineDraft{
		Name:             req.Name,
		Category:         req.Category,
		UnitPrice:        req.UnitPrice,
		Stock:            req.Stock,
		ReorderThreshold: req.ReorderThreshold,
	}
	if req.ExpiryDate != "" {
		expiry, err := time.Parse(dateLayout, req.ExpiryDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "expiry_date must be in YYYY-MM-DD format")
			return
		}
		draft.ExpiryDate = &expiry
	}

	m, err := h.svc.AddMedicine(r.Context(), draft)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toMedicineResponse(*m))
}

func (h *Handler) getMedicine(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMedicine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toMedicineResponse(*m))
}

func (h *Handler) updateMedicine(w http.ResponseWriter, r *http.Request) {
	var req updateMedicineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	patch := domain.MedicinePatch{
		Name:             req.Name,
		Category:         req.Category,
		UnitPrice:        req.UnitPrice,
		Stock:            req.Stock,
		ReorderThreshold: req.ReorderThreshold,
	}
	switch {
	case req.ExpiryDate == nil:
	case strings.TrimSpace(*req.ExpiryDate) == "":
		patch.ClearExpiry = true
	default:
		expiry, err := time.Parse(dateLayout, *req.ExpiryDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "expiry_date must be in YYYY-MM-DD format")
			return
		}
		patch.ExpiryDate = &expiry
	}

	m, err := h.svc.UpdateMedicine(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toMedicineResponse(*m))
}

func (h *Handler) deleteMedicine(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteMedicine(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) expiringMedicines(w http.ResponseWriter, r *http.Request) {
	days := h.opts.ExpiryWarningDays
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = parsed
	}

	medicines, err := h.svc.ExpiringMedicines(r.Context(), days)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toMedicineResponses(medicines))
}

func parseBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

package api

import (
	"net/http"

	"pharmapos/m/domain"
)

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if sum.RecentTransactions == nil {
		sum.RecentTransactions = []domain.Transaction{}
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.DailySales(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) monthlySales(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.MonthlySales(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

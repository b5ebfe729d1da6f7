package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"deyn.app/cloud/models"
)

type createDebtRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
	DueDate     string           `json:"due_date"`
}

type updateDebtRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
}

type statusRequest struct {
	Status string `json:"status"`
	// Amount is the payment made now when moving to partial.
	Amount *decimal.Decimal `json:"amount"`
}

type paymentRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type DebtsResponse struct {
	Debts   []*models.Debt `json:"debts"`
	Summary models.Summary `json:"summary"`
}

func (s *Server) ListDebts(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	debts, err := s.Debts.List(r.Context(), session, chi.URLParam(r, "customerID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DebtsResponse{Debts: debts, Summary: s.Debts.Summarize(debts)})
}

func (s *Server) CreateDebt(w http.ResponseWriter, r *http.Request) {
	var req createDebtRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		s.writeError(w, r, &models.ValidationError{Field: "amount", Message: "amount is required"})
		return
	}

	dueDate, err := models.ParseDueDate(req.DueDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	debt, err := s.Debts.Create(r.Context(), sessionFrom(r), chi.URLParam(r, "customerID"), *req.Amount, req.Description, dueDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, debt)
}

// UpdateDebt edits amount and description. Omitted fields keep their value.
func (s *Server) UpdateDebt(w http.ResponseWriter, r *http.Request) {
	var req updateDebtRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session := sessionFrom(r)
	id := chi.URLParam(r, "debtID")
	current, err := s.Debts.Get(r.Context(), session, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	amount := current.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	description := current.Description
	if req.Description != nil {
		description = *req.Description
	}

	debt, err := s.Debts.UpdateFields(r.Context(), session, id, amount, description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

// SetDebtStatus moves a debt to paid or unpaid. Partial needs the amount paid
// now and is applied as a payment.
func (s *Server) SetDebtStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	status, err := models.ParseDebtStatus(req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	session := sessionFrom(r)
	id := chi.URLParam(r, "debtID")

	var debt *models.Debt
	if status == models.StatusPartial && req.Amount != nil {
		debt, err = s.Debts.ApplyPartialPayment(r.Context(), session, id, *req.Amount)
	} else {
		debt, err = s.Debts.SetStatus(r.Context(), session, id, status)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

func (s *Server) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		s.writeError(w, r, &models.ValidationError{Field: "amount", Message: "amount is required"})
		return
	}

	debt, err := s.Debts.ApplyPartialPayment(r.Context(), sessionFrom(r), chi.URLParam(r, "debtID"), *req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

func (s *Server) DeleteDebt(w http.ResponseWriter, r *http.Request) {
	if err := s.Debts.Delete(r.Context(), sessionFrom(r), chi.URLParam(r, "debtID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

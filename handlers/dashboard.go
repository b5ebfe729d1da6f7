package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"deyn.app/cloud/models"
)

type DashboardResponse struct {
	Customers []*models.Customer `json:"customers"`
	Summary   models.Summary     `json:"summary"`
}

type CustomerDashboardResponse struct {
	Customer *models.Customer `json:"customer"`
	Debts    []*models.Debt   `json:"debts"`
	Summary  models.Summary   `json:"summary"`
}

// Dashboard lists the caller's customers (optionally searched with ?q=) and
// totals across all of their debts.
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := sessionFrom(r)

	customers, err := s.Customers.Search(ctx, session, r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	debts, err := s.Debts.ListAll(ctx, session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DashboardResponse{
		Customers: customers,
		Summary:   s.Debts.Summarize(debts),
	})
}

func (s *Server) CustomerDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := sessionFrom(r)
	id := chi.URLParam(r, "customerID")

	customer, err := s.Customers.Get(ctx, session, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	debts, err := s.Debts.List(ctx, session, customer.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CustomerDashboardResponse{
		Customer: customer,
		Debts:    debts,
		Summary:  s.Debts.Summarize(debts),
	})
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"deyn.app/cloud/models"
)

type customerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ListCustomers returns the caller's customers, filtered by ?q= when given.
func (s *Server) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.Customers.Search(r.Context(), sessionFrom(r), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	customer, err := s.Customers.Create(r.Context(), sessionFrom(r), req.Name, req.Phone)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := s.Customers.Get(r.Context(), sessionFrom(r), chi.URLParam(r, "customerID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var update models.CustomerUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		s.writeError(w, r, err)
		return
	}

	customer, err := s.Customers.Update(r.Context(), sessionFrom(r), chi.URLParam(r, "customerID"), update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := s.Customers.Delete(r.Context(), sessionFrom(r), chi.URLParam(r, "customerID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

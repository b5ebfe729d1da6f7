package models

import (
	"strings"
	"time"
)

type Customer struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomerUpdate carries the fields to overwrite. Nil fields are left alone.
type CustomerUpdate struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

func (c *Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if strings.TrimSpace(c.Phone) == "" {
		return &ValidationError{Field: "phone", Message: "phone is required"}
	}
	return nil
}

// Matches reports whether the customer's name contains term (case-insensitive)
// or its phone contains term verbatim.
func (c *Customer) Matches(term string) bool {
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Name), strings.ToLower(term)) {
		return true
	}
	return strings.Contains(c.Phone, term)
}

// Package repository holds the customer, debt and profile operations. Every
// call takes the caller's session explicitly and performs its own ownership
// check against storage.
package repository

import (
	"time"

	"github.com/google/uuid"

	"deyn.app/cloud/models"
)

type Options struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// NewID defaults to random UUIDs.
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.Must(uuid.NewRandom()).String() }
	}
	return o
}

func remote(op string, err error) error {
	return &models.RemoteError{Op: op, Err: err}
}

func requireSession(session models.Session) error {
	if !session.Valid() {
		return &models.ValidationError{Field: "session", Message: "you must be logged in"}
	}
	return nil
}

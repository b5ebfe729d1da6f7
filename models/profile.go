package models

import "time"

const (
	DefaultTrialDays        = 14
	DefaultSubscriptionDays = 30
)

type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email,omitempty"`
	IsSubscribed  bool      `json:"is_subscribed"`
	TrialStartsAt time.Time `json:"trial_starts_at"`
	TrialEndsAt   time.Time `json:"trial_ends_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	// LastTransactionID is the payment that last extended the window.
	LastTransactionID string `json:"last_transaction_id,omitempty"`
}

func NewTrialProfile(userID, email string, now time.Time, trialDays int) *Profile {
	now = now.UTC()
	return &Profile{
		ID:            userID,
		Email:         email,
		TrialStartsAt: now,
		TrialEndsAt:   now.AddDate(0, 0, trialDays),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Subscribe marks the profile paid and moves the access window to
// now + days. The window is measured from the payment moment, not from the
// previous end date.
func (p *Profile) Subscribe(now time.Time, days int) {
	now = now.UTC()
	p.IsSubscribed = true
	p.TrialEndsAt = now.AddDate(0, 0, days)
	p.UpdatedAt = now
}

func (p *Profile) HasAccess(now time.Time) bool {
	return now.Before(p.TrialEndsAt)
}

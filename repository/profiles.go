package repository

import (
	"context"

	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/models"
	"deyn.app/cloud/storage"
)

type ProfileRepository struct {
	store            storage.Storage
	opts             Options
	trialDays        int
	subscriptionDays int
}

func NewProfileRepository(store storage.Storage, trialDays, subscriptionDays int, opts Options) *ProfileRepository {
	if trialDays <= 0 {
		trialDays = models.DefaultTrialDays
	}
	if subscriptionDays <= 0 {
		subscriptionDays = models.DefaultSubscriptionDays
	}
	return &ProfileRepository{
		store:            store,
		opts:             opts.withDefaults(),
		trialDays:        trialDays,
		subscriptionDays: subscriptionDays,
	}
}

// CreateTrial starts the trial window for a freshly signed up user. An
// existing profile is returned untouched.
func (r *ProfileRepository) CreateTrial(ctx context.Context, userID, email string) (*models.Profile, error) {
	if userID == "" {
		return nil, &models.ValidationError{Field: "user_id", Message: "user id is required"}
	}

	existing, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, remote("get profile", err)
	}
	if existing != nil {
		return existing, nil
	}

	profile := models.NewTrialProfile(userID, email, r.opts.Now(), r.trialDays)
	if err := r.store.SaveProfile(ctx, profile); err != nil {
		return nil, remote("create profile", err)
	}

	logger.Info("Trial profile created", map[string]interface{}{
		"user_id":       userID,
		"trial_ends_at": profile.TrialEndsAt,
	})
	return profile, nil
}

// Ensure loads the caller's profile, creating the trial one for users that
// signed up elsewhere.
func (r *ProfileRepository) Ensure(ctx context.Context, session models.Session) (*models.Profile, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	return r.CreateTrial(ctx, session.UserID, session.Email)
}

func (r *ProfileRepository) Get(ctx context.Context, session models.Session) (*models.Profile, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}

	profile, err := r.store.GetProfile(ctx, session.UserID)
	if err != nil {
		return nil, remote("get profile", err)
	}
	if profile == nil {
		return nil, &models.NotFoundError{Resource: "profile", ID: session.UserID}
	}
	return profile, nil
}

func (r *ProfileRepository) HasAccess(profile *models.Profile) bool {
	return profile.HasAccess(r.opts.Now())
}

// Subscribe flips the profile to subscribed and opens a new access window
// from now. A transaction that already extended the window is not applied
// twice: the profile is returned with applied false.
func (r *ProfileRepository) Subscribe(ctx context.Context, userID, transactionID string) (profile *models.Profile, applied bool, err error) {
	if userID == "" {
		return nil, false, &models.ValidationError{Field: "user_id", Message: "user id is required"}
	}

	profile, err = r.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, false, remote("get profile", err)
	}
	if profile == nil {
		profile = models.NewTrialProfile(userID, "", r.opts.Now(), r.trialDays)
	}

	if transactionID != "" && profile.LastTransactionID == transactionID {
		logger.Info("Subscription already applied for transaction", map[string]interface{}{
			"user_id":        userID,
			"transaction_id": transactionID,
		})
		return profile, false, nil
	}

	profile.Subscribe(r.opts.Now(), r.subscriptionDays)
	profile.LastTransactionID = transactionID
	if err := r.store.SaveProfile(ctx, profile); err != nil {
		return nil, false, remote("subscribe profile", err)
	}

	logger.Info("Subscription activated", map[string]interface{}{
		"user_id":        userID,
		"transaction_id": transactionID,
		"trial_ends_at":  profile.TrialEndsAt,
	})
	return profile, true, nil
}

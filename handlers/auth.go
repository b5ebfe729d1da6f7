package handlers

import (
	"net/http"
	"time"

	"deyn.app/cloud/auth"
	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/models"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpResponse struct {
	User                 auth.User       `json:"user"`
	Profile              *models.Profile `json:"profile"`
	ConfirmationRequired bool            `json:"confirmation_required"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int       `json:"expires_in"`
	User        auth.User `json:"user"`
}

type SessionResponse struct {
	UserID    string          `json:"user_id"`
	Email     string          `json:"email,omitempty"`
	Profile   *models.Profile `json:"profile"`
	HasAccess bool            `json:"has_access"`
}

// SignUp registers the user with the auth provider and starts the trial.
func (s *Server) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.Auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := s.Profiles.CreateTrial(r.Context(), tokens.User.ID, firstNonEmpty(tokens.User.Email, req.Email))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if tokens.AccessToken != "" {
		s.setSessionCookie(w, tokens.AccessToken, tokens.ExpiresIn)
	}

	logger.Info("User signed up", map[string]interface{}{
		"user_id": tokens.User.ID,
	})
	writeJSON(w, http.StatusCreated, SignUpResponse{
		User:                 tokens.User,
		Profile:              profile,
		ConfirmationRequired: tokens.AccessToken == "",
	})
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookie(w, tokens.AccessToken, tokens.ExpiresIn)
	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: tokens.AccessToken,
		ExpiresIn:   tokens.ExpiresIn,
		User:        tokens.User,
	})
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if err := s.Auth.SignOut(r.Context(), session.AccessToken); err != nil {
		logger.Warn("Provider sign out failed", map[string]interface{}{
			"user_id": session.UserID,
			"error":   err.Error(),
		})
	}
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.Auth.SendPasswordReset(r.Context(), req.Email, s.opts.PasswordResetRedirectURL); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset email sent."})
}

func (s *Server) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.Auth.UpdatePassword(r.Context(), sessionFrom(r).AccessToken, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated."})
}

func (s *Server) Session(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	profile, err := s.Profiles.Ensure(r.Context(), session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		UserID:    session.UserID,
		Email:     session.Email,
		Profile:   profile,
		HasAccess: s.Profiles.HasAccess(profile),
	})
}

type ProfileResponse struct {
	Profile   *models.Profile `json:"profile"`
	HasAccess bool            `json:"has_access"`
}

func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.Profiles.Get(r.Context(), sessionFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profile, HasAccess: s.Profiles.HasAccess(profile)})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expiresIn int) {
	if expiresIn <= 0 {
		expiresIn = int(time.Hour.Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   expiresIn,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

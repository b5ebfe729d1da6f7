package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"deyn.app/cloud/internal/email"
	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/models"
	"deyn.app/cloud/payment"
)

type EVCPaymentRequest struct {
	Phone  string          `json:"phone"`
	Amount decimal.Decimal `json:"amount"`
	UserID string          `json:"userId"`
}

type EVCPaymentResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId,omitempty"`
}

const (
	msgPaymentFailed       = "Payment failed, please try again."
	msgSubscriptionFailed  = "Payment processed but subscription update failed."
	msgPaymentUserMismatch = "userId does not match the signed in user."
)

// EVCPayment charges the caller's phone wallet and activates the
// subscription once the charge settles.
func (s *Server) EVCPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := sessionFrom(r)

	var req EVCPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, EVCPaymentResponse{Message: payment.ErrMissingFields.Message})
		return
	}

	charge := payment.Charge{Phone: req.Phone, Amount: req.Amount, UserID: req.UserID}
	if err := charge.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, EVCPaymentResponse{Message: validationMessage(err)})
		return
	}
	if charge.UserID != session.UserID {
		logger.Warn("Payment user mismatch", map[string]interface{}{
			"user_id":         session.UserID,
			"request_user_id": charge.UserID,
		})
		writeJSON(w, http.StatusForbidden, EVCPaymentResponse{Message: msgPaymentUserMismatch})
		return
	}

	receipt, err := s.Payments.Charge(ctx, charge)
	if err != nil {
		if models.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, EVCPaymentResponse{Message: validationMessage(err)})
			return
		}
		logger.Error("Payment failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": charge.UserID,
		})
		s.captureError(r, err)
		writeJSON(w, http.StatusInternalServerError, EVCPaymentResponse{Message: msgPaymentFailed})
		return
	}

	if !receipt.Settled {
		writeJSON(w, http.StatusAccepted, EVCPaymentResponse{
			Success:       true,
			Message:       receipt.Message,
			TransactionID: receipt.TransactionID,
		})
		return
	}

	profile, applied, err := s.Profiles.Subscribe(ctx, charge.UserID, receipt.TransactionID)
	if err != nil {
		logger.Error("Subscription update failed after payment", map[string]interface{}{
			"error":          err.Error(),
			"user_id":        charge.UserID,
			"transaction_id": receipt.TransactionID,
		})
		s.captureError(r, err)
		writeJSON(w, http.StatusOK, EVCPaymentResponse{Message: msgSubscriptionFailed})
		return
	}

	if applied {
		s.sendReceipt(ctx, firstNonEmpty(session.Email, profile.Email), receipt.TransactionID, charge.Amount.String(), profile.TrialEndsAt)
	}

	writeJSON(w, http.StatusOK, EVCPaymentResponse{
		Success:       true,
		Message:       receipt.Message,
		TransactionID: receipt.TransactionID,
	})
}

// sendReceipt mails the payment receipt. Failures are logged only: the
// subscription is already active.
func (s *Server) sendReceipt(ctx context.Context, to, transactionID, amount string, accessUntil time.Time) {
	if to == "" {
		return
	}
	subject, body := email.SubscriptionReceipt(transactionID, amount, accessUntil)
	if err := s.Mailer.Send(ctx, to, subject, body); err != nil {
		logger.Error("Failed to send receipt email", map[string]interface{}{
			"error":          err.Error(),
			"transaction_id": transactionID,
		})
		return
	}
	logger.Info("Receipt email sent", map[string]interface{}{
		"transaction_id": transactionID,
	})
}

func (s *Server) captureError(r *http.Request, err error) {
	if hub := sentryHub(r); hub != nil {
		hub.CaptureException(err)
	}
}

func validationMessage(err error) string {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return payment.ErrMissingFields.Message
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

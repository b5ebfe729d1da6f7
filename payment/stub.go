package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"deyn.app/cloud/internal/logger"
)

const DefaultStubDelay = 2 * time.Second

// Stub settles every valid charge after a fixed delay. Nothing is sent to a
// provider.
type Stub struct {
	Delay time.Duration
}

func NewStub(delay time.Duration) *Stub {
	if delay < 0 {
		delay = DefaultStubDelay
	}
	return &Stub{Delay: delay}
}

func (s *Stub) Charge(ctx context.Context, charge Charge) (*Receipt, error) {
	if err := charge.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Stub payment started", map[string]interface{}{
		"phone":   charge.Phone,
		"user_id": charge.UserID,
		"amount":  charge.Amount.String(),
	})

	timer := time.NewTimer(s.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("stub payment: %w", ctx.Err())
	case <-timer.C:
	}

	return &Receipt{
		TransactionID: "TXN-" + xid.New().String(),
		Message:       fmt.Sprintf("Payment of $%s from %s processed successfully.", charge.Amount.String(), charge.Phone),
		Settled:       true,
	}, nil
}

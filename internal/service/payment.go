package service

import (
	"context"
	"fmt"
	"time"

	"storefront-api/internal/models"
	"storefront-api/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentProvider is the black-box charge capability. Implementations may
// block on network I/O; they must honor ctx cancellation. A returned error
// of any kind means the charge did not happen.
type PaymentProvider interface {
	Charge(ctx context.Context, amount models.Cents, token string) (*models.PaymentReceipt, error)
}

// DeclineError is an explicit rejection by the provider, as opposed to a
// transport-level failure. The settlement engine rolls back either way.
type DeclineError struct {
	Reason string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("charge declined: %s", e.Reason)
}

// SimulatedProvider stands in for a real payment gateway. It approves
// every charge after a short artificial delay and hands back a synthetic
// transaction reference. The engine still treats it as fallible.
type SimulatedProvider struct {
	latency       time.Duration
	declineReason string
	logger        *zap.Logger
}

// NewSimulatedProvider creates an always-approve provider.
func NewSimulatedProvider(latency time.Duration) *SimulatedProvider {
	return &SimulatedProvider{
		latency: latency,
		logger:  util.GetLogger(),
	}
}

// DeclineWith switches the provider into decline mode. Every subsequent
// charge is rejected with the given reason. Used by tests and load drills.
func (p *SimulatedProvider) DeclineWith(reason string) {
	p.declineReason = reason
}

// Charge simulates a gateway round trip.
func (p *SimulatedProvider) Charge(ctx context.Context, amount models.Cents, token string) (*models.PaymentReceipt, error) {
	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if p.declineReason != "" {
		return nil, &DeclineError{Reason: p.declineReason}
	}

	reference := fmt.Sprintf("TXN-%s", uuid.New().String()[:8])
	p.logger.Info("Simulated charge approved",
		zap.String("amount", amount.String()),
		zap.String("reference", reference))

	return &models.PaymentReceipt{
		Success:   true,
		Provider:  "simulated",
		Reference: reference,
	}, nil
}

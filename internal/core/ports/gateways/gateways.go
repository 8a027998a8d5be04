// Package gateways declares the boundaries to the non-transactional external
// collaborators: the card processor and the notification queue. Side effects
// issued across these boundaries are permanent; nothing here participates in
// the payin transaction.
package gateways

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stipendly/payday_backend/internal/core/domain"
)

// ProcessorError is a failure the processor itself reported (a decline, an
// invalid card, an account restriction). These are per-item soft failures:
// callers count them and move on. Transport and other unexpected errors are
// returned as ordinary errors and propagate.
type ProcessorError struct {
	Code    string
	Message string
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("processor error %s: %s", e.Code, e.Message)
}

// CardProcessor is the payment-gateway boundary. Hold amounts travel in minor
// units on the wire; the decimal amounts here are ledger amounts the adapter
// converts.
type CardProcessor interface {
	// CreateHold reserves amount against the participant's card. A decline
	// comes back as *ProcessorError.
	CreateHold(ctx context.Context, participantID string, amount decimal.Decimal) (*domain.CardHold, error)

	// CaptureHold converts up to amount of the reserved hold into a charge.
	CaptureHold(ctx context.Context, hold domain.CardHold, amount decimal.Decimal) error

	// CancelHold voids a hold. Holds are never rolled back, only cancelled.
	CancelHold(ctx context.Context, hold domain.CardHold) error

	// SetHoldState corrects the metadata state tag on a processor-side hold.
	SetHoldState(ctx context.Context, hold domain.CardHold, state domain.HoldState) error

	// QueryHolds lists the holds tagged with this system's metadata in the
	// given state.
	QueryHolds(ctx context.Context, state domain.HoldState) ([]domain.CardHold, error)

	// CreditAccount pays amount out to the participant's verified payout
	// route. A processor-reported failure comes back as *ProcessorError.
	CreditAccount(ctx context.Context, participantID string, amount decimal.Decimal) error
}

// Notifier enqueues outbound notifications; templating and delivery live
// elsewhere.
type Notifier interface {
	EnqueueChargeOutcome(ctx context.Context, templateKey string, participantID string, exchange domain.ExchangeRecord, extra map[string]any) error
}

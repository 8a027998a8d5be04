package repositories

import (
	"context"
	"time"

	"github.com/stipendly/payday_backend/internal/core/domain"
)

// TakeoverRepositoryFacade migrates balances across account-merge chains.
type TakeoverRepositoryFacade interface {
	// FindAbsorptionsWithBalance returns every absorption link whose archived
	// account still carries a positive balance.
	FindAbsorptionsWithBalance(ctx context.Context) ([]domain.AbsorptionLink, error)

	// ResolveAbsorptions transfers each link's archived balance in full to
	// the absorbing account, recording a take-over transfer per link, in one
	// transaction.
	ResolveAbsorptions(ctx context.Context, links []domain.AbsorptionLink) error
}

// PayoutRepositoryFacade selects who gets paid out.
type PayoutRepositoryFacade interface {
	// PayableParticipants returns participants with a positive balance, at
	// least one verified payout route, and a qualifying payout role (team
	// owner of an approved, open team; payroll members once payroll exists).
	PayableParticipants(ctx context.Context) ([]domain.Participant, error)
}

// ExchangeRepositoryFacade is the append-only log of money moved between the
// system and the card processor.
type ExchangeRepositoryFacade interface {
	// RecordExchange appends one exchange row. Called from pooled workers, so
	// implementations must be safe for concurrent use.
	RecordExchange(ctx context.Context, rec domain.ExchangeRecord) error

	// ChargeExchangesBetween returns charge exchanges (amount > 0) in the
	// window whose participant opted into charge notifications.
	ChargeExchangesBetween(ctx context.Context, start, end time.Time) ([]domain.ExchangeRecord, error)
}

package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stipendly/payday_backend/internal/core/domain"
)

// PaydaySvcFacade is the payday stage machine.
type PaydaySvcFacade interface {
	// Start returns the currently-open payday, creating one if none is open.
	// Idempotent under concurrent invocation: the creation race is arbitrated
	// by the store's uniqueness constraint and the loser adopts the winner's
	// event.
	Start(ctx context.Context) (*domain.PaydayEvent, error)

	// Run executes the remaining stages of the payday in order, persisting
	// the stage counter after each. Safe to invoke again after a crash.
	Run(ctx context.Context, payday *domain.PaydayEvent) error

	// Current returns the open payday, or apperrors.ErrNotFound.
	Current(ctx context.Context) (*domain.PaydayEvent, error)
}

// SettlementSvcFacade runs the payin transaction.
type SettlementSvcFacade interface {
	Payin(ctx context.Context, tsStart time.Time) error
}

// HoldSvcFacade reconciles external card holds against the payin snapshot.
type HoldSvcFacade interface {
	// CreateCardHolds returns the usable holds keyed by participant id.
	CreateCardHolds(ctx context.Context, tx pgx.Tx) (map[string]domain.CardHold, error)

	// SettleCardHolds captures from holds exactly what negative projected
	// balances require and cancels every hold left over. The holds map is
	// empty when it returns.
	SettleCardHolds(ctx context.Context, tx pgx.Tx, holds map[string]domain.CardHold) error
}

// TakeoverSvcFacade migrates balances across account-merge chains.
type TakeoverSvcFacade interface {
	TakeOverBalances(ctx context.Context) error
}

// PayoutSvcFacade disburses positive balances to verified payout routes.
type PayoutSvcFacade interface {
	Payout(ctx context.Context) error
}

// TokenSvcFacade issues operator access tokens for the admin API.
type TokenSvcFacade interface {
	Authenticate(ctx context.Context, password string) (token string, expiresAt time.Time, err error)
}

// ServiceContainer holds all service facades the handlers need.
type ServiceContainer struct {
	Payday PaydaySvcFacade
	Token  TokenSvcFacade
}

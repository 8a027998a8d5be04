package repositories

import (
	"context"
	"time"

	"github.com/stipendly/payday_backend/internal/core/domain"
)

// PaydayRepositoryFacade manages the payday event row itself. Every mutation
// of an open payday is guarded by the "not ended" sentinel predicate: when no
// open payday exists the repository returns apperrors.ErrNotFound, which the
// service layer treats as the fatal ErrNoPaydayFound condition.
type PaydayRepositoryFacade interface {
	// InsertPayday creates a new open payday. Returns apperrors.ErrDuplicate
	// when the uniqueness constraint on the open sentinel fires, i.e. another
	// payday is already open.
	InsertPayday(ctx context.Context) (*domain.PaydayEvent, error)

	// FindOpenPayday returns the currently open payday, or apperrors.ErrNotFound.
	FindOpenPayday(ctx context.Context) (*domain.PaydayEvent, error)

	// MarkStageDone increments the open payday's stage counter.
	MarkStageDone(ctx context.Context) error

	// EndPayday stamps the completion timestamp on the open payday and
	// returns it.
	EndPayday(ctx context.Context) (time.Time, error)

	// SetCardHoldFailures records how many card holds could not be created
	// this payday.
	SetCardHoldFailures(ctx context.Context, n int) error

	// IncrementCreditFailures bumps the payout-failure counter.
	IncrementCreditFailures(ctx context.Context) error

	// UpdatePaydayStats recomputes the open payday's aggregate counters from
	// the transfer and exchange logs restricted to the event window starting
	// at tsStart. Purely derived; safe to run any number of times.
	UpdatePaydayStats(ctx context.Context, tsStart time.Time) error

	// UpdateCachedAmounts recomputes every participant's cached giving,
	// receiving and taking totals and per-tip funded flags from the live
	// funding graph. Purely derived and idempotent.
	UpdateCachedAmounts(ctx context.Context) error
}

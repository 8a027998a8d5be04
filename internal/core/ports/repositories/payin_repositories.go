package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stipendly/payday_backend/internal/core/domain"
)

// PayinRepositoryFacade is the transactional working set of one payin stage.
// All ledger mutation during payin happens on a single pgx.Tx handed out by
// Begin; the card-processor side effects happen outside it and are never
// rolled back.
type PayinRepositoryFacade interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Commit(ctx context.Context, tx pgx.Tx) error
	Rollback(ctx context.Context, tx pgx.Tx) error

	// PreparePayin materializes the payday working tables (participants,
	// teams, subscriptions, payments) frozen at tsStart. Re-running it for
	// the same open payday rebuilds the identical snapshot, which is what
	// makes a crashed payin re-runnable.
	PreparePayin(ctx context.Context, tx pgx.Tx, tsStart time.Time) error

	// ChargeableParticipants returns snapshot rows that need a card hold:
	// projected charge exceeds their balance, a usable card on file, and not
	// flagged suspicious.
	ChargeableParticipants(ctx context.Context, tx pgx.Tx) ([]domain.ParticipantSnapshot, error)

	// MarkCardHoldOK flags the snapshot rows whose holds are in place.
	MarkCardHoldOK(ctx context.Context, tx pgx.Tx, participantIDs []string) error

	// FundSubscriptions marks fundable subscriptions funded up to available
	// giving and books the matching to-team payments against the working
	// balances. Skips rows already funded, so repeated runs are idempotent.
	FundSubscriptions(ctx context.Context, tx pgx.Tx) error

	// TransferTakes distributes each team's funded income among member takes
	// in take-priority order, skipping transfers already processed.
	TransferTakes(ctx context.Context, tx pgx.Tx, tsStart time.Time) error

	// ProcessDraws sends each team's undistributed remainder to its owner.
	ProcessDraws(ctx context.Context, tx pgx.Tx) error

	// PendingPayments reads back every payment row booked since the payin
	// began, for forensic dumping if settlement fails.
	PendingPayments(ctx context.Context, tx pgx.Tx, since time.Time) ([]domain.PaymentRecord, error)

	// NegativeBalanceHolders returns snapshot rows whose projected new
	// balance is below zero and must be brought up by capturing their hold.
	NegativeBalanceHolders(ctx context.Context, tx pgx.Tx) ([]domain.ParticipantSnapshot, error)

	// CommitBalances applies balance += (new_balance - old_balance) for every
	// changed snapshot row in one statement, returning each participant's
	// written and read-back balance so the caller can detect lost updates.
	CommitBalances(ctx context.Context, tx pgx.Tx) ([]domain.BalanceCommit, error)

	// RecordPayments appends the working payment rows to the permanent
	// payments log, tagged with the open payday id.
	RecordPayments(ctx context.Context, tx pgx.Tx) error
}

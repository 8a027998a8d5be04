package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stipendly/payday_backend/internal/core/domain"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
	"github.com/stipendly/payday_backend/internal/middleware"
)

// ErrNegativeBalance means a balance commit would have driven a participant's
// stored balance below zero past what the snapshot accounted for: someone
// else changed the true balance concurrently and committing would clobber it.
// Always fatal; aborts the payin transaction.
var ErrNegativeBalance = errors.New("balance commit would produce an unexpected negative balance")

// settlementService runs the payin stage: one transaction covering snapshot
// preparation, internal transfers and the balance commit, with card-hold
// capture interleaved. Internal changes roll back with the transaction;
// captured holds do not.
type settlementService struct {
	payinRepo portsrepo.PayinRepositoryFacade
	holds     portssvc.HoldSvcFacade
	dumpDir   string
}

// NewSettlementService creates the payin engine. dumpDir is where pending
// payment rows are dumped when settlement fails.
func NewSettlementService(payinRepo portsrepo.PayinRepositoryFacade, holds portssvc.HoldSvcFacade, dumpDir string) portssvc.SettlementSvcFacade {
	if dumpDir == "" {
		dumpDir = "."
	}
	return &settlementService{
		payinRepo: payinRepo,
		holds:     holds,
		dumpDir:   dumpDir,
	}
}

var _ portssvc.SettlementSvcFacade = (*settlementService)(nil)

// Payin charges cards and transfers money internally between participants.
// The fixed order inside the transaction: prepare, holds, subscriptions,
// takes, draws, settle, commit. Re-running after a crash rebuilds the same
// snapshot and skips transfers already booked.
func (s *settlementService) Payin(ctx context.Context, tsStart time.Time) error {
	logger := middleware.GetLoggerFromCtx(ctx)

	tx, err := s.payinRepo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin payin transaction: %w", err)
	}
	defer s.payinRepo.Rollback(ctx, tx)

	if err := s.payinRepo.PreparePayin(ctx, tx, tsStart); err != nil {
		return fmt.Errorf("failed to prepare payin working set: %w", err)
	}
	logger.Info("Prepared the payin working set")

	holds, err := s.holds.CreateCardHolds(ctx, tx)
	if err != nil {
		return err
	}

	if err := s.payinRepo.FundSubscriptions(ctx, tx); err != nil {
		return fmt.Errorf("failed to fund subscriptions: %w", err)
	}
	logger.Info("Processed subscriptions")

	if err := s.payinRepo.TransferTakes(ctx, tx, tsStart); err != nil {
		return fmt.Errorf("failed to transfer takes: %w", err)
	}

	if err := s.payinRepo.ProcessDraws(ctx, tx); err != nil {
		return fmt.Errorf("failed to process draws: %w", err)
	}
	logger.Info("Processed draws")

	// Kept in memory for forensic dumping should settlement fail.
	payments, err := s.payinRepo.PendingPayments(ctx, tx, tsStart)
	if err != nil {
		return fmt.Errorf("failed to read back pending payments: %w", err)
	}

	if err := s.settle(ctx, tx, holds); err != nil {
		// Diagnostic only. The transaction rolls back, but any hold already
		// captured above is an external side effect that stays captured; the
		// dump is what operators reconcile against.
		s.dumpPayments(ctx, payments)
		return err
	}

	return s.payinRepo.Commit(ctx, tx)
}

func (s *settlementService) settle(ctx context.Context, tx pgx.Tx, holds map[string]domain.CardHold) error {
	logger := middleware.GetLoggerFromCtx(ctx)

	if err := s.holds.SettleCardHolds(ctx, tx, holds); err != nil {
		return err
	}

	logger.Info("Updating balances")
	commits, err := s.payinRepo.CommitBalances(ctx, tx)
	if err != nil {
		return fmt.Errorf("failed to commit balances: %w", err)
	}
	for _, c := range commits {
		if c.NewBalance.IsNegative() && c.NewBalance.LessThan(c.CurBalance) {
			logger.Error("Unexpected negative balance drift",
				slog.String("participant_id", c.ParticipantID),
				slog.String("username", c.Username),
				slog.String("new_balance", c.NewBalance.String()),
				slog.String("cur_balance", c.CurBalance.String()))
			return ErrNegativeBalance
		}
	}
	logger.Info("Updated balances", slog.Int("participants", len(commits)))

	if err := s.payinRepo.RecordPayments(ctx, tx); err != nil {
		return fmt.Errorf("failed to record payments: %w", err)
	}
	return nil
}

// dumpPayments writes the in-memory payment rows to a timestamped CSV for
// postmortem inspection. Best effort: a dump failure is logged, never raised
// over the settlement error it accompanies.
func (s *settlementService) dumpPayments(ctx context.Context, payments []domain.PaymentRecord) {
	logger := middleware.GetLoggerFromCtx(ctx)

	name := filepath.Join(s.dumpDir, fmt.Sprintf("%d_payments.csv", time.Now().Unix()))
	f, err := os.Create(name)
	if err != nil {
		logger.Error("Failed to create payments dump", slog.String("path", name), slog.String("error", err.Error()))
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, p := range payments {
		record := []string{
			p.Timestamp.UTC().Format(time.RFC3339Nano),
			p.ParticipantID,
			p.TeamID,
			p.Amount.String(),
			string(p.Direction),
		}
		if err := w.Write(record); err != nil {
			logger.Error("Failed to write payments dump", slog.String("path", name), slog.String("error", err.Error()))
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.Error("Failed to flush payments dump", slog.String("path", name), slog.String("error", err.Error()))
		return
	}
	logger.Warn("Dumped pending payments for debugging", slog.String("path", name), slog.Int("rows", len(payments)))
}

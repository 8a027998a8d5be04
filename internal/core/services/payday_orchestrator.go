package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stipendly/payday_backend/internal/apperrors"
	"github.com/stipendly/payday_backend/internal/core/domain"
	portsgw "github.com/stipendly/payday_backend/internal/core/ports/gateways"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
	"github.com/stipendly/payday_backend/internal/middleware"
)

// ErrNoPaydayFound means an open payday was expected and none exists. This is
// a logic or ordering bug, always fatal, never retried.
var ErrNoPaydayFound = errors.New("no payday found where one was expected")

// paydayService is the stage machine tying the payin, payout and stats
// stages together. It owns crash recovery: the stage counter persists after
// each stage, so a re-run skips work already durably committed and redoes the
// stage that was interrupted from its top.
type paydayService struct {
	paydayRepo   portsrepo.PaydayRepositoryFacade
	exchangeRepo portsrepo.ExchangeRepositoryFacade
	notifier     portsgw.Notifier
	settlement   portssvc.SettlementSvcFacade
	takeover     portssvc.TakeoverSvcFacade
	payout       portssvc.PayoutSvcFacade
}

// NewPaydayService creates the payday orchestrator.
func NewPaydayService(
	paydayRepo portsrepo.PaydayRepositoryFacade,
	exchangeRepo portsrepo.ExchangeRepositoryFacade,
	notifier portsgw.Notifier,
	settlement portssvc.SettlementSvcFacade,
	takeover portssvc.TakeoverSvcFacade,
	payout portssvc.PayoutSvcFacade,
) portssvc.PaydaySvcFacade {
	return &paydayService{
		paydayRepo:   paydayRepo,
		exchangeRepo: exchangeRepo,
		notifier:     notifier,
		settlement:   settlement,
		takeover:     takeover,
		payout:       payout,
	}
}

var _ portssvc.PaydaySvcFacade = (*paydayService)(nil)

// Start returns the open payday, creating one if none is open. The insert is
// arbitrated by the uniqueness constraint on the open sentinel: the loser of
// a concurrent race simply re-reads and adopts the winner's event.
func (s *paydayService) Start(ctx context.Context) (*domain.PaydayEvent, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	payday, err := s.paydayRepo.InsertPayday(ctx)
	if err == nil {
		logger.Info("Starting a new payday", slog.Int64("payday_id", payday.PaydayID), slog.Time("ts_start", payday.TsStart))
		return payday, nil
	}
	if !errors.Is(err, apperrors.ErrDuplicate) {
		return nil, fmt.Errorf("failed to insert payday: %w", err)
	}

	payday, err = s.paydayRepo.FindOpenPayday(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrNoPaydayFound
		}
		return nil, fmt.Errorf("failed to load open payday: %w", err)
	}
	logger.Info("Picking up with an existing payday", slog.Int64("payday_id", payday.PaydayID), slog.Int("stage", int(payday.Stage)))
	return payday, nil
}

// Current returns the open payday, or apperrors.ErrNotFound.
func (s *paydayService) Current(ctx context.Context) (*domain.PaydayEvent, error) {
	return s.paydayRepo.FindOpenPayday(ctx)
}

// Run executes the remaining stages in order. An error inside a stage aborts
// the run and leaves the payday open at its last completed stage; the next
// Start/Run resumes there. Work inside a completed stage is never repeated.
func (s *paydayService) Run(ctx context.Context, payday *domain.PaydayEvent) error {
	logger := middleware.GetLoggerFromCtx(ctx).With(slog.Int64("payday_id", payday.PaydayID))
	ctx = middleware.ContextWithLogger(ctx, logger)
	started := time.Now()

	logger.Info("Greetings, program! It's payday", slog.Int("stage", int(payday.Stage)))

	if payday.Stage < domain.StagePayout {
		if err := s.settlement.Payin(ctx, payday.TsStart); err != nil {
			return err
		}
		if err := s.takeover.TakeOverBalances(ctx); err != nil {
			return err
		}
		if err := s.markStageDone(ctx, payday); err != nil {
			return err
		}
	}
	if payday.Stage < domain.StageStats {
		if err := s.payout.Payout(ctx); err != nil {
			return err
		}
		if err := s.markStageDone(ctx, payday); err != nil {
			return err
		}
	}
	if payday.Stage < domain.StageDone {
		if err := s.updateStats(ctx, payday.TsStart); err != nil {
			return err
		}
		if err := s.markStageDone(ctx, payday); err != nil {
			return err
		}
	}

	tsEnd, err := s.end(ctx)
	if err != nil {
		return err
	}
	payday.TsEnd = tsEnd

	s.notifyParticipants(ctx, payday.TsStart, tsEnd)

	logger.Info("Payday done", slog.Duration("ran_for", time.Since(started)))
	return nil
}

func (s *paydayService) markStageDone(ctx context.Context, payday *domain.PaydayEvent) error {
	if err := s.paydayRepo.MarkStageDone(ctx); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrNoPaydayFound
		}
		return fmt.Errorf("failed to mark stage done: %w", err)
	}
	payday.Stage++
	return nil
}

// end stamps the completion timestamp, closing the payday.
func (s *paydayService) end(ctx context.Context) (time.Time, error) {
	tsEnd, err := s.paydayRepo.EndPayday(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return time.Time{}, ErrNoPaydayFound
		}
		return time.Time{}, fmt.Errorf("failed to end payday: %w", err)
	}
	return tsEnd, nil
}

// updateStats recomputes the payday's aggregate counters and every
// participant's cached amounts. Both are purely derived from the logs and the
// live funding graph, so running them twice yields identical output.
func (s *paydayService) updateStats(ctx context.Context, tsStart time.Time) error {
	logger := middleware.GetLoggerFromCtx(ctx)

	if err := s.paydayRepo.UpdatePaydayStats(ctx, tsStart); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrNoPaydayFound
		}
		return fmt.Errorf("failed to update payday stats: %w", err)
	}
	logger.Info("Updated payday stats")

	if err := s.paydayRepo.UpdateCachedAmounts(ctx); err != nil {
		return fmt.Errorf("failed to update cached amounts: %w", err)
	}
	logger.Info("Updated cached amounts")
	return nil
}

// notifyParticipants enqueues a charge-outcome notification for every
// exchange in the payday window whose participant opted in. Notification
// problems are logged and never fail a completed payday.
func (s *paydayService) notifyParticipants(ctx context.Context, tsStart, tsEnd time.Time) {
	logger := middleware.GetLoggerFromCtx(ctx)
	logger.Info("Notifying participants")

	exchanges, err := s.exchangeRepo.ChargeExchangesBetween(ctx, tsStart, tsEnd)
	if err != nil {
		logger.Error("Failed to load exchanges for notification", slog.String("error", err.Error()))
		return
	}

	for _, e := range exchanges {
		var bit int
		switch e.Status {
		case domain.ExchangeFailed:
			bit = 1
		case domain.ExchangeSucceeded:
			bit = 2
		default:
			logger.Warn("Exchange has an unexpected status",
				slog.String("exchange_id", e.ExchangeID),
				slog.String("status", string(e.Status)))
			continue
		}
		if e.NotifyCharge&bit == 0 {
			continue
		}
		templateKey := "charge_" + string(e.Status)
		if err := s.notifier.EnqueueChargeOutcome(ctx, templateKey, e.ParticipantID, e, nil); err != nil {
			logger.Error("Failed to enqueue notification",
				slog.String("exchange_id", e.ExchangeID),
				slog.String("error", err.Error()))
		}
	}
}

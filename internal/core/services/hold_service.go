package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"

	"github.com/stipendly/payday_backend/internal/apperrors"
	"github.com/stipendly/payday_backend/internal/core/domain"
	portsgw "github.com/stipendly/payday_backend/internal/core/ports/gateways"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
	"github.com/stipendly/payday_backend/internal/middleware"
	"github.com/stipendly/payday_backend/internal/utils/billing"
	"github.com/stipendly/payday_backend/internal/utils/fanout"
)

// holdService reconciles card holds on the processor against the payin
// working set. Hold side effects are permanent once issued: there is no
// rollback path across the processor boundary, only capture or cancel.
type holdService struct {
	payinRepo  portsrepo.PayinRepositoryFacade
	paydayRepo portsrepo.PaydayRepositoryFacade
	processor  portsgw.CardProcessor
	exchanges  portsrepo.ExchangeRepositoryFacade
	width      int
}

// NewHoldService creates the hold reconciler. width bounds the concurrent
// processor calls.
func NewHoldService(payinRepo portsrepo.PayinRepositoryFacade, paydayRepo portsrepo.PaydayRepositoryFacade, exchanges portsrepo.ExchangeRepositoryFacade, processor portsgw.CardProcessor, width int) portssvc.HoldSvcFacade {
	if width <= 0 {
		width = fanout.DefaultWidth
	}
	return &holdService{
		payinRepo:  payinRepo,
		paydayRepo: paydayRepo,
		exchanges:  exchanges,
		processor:  processor,
		width:      width,
	}
}

var _ portssvc.HoldSvcFacade = (*holdService)(nil)

// fetchCardHolds queries the processor for every hold we still tag "new" and
// reconciles each against its true status. Holds the processor reports as
// failed, cancelled or captured get their tag corrected and are dropped.
// Holds belonging to participants outside the requested set are stale
// leftovers from a previous partial run and are cancelled outright.
func (s *holdService) fetchCardHolds(ctx context.Context, participantIDs map[string]struct{}) (map[string]domain.CardHold, error) {
	logger := middleware.GetLoggerFromCtx(ctx)
	logger.Info("Fetching card holds")

	all, err := s.processor.QueryHolds(ctx, domain.HoldNew)
	if err != nil {
		return nil, fmt.Errorf("failed to query card holds: %w", err)
	}

	holds := make(map[string]domain.CardHold)
	var stale []domain.CardHold
	for _, hold := range all {
		if state := hold.LiveState(); state != domain.HoldNew {
			if err := s.processor.SetHoldState(ctx, hold, state); err != nil {
				return nil, fmt.Errorf("failed to correct state on hold %s: %w", hold.HoldID, err)
			}
			logger.Info("Corrected hold state",
				slog.String("hold_id", hold.HoldID),
				slog.String("participant_id", hold.ParticipantID),
				slog.String("state", string(state)),
				slog.Int64("amount", hold.Amount))
			continue
		}
		if _, wanted := participantIDs[hold.ParticipantID]; wanted {
			logger.Info("Reusing an existing hold",
				slog.String("participant_id", hold.ParticipantID),
				slog.Int64("amount", hold.Amount))
			holds[hold.ParticipantID] = hold
		} else {
			stale = append(stale, hold)
		}
	}

	err = fanout.ForEach(ctx, s.width, stale, func(ctx context.Context, hold domain.CardHold) error {
		return s.processor.CancelHold(ctx, hold)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel stale holds: %w", err)
	}

	return holds, nil
}

// CreateCardHolds sizes, reuses or replaces a hold for every participant
// whose projected charge needs card money. A processor decline is a per-item
// failure: counted on the payday row, logged, never fatal to the batch.
// Anything else that goes wrong inside a worker propagates out unmodified.
func (s *holdService) CreateCardHolds(ctx context.Context, tx pgx.Tx) (map[string]domain.CardHold, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	participants, err := s.payinRepo.ChargeableParticipants(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to select chargeable participants: %w", err)
	}
	if len(participants) == 0 {
		return map[string]domain.CardHold{}, nil
	}

	participantIDs := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		participantIDs[p.ParticipantID] = struct{}{}
	}

	holds, err := s.fetchCardHolds(ctx, participantIDs)
	if err != nil {
		return nil, err
	}

	// The holds map is shared across workers; mu guards it. Failure counting
	// is a plain atomic.
	var mu sync.Mutex
	var failures int64

	err = fanout.ForEach(ctx, s.width, participants, func(ctx context.Context, p domain.ParticipantSnapshot) error {
		amount := p.ProjectedCharge()
		if amount.LessThan(billing.MinimumCharge) {
			amount = billing.MinimumCharge
		}
		// The hold reserves the gross: the ledger requirement plus the
		// processor's cut, so capturing the requirement later nets out.
		charge, _ := billing.Upcharge(amount)

		mu.Lock()
		existing, reusable := holds[p.ParticipantID]
		mu.Unlock()

		if reusable {
			if existing.Amount >= billing.MinorUnits(charge) {
				return nil
			}
			// The amount is too low; cancel the hold and make a new one.
			mu.Lock()
			delete(holds, p.ParticipantID)
			mu.Unlock()
			if err := s.processor.CancelHold(ctx, existing); err != nil {
				return fmt.Errorf("failed to cancel undersized hold %s: %w", existing.HoldID, err)
			}
		}

		hold, err := s.processor.CreateHold(ctx, p.ParticipantID, charge)
		if err != nil {
			var perr *portsgw.ProcessorError
			if errors.As(err, &perr) {
				atomic.AddInt64(&failures, 1)
				logger.Warn("Card hold declined",
					slog.String("participant_id", p.ParticipantID),
					slog.String("username", p.Username),
					slog.String("error", perr.Error()))
				return nil
			}
			return err
		}

		mu.Lock()
		holds[p.ParticipantID] = *hold
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.paydayRepo.SetCardHoldFailures(ctx, int(failures)); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrNoPaydayFound
		}
		return nil, fmt.Errorf("failed to record card hold failures: %w", err)
	}

	if len(holds) > 0 {
		ids := make([]string, 0, len(holds))
		for id := range holds {
			ids = append(ids, id)
		}
		if err := s.payinRepo.MarkCardHoldOK(ctx, tx, ids); err != nil {
			return nil, fmt.Errorf("failed to mark card_hold_ok: %w", err)
		}
	}

	logger.Info("Created card holds", slog.Int("holds", len(holds)), slog.Int64("failures", failures))
	return holds, nil
}

// SettleCardHolds captures from each negative-balance participant's hold the
// upcharged amount whose net brings the projected balance back to zero, then
// cancels every hold left over. No hold remains pending when it returns.
func (s *holdService) SettleCardHolds(ctx context.Context, tx pgx.Tx, holds map[string]domain.CardHold) error {
	logger := middleware.GetLoggerFromCtx(ctx)
	logger.Info("Settling card holds")

	negatives, err := s.payinRepo.NegativeBalanceHolders(ctx, tx)
	if err != nil {
		return fmt.Errorf("failed to select negative balance holders: %w", err)
	}

	type capture struct {
		snapshot domain.ParticipantSnapshot
		hold     domain.CardHold
	}
	captures := make([]capture, 0, len(negatives))
	for _, p := range negatives {
		hold, ok := holds[p.ParticipantID]
		if !ok {
			continue
		}
		delete(holds, p.ParticipantID)
		captures = append(captures, capture{snapshot: p, hold: hold})
	}

	err = fanout.ForEach(ctx, s.width, captures, func(ctx context.Context, c capture) error {
		amount := c.snapshot.NewBalance.Neg()
		// The card is charged the gross; the net lands on the balance and the
		// fee is the processor's.
		charge, fee := billing.Upcharge(amount)
		if err := s.processor.CaptureHold(ctx, c.hold, charge); err != nil {
			return fmt.Errorf("failed to capture hold %s: %w", c.hold.HoldID, err)
		}
		// Exchanges record the outside-world movement; they live outside the
		// payin transaction because the capture itself cannot be rolled back.
		return s.exchanges.RecordExchange(ctx, domain.ExchangeRecord{
			ParticipantID: c.snapshot.ParticipantID,
			Username:      c.snapshot.Username,
			Amount:        amount,
			Fee:           fee,
			Note:          "card hold capture",
			Status:        domain.ExchangeSucceeded,
		})
	})
	if err != nil {
		return err
	}
	logger.Info("Captured card holds", slog.Int("captured", len(captures)))

	remaining := make([]domain.CardHold, 0, len(holds))
	for id, hold := range holds {
		remaining = append(remaining, hold)
		delete(holds, id)
	}
	err = fanout.ForEach(ctx, s.width, remaining, func(ctx context.Context, hold domain.CardHold) error {
		return s.processor.CancelHold(ctx, hold)
	})
	if err != nil {
		return fmt.Errorf("failed to cancel remaining holds: %w", err)
	}
	logger.Info("Canceled card holds", slog.Int("canceled", len(remaining)))

	return nil
}

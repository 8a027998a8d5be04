package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stipendly/payday_backend/internal/apperrors"
	"github.com/stipendly/payday_backend/internal/core/domain"
	portsgw "github.com/stipendly/payday_backend/internal/core/ports/gateways"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
	"github.com/stipendly/payday_backend/internal/middleware"
	"github.com/stipendly/payday_backend/internal/utils/fanout"
)

// payoutService sends money out to participants' verified payout routes.
// Today that means owners of approved teams; payroll members join once
// payroll disbursement exists.
type payoutService struct {
	payoutRepo portsrepo.PayoutRepositoryFacade
	paydayRepo portsrepo.PaydayRepositoryFacade
	exchanges  portsrepo.ExchangeRepositoryFacade
	processor  portsgw.CardProcessor
	width      int
}

// NewPayoutService creates the payout dispatcher.
func NewPayoutService(payoutRepo portsrepo.PayoutRepositoryFacade, paydayRepo portsrepo.PaydayRepositoryFacade, exchanges portsrepo.ExchangeRepositoryFacade, processor portsgw.CardProcessor, width int) portssvc.PayoutSvcFacade {
	if width <= 0 {
		width = fanout.DefaultWidth
	}
	return &payoutService{
		payoutRepo: payoutRepo,
		paydayRepo: paydayRepo,
		exchanges:  exchanges,
		processor:  processor,
		width:      width,
	}
}

var _ portssvc.PayoutSvcFacade = (*payoutService)(nil)

// Payout credits each payable participant's current balance to their payout
// route. Unreviewed participants are skipped and logged for review, not
// counted as failures. A processor-reported failure bumps the payday's
// payout-failure counter and the batch continues; the participant keeps their
// balance and is retried next payday.
func (s *payoutService) Payout(ctx context.Context) error {
	logger := middleware.GetLoggerFromCtx(ctx)
	logger.Info("Starting payout loop")

	participants, err := s.payoutRepo.PayableParticipants(ctx)
	if err != nil {
		return fmt.Errorf("failed to select payable participants: %w", err)
	}

	err = fanout.ForEach(ctx, s.width, participants, func(ctx context.Context, p domain.Participant) error {
		if p.Suspicion == domain.SuspicionUnreviewed {
			logger.Info("Needs review, skipping payout", slog.String("username", p.Username))
			return nil
		}
		if err := s.processor.CreditAccount(ctx, p.ParticipantID, p.Balance); err != nil {
			var perr *portsgw.ProcessorError
			if !errors.As(err, &perr) {
				return err
			}
			logger.Warn("Payout credit failed",
				slog.String("participant_id", p.ParticipantID),
				slog.String("username", p.Username),
				slog.String("error", perr.Error()))
			if err := s.paydayRepo.IncrementCreditFailures(ctx); err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					return ErrNoPaydayFound
				}
				return fmt.Errorf("failed to record credit failure: %w", err)
			}
			return nil
		}
		// Credits are negative exchanges: money leaving the system.
		return s.exchanges.RecordExchange(ctx, domain.ExchangeRecord{
			ParticipantID: p.ParticipantID,
			Username:      p.Username,
			Amount:        p.Balance.Neg(),
			Note:          "payout credit",
			Status:        domain.ExchangeSucceeded,
		})
	})
	if err != nil {
		return err
	}

	logger.Info("Did payout", slog.Int("participants", len(participants)))
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
	"github.com/stipendly/payday_backend/internal/middleware"
)

// takeoverIterationBound caps the resolution passes. An absorbing account may
// itself have been absorbed, so resolution loops; a graph that still has
// positive archived balances after this many passes is cyclic.
const takeoverIterationBound = 10

// ErrTakeoverLoop means takeover resolution did not terminate within the
// iteration bound: the absorption graph is almost certainly cyclic. Fatal;
// never retried automatically.
var ErrTakeoverLoop = errors.New("takeover resolution exceeded iteration bound, possible infinite loop")

// takeoverService migrates balances across account-merge chains.
type takeoverService struct {
	takeoverRepo portsrepo.TakeoverRepositoryFacade
}

// NewTakeoverService creates the takeover resolver.
func NewTakeoverService(takeoverRepo portsrepo.TakeoverRepositoryFacade) portssvc.TakeoverSvcFacade {
	return &takeoverService{takeoverRepo: takeoverRepo}
}

var _ portssvc.TakeoverSvcFacade = (*takeoverService)(nil)

// TakeOverBalances moves money still held by archived accounts to the
// accounts that absorbed them, repeating until no archived account carries a
// positive balance. Total balance across both sides of every link is
// conserved: each pass zeroes the source and credits the destination in full.
func (s *takeoverService) TakeOverBalances(ctx context.Context) error {
	logger := middleware.GetLoggerFromCtx(ctx)
	logger.Info("Taking over balances")

	for i := 0; ; i++ {
		if i >= takeoverIterationBound {
			return ErrTakeoverLoop
		}
		links, err := s.takeoverRepo.FindAbsorptionsWithBalance(ctx)
		if err != nil {
			return fmt.Errorf("failed to find absorptions with balance: %w", err)
		}
		if len(links) == 0 {
			return nil
		}
		if err := s.takeoverRepo.ResolveAbsorptions(ctx, links); err != nil {
			return fmt.Errorf("failed to resolve absorptions: %w", err)
		}
		logger.Info("Resolved absorption links", slog.Int("links", len(links)), slog.Int("pass", i+1))
	}
}

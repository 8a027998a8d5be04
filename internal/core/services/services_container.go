package services

import (
	portsgw "github.com/stipendly/payday_backend/internal/core/ports/gateways"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
	"github.com/stipendly/payday_backend/pkg/config"
)

// NewServiceContainer creates a new service container with properly initialized dependencies.
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, processor portsgw.CardProcessor, notifier portsgw.Notifier) *portssvc.ServiceContainer {
	container := &portssvc.ServiceContainer{}

	holds := NewHoldService(repos.PayinRepo, repos.PaydayRepo, repos.ExchangeRepo, processor, cfg.ProcessorWorkers)
	settlement := NewSettlementService(repos.PayinRepo, holds, cfg.PaymentDumpDir)
	takeover := NewTakeoverService(repos.TakeoverRepo)
	payout := NewPayoutService(repos.PayoutRepo, repos.PaydayRepo, repos.ExchangeRepo, processor, cfg.ProcessorWorkers)

	container.Payday = NewPaydayService(repos.PaydayRepo, repos.ExchangeRepo, notifier, settlement, takeover, payout)
	container.Token = NewTokenService(cfg)

	return container
}

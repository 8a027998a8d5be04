package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
)

// NewRepositoryProvider wires every pgsql repository onto one shared pool.
func NewRepositoryProvider(pool *pgxpool.Pool) *portsrepo.RepositoryProvider {
	return &portsrepo.RepositoryProvider{
		PaydayRepo:   newPgxPaydayRepository(pool),
		PayinRepo:    newPgxPayinRepository(pool),
		TakeoverRepo: newPgxTakeoverRepository(pool),
		PayoutRepo:   newPgxPayoutRepository(pool),
		ExchangeRepo: newPgxExchangeRepository(pool),
	}
}

package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stipendly/payday_backend/internal/core/domain"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
)

type PgxTakeoverRepository struct {
	BaseRepository
}

func newPgxTakeoverRepository(pool *pgxpool.Pool) portsrepo.TakeoverRepositoryFacade {
	return &PgxTakeoverRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.TakeoverRepositoryFacade = (*PgxTakeoverRepository)(nil)

// FindAbsorptionsWithBalance returns every absorption link whose archived
// account still carries a positive balance.
func (r *PgxTakeoverRepository) FindAbsorptionsWithBalance(ctx context.Context) ([]domain.AbsorptionLink, error) {
	query := `
		SELECT a.archived_as
		     , a.absorbed_by
		     , p.balance AS archived_balance
		  FROM absorptions a
		  JOIN participants p ON p.username = a.archived_as
		 WHERE p.balance > 0;
	`
	rows, err := r.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query absorptions: %w", err)
	}
	defer rows.Close()

	links := []domain.AbsorptionLink{}
	for rows.Next() {
		var l domain.AbsorptionLink
		if err := rows.Scan(&l.ArchivedAs, &l.AbsorbedBy, &l.ArchivedBalance); err != nil {
			return nil, fmt.Errorf("failed to scan absorption row: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// ResolveAbsorptions moves each link's archived balance in full onto the
// absorbing account and records one take-over transfer per link. All links
// of one pass commit or roll back together.
func (r *PgxTakeoverRepository) ResolveAbsorptions(ctx context.Context, links []domain.AbsorptionLink) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin takeover transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, l := range links {
		batch.Queue(`
			UPDATE participants
			   SET balance = balance - $2
			 WHERE username = $1;
		`, l.ArchivedAs, l.ArchivedBalance)
		batch.Queue(`
			UPDATE participants
			   SET balance = balance + $2
			 WHERE username = $1;
		`, l.AbsorbedBy, l.ArchivedBalance)
		batch.Queue(`
			INSERT INTO transfers (tipper, tippee, amount, context)
			     VALUES ($1, $2, $3, $4);
		`, l.ArchivedAs, l.AbsorbedBy, l.ArchivedBalance, string(domain.ContextTakeOver))
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to resolve absorption: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close takeover batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit takeover transaction: %w", err)
	}
	return nil
}

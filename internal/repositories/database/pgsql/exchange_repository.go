package pgsql

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stipendly/payday_backend/internal/core/domain"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
)

type PgxExchangeRepository struct {
	BaseRepository
}

func newPgxExchangeRepository(pool *pgxpool.Pool) portsrepo.ExchangeRepositoryFacade {
	return &PgxExchangeRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.ExchangeRepositoryFacade = (*PgxExchangeRepository)(nil)

// RecordExchange appends one exchange row and applies its amount to the
// participant's stored balance in the same statement: a capture credits the
// balance, a payout credit debits it. Only succeeded exchanges move the
// balance. Runs on the pool directly (not a shared tx), so concurrent workers
// can call it safely; the single statement keeps row and balance atomic.
func (r *PgxExchangeRepository) RecordExchange(ctx context.Context, rec domain.ExchangeRecord) error {
	if rec.ExchangeID == "" {
		rec.ExchangeID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	query := `
		WITH x AS (
		    INSERT INTO exchanges (exchange_id, "timestamp", participant_id, amount, fee, note, status)
		         VALUES ($1, $2, $3, $4, $5, $6, $7)
		      RETURNING participant_id, amount, status
		)
		UPDATE participants p
		   SET balance = p.balance + x.amount
		  FROM x
		 WHERE p.participant_id = x.participant_id
		   AND x.status = 'succeeded';
	`
	_, err := r.Pool.Exec(ctx, query,
		rec.ExchangeID, rec.Timestamp, rec.ParticipantID,
		rec.Amount, rec.Fee, rec.Note, string(rec.Status))
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// ChargeExchangesBetween returns charge exchanges (amount > 0) in the window
// whose participant opted into any charge notification.
func (r *PgxExchangeRepository) ChargeExchangesBetween(ctx context.Context, start, end time.Time) ([]domain.ExchangeRecord, error) {
	query := `
		SELECT e.exchange_id
		     , e."timestamp"
		     , e.participant_id
		     , p.username
		     , e.amount
		     , e.fee
		     , e.note
		     , e.status
		     , p.notify_charge
		  FROM exchanges e
		  JOIN participants p ON p.participant_id = e.participant_id
		 WHERE e."timestamp" >= $1
		   AND e."timestamp" < $2
		   AND e.amount > 0
		   AND p.notify_charge > 0
	  ORDER BY e."timestamp";
	`
	rows, err := r.Pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query charge exchanges: %w", err)
	}
	defer rows.Close()

	records := []domain.ExchangeRecord{}
	for rows.Next() {
		var rec domain.ExchangeRecord
		var status string
		err := rows.Scan(&rec.ExchangeID, &rec.Timestamp, &rec.ParticipantID, &rec.Username,
			&rec.Amount, &rec.Fee, &rec.Note, &status, &rec.NotifyCharge)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exchange row: %w", err)
		}
		rec.Status = domain.ExchangeStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stipendly/payday_backend/internal/apperrors"
	"github.com/stipendly/payday_backend/internal/core/domain"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
)

// openPredicate selects the single open payday. The UNIQUE constraint on
// ts_end guarantees at most one row matches.
const openPredicate = `ts_end = '1970-01-01T00:00:00+00'::timestamptz`

type PgxPaydayRepository struct {
	BaseRepository
}

func newPgxPaydayRepository(pool *pgxpool.Pool) portsrepo.PaydayRepositoryFacade {
	return &PgxPaydayRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.PaydayRepositoryFacade = (*PgxPaydayRepository)(nil)

// InsertPayday creates a new open payday. A second open payday violates the
// uniqueness constraint on ts_end and comes back as apperrors.ErrDuplicate.
func (r *PgxPaydayRepository) InsertPayday(ctx context.Context) (*domain.PaydayEvent, error) {
	query := `
		INSERT INTO paydays DEFAULT VALUES
		RETURNING payday_id, ts_start, ts_end, stage;
	`
	var p domain.PaydayEvent
	var stage int
	err := r.Pool.QueryRow(ctx, query).Scan(&p.PaydayID, &p.TsStart, &p.TsEnd, &stage)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	p.Stage = domain.PaydayStage(stage)
	p.TsStart = p.TsStart.UTC()
	p.TsEnd = p.TsEnd.UTC()
	return &p, nil
}

// FindOpenPayday returns the currently open payday.
func (r *PgxPaydayRepository) FindOpenPayday(ctx context.Context) (*domain.PaydayEvent, error) {
	query := `
		SELECT payday_id, ts_start, ts_end, stage,
		       nactive, ntransfers, transfer_volume, ntakes, take_volume,
		       ncharges, charge_volume, charge_fees_volume,
		       ncredits, credit_volume, credit_fees_volume,
		       ncard_hold_failures, ncredit_failures
		  FROM paydays
		 WHERE ` + openPredicate + `;
	`
	var p domain.PaydayEvent
	var stage int
	err := r.Pool.QueryRow(ctx, query).Scan(
		&p.PaydayID, &p.TsStart, &p.TsEnd, &stage,
		&p.NActive, &p.NTransfers, &p.TransferVolume, &p.NTakes, &p.TakeVolume,
		&p.NCharges, &p.ChargeVolume, &p.ChargeFeesVolume,
		&p.NCredits, &p.CreditVolume, &p.CreditFeesVolume,
		&p.NCardHoldFailures, &p.NCreditFailures,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find open payday: %w", err)
	}
	p.Stage = domain.PaydayStage(stage)
	p.TsStart = p.TsStart.UTC()
	p.TsEnd = p.TsEnd.UTC()
	return &p, nil
}

// MarkStageDone increments the open payday's stage counter.
func (r *PgxPaydayRepository) MarkStageDone(ctx context.Context) error {
	return r.updateOpenPayday(ctx, `UPDATE paydays SET stage = stage + 1 WHERE `+openPredicate+` RETURNING payday_id;`)
}

// EndPayday stamps the completion timestamp on the open payday.
func (r *PgxPaydayRepository) EndPayday(ctx context.Context) (time.Time, error) {
	query := `
		UPDATE paydays
		   SET ts_end = now()
		 WHERE ` + openPredicate + `
	 RETURNING ts_end;
	`
	var tsEnd time.Time
	err := r.Pool.QueryRow(ctx, query).Scan(&tsEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, apperrors.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to end payday: %w", err)
	}
	return tsEnd.UTC(), nil
}

// SetCardHoldFailures records how many card holds could not be created.
func (r *PgxPaydayRepository) SetCardHoldFailures(ctx context.Context, n int) error {
	query := `UPDATE paydays SET ncard_hold_failures = $1 WHERE ` + openPredicate + ` RETURNING payday_id;`
	var id int64
	err := r.Pool.QueryRow(ctx, query, n).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to set card hold failures: %w", err)
	}
	return nil
}

// IncrementCreditFailures bumps the payout-failure counter. Called from
// pooled workers; the single-statement increment keeps it race-free.
func (r *PgxPaydayRepository) IncrementCreditFailures(ctx context.Context) error {
	return r.updateOpenPayday(ctx, `UPDATE paydays SET ncredit_failures = ncredit_failures + 1 WHERE `+openPredicate+` RETURNING payday_id;`)
}

func (r *PgxPaydayRepository) updateOpenPayday(ctx context.Context, query string) error {
	var id int64
	err := r.Pool.QueryRow(ctx, query).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to update open payday: %w", err)
	}
	return nil
}

// UpdatePaydayStats recomputes the open payday's aggregate counters from the
// transfer, payment and exchange logs restricted to the event window. Takes
// and draws live in the payments log as to-participant rows. Purely derived:
// running it twice, or when nothing changed, writes identical values.
func (r *PgxPaydayRepository) UpdatePaydayStats(ctx context.Context, tsStart time.Time) error {
	query := `
		WITH our_transfers AS (
		         SELECT * FROM transfers WHERE "timestamp" >= $1
		     )
		   , our_payments AS (
		         SELECT pm.*, p.username
		           FROM payments pm
		           JOIN participants p ON p.participant_id = pm.participant_id
		          WHERE pm."timestamp" >= $1
		     )
		   , our_takes AS (
		         SELECT * FROM our_payments WHERE direction = 'to-participant'
		     )
		   , our_exchanges AS (
		         SELECT * FROM exchanges WHERE "timestamp" >= $1
		     )
		   , our_credits AS (
		         SELECT * FROM our_exchanges WHERE amount < 0
		     )
		   , our_charges AS (
		         SELECT * FROM our_exchanges WHERE amount > 0 AND status <> 'failed'
		     )
		UPDATE paydays
		   SET nactive = (
		           SELECT count(DISTINCT participant) FROM (
		               SELECT tipper AS participant FROM our_transfers
		                   UNION
		               SELECT tippee AS participant FROM our_transfers
		                   UNION
		               SELECT username AS participant FROM our_payments
		           ) AS everyone
		       )
		     , ntransfers = (SELECT count(*) FROM our_transfers)
		     , transfer_volume = (SELECT COALESCE(sum(amount), 0) FROM our_transfers)
		     , ntakes = (SELECT count(*) FROM our_takes)
		     , take_volume = (SELECT COALESCE(sum(amount), 0) FROM our_takes)
		     , ncredits = (SELECT count(*) FROM our_credits)
		     , credit_volume = (SELECT COALESCE(sum(-amount), 0) FROM our_credits)
		     , credit_fees_volume = (SELECT COALESCE(sum(fee), 0) FROM our_credits)
		     , ncharges = (SELECT count(*) FROM our_charges)
		     , charge_volume = (SELECT COALESCE(sum(amount + fee), 0) FROM our_charges)
		     , charge_fees_volume = (SELECT COALESCE(sum(fee), 0) FROM our_charges)
		 WHERE ` + openPredicate + `
	 RETURNING payday_id;
	`
	var id int64
	err := r.Pool.QueryRow(ctx, query, tsStart).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to update payday stats: %w", err)
	}
	return nil
}

// UpdateCachedAmounts rebuilds every participant's cached giving, receiving
// and taking totals and per-subscription funded flags from the live funding
// graph. Runs the same derivation the payin snapshot uses, so the cached
// values always agree with what the next payday would compute.
func (r *PgxPaydayRepository) UpdateCachedAmounts(ctx context.Context) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	for _, stmt := range cachedAmountsStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to update cached amounts: %w", err)
		}
	}
	return r.Commit(ctx, tx)
}

// cachedAmountsStatements re-derive the cached columns. Deliberately mirrors
// the payin prepare derivation of giving_today.
var cachedAmountsStatements = []string{`
	WITH funding AS (
	         SELECT s.subscriber_id,
	                t.team_id,
	                s.amount,
	                (p.balance >= s.amount OR EXISTS (
	                     SELECT 1 FROM payment_routes r
	                      WHERE r.participant_id = s.subscriber_id
	                        AND r.network = 'card'
	                        AND r.is_verified
	                )) AS is_fundable
	           FROM subscriptions s
	           JOIN teams t ON t.team_id = s.team_id
	           JOIN participants p ON p.participant_id = s.subscriber_id
	          WHERE NOT s.is_cancelled
	            AND t.is_approved
	            AND NOT t.is_closed
	     )
	   , giving AS (
	         SELECT subscriber_id, COALESCE(sum(amount) FILTER (WHERE is_fundable), 0) AS total
	           FROM funding
	       GROUP BY subscriber_id
	     )
	   , taking AS (
	         SELECT tk.member_id, COALESCE(sum(tk.amount), 0) AS total
	           FROM takes tk
	       GROUP BY tk.member_id
	     )
	UPDATE participants p
	   SET giving = COALESCE(g.total, 0)
	     , taking = COALESCE(tk.total, 0)
	  FROM participants p2
	  LEFT JOIN giving g ON g.subscriber_id = p2.participant_id
	  LEFT JOIN taking tk ON tk.member_id = p2.participant_id
	 WHERE p.participant_id = p2.participant_id;
`, `
	UPDATE subscriptions s
	   SET is_funded = f.is_fundable
	  FROM (SELECT subscriber_id, team_id, bool_or(is_fundable) AS is_fundable
	          FROM (
	               SELECT s2.subscriber_id,
	                      s2.team_id,
	                      (p.balance >= s2.amount OR EXISTS (
	                           SELECT 1 FROM payment_routes r
	                            WHERE r.participant_id = s2.subscriber_id
	                              AND r.network = 'card'
	                              AND r.is_verified
	                      )) AS is_fundable
	                 FROM subscriptions s2
	                 JOIN participants p ON p.participant_id = s2.subscriber_id
	                WHERE NOT s2.is_cancelled
	          ) sub
	      GROUP BY subscriber_id, team_id) f
	 WHERE s.subscriber_id = f.subscriber_id
	   AND s.team_id = f.team_id;
`, `
	UPDATE teams t
	   SET receiving = COALESCE(inflow.total, 0)
	  FROM teams t2
	  LEFT JOIN (
	       SELECT team_id, sum(amount) AS total
	         FROM subscriptions
	        WHERE is_funded AND NOT is_cancelled
	     GROUP BY team_id
	  ) inflow ON inflow.team_id = t2.team_id
	 WHERE t.team_id = t2.team_id;
`}

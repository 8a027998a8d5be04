package pgsql

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stipendly/payday_backend/internal/core/domain"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
)

type PgxPayinRepository struct {
	BaseRepository
}

func newPgxPayinRepository(pool *pgxpool.Pool) portsrepo.PayinRepositoryFacade {
	return &PgxPayinRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.PayinRepositoryFacade = (*PgxPayinRepository)(nil)

// payinPrepareStatements materializes the payday working tables frozen at
// ts_start ($1). The working set is rebuilt from scratch on every prepare, so
// re-preparing the same open payday reproduces the identical snapshot: same
// frozen old_balance, same eligibility filters. Payments already recorded for
// this window are excluded from payday_subscriptions, which is what keeps a
// resumed payin from double-applying transfers.
var payinPrepareStatements = []string{`
	DROP TABLE IF EXISTS payday_participants;
`, `
	CREATE TABLE payday_participants AS
	    SELECT p.participant_id
	         , p.username
	         , p.balance AS old_balance
	         , p.balance AS new_balance
	         , COALESCE((
	               SELECT sum(s.amount)
	                 FROM subscriptions s
	                 JOIN teams t ON t.team_id = s.team_id
	                WHERE s.subscriber_id = p.participant_id
	                  AND NOT s.is_cancelled
	                  AND s.mtime < $1
	                  AND t.is_approved
	                  AND NOT t.is_closed
	           ), 0) AS giving_today
	         , EXISTS (
	               SELECT 1
	                 FROM payment_routes r
	                WHERE r.participant_id = p.participant_id
	                  AND r.network = 'card'
	                  AND r.is_verified
	           ) AS has_credit_card
	         , p.is_suspicious
	         , false AS card_hold_ok
	      FROM participants p
	     WHERE p.claimed_at < $1
	       AND NOT p.is_closed;
`, `
	CREATE UNIQUE INDEX ON payday_participants (participant_id);
`, `
	DROP TABLE IF EXISTS payday_teams;
`, `
	CREATE TABLE payday_teams AS
	    SELECT t.team_id
	         , t.owner_id
	         , 0::numeric(35,2) AS balance
	         , false AS is_drained
	      FROM teams t
	     WHERE t.is_approved
	       AND NOT t.is_closed;
`, `
	DROP TABLE IF EXISTS payday_subscriptions;
`, `
	CREATE TABLE payday_subscriptions AS
	    SELECT s.subscription_id
	         , s.subscriber_id
	         , s.team_id
	         , s.amount
	         , s.mtime
	         , false AS is_funded
	      FROM subscriptions s
	      JOIN payday_teams t ON t.team_id = s.team_id
	      JOIN payday_participants p ON p.participant_id = s.subscriber_id
	     WHERE NOT s.is_cancelled
	       AND s.mtime < $1
	       AND NOT EXISTS (
	           SELECT 1
	             FROM payments pm
	            WHERE pm.participant_id = s.subscriber_id
	              AND pm.team_id = s.team_id
	              AND pm.direction = 'to-team'
	              AND pm."timestamp" >= $1
	       );
`, `
	DROP TABLE IF EXISTS payday_payments;
`, `
	CREATE TABLE payday_payments (
	    "timestamp"    timestamptz NOT NULL DEFAULT now(),
	    participant_id text NOT NULL,
	    team_id        text NOT NULL,
	    amount         numeric(35,2) NOT NULL,
	    direction      text NOT NULL
	);
`}

// PreparePayin builds the transactional working set for one payin.
func (r *PgxPayinRepository) PreparePayin(ctx context.Context, tx pgx.Tx, tsStart time.Time) error {
	for _, stmt := range payinPrepareStatements {
		if _, err := tx.Exec(ctx, stmt, prepareArgs(stmt, tsStart)...); err != nil {
			return fmt.Errorf("failed to prepare payin working set: %w", err)
		}
	}
	return nil
}

// prepareArgs passes ts_start only to the statements that reference it.
func prepareArgs(stmt string, tsStart time.Time) []any {
	for i := 0; i+1 < len(stmt); i++ {
		if stmt[i] == '$' && stmt[i+1] == '1' {
			return []any{tsStart}
		}
	}
	return nil
}

// ChargeableParticipants selects the snapshot rows that need a card hold.
func (r *PgxPayinRepository) ChargeableParticipants(ctx context.Context, tx pgx.Tx) ([]domain.ParticipantSnapshot, error) {
	query := `
		SELECT participant_id, username, old_balance, new_balance, giving_today,
		       has_credit_card, is_suspicious, card_hold_ok
		  FROM payday_participants
		 WHERE old_balance < giving_today
		   AND has_credit_card
		   AND is_suspicious IS false;
	`
	return r.scanSnapshots(ctx, tx, query)
}

// NegativeBalanceHolders selects the snapshot rows whose projected balance
// must be brought back up by capturing their hold.
func (r *PgxPayinRepository) NegativeBalanceHolders(ctx context.Context, tx pgx.Tx) ([]domain.ParticipantSnapshot, error) {
	query := `
		SELECT participant_id, username, old_balance, new_balance, giving_today,
		       has_credit_card, is_suspicious, card_hold_ok
		  FROM payday_participants
		 WHERE new_balance < 0;
	`
	return r.scanSnapshots(ctx, tx, query)
}

func (r *PgxPayinRepository) scanSnapshots(ctx context.Context, tx pgx.Tx, query string) ([]domain.ParticipantSnapshot, error) {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query payday participants: %w", err)
	}
	defer rows.Close()

	snapshots := []domain.ParticipantSnapshot{}
	for rows.Next() {
		var s domain.ParticipantSnapshot
		var suspicious *bool
		err := rows.Scan(&s.ParticipantID, &s.Username, &s.OldBalance, &s.NewBalance,
			&s.GivingToday, &s.HasCreditCard, &suspicious, &s.CardHoldOK)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payday participant row: %w", err)
		}
		s.Suspicion = domain.SuspicionFromNullableBool(suspicious)
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// MarkCardHoldOK flags the snapshot rows whose holds are in place.
func (r *PgxPayinRepository) MarkCardHoldOK(ctx context.Context, tx pgx.Tx, participantIDs []string) error {
	query := `
		UPDATE payday_participants
		   SET card_hold_ok = true
		 WHERE participant_id = ANY($1);
	`
	if _, err := tx.Exec(ctx, query, participantIDs); err != nil {
		return fmt.Errorf("failed to mark card_hold_ok: %w", err)
	}
	return nil
}

// FundSubscriptions marks fundable subscriptions funded and books the
// matching to-team payments against the working balances. A card hold backs
// the subscriber's whole giving; without one, subscriptions fund oldest-first
// as far as the working balance reaches, the running total guaranteeing the
// balance can never be spent twice.
func (r *PgxPayinRepository) FundSubscriptions(ctx context.Context, tx pgx.Tx) error {
	statements := []string{`
		UPDATE payday_subscriptions s
		   SET is_funded = true
		  FROM ( SELECT s2.subscription_id
		              , s2.subscriber_id
		              , sum(s2.amount) OVER (PARTITION BY s2.subscriber_id
		                                         ORDER BY s2.mtime, s2.subscription_id) AS running
		           FROM payday_subscriptions s2
		       ) spend
		     , payday_participants p
		 WHERE s.subscription_id = spend.subscription_id
		   AND p.participant_id = spend.subscriber_id
		   AND (p.card_hold_ok OR spend.running <= p.new_balance);
	`, `
		INSERT INTO payday_payments (participant_id, team_id, amount, direction)
		    SELECT s.subscriber_id, s.team_id, s.amount, 'to-team'
		      FROM payday_subscriptions s
		     WHERE s.is_funded;
	`, `
		UPDATE payday_participants p
		   SET new_balance = p.new_balance - due.total
		  FROM ( SELECT subscriber_id, sum(amount) AS total
		           FROM payday_subscriptions
		          WHERE is_funded
		       GROUP BY subscriber_id
		       ) due
		 WHERE p.participant_id = due.subscriber_id;
	`, `
		UPDATE payday_teams t
		   SET balance = t.balance + inflow.total
		  FROM ( SELECT team_id, sum(amount) AS total
		           FROM payday_subscriptions
		          WHERE is_funded
		       GROUP BY team_id
		       ) inflow
		 WHERE t.team_id = inflow.team_id;
	`}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to fund subscriptions: %w", err)
		}
	}
	return nil
}

// TransferTakes distributes each team's funded income among its members'
// takes in take-priority (ctime) order, as far as the team balance reaches.
// Takes already in the permanent payments log for this window are skipped, so
// repeated runs are idempotent.
func (r *PgxPayinRepository) TransferTakes(ctx context.Context, tx pgx.Tx, tsStart time.Time) error {
	statements := []string{`
		DROP TABLE IF EXISTS payday_takes;
	`, `
		CREATE TABLE payday_takes AS
		    WITH latest AS (
		             SELECT DISTINCT ON (tk.team_id, tk.member_id)
		                    tk.team_id, tk.member_id, tk.amount, tk.ctime
		               FROM takes tk
		              WHERE tk.mtime < $1
		                AND tk.amount > 0
		           ORDER BY tk.team_id, tk.member_id, tk.mtime DESC
		         )
		       , ranked AS (
		             SELECT l.*
		                  , sum(l.amount) OVER (PARTITION BY l.team_id ORDER BY l.ctime) AS running
		               FROM latest l
		               JOIN payday_participants p ON p.participant_id = l.member_id
		         )
		    SELECT r.team_id, r.member_id, r.amount
		      FROM ranked r
		      JOIN payday_teams t ON t.team_id = r.team_id
		     WHERE r.running <= t.balance
		       AND NOT EXISTS (
		           SELECT 1
		             FROM payments pm
		            WHERE pm.team_id = r.team_id
		              AND pm.participant_id = r.member_id
		              AND pm.direction = 'to-participant'
		              AND pm."timestamp" >= $1
		       );
	`, `
		INSERT INTO payday_payments (participant_id, team_id, amount, direction)
		    SELECT member_id, team_id, amount, 'to-participant'
		      FROM payday_takes;
	`, `
		UPDATE payday_participants p
		   SET new_balance = p.new_balance + takes.total
		  FROM ( SELECT member_id, sum(amount) AS total
		           FROM payday_takes
		       GROUP BY member_id
		       ) takes
		 WHERE p.participant_id = takes.member_id;
	`, `
		UPDATE payday_teams t
		   SET balance = t.balance - outflow.total
		  FROM ( SELECT team_id, sum(amount) AS total
		           FROM payday_takes
		       GROUP BY team_id
		       ) outflow
		 WHERE t.team_id = outflow.team_id;
	`}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt, prepareArgs(stmt, tsStart)...); err != nil {
			return fmt.Errorf("failed to transfer takes: %w", err)
		}
	}
	return nil
}

// ProcessDraws sends whatever remains on each team to its owner.
func (r *PgxPayinRepository) ProcessDraws(ctx context.Context, tx pgx.Tx) error {
	statements := []string{`
		INSERT INTO payday_payments (participant_id, team_id, amount, direction)
		    SELECT t.owner_id, t.team_id, t.balance, 'to-participant'
		      FROM payday_teams t
		     WHERE NOT t.is_drained
		       AND t.balance > 0;
	`, `
		UPDATE payday_participants p
		   SET new_balance = p.new_balance + draw.total
		  FROM ( SELECT owner_id, sum(balance) AS total
		           FROM payday_teams
		          WHERE NOT is_drained
		            AND balance > 0
		       GROUP BY owner_id
		       ) draw
		 WHERE p.participant_id = draw.owner_id;
	`, `
		UPDATE payday_teams
		   SET balance = 0
		     , is_drained = true
		 WHERE NOT is_drained;
	`}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to process draws: %w", err)
		}
	}
	return nil
}

// PendingPayments reads back the payment rows booked since the payin began.
func (r *PgxPayinRepository) PendingPayments(ctx context.Context, tx pgx.Tx, since time.Time) ([]domain.PaymentRecord, error) {
	query := `
		SELECT "timestamp", participant_id, team_id, amount, direction
		  FROM payday_payments
		 WHERE "timestamp" > $1
	  ORDER BY "timestamp";
	`
	rows, err := tx.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending payments: %w", err)
	}
	defer rows.Close()

	payments := []domain.PaymentRecord{}
	for rows.Next() {
		var p domain.PaymentRecord
		var direction string
		if err := rows.Scan(&p.Timestamp, &p.ParticipantID, &p.TeamID, &p.Amount, &direction); err != nil {
			return nil, fmt.Errorf("failed to scan pending payment row: %w", err)
		}
		p.Direction = domain.PaymentDirection(direction)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CommitBalances applies the working deltas to the live balances in one
// statement, returning both the written balance and the balance read back in
// the same statement so the service can detect a lost update.
func (r *PgxPayinRepository) CommitBalances(ctx context.Context, tx pgx.Tx) ([]domain.BalanceCommit, error) {
	query := `
		UPDATE participants p
		   SET balance = (balance + p2.new_balance - p2.old_balance)
		  FROM payday_participants p2
		 WHERE p.participant_id = p2.participant_id
		   AND p2.new_balance <> p2.old_balance
	 RETURNING p.participant_id
	         , p.username
	         , p.balance AS new_balance
	         , ( SELECT balance
	               FROM participants p3
	              WHERE p3.participant_id = p.participant_id
	           ) AS cur_balance;
	`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to commit balances: %w", err)
	}
	defer rows.Close()

	commits := []domain.BalanceCommit{}
	for rows.Next() {
		var c domain.BalanceCommit
		if err := rows.Scan(&c.ParticipantID, &c.Username, &c.NewBalance, &c.CurBalance); err != nil {
			return nil, fmt.Errorf("failed to scan balance commit row: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// RecordPayments appends the working payment rows to the permanent payments
// log, tagged with the open payday id.
func (r *PgxPayinRepository) RecordPayments(ctx context.Context, tx pgx.Tx) error {
	query := `
		INSERT INTO payments ("timestamp", participant_id, team_id, amount, direction, payday_id)
		    SELECT pp."timestamp", pp.participant_id, pp.team_id, pp.amount, pp.direction,
		           ( SELECT payday_id FROM paydays WHERE ` + openPredicate + ` )
		      FROM payday_payments pp
		     WHERE pp.amount <> 0;
	`
	if _, err := tx.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to record payments: %w", err)
	}
	return nil
}

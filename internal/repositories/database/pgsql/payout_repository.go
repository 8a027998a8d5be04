package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stipendly/payday_backend/internal/core/domain"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
)

type PgxPayoutRepository struct {
	BaseRepository
}

func newPgxPayoutRepository(pool *pgxpool.Pool) portsrepo.PayoutRepositoryFacade {
	return &PgxPayoutRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.PayoutRepositoryFacade = (*PgxPayoutRepository)(nil)

// PayableParticipants returns participants holding money that should leave
// the system: positive balance, a verified payout route, and ownership of an
// approved open team. Payroll members will join this set once payroll lands.
func (r *PgxPayoutRepository) PayableParticipants(ctx context.Context) ([]domain.Participant, error) {
	query := `
		SELECT p.participant_id
		     , p.username
		     , p.balance
		     , p.is_suspicious
		     , p.notify_charge
		  FROM participants p
		 WHERE p.balance > 0
		   AND EXISTS (
		       SELECT 1
		         FROM payment_routes r
		        WHERE r.participant_id = p.participant_id
		          AND r.network = 'bank'
		          AND r.is_verified
		   )
		   AND EXISTS (
		       SELECT 1
		         FROM teams t
		        WHERE t.owner_id = p.participant_id
		          AND t.is_approved
		          AND NOT t.is_closed
		   )
	  ORDER BY p.username;
	`
	rows, err := r.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query payable participants: %w", err)
	}
	defer rows.Close()

	participants := []domain.Participant{}
	for rows.Next() {
		var p domain.Participant
		var suspicious *bool
		if err := rows.Scan(&p.ParticipantID, &p.Username, &p.Balance, &suspicious, &p.NotifyCharge); err != nil {
			return nil, fmt.Errorf("failed to scan payable participant row: %w", err)
		}
		p.Suspicion = domain.SuspicionFromNullableBool(suspicious)
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

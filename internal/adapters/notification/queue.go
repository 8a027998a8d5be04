// Package notification enqueues outbound notifications into the database
// queue that the delivery worker drains. Rendering and transport live with
// the worker, not here.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stipendly/payday_backend/internal/core/domain"
	"github.com/stipendly/payday_backend/internal/core/ports/gateways"
)

type QueueNotifier struct {
	pool *pgxpool.Pool
}

func NewQueueNotifier(pool *pgxpool.Pool) *QueueNotifier {
	return &QueueNotifier{pool: pool}
}

var _ gateways.Notifier = (*QueueNotifier)(nil)

// EnqueueChargeOutcome appends one queue row for a charge outcome. The
// exchange fields plus any extras become the template context.
func (n *QueueNotifier) EnqueueChargeOutcome(ctx context.Context, templateKey string, participantID string, exchange domain.ExchangeRecord, extra map[string]any) error {
	payload := map[string]any{
		"exchange_id": exchange.ExchangeID,
		"amount":      exchange.Amount.String(),
		"fee":         exchange.Fee.String(),
		"status":      string(exchange.Status),
		"note":        exchange.Note,
	}
	for k, v := range extra {
		payload[k] = v
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification context: %w", err)
	}

	query := `
		INSERT INTO notification_queue (queue_id, participant_id, template_key, context, queued_at)
		     VALUES ($1, $2, $3, $4, $5);
	`
	_, err = n.pool.Exec(ctx, query, uuid.NewString(), participantID, templateKey, encoded, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

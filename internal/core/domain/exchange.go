package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeStatus is the outcome of one exchange with the card processor.
type ExchangeStatus string

const (
	ExchangeSucceeded ExchangeStatus = "succeeded"
	ExchangeFailed    ExchangeStatus = "failed"
	ExchangePending   ExchangeStatus = "pending"
)

// ExchangeRecord is one movement of money between the system and the outside
// world: positive amounts are charges (captures), negative amounts are
// credits paid out. Recording a succeeded exchange moves the participant's
// stored balance by the amount. The log itself is append-only.
type ExchangeRecord struct {
	ExchangeID    string          `json:"exchangeID"`
	Timestamp     time.Time       `json:"timestamp"`
	ParticipantID string          `json:"participantID"`
	Username      string          `json:"username"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Note          string          `json:"note"`
	Status        ExchangeStatus  `json:"status"`
	NotifyCharge  int             `json:"notifyCharge"` // participant's opt-in bitmask, joined in for notification
}

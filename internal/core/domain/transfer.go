package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferContext records why a participant-to-participant transfer happened.
type TransferContext string

const (
	ContextTip      TransferContext = "tip"
	ContextTake     TransferContext = "take"
	ContextTakeOver TransferContext = "take-over"
	ContextFinal    TransferContext = "final-gift"
)

// PaymentDirection records which way money moved between a participant and a team.
type PaymentDirection string

const (
	ToTeam        PaymentDirection = "to-team"
	ToParticipant PaymentDirection = "to-participant"
)

// TransferRecord is one internal movement of money between two participants.
// Append-only; never mutated after insert.
type TransferRecord struct {
	TransferID string          `json:"transferID"`
	Timestamp  time.Time       `json:"timestamp"`
	Tipper     string          `json:"tipper"`
	Tippee     string          `json:"tippee"`
	Amount     decimal.Decimal `json:"amount"`
	Context    TransferContext `json:"context"`
}

// PaymentRecord is one movement of money between a participant and a team,
// tagged with the payday that produced it. Append-only audit trail.
type PaymentRecord struct {
	PaymentID     string           `json:"paymentID"`
	Timestamp     time.Time        `json:"timestamp"`
	ParticipantID string           `json:"participantID"`
	TeamID        string           `json:"teamID"`
	Amount        decimal.Decimal  `json:"amount"`
	Direction     PaymentDirection `json:"direction"`
	PaydayID      int64            `json:"paydayID"`
}

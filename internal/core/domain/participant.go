package domain

import "github.com/shopspring/decimal"

// SuspicionStatus is the three-valued review state of a participant.
// Unreviewed participants are skipped by both hold creation and payout.
type SuspicionStatus string

const (
	SuspicionClear      SuspicionStatus = "CLEAR"
	SuspicionSuspicious SuspicionStatus = "SUSPICIOUS"
	SuspicionUnreviewed SuspicionStatus = "UNREVIEWED"
)

// SuspicionFromNullableBool maps the stored nullable flag onto the enum.
func SuspicionFromNullableBool(b *bool) SuspicionStatus {
	switch {
	case b == nil:
		return SuspicionUnreviewed
	case *b:
		return SuspicionSuspicious
	default:
		return SuspicionClear
	}
}

// ParticipantSnapshot is one row of the payday working set. OldBalance is
// frozen at prepare time; NewBalance is the value the payin stage mutates.
// Snapshot rows live only for the duration of one payday.
type ParticipantSnapshot struct {
	ParticipantID string          `json:"participantID"`
	Username      string          `json:"username"`
	OldBalance    decimal.Decimal `json:"oldBalance"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	GivingToday   decimal.Decimal `json:"givingToday"`
	HasCreditCard bool            `json:"hasCreditCard"`
	Suspicion     SuspicionStatus `json:"suspicion"`
	CardHoldOK    bool            `json:"cardHoldOK"`
}

// ProjectedCharge is the amount a card hold must cover for this row:
// today's giving, increased by the magnitude of any pre-existing debt.
func (p ParticipantSnapshot) ProjectedCharge() decimal.Decimal {
	amount := p.GivingToday
	if p.OldBalance.IsNegative() {
		amount = amount.Sub(p.OldBalance)
	}
	return amount
}

// Participant is the live-table subset the payout stage works from.
type Participant struct {
	ParticipantID string          `json:"participantID"`
	Username      string          `json:"username"`
	Balance       decimal.Decimal `json:"balance"`
	Suspicion     SuspicionStatus `json:"suspicion"`
	NotifyCharge  int             `json:"notifyCharge"` // bitmask: 1 = failed charges, 2 = succeeded charges
}

// BalanceCommit is one row returned by the balance commit statement: the
// balance as written, plus the balance read back in the same statement so
// the caller can detect a concurrent update it would otherwise clobber.
type BalanceCommit struct {
	ParticipantID string
	Username      string
	NewBalance    decimal.Decimal
	CurBalance    decimal.Decimal
}

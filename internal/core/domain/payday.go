package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaydayStage is the persisted position of a payday in its stage machine.
// Each stage commits before the next begins, which is what makes a crashed
// payday resumable: Run skips every stage the counter has already passed.
type PaydayStage int

const (
	StagePayin  PaydayStage = iota // charge cards, move money internally
	StagePayout                    // send money out to payout routes
	StageStats                     // recompute aggregates and cached amounts
	StageDone
)

// NoPaydayEnd is the sentinel ts_end of an open payday. The uniqueness
// constraint on ts_end means at most one payday can carry it at a time.
var NoPaydayEnd = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// PaydayEvent represents one settlement event during which money moves
// between the internal ledger and the card processor.
type PaydayEvent struct {
	PaydayID int64         `json:"paydayID"`
	TsStart  time.Time     `json:"tsStart"`
	TsEnd    time.Time     `json:"tsEnd"` // NoPaydayEnd while the payday is open
	Stage    PaydayStage   `json:"stage"`

	// Aggregate counters, recomputed from the transfer/exchange log in the
	// stats stage. Zero until then.
	NActive           int             `json:"nActive"`
	NTransfers        int             `json:"nTransfers"`
	TransferVolume    decimal.Decimal `json:"transferVolume"`
	NTakes            int             `json:"nTakes"`
	TakeVolume        decimal.Decimal `json:"takeVolume"`
	NCharges          int             `json:"nCharges"`
	ChargeVolume      decimal.Decimal `json:"chargeVolume"`
	ChargeFeesVolume  decimal.Decimal `json:"chargeFeesVolume"`
	NCredits          int             `json:"nCredits"`
	CreditVolume      decimal.Decimal `json:"creditVolume"`
	CreditFeesVolume  decimal.Decimal `json:"creditFeesVolume"`
	NCardHoldFailures int             `json:"nCardHoldFailures"`
	NCreditFailures   int             `json:"nCreditFailures"`
}

// Open reports whether the payday has not yet been ended.
func (p PaydayEvent) Open() bool {
	return p.TsEnd.Equal(NoPaydayEnd)
}

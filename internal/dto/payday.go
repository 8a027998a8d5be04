package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stipendly/payday_backend/internal/core/domain"
)

// PaydayResponse is the API view of one payday event.
type PaydayResponse struct {
	PaydayID int64     `json:"paydayID"`
	TsStart  time.Time `json:"tsStart"`
	TsEnd    time.Time `json:"tsEnd"`
	Stage    string    `json:"stage"`
	Open     bool      `json:"open"`

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

var stageNames = map[domain.PaydayStage]string{
	domain.StagePayin:  "payin",
	domain.StagePayout: "payout",
	domain.StageStats:  "stats",
	domain.StageDone:   "done",
}

// ToPaydayResponse maps a domain payday event to its API representation.
func ToPaydayResponse(p *domain.PaydayEvent) PaydayResponse {
	stage, ok := stageNames[p.Stage]
	if !ok {
		stage = "unknown"
	}
	return PaydayResponse{
		PaydayID:          p.PaydayID,
		TsStart:           p.TsStart,
		TsEnd:             p.TsEnd,
		Stage:             stage,
		Open:              p.Open(),
		NActive:           p.NActive,
		NTransfers:        p.NTransfers,
		TransferVolume:    p.TransferVolume,
		NTakes:            p.NTakes,
		TakeVolume:        p.TakeVolume,
		NCharges:          p.NCharges,
		ChargeVolume:      p.ChargeVolume,
		ChargeFeesVolume:  p.ChargeFeesVolume,
		NCredits:          p.NCredits,
		CreditVolume:      p.CreditVolume,
		CreditFeesVolume:  p.CreditFeesVolume,
		NCardHoldFailures: p.NCardHoldFailures,
		NCreditFailures:   p.NCreditFailures,
	}
}

// RunPaydayResponse acknowledges an accepted payday run.
type RunPaydayResponse struct {
	Payday PaydayResponse `json:"payday"`
	Status string         `json:"status"`
}

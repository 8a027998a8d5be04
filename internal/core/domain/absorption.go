package domain

import "github.com/shopspring/decimal"

// AbsorptionLink is one edge of the account-merge history: money still held
// by an archived account, and the account that absorbed it. Read-only input
// to takeover resolution; absorbing accounts may themselves be absorbed, so
// resolution loops until no archived account carries a positive balance.
type AbsorptionLink struct {
	ArchivedAs      string          `json:"archivedAs"`
	AbsorbedBy      string          `json:"absorbedBy"`
	ArchivedBalance decimal.Decimal `json:"archivedBalance"`
}

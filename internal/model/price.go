package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one observation of an asset's price at a timestamp.
// Close is mandatory. Open/High/Low are optional for close-only series
// (commodity fixings) but High and Low are needed for true range.
type PricePoint struct {
	Asset  string              `json:"asset"`
	TS     time.Time           `json:"ts"`
	Open   decimal.NullDecimal `json:"open"`
	High   decimal.NullDecimal `json:"high"`
	Low    decimal.NullDecimal `json:"low"`
	Close  decimal.Decimal     `json:"close"`
	Volume int64               `json:"volume"`
}

// HasRange reports whether both High and Low are present.
func (p *PricePoint) HasRange() bool {
	return p.High.Valid && p.Low.Valid
}

// JSON returns the JSON-encoded point (ignoring errors, types are plain).
func (p *PricePoint) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

// AssetType classifies an asset for reporting.
type AssetType string

const (
	AssetEquity    AssetType = "equity"
	AssetCommodity AssetType = "commodity"
	AssetCurrency  AssetType = "currency"
)

// Asset is a tracked instrument in the catalogue.
type Asset struct {
	Symbol   string    `json:"symbol" yaml:"symbol"`
	Name     string    `json:"name" yaml:"name"`
	Type     AssetType `json:"type" yaml:"type"`
	Market   string    `json:"market" yaml:"market"` // e.g. NYSE, BIST, COMEX
	Currency string    `json:"currency" yaml:"currency"`
	Sector   string    `json:"sector,omitempty" yaml:"sector"`
}

// JobRun records one pipeline execution for a single asset.
type JobRun struct {
	Asset         string    `json:"asset"`
	Job           string    `json:"job"`
	Mode          string    `json:"mode"`
	Status        string    `json:"status"` // success, partial, failed
	RowsProcessed int       `json:"rows_processed"`
	RowsFailed    int       `json:"rows_failed"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Job statuses.
const (
	JobSuccess = "success"
	JobPartial = "partial"
	JobFailed  = "failed"
)

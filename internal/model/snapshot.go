package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// IndicatorSnapshot holds every indicator value for one asset at one timestamp.
// A field whose look-back window is not yet satisfied is invalid (absent),
// never zero.
type IndicatorSnapshot struct {
	Asset      string              `json:"asset"`
	TS         time.Time           `json:"ts"`
	SMA20      decimal.NullDecimal `json:"sma_20"`
	SMA50      decimal.NullDecimal `json:"sma_50"`
	SMA200     decimal.NullDecimal `json:"sma_200"`
	EMA12      decimal.NullDecimal `json:"ema_12"`
	EMA26      decimal.NullDecimal `json:"ema_26"`
	RSI14      decimal.NullDecimal `json:"rsi_14"`
	MACD       decimal.NullDecimal `json:"macd"`
	MACDSignal decimal.NullDecimal `json:"macd_signal"`
	BBUpper    decimal.NullDecimal `json:"bollinger_upper"`
	BBMiddle   decimal.NullDecimal `json:"bollinger_middle"`
	BBLower    decimal.NullDecimal `json:"bollinger_lower"`
	ATR14      decimal.NullDecimal `json:"atr_14"`
}

// Indicator column names, shared by the stores and the engine's error reports.
const (
	FieldSMA20      = "sma_20"
	FieldSMA50      = "sma_50"
	FieldSMA200     = "sma_200"
	FieldEMA12      = "ema_12"
	FieldEMA26      = "ema_26"
	FieldRSI14      = "rsi_14"
	FieldMACD       = "macd"
	FieldMACDSignal = "macd_signal"
	FieldBBUpper    = "bollinger_upper"
	FieldBBMiddle   = "bollinger_middle"
	FieldBBLower    = "bollinger_lower"
	FieldATR14      = "atr_14"
)

// NamedValue pairs a column name with its value.
type NamedValue struct {
	Name  string
	Value decimal.NullDecimal
}

// Fields returns the indicator values in column order.
func (s *IndicatorSnapshot) Fields() []NamedValue {
	return []NamedValue{
		{FieldSMA20, s.SMA20},
		{FieldSMA50, s.SMA50},
		{FieldSMA200, s.SMA200},
		{FieldEMA12, s.EMA12},
		{FieldEMA26, s.EMA26},
		{FieldRSI14, s.RSI14},
		{FieldMACD, s.MACD},
		{FieldMACDSignal, s.MACDSignal},
		{FieldBBUpper, s.BBUpper},
		{FieldBBMiddle, s.BBMiddle},
		{FieldBBLower, s.BBLower},
		{FieldATR14, s.ATR14},
	}
}

// Missing returns the names of the fields that are absent.
func (s *IndicatorSnapshot) Missing() []string {
	var out []string
	for _, f := range s.Fields() {
		if !f.Value.Valid {
			out = append(out, f.Name)
		}
	}
	return out
}

// Empty reports whether no field is defined.
func (s *IndicatorSnapshot) Empty() bool {
	return len(s.Missing()) == len(s.Fields())
}

// JSON returns the JSON-encoded snapshot.
func (s *IndicatorSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Package message defines the closed set of payloads carried on the
// backbone streams. Each variant has one logical stream, an explicit schema
// and a Validate method; anything that does not match is rejected with
// ErrMalformed rather than coerced.
package message

//go:generate easyjson message.go

import (
	"errors"
	"fmt"

	"github.com/mailru/easyjson"
	"github.com/shopspring/decimal"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Type is the variant tag written to the "type" field of every entry.
type Type string

const (
	TypePrice       Type = "price"
	TypeOpportunity Type = "opportunity"
	TypeAlert       Type = "alert"
	TypeSwap        Type = "swap"
	TypeVolume      Type = "volume"
	TypeHealth      Type = "health"
)

// Types lists every known variant.
var Types = []Type{TypePrice, TypeOpportunity, TypeAlert, TypeSwap, TypeVolume, TypeHealth}

// Message is implemented by pointers to every variant.
type Message interface {
	easyjson.MarshalerUnmarshaler
	Type() Type
	Validate() error
}

// New returns an empty variant for t.
func New(t Type) (Message, error) {
	switch t {
	case TypePrice:
		return &PriceUpdate{}, nil
	case TypeOpportunity:
		return &Opportunity{}, nil
	case TypeAlert:
		return &Alert{}, nil
	case TypeSwap:
		return &SwapEvent{}, nil
	case TypeVolume:
		return &VolumeAggregate{}, nil
	case TypeHealth:
		return &Health{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(t))
}

func malformed(t Type, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, t, fmt.Sprintf(format, args...))
}

//easyjson:json
type PriceUpdate struct {
	Chain     string          `json:"chain"`
	Dex       string          `json:"dex"`
	Pair      string          `json:"pair"`
	Price     decimal.Decimal `json:"price"`
	Liquidity decimal.Decimal `json:"liquidity"`
	Block     uint64          `json:"block"`
	Timestamp int64           `json:"timestamp"` // unix ms
}

func (*PriceUpdate) Type() Type { return TypePrice }

func (m *PriceUpdate) Validate() error {
	switch {
	case m.Pair == "":
		return malformed(TypePrice, "pair is required")
	case m.Dex == "":
		return malformed(TypePrice, "dex is required")
	case !m.Price.IsPositive():
		return malformed(TypePrice, "price must be positive, got %s", m.Price)
	case m.Liquidity.IsNegative():
		return malformed(TypePrice, "liquidity is negative")
	}
	return nil
}

// Opportunity is a detected price discrepancy between two venues.
//
//easyjson:json
type Opportunity struct {
	ID        string          `json:"id"`
	Chain     string          `json:"chain"`
	Pair      string          `json:"pair"`
	BuyDex    string          `json:"buy_dex"`
	SellDex   string          `json:"sell_dex"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	Amount    decimal.Decimal `json:"amount"`
	ProfitPct decimal.Decimal `json:"profit_pct"`
	Detected  int64           `json:"detected"`   // unix ms
	ExpiresAt int64           `json:"expires_at"` // unix ms, 0 never
}

func (*Opportunity) Type() Type { return TypeOpportunity }

func (m *Opportunity) Validate() error {
	switch {
	case m.ID == "":
		return malformed(TypeOpportunity, "id is required")
	case m.Pair == "":
		return malformed(TypeOpportunity, "pair is required")
	case m.BuyDex == "" || m.SellDex == "":
		return malformed(TypeOpportunity, "buy_dex and sell_dex are required")
	case !m.BuyPrice.IsPositive() || !m.SellPrice.IsPositive():
		return malformed(TypeOpportunity, "prices must be positive")
	case m.Amount.IsNegative():
		return malformed(TypeOpportunity, "amount is negative")
	case m.ExpiresAt != 0 && m.ExpiresAt < m.Detected:
		return malformed(TypeOpportunity, "expires before it was detected")
	}
	return nil
}

// Spread is SellPrice - BuyPrice.
func (m *Opportunity) Spread() decimal.Decimal {
	return m.SellPrice.Sub(m.BuyPrice)
}

// Expired reports whether the opportunity is past its deadline at nowMs.
func (m *Opportunity) Expired(nowMs int64) bool {
	return m.ExpiresAt != 0 && nowMs > m.ExpiresAt
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

//easyjson:json
type Alert struct {
	Severity  Severity `json:"severity"`
	Source    string   `json:"source"`
	Text      string   `json:"text"`
	Timestamp int64    `json:"timestamp"`
}

func (*Alert) Type() Type { return TypeAlert }

func (m *Alert) Validate() error {
	switch m.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return malformed(TypeAlert, "unknown severity %q", m.Severity)
	}
	if m.Text == "" {
		return malformed(TypeAlert, "text is required")
	}
	return nil
}

//easyjson:json
type SwapEvent struct {
	Chain     string          `json:"chain"`
	Dex       string          `json:"dex"`
	Pair      string          `json:"pair"`
	TxHash    string          `json:"tx_hash"`
	Sender    string          `json:"sender"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Block     uint64          `json:"block"`
	Timestamp int64           `json:"timestamp"`
}

func (*SwapEvent) Type() Type { return TypeSwap }

func (m *SwapEvent) Validate() error {
	switch {
	case m.Pair == "":
		return malformed(TypeSwap, "pair is required")
	case m.TxHash == "":
		return malformed(TypeSwap, "tx_hash is required")
	case !m.AmountIn.IsPositive() || !m.AmountOut.IsPositive():
		return malformed(TypeSwap, "amounts must be positive")
	}
	return nil
}

// VolumeAggregate is the traded volume of a pair over a window ending at
// Timestamp.
//
//easyjson:json
type VolumeAggregate struct {
	Chain     string          `json:"chain"`
	Dex       string          `json:"dex"`
	Pair      string          `json:"pair"`
	WindowSec int64           `json:"window_sec"`
	Volume    decimal.Decimal `json:"volume"`
	Trades    int64           `json:"trades"`
	Timestamp int64           `json:"timestamp"`
}

func (*VolumeAggregate) Type() Type { return TypeVolume }

func (m *VolumeAggregate) Validate() error {
	switch {
	case m.Pair == "":
		return malformed(TypeVolume, "pair is required")
	case m.WindowSec <= 0:
		return malformed(TypeVolume, "window_sec must be positive")
	case m.Volume.IsNegative() || m.Trades < 0:
		return malformed(TypeVolume, "volume and trades must not be negative")
	}
	return nil
}

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

//easyjson:json
type Health struct {
	Service   string `json:"service"`
	Status    Status `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (*Health) Type() Type { return TypeHealth }

func (m *Health) Validate() error {
	if m.Service == "" {
		return malformed(TypeHealth, "service is required")
	}
	switch m.Status {
	case StatusOK, StatusDegraded, StatusDown:
		return nil
	}
	return malformed(TypeHealth, "unknown status %q", m.Status)
}

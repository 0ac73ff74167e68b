package xrpl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DropsPerXRP = 1_000_000

	// Issued currency amounts carry at most 15 significant digits.
	issuedPrecision = 15
)

var dropsPerXRP = decimal.NewFromInt(DropsPerXRP)

// IssuedAmount is a non-XRP currency amount as it appears on the wire.
type IssuedAmount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}

func DropsToXRP(drops int64) decimal.Decimal {
	return decimal.NewFromInt(drops).Div(dropsPerXRP)
}

func DropsToXRPFloat(drops int64) float64 {
	f, _ := DropsToXRP(drops).Float64()
	return f
}

// XRPToDrops converts an XRP quantity to a whole number of drops, rounding down.
func XRPToDrops(xrp float64) (int64, error) {
	if xrp <= 0 {
		return 0, fmt.Errorf("xrp amount must be > 0, got %v", xrp)
	}
	drops := decimal.NewFromFloat(xrp).Mul(dropsPerXRP).Floor()
	if drops.LessThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("xrp amount %v is below one drop", xrp)
	}
	return drops.IntPart(), nil
}

func ParseDrops(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty drops amount")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse drops %q: %w", raw, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("drops amount %q is not an integer", raw)
	}
	return d.IntPart(), nil
}

// FormatIssuedValue renders v with the precision an issued amount accepts.
func FormatIssuedValue(v float64) (string, error) {
	if v <= 0 {
		return "", fmt.Errorf("issued value must be > 0, got %v", v)
	}
	d := decimal.NewFromFloat(v)
	intDigits := len(d.Truncate(0).String())
	if d.LessThan(decimal.NewFromInt(1)) {
		intDigits = 0
	}
	places := int32(issuedPrecision - intDigits)
	if places < 0 {
		places = 0
	}
	out := d.Round(places)
	if out.IsZero() {
		return "", fmt.Errorf("issued value %v rounds to zero", v)
	}
	return out.String(), nil
}

// amountValue reads either an XRP drops string or an issued amount object and
// returns it in whole units (XRP for drops).
func amountValue(v any) (float64, bool, error) {
	switch val := v.(type) {
	case string:
		drops, err := ParseDrops(val)
		if err != nil {
			return 0, true, err
		}
		return DropsToXRPFloat(drops), true, nil
	case map[string]any:
		raw, _ := val["value"].(string)
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return 0, false, fmt.Errorf("parse issued value %q: %w", raw, err)
		}
		f, _ := d.Float64()
		return f, false, nil
	default:
		return 0, false, fmt.Errorf("unsupported amount %T", v)
	}
}

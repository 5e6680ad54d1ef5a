// Package money holds the exact decimal arithmetic used for contribution
// totals. Nothing in here converts through float64 except PercentFloat, which
// only formats an already computed percentage for display.
package money

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Scale is the number of fractional digits stored for amounts (NUMERIC(14,2)).
const Scale = 2

var (
	ErrInvalidAmount = errors.New("amount is not a finite decimal")
	ErrTooPrecise    = errors.New("amount has more than 2 fractional digits")
)

var (
	hundred = apd.New(100, 0)

	decimalCtx = func() *apd.Context {
		c := apd.BaseContext.WithPrecision(34)
		c.Rounding = apd.RoundHalfUp
		return c
	}()
)

// Zero returns a fresh zero value.
func Zero() *apd.Decimal {
	return apd.New(0, 0)
}

// Parse reads a decimal amount such as "25" or "19.99".
func Parse(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Form != apd.Finite {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Exponent < -Scale {
		// 10.500 is fine, 10.505 is not.
		reduced := new(apd.Decimal)
		reduced.Reduce(d)
		if reduced.Exponent < -Scale {
			return nil, fmt.Errorf("%w: %q", ErrTooPrecise, s)
		}
	}
	return d, nil
}

// Sum adds values exactly. It returns zero for no values.
func Sum(values ...*apd.Decimal) (*apd.Decimal, error) {
	total := Zero()
	for _, v := range values {
		if _, err := decimalCtx.Add(total, total, v); err != nil {
			return nil, fmt.Errorf("failed to add amounts: %w", err)
		}
	}
	return total, nil
}

// ProgressPercent returns min(contributed/target*100, 100) rounded to two
// decimal places, or 0 when target is not positive.
func ProgressPercent(contributed, target *apd.Decimal) (*apd.Decimal, error) {
	if target.Sign() <= 0 {
		return Zero(), nil
	}
	pct := new(apd.Decimal)
	if _, err := decimalCtx.Quo(pct, contributed, target); err != nil {
		return nil, fmt.Errorf("failed to divide by target: %w", err)
	}
	if _, err := decimalCtx.Mul(pct, pct, hundred); err != nil {
		return nil, fmt.Errorf("failed to scale percentage: %w", err)
	}
	if pct.Cmp(hundred) > 0 {
		pct.Set(hundred)
	}
	if _, err := decimalCtx.Quantize(pct, pct, -Scale); err != nil {
		return nil, fmt.Errorf("failed to round percentage: %w", err)
	}
	return pct, nil
}

// PercentFloat converts a percentage for JSON output.
func PercentFloat(pct *apd.Decimal) float64 {
	f, err := pct.Float64()
	if err != nil {
		return 0
	}
	return f
}

// Format renders an amount in plain notation, never exponent form.
func Format(d *apd.Decimal) string {
	return d.Text('f')
}

package ledger

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultMaxAmount is the per-transfer ceiling used when none is configured.
var DefaultMaxAmount = decimal.NewFromInt(1_000_000)

var groupedNumber = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

const (
	// maxAmountText caps the raw text handed to the decimal parser.
	maxAmountText = 40
	// maxExponent bounds the decimal exponent Check will rescale. Anything
	// outside it is judged by magnitude alone.
	maxExponent = 40
)

// AmountPolicy bounds transfer amounts. Amounts are held to two fractional
// digits using banker's rounding (round half to even).
type AmountPolicy struct {
	Max      decimal.Decimal
	Currency string
}

// NewAmountPolicy returns a policy with the given ceiling, falling back to
// DefaultMaxAmount for a non-positive value.
func NewAmountPolicy(max decimal.Decimal, currency string) AmountPolicy {
	if exp := max.Exponent(); !max.IsPositive() || exp > maxExponent || exp < -maxExponent {
		max = DefaultMaxAmount
	}
	if strings.TrimSpace(currency) == "" {
		currency = "AED"
	}
	return AmountPolicy{Max: max.RoundBank(2), Currency: currency}
}

// Parse validates an amount given as text, such as a JSON string argument.
func (p AmountPolicy) Parse(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan":
		return decimal.Zero, invalid(CodeInvalidAmount, "Invalid amount value: NaN (Not a Number)")
	case "inf", "infinity":
		return decimal.Zero, invalid(CodeInvalidAmount, "Invalid amount value: Infinity")
	}
	if len(s) > maxAmountText {
		return decimal.Zero, invalid(CodeInvalidAmount, "Invalid amount value: too long")
	}
	if groupedNumber.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid(CodeInvalidAmount, "Invalid amount value: %q", raw)
	}
	return p.Check(d)
}

// Check rounds d to two places and enforces 0 < d <= Max. The error message
// names the bound that was violated.
func (p AmountPolicy) Check(d decimal.Decimal) (decimal.Decimal, error) {
	if exp := int(d.Exponent()); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, p.outOfRange(d, exp)
	}
	rounded := d.RoundBank(2)
	if !rounded.IsPositive() {
		return decimal.Zero, invalid(CodeAmountNotPositive, "Amount must be positive, got: %s %s", rounded.StringFixed(2), p.Currency)
	}
	if rounded.GreaterThan(p.Max) {
		return decimal.Zero, invalid(CodeAmountAboveLimit, "Amount %s %s exceeds maximum transfer limit of %s %s",
			rounded.StringFixed(2), p.Currency, p.Max.StringFixed(2), p.Currency)
	}
	return rounded, nil
}

// outOfRange classifies an amount whose exponent is too large to rescale
// without computing its digits.
func (p AmountPolicy) outOfRange(d decimal.Decimal, exp int) error {
	magnitude := d.NumDigits() + exp
	switch {
	case magnitude > maxExponent && d.IsPositive():
		return invalid(CodeAmountAboveLimit, "Amount exceeds maximum transfer limit of %s %s", p.Max.StringFixed(2), p.Currency)
	case magnitude > maxExponent:
		return invalid(CodeAmountNotPositive, "Amount must be positive")
	case magnitude < -2:
		// Rounds to zero at two places.
		return invalid(CodeAmountNotPositive, "Amount must be positive, got: 0.00 %s", p.Currency)
	}
	return invalid(CodeInvalidAmount, "Invalid amount value: too many decimal places")
}

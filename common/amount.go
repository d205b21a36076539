package common

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits carried by an Amount.
const Decimals = 18

var (
	tokenUnit = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))
	bigUnit   = tokenUnit.ToBig()
)

// Amount is a non-negative token quantity stored in atto units.
// All arithmetic is checked; overflow and underflow are reported as errors.
type Amount struct {
	v uint256.Int
}

// ZeroAmount is the zero value, spelled out for readability at call sites.
var ZeroAmount = Amount{}

// NewAmount returns an amount of whole tokens.
func NewAmount(tokens uint64) Amount {
	var a Amount
	a.v.Mul(uint256.NewInt(tokens), tokenUnit)
	return a
}

// AmountFromAtto returns an amount expressed in the smallest unit.
func AmountFromAtto(atto uint64) Amount {
	var a Amount
	a.v.SetUint64(atto)
	return a
}

// ParseAmount parses a non-negative decimal string such as "100" or "12.5".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && frac == "") {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > Decimals {
		return Amount{}, fmt.Errorf("%w: more than %d fractional digits", ErrInvalidAmount, Decimals)
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", Decimals-len(frac)), "0")
	if digits == "" {
		return Amount{}, nil
	}
	var a Amount
	if err := a.v.SetFromDecimal(digits); err != nil {
		return Amount{}, fmt.Errorf("%w: %s", ErrInvalidAmount, err)
	}
	return a, nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (a Amount) String() string {
	q, r := new(big.Int).QuoRem(a.v.ToBig(), bigUnit, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	rs := r.String()
	frac := strings.TrimRight(strings.Repeat("0", Decimals-len(rs))+rs, "0")
	return q.String() + "." + frac
}

// Atto returns the amount in the smallest unit.
func (a Amount) Atto() *big.Int { return a.v.ToBig() }

// Float64 is lossy and only meant for metrics.
func (a Amount) Float64() float64 {
	f, _ := new(big.Rat).SetFrac(a.v.ToBig(), bigUnit).Float64()
	return f
}

func (a Amount) IsZero() bool        { return a.v.IsZero() }
func (a Amount) Cmp(b Amount) int    { return a.v.Cmp(&b.v) }
func (a Amount) Lt(b Amount) bool    { return a.v.Lt(&b.v) }
func (a Amount) Gt(b Amount) bool    { return a.v.Gt(&b.v) }
func (a Amount) Equal(b Amount) bool { return a.v.Eq(&b.v) }
func (a Amount) Gte(b Amount) bool   { return !a.v.Lt(&b.v) }

func MaxAmount(a, b Amount) Amount {
	if a.Gt(b) {
		return a
	}
	return b
}

func MinAmount(a, b Amount) Amount {
	if a.Lt(b) {
		return a
	}
	return b
}

func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, fmt.Errorf("%w: %s + %s overflows", ErrInvariant, a, b)
	}
	return out, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, fmt.Errorf("%w: %s - %s underflows", ErrInvariant, a, b)
	}
	return out, nil
}

// SaturatingSub returns a-b, or zero when b exceeds a.
func (a Amount) SaturatingSub(b Amount) Amount {
	if a.Lt(b) {
		return Amount{}
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out
}

// MulDiv returns floor(a*num/den) using a 512-bit intermediate.
func (a Amount) MulDiv(num, den Amount) (Amount, error) {
	if den.IsZero() {
		return Amount{}, fmt.Errorf("%w: division by zero", ErrInvariant)
	}
	var out Amount
	if _, overflow := out.v.MulDivOverflow(&a.v, &num.v, &den.v); overflow {
		return Amount{}, fmt.Errorf("%w: %s * %s / %s overflows", ErrInvariant, a, num, den)
	}
	return out, nil
}

// MulUint64 returns a*n.
func (a Amount) MulUint64(n uint64) (Amount, error) {
	var out Amount
	if _, overflow := out.v.MulOverflow(&a.v, uint256.NewInt(n)); overflow {
		return Amount{}, fmt.Errorf("%w: %s * %d overflows", ErrInvariant, a, n)
	}
	return out, nil
}

// Percent returns floor(a*p/100). p is clamped to 100 so the result never exceeds a.
func (a Amount) Percent(p uint8) Amount {
	if p > 100 {
		p = 100
	}
	var out Amount
	out.v.MulDivOverflow(&a.v, uint256.NewInt(uint64(p)), uint256.NewInt(100))
	return out
}

func (a Amount) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: amounts are decimal strings", ErrInvalidAmount)
	}
	return a.UnmarshalText([]byte(s))
}

// SumAmounts adds all amounts, failing on overflow.
func SumAmounts(amounts ...Amount) (Amount, error) {
	var (
		total Amount
		err   error
	)
	for _, a := range amounts {
		if total, err = total.Add(a); err != nil {
			return Amount{}, err
		}
	}
	return total, nil
}

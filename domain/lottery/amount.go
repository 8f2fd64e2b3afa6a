package lottery

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

// Amount is a quantity of reward tokens (or a per-second rate of them)
// expressed in the token's smallest unit.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding v.
func NewAmount(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// ParseAmount parses a base-10 amount such as "3858024691358".
func ParseAmount(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{v: *v}, nil
}

// Add returns a+b, saturating at the maximum representable amount.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		out.v.SetAllOne()
	}
	return out
}

// MulUint64 returns a*n, saturating at the maximum representable amount.
func (a Amount) MulUint64(n uint64) Amount {
	var out, factor Amount
	factor.v.SetUint64(n)
	if _, overflow := out.v.MulOverflow(&a.v, &factor.v); overflow {
		out.v.SetAllOne()
	}
	return out
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to
// or greater than b.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) String() string {
	return a.v.Dec()
}

// weight reduces a to a uint64 after discarding the lowest shift bits.
func (a Amount) weight(shift uint) uint64 {
	var out uint256.Int
	out.Rsh(&a.v, shift)
	return out.Uint64()
}

func (a Amount) bitLen() int {
	return a.v.BitLen()
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.Dec()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the amount as a decimal string so that values above
// 2^53 survive JSON decoders that use float64.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.Dec())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("amount must be a decimal string: %w", err)
	}
	return a.UnmarshalText([]byte(s))
}

// Package types provides common types used across BitFlow.
package types

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// Amount represents a monetary value in the smallest currency unit
// (satoshis) as an arbitrary-precision integer. All arithmetic is
// integer-only; no floating point appears anywhere in the accrual path.
//
// The zero value is a valid zero amount. Amount values are immutable:
// every operation returns a new Amount and never mutates its operands.
type Amount struct {
	i *big.Int
}

// NewAmount creates an Amount from an int64 value.
func NewAmount(v int64) Amount {
	return Amount{i: big.NewInt(v)}
}

// ZeroAmount returns the zero Amount.
func ZeroAmount() Amount {
	return Amount{}
}

// ParseAmount parses a base-10 decimal string into an Amount.
// This is the wire encoding for all amount and rate fields.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("types: parse amount: empty string")
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("types: parse amount %q: not a decimal integer", s)
	}

	return Amount{i: v}, nil
}

// MustAmount is like ParseAmount but panics on error. Use for literals.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) value() *big.Int {
	if a.i == nil {
		return big.NewInt(0)
	}
	return a.i
}

// Arithmetic operations

// Add returns a + other.
func (a Amount) Add(other Amount) Amount {
	return Amount{i: new(big.Int).Add(a.value(), other.value())}
}

// Sub returns a - other.
func (a Amount) Sub(other Amount) Amount {
	return Amount{i: new(big.Int).Sub(a.value(), other.value())}
}

// Mul returns a * other.
func (a Amount) Mul(other Amount) Amount {
	return Amount{i: new(big.Int).Mul(a.value(), other.value())}
}

// MulInt64 returns a * v.
func (a Amount) MulInt64(v int64) Amount {
	return Amount{i: new(big.Int).Mul(a.value(), big.NewInt(v))}
}

// DivInt64 returns a / v using truncated integer division.
// Panics if v is zero.
func (a Amount) DivInt64(v int64) Amount {
	if v == 0 {
		panic("types: amount division by zero")
	}
	return Amount{i: new(big.Int).Quo(a.value(), big.NewInt(v))}
}

// ModInt64 returns a mod v. Panics if v is zero.
func (a Amount) ModInt64(v int64) Amount {
	if v == 0 {
		panic("types: amount division by zero")
	}
	return Amount{i: new(big.Int).Rem(a.value(), big.NewInt(v))}
}

// Comparison methods

// Cmp compares a and other: -1 if a < other, 0 if equal, +1 if a > other.
func (a Amount) Cmp(other Amount) int {
	return a.value().Cmp(other.value())
}

// Equal reports whether a == other.
func (a Amount) Equal(other Amount) bool { return a.Cmp(other) == 0 }

// LessThan reports whether a < other.
func (a Amount) LessThan(other Amount) bool { return a.Cmp(other) < 0 }

// GreaterThan reports whether a > other.
func (a Amount) GreaterThan(other Amount) bool { return a.Cmp(other) > 0 }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.value().Sign() == 0 }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.value().Sign() > 0 }

// IsNegative reports whether the amount is less than zero.
func (a Amount) IsNegative() bool { return a.value().Sign() < 0 }

// Min returns the smaller of a and other.
func (a Amount) Min(other Amount) Amount {
	if a.Cmp(other) <= 0 {
		return a
	}
	return other
}

// Max returns the larger of a and other.
func (a Amount) Max(other Amount) Amount {
	if a.Cmp(other) >= 0 {
		return a
	}
	return other
}

// Clamp returns a limited to the inclusive range [lo, hi].
func (a Amount) Clamp(lo, hi Amount) Amount {
	return a.Max(lo).Min(hi)
}

// Encoding

// String returns the base-10 decimal representation.
func (a Amount) String() string {
	return a.value().String()
}

// MarshalText implements encoding.TextMarshaler. Amounts marshal as
// decimal strings so JSON consumers never see precision loss.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = Amount{}
		return nil
	}

	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}

	*a = parsed
	return nil
}

// Value implements driver.Valuer for database storage.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case int64:
		*a = NewAmount(v)
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	default:
		return fmt.Errorf("types: cannot scan %T into Amount", src)
	}
}

// SumAmounts calculates the sum of multiple Amount values.
func SumAmounts(values ...Amount) Amount {
	result := Amount{}
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

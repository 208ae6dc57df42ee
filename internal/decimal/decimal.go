// Package decimal implements the packed NUMERIC transfer struct: precision,
// scale, sign and a 16 byte little-endian magnitude.
package decimal

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// MaxPrecision is the largest digit count the struct can carry.
	MaxPrecision = 38

	magnitudeSize = 16

	// Size is the byte size of the packed struct.
	Size = 3 + magnitudeSize
)

var (
	ErrOverflow  = errors.New("decimal: value does not fit in numeric struct")
	ErrNotFinite = errors.New("decimal: value is not finite")
)

// Numeric is the packed numeric struct.
// https://learn.microsoft.com/en-us/sql/odbc/reference/appendixes/c-data-types
type Numeric struct {
	Precision uint8
	Scale     int8
	Positive  bool
	Magnitude [magnitudeSize]byte
}

var powers = xsync.NewMapOf[int, *big.Int]()

// Pow10 returns 10^n. The result is shared and must not be modified.
func Pow10(n int) *big.Int {
	p, _ := powers.LoadOrCompute(n, func() *big.Int {
		return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	})
	return p
}

// Infer returns the precision and scale needed to carry d without losing
// digits.
func Infer(d *apd.Decimal) (precision, scale int) {
	digits := int(d.NumDigits())
	exp := int(d.Exponent)
	switch {
	case exp >= 0:
		return digits + exp, 0
	case -exp <= digits:
		return digits, -exp
	default:
		// leading zeros after the point
		return digits - exp, digits - exp
	}
}

// Encode scales d by 10^scale and packs it.
func Encode(d *apd.Decimal, precision, scale int) (Numeric, error) {
	if d.Form != apd.Finite {
		return Numeric{}, ErrNotFinite
	}
	if precision < 1 || precision > MaxPrecision || scale < 0 || scale > precision {
		return Numeric{}, fmt.Errorf("%w: precision %d, scale %d", ErrOverflow, precision, scale)
	}

	var mag big.Int
	if d.Coeff.Sign() != 0 {
		digits := int(d.NumDigits())
		shift := int(d.Exponent) + scale
		switch {
		case shift > MaxPrecision:
			return Numeric{}, fmt.Errorf("%w: %s at scale %d", ErrOverflow, d, scale)
		case shift >= 0:
			mag.Mul(&d.Coeff, Pow10(shift))
		case -shift > digits:
			return Numeric{}, fmt.Errorf("%w: %s has more than %d fractional digits", ErrOverflow, d, scale)
		default:
			var rem big.Int
			mag.QuoRem(&d.Coeff, Pow10(-shift), &rem)
			if rem.Sign() != 0 {
				return Numeric{}, fmt.Errorf("%w: %s has more than %d fractional digits", ErrOverflow, d, scale)
			}
		}
		mag.Abs(&mag)
	}
	if mag.BitLen() > magnitudeSize*8 {
		return Numeric{}, fmt.Errorf("%w: %s", ErrOverflow, d)
	}
	if mag.Sign() != 0 && int(apd.NumDigits(&mag)) > precision {
		return Numeric{}, fmt.Errorf("%w: %s exceeds precision %d", ErrOverflow, d, precision)
	}

	n := Numeric{
		Precision: uint8(precision),
		Scale:     int8(scale),
		Positive:  !d.Negative || mag.Sign() == 0,
	}
	be := mag.Bytes()
	for i, b := range be {
		n.Magnitude[len(be)-1-i] = b
	}
	return n, nil
}

// Decimal rebuilds the exact value: the magnitude is the coefficient and the
// scale the negated exponent.
func (n Numeric) Decimal() *apd.Decimal {
	var be [magnitudeSize]byte
	for i, b := range n.Magnitude {
		be[magnitudeSize-1-i] = b
	}
	d := new(apd.Decimal)
	d.Coeff.SetBytes(be[:])
	d.Exponent = -int32(n.Scale)
	d.Negative = !n.Positive && d.Coeff.Sign() != 0
	return d
}

// Put writes the packed layout into dst, which must be at least Size long.
func (n Numeric) Put(dst []byte) {
	dst[0] = n.Precision
	dst[1] = byte(n.Scale)
	if n.Positive {
		dst[2] = 1
	} else {
		dst[2] = 0
	}
	copy(dst[3:Size], n.Magnitude[:])
}

// Parse reads the packed layout.
func Parse(src []byte) (Numeric, error) {
	if len(src) < Size {
		return Numeric{}, fmt.Errorf("decimal: invalid numeric struct length %d", len(src))
	}
	n := Numeric{
		Precision: src[0],
		Scale:     int8(src[1]),
		Positive:  src[2] != 0,
	}
	copy(n.Magnitude[:], src[3:Size])
	return n, nil
}

// FromBigInt wraps an integer as a decimal with exponent 0.
func FromBigInt(b *big.Int) *apd.Decimal {
	d := new(apd.Decimal)
	d.Coeff.Abs(b)
	d.Negative = b.Sign() < 0
	return d
}

// String formats d without an exponent, as sent for string-based decimal
// transfer.
func String(d *apd.Decimal) string {
	return d.Text('f')
}

package odbc

import (
	"database/sql/driver"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v2"
	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/mkleehammer/pyodbc-sub000/internal/decimal"
	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
)

// fractional digits sent for SS_TIME2 and SS_TIMESTAMPOFFSET
const extendedTimeDigits = 7

// normalize unwraps driver.Valuer implementations and pointers so that
// inference only sees the supported value kinds.
func normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil, nil
	}
	switch v.(type) {
	case NullBinary, NullGUID, TVP, VarChar, DateTimeOffset, *apd.Decimal, *big.Int, uuid.UUID, civil.Date, civil.Time, civil.DateTime, time.Time:
		return v, nil
	}
	if vr, ok := v.(driver.Valuer); ok {
		dv, err := vr.Value()
		if err != nil {
			return nil, err
		}
		return normalize(dv)
	}
	if rv.Kind() == reflect.Ptr {
		return normalize(rv.Elem().Interface())
	}
	return v, nil
}

func isNull(v interface{}) bool {
	switch v := v.(type) {
	case nil, NullBinary:
		return true
	case NullGUID:
		return !v.Valid
	}
	return false
}

// textLen returns the encoded byte length and character count of s in tc.
func textLen(tc *textCodec, s string) (bytes, chars int, err error) {
	switch {
	case tc.wide():
		for _, r := range s {
			chars++
			if r > 0xFFFF {
				chars++
			}
		}
		return 2 * chars, chars, nil
	case tc.enc == nil:
		return len(s), utf8.RuneCountInString(s), nil
	}
	b, err := tc.encode(s)
	if err != nil {
		return 0, 0, err
	}
	return len(b), utf8.RuneCountInString(s), nil
}

func fracColumnSize(base, digits int) int {
	if digits <= 0 {
		return base
	}
	return base + 1 + digits
}

// InferWireType picks the wire type of v. A hint with a wire type takes
// precedence over the value's own type.
func (c *Conn) InferWireType(v interface{}, hint *ParamDescription) (wire sqltype.ID, precision, scale int, err error) {
	if hint != nil && hint.SQLType != sqltype.Unknown {
		if _, isTable := v.(TVP); !isTable {
			return hint.SQLType, hint.ColumnSize, hint.DecimalDigits, nil
		}
	}
	limits := c.cfg.Limits
	switch v := v.(type) {
	case nil:
		return sqltype.VarChar, 1, 0, nil
	case NullBinary:
		return sqltype.VarBinary, 1, 0, nil
	case NullGUID, uuid.UUID:
		return sqltype.Guid, 36, 0, nil
	case bool:
		return sqltype.Bit, 1, 0, nil
	case float32, float64:
		return sqltype.Double, 15, 0, nil
	case []byte:
		if len(v) > limits.MaxBinary {
			return sqltype.LongVarBinary, len(v), 0, nil
		}
		return sqltype.VarBinary, max(len(v), 1), 0, nil
	case string:
		return c.textWire(c.text, v)
	case VarChar:
		return c.textWire(c.narrow, string(v))
	case civil.Date:
		return sqltype.TypeDate, 10, 0, nil
	case civil.Time:
		return sqltype.SSTime2, fracColumnSize(8, extendedTimeDigits), extendedTimeDigits, nil
	case time.Time, civil.DateTime:
		digits := limits.DatetimePrecision
		return sqltype.TypeTimestamp, fracColumnSize(19, digits), digits, nil
	case DateTimeOffset:
		return sqltype.SSTimestampOffset, fracColumnSize(26, extendedTimeDigits), extendedTimeDigits, nil
	case TVP:
		return sqltype.SSTable, 0, 0, nil
	case *apd.Decimal, apd.Decimal:
		d, _ := asDecimal(v)
		if d.Form != apd.Finite {
			return 0, 0, 0, fmt.Errorf("%w: %s", ErrOverflow, d)
		}
		precision, scale = decimal.Infer(d)
		if precision > decimal.MaxPrecision {
			return 0, 0, 0, overflow("%s needs precision %d", d, precision)
		}
		return sqltype.Numeric, precision, scale, nil
	}
	if n, ok := asInt64(v); ok {
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return sqltype.Integer, 10, 0, nil
		}
		return sqltype.BigInt, 19, 0, nil
	}
	switch v.(type) {
	case *big.Int, uint, uint64:
		d, _ := asDecimal(v)
		digits := int(d.NumDigits())
		if digits > decimal.MaxPrecision {
			return 0, 0, 0, overflow("%s needs precision %d", d, digits)
		}
		return sqltype.Numeric, digits, 0, nil
	}
	return 0, 0, 0, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func (c *Conn) textWire(tc *textCodec, s string) (sqltype.ID, int, int, error) {
	_, chars, err := textLen(tc, s)
	if err != nil {
		return 0, 0, 0, err
	}
	if tc.wide() {
		if chars > c.cfg.Limits.MaxWVarchar {
			return sqltype.WLongVarChar, chars, 0, nil
		}
		return sqltype.WVarChar, max(chars, 1), 0, nil
	}
	if chars > c.cfg.Limits.MaxVarchar {
		return sqltype.LongVarChar, chars, 0, nil
	}
	return sqltype.VarChar, max(chars, 1), 0, nil
}

// defaultCType is the transfer type used for a wire type when the value
// does not choose one.
func defaultCType(id sqltype.ID) sqltype.CType {
	switch id {
	case sqltype.WChar, sqltype.WVarChar, sqltype.WLongVarChar, sqltype.SSXml:
		return sqltype.CWChar
	case sqltype.Binary, sqltype.VarBinary, sqltype.LongVarBinary, sqltype.SSUdt:
		return sqltype.CBinary
	case sqltype.Bit:
		return sqltype.CBit
	case sqltype.TinyInt:
		return sqltype.CUTinyInt
	case sqltype.SmallInt:
		return sqltype.CSShort
	case sqltype.Integer:
		return sqltype.CSLong
	case sqltype.BigInt:
		return sqltype.CSBigInt
	case sqltype.Real:
		return sqltype.CFloat
	case sqltype.Float, sqltype.Double:
		return sqltype.CDouble
	case sqltype.Numeric, sqltype.Decimal:
		return sqltype.CNumeric
	case sqltype.TypeDate:
		return sqltype.CDate
	case sqltype.TypeTime:
		return sqltype.CTime
	case sqltype.TypeTimestamp, sqltype.DateTime:
		return sqltype.CTimestamp
	case sqltype.SSTime2:
		return sqltype.CSSTime2
	case sqltype.SSTimestampOffset:
		return sqltype.CSSTimestampOffset
	case sqltype.Guid:
		return sqltype.CGuid
	}
	return sqltype.CChar
}

// InferTransferType chooses the transfer type for a binding whose wire
// type is already set, and sizes it for v.
func (c *Conn) InferTransferType(b *Binding, v interface{}) error {
	if b.SQLType == sqltype.Unknown {
		return fmt.Errorf("odbc: parameter %d has no wire type", b.Position)
	}
	if isNull(v) {
		b.null = true
		b.CType = defaultCType(b.SQLType)
		switch {
		case b.CType.Size() > 0:
			b.ElementSize = b.CType.Size()
		case b.SQLType.IsLong():
			b.ElementSize = 1
		case b.CType == sqltype.CWChar:
			b.ElementSize = 2 * max(b.Precision, 1)
		default:
			b.ElementSize = max(b.Precision, 1)
		}
		b.ColumnSize = max(b.Precision, 1)
		return nil
	}

	switch v := v.(type) {
	case bool:
		return c.fixed(b, sqltype.CBit)
	case string:
		return c.inferText(b, c.text, v)
	case VarChar:
		return c.inferText(b, c.narrow, string(v))
	case []byte:
		b.CType = sqltype.CBinary
		b.ColumnSize = max(len(v), b.Precision, 1)
		if b.unbounded(len(v), c.cfg.Limits.MaxBinary) {
			b.ElementSize = 0
			return nil
		}
		b.ElementSize = max(len(v), 1)
		if b.hinted {
			b.ElementSize = max(b.ElementSize, b.Precision)
		}
		return nil
	case TVP:
		n, err := v.len()
		if err != nil {
			return err
		}
		b.CType = sqltype.CDefault
		b.ColumnSize = n
		b.ElementSize = 0
		return nil
	case NullGUID, uuid.UUID:
		return c.fixed(b, sqltype.CGuid)
	case civil.Date:
		return c.fixed(b, sqltype.CDate)
	case civil.Time:
		if b.SQLType == sqltype.TypeTime {
			return c.fixed(b, sqltype.CTime)
		}
		return c.fixed(b, sqltype.CSSTime2)
	case time.Time, civil.DateTime:
		switch b.SQLType {
		case sqltype.SSTimestampOffset:
			return c.fixed(b, sqltype.CSSTimestampOffset)
		case sqltype.TypeDate:
			return c.fixed(b, sqltype.CDate)
		}
		return c.fixed(b, sqltype.CTimestamp)
	case DateTimeOffset:
		return c.fixed(b, sqltype.CSSTimestampOffset)
	case float32, float64:
		switch b.SQLType {
		case sqltype.Real:
			return c.fixed(b, sqltype.CFloat)
		case sqltype.Numeric, sqltype.Decimal:
			return c.inferNumeric(b, v)
		}
		return c.fixed(b, sqltype.CDouble)
	case *apd.Decimal, apd.Decimal:
		return c.inferNumeric(b, v)
	}

	n, ok := asInt64(v)
	if !ok {
		if _, isBig := asDecimal(v); isBig {
			return c.inferNumeric(b, v)
		}
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	switch b.SQLType {
	case sqltype.Bit, sqltype.TinyInt, sqltype.SmallInt, sqltype.Integer, sqltype.BigInt, sqltype.Real, sqltype.Float, sqltype.Double:
		return c.fixed(b, defaultCType(b.SQLType))
	case sqltype.Numeric, sqltype.Decimal:
		return c.inferNumeric(b, v)
	}
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return c.fixed(b, sqltype.CSLong)
	}
	return c.fixed(b, sqltype.CSBigInt)
}

func (c *Conn) fixed(b *Binding, ct sqltype.CType) error {
	b.CType = ct
	b.ElementSize = ct.Size()
	if b.ColumnSize == 0 {
		b.ColumnSize = b.Precision
	}
	if ct == sqltype.CTimestamp || ct == sqltype.CSSTime2 || ct == sqltype.CSSTimestampOffset {
		if b.Scale == 0 && !b.hinted {
			b.Scale = c.cfg.Limits.DatetimePrecision
		}
	}
	return nil
}

func (c *Conn) inferText(b *Binding, tc *textCodec, s string) error {
	n, chars, err := textLen(tc, s)
	if err != nil {
		return err
	}
	b.CType = tc.ctype
	b.Wide = tc.wide()
	b.ColumnSize = max(chars, 1)
	limit := c.cfg.Limits.MaxVarchar
	if tc.wide() {
		limit = c.cfg.Limits.MaxWVarchar
	}
	if b.unbounded(chars, limit) {
		b.ElementSize = 0
		return nil
	}
	b.ElementSize = max(n, tc.unit())
	if b.hinted && b.Precision > 0 {
		b.ColumnSize = max(b.ColumnSize, b.Precision)
		b.ElementSize = max(b.ElementSize, b.Precision*tc.unit())
	}
	return nil
}

// unbounded reports whether a text or binary value of size characters or
// bytes must be sent after Execute. A hinted character or binary type with
// no column size has no fixed maximum.
func (b *Binding) unbounded(size, limit int) bool {
	switch {
	case b.SQLType.IsLong(), size > limit:
		return true
	case !b.hinted || !(b.SQLType.IsChar() || b.SQLType.IsBinary()):
		return false
	}
	return b.Precision == 0 || size > b.Precision
}

func (c *Conn) inferNumeric(b *Binding, v interface{}) error {
	d, ok := asDecimal(v)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	if d.Form != apd.Finite {
		return fmt.Errorf("%w: %s", ErrOverflow, d)
	}
	if (b.SQLType != sqltype.Numeric && b.SQLType != sqltype.Decimal) || b.Precision < 1 {
		b.Precision, b.Scale = decimal.Infer(d)
	}
	if b.Precision > decimal.MaxPrecision {
		return overflow("%s needs precision %d", d, b.Precision)
	}
	b.ColumnSize = b.Precision
	if c.cfg.DecimalAsString {
		s := decimal.String(d)
		b.CType = sqltype.CChar
		b.ElementSize = max(len(s), 1)
		if b.hinted {
			// sign, point and leading zero
			b.ElementSize = max(b.ElementSize, b.Precision+3)
		}
		return nil
	}
	b.CType = sqltype.CNumeric
	b.ElementSize = sqltype.SizeNumeric
	return nil
}

// newBinding runs both inference phases for v at position pos. When
// inline is set, unbounded text and binary are bound at their full length
// instead of being deferred.
func (c *Conn) newBinding(pos int, v interface{}, hint *ParamDescription, inline bool) (*Binding, error) {
	b := &Binding{Position: pos, Nullable: true}
	wire, precision, scale, err := c.InferWireType(v, hint)
	if err != nil {
		return nil, err
	}
	b.SQLType, b.Precision, b.Scale = wire, precision, scale
	if hint != nil && hint.SQLType != sqltype.Unknown {
		b.hinted = true
		b.Nullable = hint.Nullable
	}
	if err = c.InferTransferType(b, v); err != nil {
		return nil, err
	}
	if inline && b.Deferred() {
		if _, isTable := v.(TVP); isTable {
			return nil, fmt.Errorf("%w: nested table-valued parameter", ErrUnsupportedType)
		}
		data, err := c.encodeValue(b, v)
		if err != nil {
			return nil, err
		}
		b.ElementSize = max(len(data), 1)
	}
	return b, nil
}

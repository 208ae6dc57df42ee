package odbc

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/cockroachdb/apd/v2"
	"github.com/mkleehammer/pyodbc-sub000/internal/decimal"
	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
)

// codec moves one transfer type. Fixed codecs (size > 0) write exactly size
// bytes into dst; variable codecs ignore dst and return the bytes to send.
type codec struct {
	size int
	put  func(c *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error)
	get  func(c *Conn, b *Binding, src []byte) (interface{}, error)
}

var codecs map[sqltype.CType]codec

func init() {
	codecs = map[sqltype.CType]codec{
		sqltype.CBit:               {sqltype.SizeBit, putBit, getBit},
		sqltype.CSTinyInt:          {sqltype.SizeTinyInt, putInt(sqltype.SizeTinyInt, true), getInt(sqltype.SizeTinyInt, true)},
		sqltype.CUTinyInt:          {sqltype.SizeTinyInt, putInt(sqltype.SizeTinyInt, false), getInt(sqltype.SizeTinyInt, false)},
		sqltype.CSShort:            {sqltype.SizeShort, putInt(sqltype.SizeShort, true), getInt(sqltype.SizeShort, true)},
		sqltype.CSLong:             {sqltype.SizeLong, putInt(sqltype.SizeLong, true), getInt(sqltype.SizeLong, true)},
		sqltype.CSBigInt:           {sqltype.SizeBigInt, putInt(sqltype.SizeBigInt, true), getInt(sqltype.SizeBigInt, true)},
		sqltype.CFloat:             {sqltype.SizeFloat, putFloat, getFloat},
		sqltype.CDouble:            {sqltype.SizeDouble, putDouble, getDouble},
		sqltype.CNumeric:           {sqltype.SizeNumeric, putNumeric, getNumeric},
		sqltype.CDate:              {sqltype.SizeDate, putDate, getDate},
		sqltype.CTime:              {sqltype.SizeTime, putTime, getTime},
		sqltype.CTimestamp:         {sqltype.SizeTimestamp, putTimestamp, getTimestamp},
		sqltype.CSSTime2:           {sqltype.SizeSSTime2, putTime2, getTime2},
		sqltype.CSSTimestampOffset: {sqltype.SizeTimestampOffset, putTimestampOffset, getTimestampOffset},
		sqltype.CGuid:              {sqltype.SizeGuid, putGUID, getGUID},
		sqltype.CChar:              {0, putText, getText},
		sqltype.CWChar:             {0, putText, getText},
		sqltype.CBinary:            {0, putBinary, getBinary},
	}
}

// encodeValue returns the transfer bytes of v for b. Fixed size values are
// written into a new buffer.
func (c *Conn) encodeValue(b *Binding, v interface{}) ([]byte, error) {
	cd, ok := codecs[b.CType]
	if !ok {
		return nil, fmt.Errorf("%w: no codec for transfer type %d", ErrUnsupportedType, b.CType)
	}
	var dst []byte
	if cd.size > 0 {
		dst = make([]byte, cd.size)
	}
	return cd.put(c, b, v, dst)
}

// decodeValue converts transfer bytes read for b back to a Go value.
func (c *Conn) decodeValue(b *Binding, src []byte) (interface{}, error) {
	cd, ok := codecs[b.CType]
	if !ok {
		return nil, fmt.Errorf("%w: no codec for transfer type %d", ErrUnsupportedType, b.CType)
	}
	if cd.size > 0 && len(src) < cd.size {
		return nil, fmt.Errorf("odbc: short read for transfer type %d: got %d bytes, want %d", b.CType, len(src), cd.size)
	}
	return cd.get(c, b, src)
}

func conversionError(v interface{}, b *Binding) error {
	return typeMismatch("cannot convert %T to transfer type %d", v, b.CType)
}

func putBit(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
	switch v := v.(type) {
	case bool:
		dst[0] = 0
		if v {
			dst[0] = 1
		}
		return dst, nil
	}
	n, ok := asInt64(v)
	if !ok {
		return nil, conversionError(v, b)
	}
	if n != 0 && n != 1 {
		return nil, overflow("%d is not a bit value", n)
	}
	dst[0] = byte(n)
	return dst, nil
}

func getBit(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
	return src[0] != 0, nil
}

func intRange(size int, signed bool) (min int64, max int64) {
	if !signed {
		if size == 8 {
			return 0, math.MaxInt64
		}
		return 0, 1<<(uint(size)*8) - 1
	}
	if size == 8 {
		return math.MinInt64, math.MaxInt64
	}
	return -1 << (uint(size)*8 - 1), 1<<(uint(size)*8-1) - 1
}

func putInt(size int, signed bool) func(*Conn, *Binding, interface{}, []byte) ([]byte, error) {
	min, max := intRange(size, signed)
	return func(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
		n, ok := asInt64(v)
		if !ok {
			return nil, conversionError(v, b)
		}
		if n < min || n > max {
			return nil, overflow("%d does not fit transfer type %d", n, b.CType)
		}
		switch size {
		case 1:
			dst[0] = byte(n)
		case 2:
			binary.LittleEndian.PutUint16(dst, uint16(n))
		case 4:
			binary.LittleEndian.PutUint32(dst, uint32(n))
		case 8:
			binary.LittleEndian.PutUint64(dst, uint64(n))
		}
		return dst, nil
	}
}

func getInt(size int, signed bool) func(*Conn, *Binding, []byte) (interface{}, error) {
	return func(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
		switch size {
		case 1:
			if signed {
				return int64(int8(src[0])), nil
			}
			return int64(src[0]), nil
		case 2:
			return int64(int16(binary.LittleEndian.Uint16(src))), nil
		case 4:
			return int64(int32(binary.LittleEndian.Uint32(src))), nil
		default:
			return int64(binary.LittleEndian.Uint64(src)), nil
		}
	}
}

func putFloat(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
	f, ok := asFloat64(v)
	if !ok {
		return nil, conversionError(v, b)
	}
	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return nil, overflow("%g does not fit a single precision float", f)
	}
	binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f)))
	return dst, nil
}

func getFloat(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
	return math.Float32frombits(binary.LittleEndian.Uint32(src)), nil
}

func putDouble(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
	f, ok := asFloat64(v)
	if !ok {
		return nil, conversionError(v, b)
	}
	binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
	return dst, nil
}

func getDouble(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
	return math.Float64frombits(binary.LittleEndian.Uint64(src)), nil
}

func putNumeric(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
	d, ok := asDecimal(v)
	if !ok {
		return nil, conversionError(v, b)
	}
	n, err := decimal.Encode(d, b.Precision, b.Scale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	n.Put(dst)
	return dst, nil
}

func getNumeric(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
	n, err := decimal.Parse(src)
	if err != nil {
		return nil, err
	}
	return n.Decimal(), nil
}

// putText encodes strings with the channel matching the transfer type.
// Decimals are formatted when sent as character data.
func putText(c *Conn, b *Binding, v interface{}, _ []byte) ([]byte, error) {
	tc := c.textCodecFor(b.CType)
	switch v := v.(type) {
	case string:
		return tc.encode(v)
	case VarChar:
		return tc.encode(string(v))
	case []byte:
		return v, nil
	}
	if d, ok := asDecimal(v); ok {
		return tc.encode(decimal.String(d))
	}
	return nil, conversionError(v, b)
}

// getText decodes with the channel matching the column: narrow columns
// use the char decoding, wide columns the wchar decoding.
func getText(c *Conn, b *Binding, src []byte) (interface{}, error) {
	tc := c.narrow
	if b.CType == sqltype.CWChar {
		tc = c.wide
	}
	return tc.decode(src)
}

func putBinary(_ *Conn, b *Binding, v interface{}, _ []byte) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, conversionError(v, b)
}

func getBinary(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// asInt64 accepts every Go integer whose value fits int64.
func asInt64(v interface{}) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case *big.Int:
		if v.IsInt64() {
			return v.Int64(), true
		}
	}
	return 0, false
}

func asFloat64(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if n, ok := asInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}

// asDecimal accepts decimals and integers of any size.
func asDecimal(v interface{}) (*apd.Decimal, bool) {
	switch v := v.(type) {
	case *apd.Decimal:
		if v == nil {
			return nil, false
		}
		return v, true
	case apd.Decimal:
		return &v, true
	case *big.Int:
		if v == nil {
			return nil, false
		}
		return decimal.FromBigInt(v), true
	case uint:
		return decimal.FromBigInt(new(big.Int).SetUint64(uint64(v))), true
	case uint64:
		return decimal.FromBigInt(new(big.Int).SetUint64(v)), true
	case float32, float64:
		f, _ := asFloat64(v)
		d := new(apd.Decimal)
		if _, err := d.SetFloat64(f); err != nil {
			return nil, false
		}
		return d, true
	}
	if n, ok := asInt64(v); ok {
		return apd.New(n, 0), true
	}
	return nil, false
}

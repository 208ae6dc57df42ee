package odbc

import (
	"encoding/binary"
	"time"

	"github.com/golang-sql/civil"
	"github.com/mkleehammer/pyodbc-sub000/internal/decimal"
)

// truncateFraction drops the nanosecond digits beyond the requested
// number of fractional digits. It never rounds.
func truncateFraction(ns int, digits int) int {
	if digits >= 9 || digits < 0 {
		return ns
	}
	unit := int(decimal.Pow10(9 - digits).Int64())
	return ns / unit * unit
}

func putDateFields(dst []byte, d civil.Date) {
	binary.LittleEndian.PutUint16(dst[0:], uint16(int16(d.Year)))
	binary.LittleEndian.PutUint16(dst[2:], uint16(d.Month))
	binary.LittleEndian.PutUint16(dst[4:], uint16(d.Day))
}

func getDateFields(src []byte) civil.Date {
	return civil.Date{
		Year:  int(int16(binary.LittleEndian.Uint16(src[0:]))),
		Month: time.Month(binary.LittleEndian.Uint16(src[2:])),
		Day:   int(binary.LittleEndian.Uint16(src[4:])),
	}
}

func putTimeFields(dst []byte, t civil.Time) {
	binary.LittleEndian.PutUint16(dst[0:], uint16(t.Hour))
	binary.LittleEndian.PutUint16(dst[2:], uint16(t.Minute))
	binary.LittleEndian.PutUint16(dst[4:], uint16(t.Second))
}

func getTimeFields(src []byte) civil.Time {
	return civil.Time{
		Hour:   int(binary.LittleEndian.Uint16(src[0:])),
		Minute: int(binary.LittleEndian.Uint16(src[2:])),
		Second: int(binary.LittleEndian.Uint16(src[4:])),
	}
}

// asDateTime accepts the zone-less date time values. time.Time keeps its
// wall clock fields.
func asDateTime(v interface{}) (civil.DateTime, bool) {
	switch v := v.(type) {
	case civil.DateTime:
		return v, true
	case time.Time:
		return civil.DateTimeOf(v), true
	case civil.Date:
		return civil.DateTime{Date: v}, true
	}
	return civil.DateTime{}, false
}

func putDate(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
	var d civil.Date
	switch v := v.(type) {
	case civil.Date:
		d = v
	default:
		dt, ok := asDateTime(v)
		if !ok {
			return nil, conversionError(v, b)
		}
		d = dt.Date
	}
	putDateFields(dst, d)
	return dst, nil
}

func getDate(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
	return getDateFields(src), nil
}

func putTime(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
	t, ok := v.(civil.Time)
	if !ok {
		return nil, conversionError(v, b)
	}
	putTimeFields(dst, t)
	return dst, nil
}

func getTime(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
	return getTimeFields(src), nil
}

func putTimestamp(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
	dt, ok := asDateTime(v)
	if !ok {
		return nil, conversionError(v, b)
	}
	putDateFields(dst[0:], dt.Date)
	putTimeFields(dst[6:], dt.Time)
	ns := truncateFraction(dt.Time.Nanosecond, b.Scale)
	binary.LittleEndian.PutUint32(dst[12:], uint32(ns))
	return dst, nil
}

func getTimestamp(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
	d := getDateFields(src[0:])
	t := getTimeFields(src[6:])
	t.Nanosecond = int(binary.LittleEndian.Uint32(src[12:]))
	return civil.DateTime{Date: d, Time: t}.In(time.UTC), nil
}

// SS_TIME2 layout: hour, minute, second, 2 bytes padding, fraction.
func putTime2(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
	var t civil.Time
	switch v := v.(type) {
	case civil.Time:
		t = v
	case time.Time:
		t = civil.TimeOf(v)
	case civil.DateTime:
		t = v.Time
	default:
		return nil, conversionError(v, b)
	}
	putTimeFields(dst, t)
	dst[6], dst[7] = 0, 0
	ns := truncateFraction(t.Nanosecond, b.Scale)
	tick := b.tick
	if tick <= 0 {
		tick = time.Nanosecond
	}
	binary.LittleEndian.PutUint32(dst[8:], uint32(int64(ns)/int64(tick)))
	return dst, nil
}

func getTime2(_ *Conn, b *Binding, src []byte) (interface{}, error) {
	t := getTimeFields(src)
	tick := b.tick
	if tick <= 0 {
		tick = time.Nanosecond
	}
	t.Nanosecond = int(int64(binary.LittleEndian.Uint32(src[8:])) * int64(tick))
	return t, nil
}

// SS_TIMESTAMPOFFSET layout: the timestamp struct followed by the offset
// hours and minutes as signed 16 bit values.
func putTimestampOffset(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
	var t time.Time
	switch v := v.(type) {
	case DateTimeOffset:
		t = time.Time(v)
	case time.Time:
		t = v
	default:
		return nil, conversionError(v, b)
	}
	dt := civil.DateTimeOf(t)
	putDateFields(dst[0:], dt.Date)
	putTimeFields(dst[6:], dt.Time)
	ns := truncateFraction(dt.Time.Nanosecond, b.Scale)
	binary.LittleEndian.PutUint32(dst[12:], uint32(ns))
	_, offset := t.Zone()
	offset /= 60
	binary.LittleEndian.PutUint16(dst[16:], uint16(int16(offset/60)))
	binary.LittleEndian.PutUint16(dst[18:], uint16(int16(offset%60)))
	return dst, nil
}

func getTimestampOffset(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
	d := getDateFields(src[0:])
	t := getTimeFields(src[6:])
	t.Nanosecond = int(binary.LittleEndian.Uint32(src[12:]))
	hours := int(int16(binary.LittleEndian.Uint16(src[16:])))
	minutes := int(int16(binary.LittleEndian.Uint16(src[18:])))
	offset := (hours*60 + minutes) * 60
	return civil.DateTime{Date: d, Time: t}.In(time.FixedZone("", offset)), nil
}

package odbc

import (
	"context"
	"fmt"

	"github.com/cockroachdb/apd/v2"
	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
)

const (
	// first buffer offered to a chunked read
	initialReadSize = 256
	// growth step when the transport cannot report the remaining length
	noTotalIncrement = 4096
)

// column returns the cached description of a result column.
func (s *Statement) column(ctx context.Context, col int) (*ColumnDescription, error) {
	if d, ok := s.cols[col]; ok {
		return d, nil
	}
	var d ColumnDescription
	err := s.call(ctx, "DescribeColumn", func() (err error) {
		d, err = s.h.DescribeColumn(ctx, col)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cols[col] = &d
	return &d, nil
}

// columnBinding picks the transfer type a column is read with.
func (c *Conn) columnBinding(col int, d *ColumnDescription) *Binding {
	b := &Binding{
		Position:   col,
		SQLType:    d.SQLType,
		ColumnSize: d.ColumnSize,
		Precision:  d.ColumnSize,
		Scale:      d.DecimalDigits,
		Nullable:   d.Nullable,
	}
	switch {
	case d.SQLType.IsWide():
		b.CType = c.wide.ctype
	case d.SQLType.IsChar():
		b.CType = c.narrow.ctype
	case (d.SQLType == sqltype.Numeric || d.SQLType == sqltype.Decimal) && c.cfg.DecimalAsString:
		b.CType = sqltype.CChar
	default:
		b.CType = defaultCType(d.SQLType)
	}
	b.Wide = b.CType == sqltype.CWChar
	b.ElementSize = b.CType.Size()
	return b
}

// GetData reads and decodes one column of the current row. NULL is
// returned as nil.
func (s *Statement) GetData(ctx context.Context, col int) (interface{}, error) {
	d, err := s.column(ctx, col)
	if err != nil {
		return nil, err
	}
	b := s.c.columnBinding(col, d)
	if b.ElementSize > 0 {
		return s.readFixed(ctx, b)
	}
	data, null, err := s.ReadVariableColumn(ctx, col, b.CType)
	if err != nil || null {
		return nil, err
	}
	if b.CType == sqltype.CChar && (d.SQLType == sqltype.Numeric || d.SQLType == sqltype.Decimal) {
		text, err := s.c.narrow.decode(data)
		if err != nil {
			return nil, err
		}
		v, _, err := apd.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("odbc: column %d: invalid decimal %q: %w", col, text, err)
		}
		return v, nil
	}
	return s.c.decodeValue(b, data)
}

func (s *Statement) readFixed(ctx context.Context, b *Binding) (interface{}, error) {
	buf := make([]byte, b.ElementSize)
	var n int
	var ind int64
	err := s.call(ctx, "GetData", func() (err error) {
		n, ind, _, err = s.h.GetData(ctx, b.Position, b.CType, buf)
		return err
	})
	getDataCalls.Inc()
	if err != nil {
		return nil, err
	}
	if ind == sqltype.NullData {
		return nil, nil
	}
	if n < len(buf) {
		return nil, fmt.Errorf("odbc: column %d: short read of %d bytes", b.Position, n)
	}
	return s.c.decodeValue(b, buf)
}

// ReadVariableColumn reads a character or binary column in chunks until
// the transport reports no more data. A zero length value is returned as a
// non-nil empty slice, NULL as null.
func (s *Statement) ReadVariableColumn(ctx context.Context, col int, ctype sqltype.CType) (data []byte, null bool, err error) {
	sb, err := newScratchBuffer(initialReadSize, s.c.cfg.MaxBuffer)
	if err != nil {
		return nil, false, err
	}
	used := 0
	for {
		buf := sb.Bytes()[used:]
		var n int
		var ind int64
		var more bool
		err = s.call(ctx, "GetData", func() (err error) {
			n, ind, more, err = s.h.GetData(ctx, col, ctype, buf)
			return err
		})
		getDataCalls.Inc()
		if err != nil {
			return nil, false, err
		}
		switch {
		case ind == sqltype.NullData:
			return nil, true, nil
		case ind == sqltype.NoTotal:
		case ind < 0:
			if s.c.cfg.NegativeLengthIsNull {
				return nil, true, nil
			}
			return nil, false, fmt.Errorf("odbc: column %d: invalid remaining length %d", col, ind)
		}
		if n < 0 || n > len(buf) {
			return nil, false, fmt.Errorf("odbc: column %d: transport wrote %d bytes into %d", col, n, len(buf))
		}
		used += n
		if !more {
			break
		}
		need := used + noTotalIncrement
		if remaining := int(ind) - n; ind >= 0 && remaining > 0 {
			need = used + remaining
		}
		if _, err = sb.Grow(need); err != nil {
			return nil, false, err
		}
	}
	columnReadBytes.Update(float64(used))
	return sb.Bytes()[:used], false, nil
}

// Row reads every column of the current row.
func (s *Statement) Row(ctx context.Context) ([]interface{}, error) {
	var count int
	err := s.call(ctx, "NumResultCols", func() (err error) {
		count, err = s.h.NumResultCols(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	row := make([]interface{}, count)
	for i := range row {
		if row[i], err = s.GetData(ctx, i+1); err != nil {
			return nil, err
		}
	}
	s.c.log.logf(ctx, odbcdsn.LogRows, "row %v", row)
	return row, nil
}

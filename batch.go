package odbc

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
)

// family groups wire types whose values share one binding in a parameter
// array. A value of another family ends the batch.
type family uint8

const (
	familyOther family = iota
	familyText
	familyBinary
	familyInteger
	familyFloat
	familyNumeric
	familyBit
	familyDate
	familyTime
	familyTimestamp
	familyOffset
	familyGUID
	familyTable
)

func familyOf(id sqltype.ID) family {
	switch {
	case id.IsChar():
		return familyText
	case id.IsBinary():
		return familyBinary
	case id.IsInteger():
		return familyInteger
	}
	switch id {
	case sqltype.Real, sqltype.Float, sqltype.Double:
		return familyFloat
	case sqltype.Numeric, sqltype.Decimal:
		return familyNumeric
	case sqltype.Bit:
		return familyBit
	case sqltype.TypeDate:
		return familyDate
	case sqltype.TypeTime, sqltype.SSTime2:
		return familyTime
	case sqltype.TypeTimestamp, sqltype.DateTime:
		return familyTimestamp
	case sqltype.SSTimestampOffset:
		return familyOffset
	case sqltype.Guid:
		return familyGUID
	case sqltype.SSTable:
		return familyTable
	}
	return familyOther
}

// arrayLayout places every column of a row at a fixed offset: the value
// slot followed by its 8 byte indicator.
type arrayLayout struct {
	cols    []*Binding
	offsets []int
	slots   []int
	stride  int
}

func newArrayLayout(cols []*Binding) *arrayLayout {
	l := &arrayLayout{cols: cols, offsets: make([]int, len(cols)), slots: make([]int, len(cols))}
	for j, b := range cols {
		slot := b.ElementSize
		if b.Deferred() {
			slot = 0
		}
		l.offsets[j] = l.stride
		l.slots[j] = slot
		l.stride += slot + sqltype.IndicatorSize
	}
	return l
}

func (l *arrayLayout) value(data []byte, row, col int) []byte {
	off := row*l.stride + l.offsets[col]
	return data[off : off+l.slots[col]]
}

func (l *arrayLayout) ind(data []byte, row, col int) []byte {
	off := row*l.stride + l.offsets[col] + l.slots[col]
	return data[off : off+sqltype.IndicatorSize]
}

// encodeCell converts v for an array column. fit is false when v cannot
// share the column's binding, which starts a new batch.
func (c *Conn) encodeCell(b *Binding, v interface{}, slot int) (data []byte, fit bool, err error) {
	if isNull(v) {
		return nil, true, nil
	}
	if b.null {
		return nil, false, nil
	}
	if !b.hinted {
		wire, _, _, err := c.InferWireType(v, nil)
		if err != nil {
			return nil, false, err
		}
		if familyOf(wire) != familyOf(b.SQLType) {
			return nil, false, nil
		}
	}
	if b.Deferred() {
		return nil, true, nil
	}
	data, err = c.encodeValue(b, v)
	switch {
	case errors.Is(err, ErrTypeMismatch), errors.Is(err, ErrOverflow):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	if len(data) > slot {
		return nil, false, nil
	}
	return data, true, nil
}

// inferColumns builds the array bindings from the first row. A NULL cell
// takes its type from the first non-NULL value below it.
func (s *Statement) inferColumns(ctx context.Context, rows [][]interface{}) ([]*Binding, error) {
	first := rows[0]
	cols := make([]*Binding, len(first))
	for j := range first {
		v, err := normalize(first[j])
		if err != nil {
			return nil, paramError(j+1, 0, err)
		}
		for i := 1; isNull(v) && i < len(rows); i++ {
			if len(rows[i]) != len(first) {
				break
			}
			next, err := normalize(rows[i][j])
			if err != nil {
				return nil, paramError(j+1, i, err)
			}
			if !isNull(next) {
				v = next
			}
		}
		hint, err := s.hint(ctx, j+1)
		if err != nil {
			return nil, paramError(j+1, 0, err)
		}
		b, err := s.c.newBinding(j+1, v, hint, false)
		if err != nil {
			return nil, paramError(j+1, 0, err)
		}
		s.applySize(b)
		cols[j] = b
	}
	return cols, nil
}

// ExecuteMulti executes the statement for every row using parameter
// arrays. Rows are sent in batches that share one set of bindings; a row
// whose values do not fit the current bindings starts a new batch from
// that row. The returned count is the sum over all batches.
func (s *Statement) ExecuteMulti(ctx context.Context, rows [][]interface{}) (total int64, err error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err = s.FreeParameterData(ctx); err != nil {
		return 0, err
	}
	defer func() {
		err = appendErr(err, s.FreeParameterData(cleanupContext(ctx)))
	}()
	width := len(rows[0])
	for start := 0; start < len(rows); {
		n, err := s.BindRowBatch(ctx, rows[start:], width)
		if err != nil {
			var pe *ParamError
			if errors.As(err, &pe) && pe.Row >= 0 {
				pe.Row += start
			}
			return total, err
		}
		count, err := s.execute(ctx)
		if err != nil {
			return total, err
		}
		if count > 0 {
			total += count
		}
		if err = s.FreeParameterData(ctx); err != nil {
			return total, err
		}
		start += n
	}
	return total, nil
}

// BindRowBatch binds the leading rows that share the bindings inferred
// from rows[0] as parameter arrays and returns how many were bound. Every
// row must have width values.
func (s *Statement) BindRowBatch(ctx context.Context, rows [][]interface{}, width int) (int, error) {
	cols, err := s.inferColumns(ctx, rows)
	if err != nil {
		return 0, err
	}
	layout := newArrayLayout(cols)
	maxRows := len(rows)
	if s.c.cfg.MaxBuffer > 0 {
		if limit := s.c.cfg.MaxBuffer / max(layout.stride, 1); limit < maxRows {
			maxRows = max(limit, 1)
		}
	}
	data := make([]byte, maxRows*layout.stride)
	deferred := make([][]interface{}, len(cols))
	rowDeferred := make([]interface{}, len(cols))

	n := 0
rowLoop:
	for i := 0; i < maxRows; i++ {
		row := rows[i]
		if len(row) != width {
			return 0, paramError(0, i, fmt.Errorf("odbc: row has %d values, want %d", len(row), width))
		}
		for j, raw := range row {
			v, err := normalize(raw)
			if err != nil {
				return 0, paramError(j+1, i, err)
			}
			b := cols[j]
			enc, fit, err := s.c.encodeCell(b, v, layout.slots[j])
			if err != nil {
				return 0, paramError(j+1, i, err)
			}
			if !fit {
				if n == 0 {
					_, err = s.c.encodeValue(b, v)
					if err == nil {
						err = typeMismatch("value does not fit the inferred binding %s", b)
					}
					return 0, paramError(j+1, i, err)
				}
				batchRestarts.Inc()
				s.c.log.logf(ctx, odbcdsn.LogParams, "row %d column %d starts a new parameter batch", i, j+1)
				break rowLoop
			}
			ind := layout.ind(data, n, j)
			switch {
			case isNull(v):
				putInd(ind, sqltype.NullData)
			case b.Deferred():
				putInd(ind, sqltype.DataAtExec)
				if _, isTable := v.(TVP); !isTable && s.c.cfg.Limits.NeedLongDataLen {
					full, err := s.c.encodeValue(b, v)
					if err != nil {
						return 0, paramError(j+1, i, err)
					}
					putInd(ind, sqltype.LenDataAtExec(len(full)))
				}
			default:
				copy(layout.value(data, n, j), enc)
				putInd(ind, int64(len(enc)))
			}
			rowDeferred[j] = v
		}
		for j, b := range cols {
			if b.Deferred() {
				deferred[j] = append(deferred[j], rowDeferred[j])
			}
		}
		n++
	}
	if err = s.bindArrays(ctx, layout, data, n, deferred); err != nil {
		return 0, err
	}
	return n, nil
}

// bindArrays registers n rows of data with the transport.
func (s *Statement) bindArrays(ctx context.Context, l *arrayLayout, data []byte, n int, deferred [][]interface{}) error {
	for j, b := range l.cols {
		pb := paramBinding(b)
		off := l.offsets[j]
		pb.Ind = data[off+l.slots[j]:]
		if b.Deferred() {
			tok := s.newToken(b, deferred[j])
			pb.Token = tok.id
			for _, v := range deferred[j] {
				if tvp, ok := v.(TVP); ok {
					pb.TypeName = tvp.TypeName
					break
				}
			}
		} else {
			pb.Data = data[off:]
			pb.BufferLength = l.slots[j]
		}
		err := s.call(ctx, "BindParameter", func() error {
			return s.h.BindParameter(ctx, pb)
		})
		if err != nil {
			return err
		}
	}
	s.arrayBound = true
	err := s.call(ctx, "SetParamArray", func() error {
		return s.h.SetParamArray(ctx, n, l.stride)
	})
	if err != nil {
		return err
	}
	paramBatches.Inc()
	s.c.log.logf(ctx, odbcdsn.LogParams, "parameter batch of %d rows, stride %d", n, l.stride)
	return nil
}

package odbc

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash"
	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
)

type deferredState uint8

const (
	awaitingCall deferredState = iota
	streaming
	deferredDone
	deferredFailed
)

func (st deferredState) String() string {
	switch st {
	case awaitingCall:
		return "awaiting call"
	case streaming:
		return "streaming"
	case deferredDone:
		return "done"
	}
	return "failed"
}

// deferredToken answers the transport's requests for one deferred
// parameter. values holds the value of every parameter array row.
type deferredToken struct {
	id        int
	binding   *Binding
	values    []interface{}
	chunkSize int
	state     deferredState
}

func (s *Statement) newToken(b *Binding, values []interface{}) *deferredToken {
	s.nextToken++
	tok := &deferredToken{
		id:        s.nextToken,
		binding:   b,
		values:    values,
		chunkSize: s.c.cfg.ChunkSize,
	}
	s.tokens[tok.id] = tok
	return tok
}

// sendDeferred answers ParamData requests until the transport has every
// deferred value. Any failure ends the exchange; nothing is resumed.
func (s *Statement) sendDeferred(ctx context.Context) error {
	for {
		var req DataRequest
		var needData bool
		err := s.call(ctx, "ParamData", func() (err error) {
			req, needData, err = s.h.ParamData(ctx)
			return err
		})
		if err != nil {
			s.failTokens()
			return err
		}
		if !needData {
			for _, tok := range s.tokens {
				tok.state = deferredDone
			}
			return nil
		}
		tok, ok := s.tokens[req.Token]
		if !ok {
			s.failTokens()
			return fmt.Errorf("odbc: transport requested unknown deferred value %d", req.Token)
		}
		if err = s.putValue(ctx, tok, req.Row); err != nil {
			tok.state = deferredFailed
			s.failTokens()
			return paramError(tok.binding.Position, rowOf(tok, req.Row), err)
		}
	}
}

func (s *Statement) failTokens() {
	for _, tok := range s.tokens {
		if tok.state != deferredDone {
			tok.state = deferredFailed
		}
	}
}

// rowOf reports the row of a request for error messages, -1 outside
// parameter arrays.
func rowOf(tok *deferredToken, row int) int {
	if len(tok.values) <= 1 {
		return -1
	}
	return row
}

func (s *Statement) putValue(ctx context.Context, tok *deferredToken, row int) error {
	if row < 0 || row >= len(tok.values) {
		return fmt.Errorf("odbc: deferred value requested for row %d of %d", row, len(tok.values))
	}
	if tok.state == deferredFailed {
		return fmt.Errorf("odbc: deferred value in state %s", tok.state)
	}
	tok.state = streaming
	v := tok.values[row]
	if tvp, ok := v.(TVP); ok {
		if err := s.putTable(ctx, tok, tvp); err != nil {
			return err
		}
		tok.state = deferredDone
		return nil
	}
	if isNull(v) {
		if err := s.putData(ctx, nil, sqltype.NullData); err != nil {
			return err
		}
		tok.state = deferredDone
		return nil
	}

	data, err := s.c.encodeValue(tok.binding, v)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		if err = s.putData(ctx, data, 0); err != nil {
			return err
		}
		tok.state = deferredDone
		return nil
	}
	chunk := tok.chunkSize
	if tok.binding.Wide && chunk%2 != 0 {
		chunk--
	}
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		if err = s.putData(ctx, data[off:end], int64(end-off)); err != nil {
			return err
		}
		deferredChunks.Inc()
		deferredBytes.Add(end - off)
	}
	tok.state = deferredDone
	return nil
}

func (s *Statement) putData(ctx context.Context, data []byte, ind int64) error {
	return s.call(ctx, "PutData", func() error {
		return s.h.PutData(ctx, data, ind)
	})
}

// tvpCursor keeps the column bindings of the previous table row so a type
// change between rows is reported instead of converted.
type tvpCursor struct {
	columns []*Binding
	shape   uint64
}

// rowShape hashes the wire and transfer types of the non-NULL cells.
func rowShape(cols []*Binding) uint64 {
	d := xxhash.New()
	var buf [4]byte
	for _, b := range cols {
		if b.null {
			binary.LittleEndian.PutUint32(buf[:], 0)
		} else {
			binary.LittleEndian.PutUint16(buf[0:], uint16(b.SQLType))
			binary.LittleEndian.PutUint16(buf[2:], uint16(b.CType))
		}
		d.Write(buf[:])
	}
	return d.Sum64()
}

// accept infers the bindings of one row and checks them against the
// previous rows.
func (cur *tvpCursor) accept(c *Conn, row []interface{}, rowIdx int) ([]*Binding, []interface{}, error) {
	if cur.columns != nil && len(row) != len(cur.columns) {
		return nil, nil, fmt.Errorf("%w: row %d has %d columns, want %d", errorRowWidth, rowIdx, len(row), len(cur.columns))
	}
	next := make([]*Binding, len(row))
	values := make([]interface{}, len(row))
	for j, cell := range row {
		v, err := normalize(cell)
		if err != nil {
			return nil, nil, paramError(j+1, rowIdx, err)
		}
		b, err := c.newBinding(j+1, v, nil, true)
		if err != nil {
			return nil, nil, paramError(j+1, rowIdx, err)
		}
		next[j], values[j] = b, v
	}
	shape := rowShape(next)
	if cur.columns != nil && shape != cur.shape {
		for j, b := range next {
			prev := cur.columns[j]
			if prev == nil || prev.null || b.null {
				continue
			}
			if prev.SQLType != b.SQLType || prev.CType != b.CType {
				return nil, nil, paramError(j+1, rowIdx, typeMismatch("table column %d changed from wire type %d to %d", j+1, prev.SQLType, b.SQLType))
			}
		}
	}
	if cur.columns == nil {
		cur.columns = make([]*Binding, len(next))
	}
	for j, b := range next {
		if !b.null || cur.columns[j] == nil {
			cur.columns[j] = b
		}
	}
	cur.shape = rowShape(cur.columns)
	return next, values, nil
}

// putTable streams a table-valued parameter one row at a time: the row's
// cells are bound under the table's parameter focus, then PutData offers
// the row. A zero row count ends the table.
func (s *Statement) putTable(ctx context.Context, tok *deferredToken, tvp TVP) error {
	rows, err := tvp.rows()
	if err != nil {
		return err
	}
	cur := &tvpCursor{}
	for i, row := range rows {
		cols, values, err := cur.accept(s.c, row, i)
		if err != nil {
			return err
		}
		if err = s.bindTableRow(ctx, tok.binding.Position, cols, values); err != nil {
			return err
		}
		if err = s.putData(ctx, nil, 1); err != nil {
			return err
		}
		tvpRows.Inc()
	}
	s.c.log.logf(ctx, odbcdsn.LogParams, "table %s: %d rows", tvp.TypeName, len(rows))
	return s.putData(ctx, nil, 0)
}

func (s *Statement) bindTableRow(ctx context.Context, pos int, cols []*Binding, values []interface{}) (err error) {
	err = s.call(ctx, "SetParamFocus", func() error {
		return s.h.SetParamFocus(ctx, pos)
	})
	if err != nil {
		return err
	}
	defer func() {
		cctx := cleanupContext(ctx)
		err = appendErr(err, s.call(cctx, "SetParamFocus", func() error {
			return s.h.SetParamFocus(cctx, 0)
		}))
	}()
	for j, b := range cols {
		if _, err = b.store(s.c, values[j]); err != nil {
			return err
		}
		pb := paramBinding(b)
		pb.Data = b.data()
		pb.BufferLength = len(pb.Data)
		pb.Ind = b.indicator()
		if b.null {
			pb.Data, pb.BufferLength = nil, 0
		}
		err = s.call(ctx, "BindParameter", func() error {
			return s.h.BindParameter(ctx, pb)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

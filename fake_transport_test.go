package odbc

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
	"github.com/stretchr/testify/require"
)

// fakeValue is what the fake transport received for one parameter.
type fakeValue struct {
	null  bool
	data  []byte
	table [][]fakeValue
}

type fakeTransport struct {
	closed atomic.Bool
	copier *fakeCopier
}

func (t *fakeTransport) Closed() bool {
	return t.closed.Load()
}

func (t *fakeTransport) LoadBulk(context.Context) (BulkCopier, error) {
	if t.copier == nil {
		return nil, ErrNotSupported
	}
	return t.copier, nil
}

type fakeRequest struct {
	DataRequest
	position int
}

// fakeStmt is an in-memory statement handle. It reads bound memory at
// Execute the way a driver would and records what it received.
type fakeStmt struct {
	t *fakeTransport

	// nil makes DescribeParam unsupported
	describe  map[int]ParamDescription
	describes int

	binds     []ParamBinding
	params    map[int]ParamBinding
	focus     int
	tableCols map[int]ParamBinding
	rows      int
	stride    int
	resets    int

	executed []map[int]*fakeValue
	batches  []int
	pending  []fakeRequest
	current  *fakeRequest
	puts     []int64

	// result set
	columns    []ColumnDescription
	values     [][]byte
	chunkLimit int
	noTotal    bool
	negative   bool
	readPos    map[int]int
	reads      int

	executeErr error
	putErr     error
	putErrAt   int
	closeOnPut bool
}

func newFakeStmt(t *fakeTransport) *fakeStmt {
	return &fakeStmt{
		t:       t,
		params:  make(map[int]ParamBinding),
		rows:    1,
		readPos: make(map[int]int),
	}
}

func (s *fakeStmt) DescribeParam(_ context.Context, position int) (ParamDescription, error) {
	s.describes++
	if s.describe == nil {
		return ParamDescription{}, ErrNotSupported
	}
	d, ok := s.describe[position]
	if !ok {
		return ParamDescription{}, Error{SQLState: "07009", Message: "invalid descriptor index"}
	}
	return d, nil
}

func (s *fakeStmt) BindParameter(_ context.Context, b ParamBinding) error {
	s.binds = append(s.binds, b)
	if s.focus != 0 {
		s.tableCols[b.Position] = b
		return nil
	}
	s.params[b.Position] = b
	return nil
}

func (s *fakeStmt) SetParamArray(_ context.Context, rows, stride int) error {
	s.rows, s.stride = rows, stride
	return nil
}

func readInd(b []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(b[off:]))
}

func (s *fakeStmt) Execute(context.Context) (bool, error) {
	if s.executeErr != nil {
		return false, s.executeErr
	}
	s.batches = append(s.batches, s.rows)
	for r := 0; r < s.rows; r++ {
		row := make(map[int]*fakeValue)
		for pos, pb := range s.params {
			off := r * s.stride
			ind := readInd(pb.Ind, off)
			switch {
			case ind == sqltype.NullData:
				row[pos] = &fakeValue{null: true}
			case sqltype.IsDataAtExec(ind):
				row[pos] = &fakeValue{}
				s.pending = append(s.pending, fakeRequest{DataRequest{Token: pb.Token, Row: r}, pos})
			default:
				data := make([]byte, ind)
				copy(data, pb.Data[off:off+int(ind)])
				row[pos] = &fakeValue{data: data}
			}
		}
		s.executed = append(s.executed, row)
	}
	return len(s.pending) > 0, nil
}

func (s *fakeStmt) ParamData(context.Context) (DataRequest, bool, error) {
	s.current = nil
	if len(s.pending) == 0 {
		return DataRequest{}, false, nil
	}
	req := s.pending[0]
	s.pending = s.pending[1:]
	s.current = &req
	return req.DataRequest, true, nil
}

func (s *fakeStmt) currentValue() *fakeValue {
	base := len(s.executed) - s.rows
	return s.executed[base+s.current.Row][s.current.position]
}

func (s *fakeStmt) PutData(_ context.Context, data []byte, ind int64) error {
	if s.closeOnPut {
		s.t.closed.Store(true)
	}
	if s.putErr != nil && len(s.puts) == s.putErrAt {
		return s.putErr
	}
	s.puts = append(s.puts, ind)
	if s.current == nil {
		return errors.New("fake: PutData without a request")
	}
	v := s.currentValue()
	if s.params[s.current.position].SQLType == sqltype.SSTable {
		if ind == 1 {
			row := make([]fakeValue, len(s.tableCols))
			for pos, pb := range s.tableCols {
				n := readInd(pb.Ind, 0)
				if n == sqltype.NullData {
					row[pos-1] = fakeValue{null: true}
					continue
				}
				row[pos-1] = fakeValue{data: append([]byte(nil), pb.Data[:n]...)}
			}
			v.table = append(v.table, row)
		}
		return nil
	}
	if ind == sqltype.NullData {
		v.null = true
		return nil
	}
	if int64(len(data)) != ind {
		return errors.New("fake: PutData length does not match the data")
	}
	v.data = append(v.data, data...)
	if v.data == nil {
		v.data = []byte{}
	}
	return nil
}

func (s *fakeStmt) SetParamFocus(_ context.Context, position int) error {
	s.focus = position
	if position != 0 {
		s.tableCols = make(map[int]ParamBinding)
	}
	return nil
}

func (s *fakeStmt) RowCount(context.Context) (int64, error) {
	return int64(s.rows), nil
}

func (s *fakeStmt) NumResultCols(context.Context) (int, error) {
	return len(s.columns), nil
}

func (s *fakeStmt) DescribeColumn(_ context.Context, column int) (ColumnDescription, error) {
	if column < 1 || column > len(s.columns) {
		return ColumnDescription{}, Error{SQLState: "07009", Message: "invalid descriptor index"}
	}
	return s.columns[column-1], nil
}

func (s *fakeStmt) GetData(_ context.Context, column int, ctype sqltype.CType, buf []byte) (int, int64, bool, error) {
	s.reads++
	value := s.values[column-1]
	if value == nil {
		if s.negative {
			return 0, -7, false, nil
		}
		return 0, sqltype.NullData, false, nil
	}
	if ctype.Size() > 0 {
		n := copy(buf, value)
		return n, int64(len(value)), false, nil
	}
	pos := s.readPos[column]
	remaining := len(value) - pos
	n := min(len(buf), remaining)
	if s.chunkLimit > 0 {
		n = min(n, s.chunkLimit)
	}
	copy(buf, value[pos:pos+n])
	s.readPos[column] = pos + n
	ind := int64(remaining)
	if s.noTotal {
		ind = sqltype.NoTotal
	}
	return n, ind, pos+n < len(value), nil
}

func (s *fakeStmt) ResetParams(context.Context) error {
	s.resets++
	s.params = make(map[int]ParamBinding)
	s.rows, s.stride = 1, 0
	return nil
}

// fakeCopier records every row sent through the bulk interface.
type fakeCopier struct {
	table   string
	columns []ColumnDescription
	bound   map[int]BulkBinding
	rebinds int
	rows    [][]fakeValue
	sendErr error
}

func (f *fakeCopier) Init(_ context.Context, table string) error {
	f.table = table
	f.bound = make(map[int]BulkBinding)
	return nil
}

func (f *fakeCopier) Columns(context.Context) ([]ColumnDescription, error) {
	return f.columns, nil
}

func (f *fakeCopier) Bind(_ context.Context, column int, b BulkBinding) error {
	f.bound[column] = b
	return nil
}

func (f *fakeCopier) Rebind(_ context.Context, column int, data []byte) error {
	b := f.bound[column]
	b.Data = data
	f.bound[column] = b
	f.rebinds++
	return nil
}

func (f *fakeCopier) SendRow(context.Context) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	row := make([]fakeValue, len(f.columns))
	for col, b := range f.bound {
		n := readInd(b.Ind, 0)
		if n == sqltype.NullData {
			row[col-1] = fakeValue{null: true}
			continue
		}
		row[col-1] = fakeValue{data: append([]byte(nil), b.Data[:n]...)}
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeCopier) Done(context.Context) (int64, error) {
	return int64(len(f.rows)), nil
}

// newTestConn returns a Conn over a fake transport. mod adjusts the
// default configuration.
func newTestConn(t *testing.T, mod func(*odbcdsn.Config)) (*Conn, *fakeTransport) {
	t.Helper()
	cfg := odbcdsn.Default()
	if mod != nil {
		mod(&cfg)
	}
	tr := &fakeTransport{}
	c, err := NewConn(tr, cfg)
	require.NoError(t, err)
	return c, tr
}

func newTestStatement(t *testing.T, mod func(*odbcdsn.Config)) (*Statement, *fakeStmt, *fakeTransport) {
	t.Helper()
	c, tr := newTestConn(t, mod)
	h := newFakeStmt(tr)
	return c.NewStatement(h), h, tr
}

func utf16le(s string) []byte {
	var out []byte
	for _, r := range s {
		if r > 0xFFFF {
			r -= 0x10000
			hi, lo := 0xD800+(r>>10), 0xDC00+(r&0x3FF)
			out = binary.LittleEndian.AppendUint16(out, uint16(hi))
			out = binary.LittleEndian.AppendUint16(out, uint16(lo))
			continue
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(r))
	}
	return out
}

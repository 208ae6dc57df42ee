package odbc

import (
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastExecMany(cfg *odbcdsn.Config) {
	cfg.FastExecMany = true
}

func TestExecuteMultiRestartsOnDrift(t *testing.T) {
	const rowCount = 100
	rows := make([][]interface{}, rowCount)
	for i := range rows {
		rows[i] = []interface{}{i + 1}
	}
	rows[49][0] = int64(1) << 40

	stmt, h, _ := newTestStatement(t, fastExecMany)
	n, err := stmt.ExecMany(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(rowCount), n)
	assert.Equal(t, []int{49, rowCount - 49}, h.batches)

	require.Len(t, h.executed, rowCount)
	assert.Equal(t, []byte{49, 0, 0, 0}, h.executed[48][1].data)
	assert.Equal(t, binary.LittleEndian.AppendUint64(nil, 1<<40), h.executed[49][1].data)
	assert.Equal(t, binary.LittleEndian.AppendUint64(nil, 51), h.executed[50][1].data)
	assert.False(t, stmt.arrayBound)
}

func TestExecuteMultiNullsAndText(t *testing.T) {
	stmt, h, _ := newTestStatement(t, fastExecMany)
	n, err := stmt.ExecMany(context.Background(), [][]interface{}{
		{1, "a"},
		{2, nil},
		{3, "ccc"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, h.executed, 3)

	assert.Equal(t, utf16le("a"), h.executed[0][2].data)
	assert.True(t, h.executed[1][2].null)
	assert.Equal(t, []byte{2, 0, 0, 0}, h.executed[1][1].data)
	assert.Equal(t, utf16le("ccc"), h.executed[2][2].data)
}

func TestExecuteMultiNullLookahead(t *testing.T) {
	stmt, h, _ := newTestStatement(t, fastExecMany)
	_, err := stmt.ExecMany(context.Background(), [][]interface{}{{nil}, {nil}, {7}})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, h.batches)
	assert.Equal(t, sqltype.Integer, h.binds[0].SQLType)
	assert.True(t, h.executed[0][1].null)
	assert.Equal(t, []byte{7, 0, 0, 0}, h.executed[2][1].data)
}

func TestExecuteMultiFamilyChange(t *testing.T) {
	stmt, h, _ := newTestStatement(t, fastExecMany)
	_, err := stmt.ExecMany(context.Background(), [][]interface{}{{1}, {2}, {"three"}, {"four"}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, h.batches)
	assert.Equal(t, utf16le("four"), h.executed[3][1].data)
}

func TestExecuteMultiDeferred(t *testing.T) {
	long1 := strings.Repeat("a", 4500)
	long2 := strings.Repeat("b", 4100)
	stmt, h, _ := newTestStatement(t, fastExecMany)
	_, err := stmt.ExecMany(context.Background(), [][]interface{}{
		{"short", long1},
		{"x", long2},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, h.batches)
	assert.Equal(t, utf16le("x"), h.executed[1][1].data)
	assert.Equal(t, utf16le(long1), h.executed[0][2].data)
	assert.Equal(t, utf16le(long2), h.executed[1][2].data)
}

func TestExecuteMultiBufferLimit(t *testing.T) {
	rows := make([][]interface{}, 7)
	for i := range rows {
		rows[i] = []interface{}{i}
	}
	// one INTEGER slot plus its indicator per row
	stmt, h, _ := newTestStatement(t, func(cfg *odbcdsn.Config) {
		cfg.FastExecMany = true
		cfg.MaxBuffer = 3 * (4 + sqltype.IndicatorSize)
	})
	n, err := stmt.ExecMany(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, []int{3, 3, 1}, h.batches)
}

func TestExecuteMultiUnsetBufferLimit(t *testing.T) {
	rows := make([][]interface{}, 10)
	for i := range rows {
		rows[i] = []interface{}{i}
	}
	stmt, h, _ := newTestStatement(t, func(cfg *odbcdsn.Config) {
		cfg.FastExecMany = true
		cfg.MaxBuffer = 0
	})
	assert.Equal(t, odbcdsn.DefaultMaxBuffer, stmt.c.Config().MaxBuffer)
	n, err := stmt.ExecMany(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, []int{10}, h.batches)

	stmt.c.cfg.MaxBuffer = 0
	h.batches = nil
	_, err = stmt.ExecMany(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, h.batches)
}

func TestExecuteMultiErrors(t *testing.T) {
	values := []struct {
		name     string
		describe map[int]ParamDescription
		rows     [][]interface{}
		err      error
		row      int
		position int
	}{
		{
			name:     "row width",
			rows:     [][]interface{}{{1, 2}, {3, 4}, {5}},
			row:      2,
			position: 0,
		},
		{
			name:     "first row does not fit",
			describe: map[int]ParamDescription{1: {SQLType: sqltype.TinyInt}},
			rows:     [][]interface{}{{300}},
			err:      ErrOverflow,
			row:      0,
			position: 1,
		},
		{
			name:     "unsupported value",
			rows:     [][]interface{}{{1}, {1}, {struct{}{}}},
			err:      ErrUnsupportedType,
			row:      2,
			position: 1,
		},
	}
	for _, v := range values {
		t.Run(v.name, func(t *testing.T) {
			stmt, h, _ := newTestStatement(t, fastExecMany)
			h.describe = v.describe
			_, err := stmt.ExecMany(context.Background(), v.rows)
			require.Error(t, err)
			if v.err != nil {
				assert.ErrorIs(t, err, v.err)
			}
			var pe *ParamError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, v.row, pe.Row)
			assert.Equal(t, v.position, pe.Position)
			assert.False(t, stmt.arrayBound)
		})
	}
}

func TestArrayLayout(t *testing.T) {
	cols := []*Binding{
		{CType: sqltype.CSLong, ElementSize: 4},
		{CType: sqltype.CWChar, ElementSize: 0},
		{CType: sqltype.CWChar, ElementSize: 10},
	}
	l := newArrayLayout(cols)
	assert.Equal(t, []int{0, 12, 20}, l.offsets)
	assert.Equal(t, []int{4, 0, 10}, l.slots)
	assert.Equal(t, 38, l.stride)

	data := make([]byte, 2*l.stride)
	putInd(l.ind(data, 1, 2), 6)
	assert.Equal(t, int64(6), getInd(data[l.stride+30:]))
	assert.Len(t, l.value(data, 1, 2), 10)
}

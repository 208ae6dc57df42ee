package odbc

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/golang-sql/civil"
	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peopleCopier() *fakeCopier {
	return &fakeCopier{columns: []ColumnDescription{
		{Name: "id", SQLType: sqltype.Integer},
		{Name: "name", SQLType: sqltype.WVarChar, ColumnSize: 4, Nullable: true},
		{Name: "at", SQLType: sqltype.SSTime2, ColumnSize: 16, DecimalDigits: 7, Nullable: true},
	}}
}

func newTestBulk(t *testing.T, columns ...string) (*Bulk, *fakeCopier) {
	t.Helper()
	c, tr := newTestConn(t, nil)
	tr.copier = peopleCopier()
	b, err := c.CreateBulk(context.Background(), "dbo.People", columns)
	require.NoError(t, err)
	return b, tr.copier
}

func TestBulkAddRows(t *testing.T) {
	ctx := context.Background()
	b, cp := newTestBulk(t)
	assert.Equal(t, "dbo.People", cp.table)

	at := civil.Time{Hour: 1, Minute: 2, Second: 3, Nanosecond: 1234500}
	err := b.AddRows(ctx, [][]interface{}{
		{1, "ab", at},
		{2, "a longer name than the column", nil},
		{3, "x", at},
	})
	require.NoError(t, err)
	require.Len(t, cp.rows, 3)
	assert.Equal(t, 1, cp.rebinds, "only the grown text column is rebound")

	first := cp.rows[0]
	assert.Equal(t, []byte{1, 0, 0, 0}, first[0].data)
	assert.Equal(t, utf16le("ab"), first[1].data)
	require.Len(t, first[2].data, sqltype.SizeSSTime2)
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(first[2].data[0:]))
	assert.Equal(t, uint32(12345), binary.LittleEndian.Uint32(first[2].data[8:]), "fraction in 100ns units")

	assert.Equal(t, utf16le("a longer name than the column"), cp.rows[1][1].data)
	assert.True(t, cp.rows[1][2].null)
	assert.Equal(t, utf16le("x"), cp.rows[2][1].data, "indicator holds the written length")

	n, err := b.Done(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Nil(t, b.bulkColumns)
}

func TestBulkColumnSelection(t *testing.T) {
	b, cp := newTestBulk(t, "NAME", "Id")
	require.NoError(t, b.AddRow(context.Background(), []interface{}{"a", 5}))
	require.Len(t, cp.rows, 1)
	assert.Equal(t, []byte{5, 0, 0, 0}, cp.rows[0][0].data)
	assert.Equal(t, utf16le("a"), cp.rows[0][1].data)
	assert.Len(t, cp.bound, 2)
}

func TestBulkBindingSizes(t *testing.T) {
	b, cp := newTestBulk(t)
	require.NoError(t, b.BindAllColumns(context.Background()))
	require.Len(t, cp.bound, 3)
	assert.Len(t, cp.bound[1].Data, 4)
	assert.Len(t, cp.bound[2].Data, 8)
	assert.Equal(t, sqltype.CWChar, cp.bound[2].CType)
	assert.Len(t, cp.bound[3].Data, sqltype.SizeSSTime2)
	for col, bb := range cp.bound {
		assert.Equal(t, sqltype.NullData, getInd(bb.Ind), "column %d starts as NULL", col)
	}
}

func TestBulkErrors(t *testing.T) {
	ctx := context.Background()

	b, _ := newTestBulk(t, "id", "nope")
	err := b.AddRow(ctx, []interface{}{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column [nope] does not exist")

	b, _ = newTestBulk(t)
	err = b.AddRow(ctx, []interface{}{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dbo.People")

	b, _ = newTestBulk(t)
	err = b.AddRow(ctx, []interface{}{"x", "y", nil})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	var pe *ParamError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Position)
	assert.Equal(t, 0, pe.Row)

	b, cp := newTestBulk(t)
	cp.sendErr = Error{SQLState: "23000", Message: "duplicate key"}
	err = b.AddRow(ctx, []interface{}{1, "y", nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dbo.People")
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "SendRow", ce.Call)

	assert.Error(t, b.FillCell(ctx, 1, 3), "column out of range")
}

func TestBulkLogging(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	c, tr := newTestConn(t, func(cfg *odbcdsn.Config) {
		cfg.LogFlags = odbcdsn.LogMessages | odbcdsn.LogRows
	})
	c.SetContextLogger(bufContextLogger{&buf})
	tr.copier = peopleCopier()
	b, err := c.CreateBulk(ctx, "dbo.People", []string{"name", "id"})
	require.NoError(t, err)

	require.NoError(t, b.AddRow(ctx, []interface{}{"it's", 4}))
	assert.Equal(t, "INSERT INTO dbo.People ([name], [id]) VALUES (?, ?)", b.InsertSQL())
	assert.Contains(t, buf.String(), "bulk copy for INSERT INTO dbo.People ([name], [id]) VALUES (?, ?)\n")
	assert.Contains(t, buf.String(), "bulk row 0: (N'it''s', 4)\n")
}

type plainTransport struct{}

func (plainTransport) Closed() bool { return false }

func TestBulkNotSupported(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestConn(t, nil)
	_, err := c.EnsureBulkLoaded(ctx)
	assert.ErrorIs(t, err, ErrNotSupported)

	c, err = NewConn(plainTransport{}, c.Config())
	require.NoError(t, err)
	_, err = c.CreateBulk(ctx, "t", nil)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestNewBulkInsert(t *testing.T) {
	ctx := context.Background()
	c, tr := newTestConn(t, nil)
	tr.copier = peopleCopier()

	b, err := c.NewBulkInsert(ctx, "INSERT INTO [dbo].[People] (id, name, at) VALUES (?, ?, ?)")
	require.NoError(t, err)
	assert.Equal(t, "[dbo].[People]", tr.copier.table)
	assert.Equal(t, "[dbo].[People]", b.tablename)

	loaded, err := c.EnsureBulkLoaded(ctx)
	require.NoError(t, err)
	assert.Same(t, tr.copier, loaded)

	_, err = c.NewBulkInsert(ctx, "SELECT 1")
	assert.Error(t, err)
}

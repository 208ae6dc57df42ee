package odbc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
)

// bulk SS_TIME2 fractions are in 100ns units
const bulkTimeTick = 100 * time.Nanosecond

// EnsureBulkLoaded returns the transport's bulk copy interface, loading it
// on first use.
func (c *Conn) EnsureBulkLoaded(ctx context.Context) (BulkCopier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bulk != nil {
		return c.bulk, nil
	}
	loader, ok := c.t.(BulkLoader)
	if !ok {
		return nil, fmt.Errorf("odbc: bulk insert: %w", ErrNotSupported)
	}
	if c.t.Closed() {
		return nil, ErrConnectionClosed
	}
	cp, err := loader.LoadBulk(ctx)
	if err != nil {
		return nil, &CallError{Call: "LoadBulk", Err: err}
	}
	c.bulk = cp
	return cp, nil
}

type bulkColumn struct {
	desc ColumnDescription
	// 1-based position in the destination table
	index int
	b     *Binding
}

// Bulk inserts rows into one table through the transport's bulk copy
// interface. Every column is bound once to a scratch buffer; rows only
// update buffer contents and indicators.
type Bulk struct {
	c           *Conn
	cp          BulkCopier
	tablename   string
	columnsName []string
	metadata    []ColumnDescription
	bulkColumns []bulkColumn
	numRows     int
	bound       bool
}

// CreateBulk starts a bulk insert into table. columns selects and orders
// the destination columns; all columns are used when it is empty.
func (c *Conn) CreateBulk(ctx context.Context, table string, columns []string) (*Bulk, error) {
	cp, err := c.EnsureBulkLoaded(ctx)
	if err != nil {
		return nil, err
	}
	b := &Bulk{c: c, cp: cp, tablename: table, columnsName: columns}
	if err = b.call(ctx, "Init", func() error { return cp.Init(ctx, table) }); err != nil {
		return nil, err
	}
	return b, nil
}

// NewBulkInsert starts a bulk insert into the table named by an INSERT
// statement.
func (c *Conn) NewBulkInsert(ctx context.Context, insertSQL string) (*Bulk, error) {
	table, ok := ParseInsertTableName(insertSQL)
	if !ok {
		return nil, fmt.Errorf("odbc: bulk insert: no table name in %q", insertSQL)
	}
	return c.CreateBulk(ctx, table, nil)
}

func (b *Bulk) call(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.c.t.Closed() {
		return ErrConnectionClosed
	}
	err := fn()
	if b.c.t.Closed() {
		err = ErrConnectionClosed
	}
	if err == nil {
		return nil
	}
	callErrors.Inc()
	b.c.log.logf(ctx, odbcdsn.LogErrors, "bulk insert into %s: %s failed: %v", b.tablename, name, err)
	return &CallError{Call: name, Err: err}
}

func (b *Bulk) dlogf(ctx context.Context, format string, v ...interface{}) {
	b.c.log.logf(ctx, odbcdsn.LogDebug, format, v...)
}

// bulkCType picks the transfer type used for a destination column.
func (c *Conn) bulkCType(d ColumnDescription) sqltype.CType {
	switch {
	case d.SQLType.IsWide():
		return sqltype.CWChar
	case d.SQLType.IsChar():
		return c.narrow.ctype
	case d.SQLType == sqltype.SSVariant:
		return c.text.ctype
	}
	return defaultCType(d.SQLType)
}

// BindAllColumns describes the destination and binds one scratch buffer
// per selected column.
func (b *Bulk) BindAllColumns(ctx context.Context) error {
	if b.bound {
		return nil
	}
	err := b.call(ctx, "Columns", func() (err error) {
		b.metadata, err = b.cp.Columns(ctx)
		return err
	})
	if err != nil {
		return err
	}
	b.bulkColumns = b.bulkColumns[:0]
	if len(b.columnsName) == 0 {
		for i, m := range b.metadata {
			b.bulkColumns = append(b.bulkColumns, bulkColumn{desc: m, index: i + 1})
		}
	}
	for _, colname := range b.columnsName {
		found := false
		for i, m := range b.metadata {
			if strings.EqualFold(m.Name, colname) {
				b.bulkColumns = append(b.bulkColumns, bulkColumn{desc: m, index: i + 1})
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("odbc: column %s does not exist in destination table %s", Quoter{}.ID(colname), b.tablename)
		}
	}

	for i := range b.bulkColumns {
		col := &b.bulkColumns[i]
		if err = b.bindColumn(ctx, col); err != nil {
			return err
		}
		b.dlogf(ctx, "bulk column %s bound as %s", col.desc.Name, col.b)
	}
	b.bound = true
	b.c.log.logf(ctx, odbcdsn.LogMessages, "bulk copy for %s", b.InsertSQL())
	return nil
}

// InsertSQL returns the parameterized INSERT equivalent to the bound
// columns.
func (b *Bulk) InsertSQL() string {
	names := make([]string, len(b.bulkColumns))
	for i, col := range b.bulkColumns {
		names[i] = col.desc.Name
	}
	return InsertSQL(b.tablename, names...)
}

func (b *Bulk) bindColumn(ctx context.Context, col *bulkColumn) error {
	d := col.desc
	ct := b.c.bulkCType(d)
	bd := &Binding{
		Position:   col.index,
		SQLType:    d.SQLType,
		CType:      ct,
		ColumnSize: d.ColumnSize,
		Precision:  d.ColumnSize,
		Scale:      d.DecimalDigits,
		Nullable:   d.Nullable,
		Wide:       ct == sqltype.CWChar,
	}
	switch ct {
	case sqltype.CSSTime2:
		bd.tick = bulkTimeTick
		if bd.Scale == 0 {
			bd.Scale = extendedTimeDigits
		}
	case sqltype.CNumeric:
		if bd.Precision < 1 {
			bd.Precision = 38
		}
	}
	size := ct.Size()
	if size == 0 {
		unit := 1
		if bd.Wide {
			unit = 2
		}
		size = min(max(d.ColumnSize*unit, unit), initialReadSize)
	}
	bd.ElementSize = size
	buf, err := newScratchBuffer(size, b.c.cfg.MaxBuffer)
	if err != nil {
		return err
	}
	bd.buf = buf
	putInd(bd.indicator(), sqltype.NullData)
	col.b = bd
	return b.call(ctx, "Bind", func() error {
		return b.cp.Bind(ctx, col.index, BulkBinding{
			SQLType: bd.SQLType,
			CType:   bd.CType,
			Data:    bd.data(),
			Ind:     bd.indicator(),
		})
	})
}

// FillCell writes v into the scratch buffer of the column at the 0-based
// index col of the selected columns, rebinding the column when its buffer
// moved.
func (b *Bulk) FillCell(ctx context.Context, v interface{}, col int) error {
	if col < 0 || col >= len(b.bulkColumns) {
		return fmt.Errorf("odbc: bulk column %d out of range", col)
	}
	v, err := normalize(v)
	if err != nil {
		return err
	}
	bc := &b.bulkColumns[col]
	moved, err := bc.b.store(b.c, v)
	if err != nil {
		return err
	}
	if moved {
		return b.RebindColumn(ctx, col)
	}
	return nil
}

// RebindColumn registers the current scratch buffer of a column after it
// grew.
func (b *Bulk) RebindColumn(ctx context.Context, col int) error {
	bc := &b.bulkColumns[col]
	b.dlogf(ctx, "bulk column %s rebound at %d bytes", bc.desc.Name, len(bc.b.data()))
	return b.call(ctx, "Rebind", func() error {
		return b.cp.Rebind(ctx, bc.index, bc.b.data())
	})
}

// AddRow fills every selected column and sends the row.
func (b *Bulk) AddRow(ctx context.Context, row []interface{}) error {
	if err := b.BindAllColumns(ctx); err != nil {
		return err
	}
	if len(row) != len(b.bulkColumns) {
		return fmt.Errorf("odbc: row does not have the same number of columns as the destination table %s: %d, %d", b.tablename, len(row), len(b.bulkColumns))
	}
	for i, v := range row {
		if err := b.FillCell(ctx, v, i); err != nil {
			return fmt.Errorf("odbc: bulk insert into %s: %w", b.tablename, paramError(b.bulkColumns[i].index, b.numRows, err))
		}
	}
	if b.c.log.enabled(odbcdsn.LogRows) {
		b.c.log.logf(ctx, odbcdsn.LogRows, "bulk row %d: %s", b.numRows, quoteRow(row))
	}
	err := b.call(ctx, "SendRow", func() error { return b.cp.SendRow(ctx) })
	if err != nil {
		return fmt.Errorf("odbc: bulk insert into %s, row %d: %w", b.tablename, b.numRows, err)
	}
	b.numRows++
	bulkRows.Inc()
	return nil
}

// AddRows calls AddRow for every row, stopping at the first failure.
func (b *Bulk) AddRows(ctx context.Context, rows [][]interface{}) error {
	for _, row := range rows {
		if err := b.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// Done completes the insert and returns the number of rows copied. The
// scratch buffers are released.
func (b *Bulk) Done(ctx context.Context) (rowcount int64, err error) {
	defer func() {
		for _, col := range b.bulkColumns {
			if col.b != nil {
				col.b.release()
			}
		}
		b.bulkColumns = nil
		b.bound = false
	}()
	if !b.bound {
		return 0, nil
	}
	err = b.call(ctx, "Done", func() (err error) {
		rowcount, err = b.cp.Done(ctx)
		return err
	})
	b.dlogf(ctx, "bulk insert into %s: %d rows sent, %d copied", b.tablename, b.numRows, rowcount)
	return rowcount, err
}

package odbc

import (
	"context"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
)

// Transport is the connection level collaborator. Closed may be called from
// any goroutine.
type Transport interface {
	Closed() bool
}

// BulkLoader is implemented by transports that expose a bulk row insert
// interface.
type BulkLoader interface {
	LoadBulk(ctx context.Context) (BulkCopier, error)
}

// ParamBinding registers caller memory for one parameter. Data and Ind stay
// owned by the engine; the transport reads them when the statement executes.
// Ind holds little-endian int64 length indicators. For parameter arrays Data
// and Ind address the first row and successive rows follow at the stride
// given to SetParamArray.
type ParamBinding struct {
	Position      int
	SQLType       sqltype.ID
	CType         sqltype.CType
	ColumnSize    int
	DecimalDigits int
	Data          []byte
	BufferLength  int
	Ind           []byte
	// Token identifies a deferred parameter in DataRequest. Zero when the
	// value is bound inline.
	Token int
	// TypeName is the table type of a table-valued parameter.
	TypeName string
}

// DataRequest names the deferred value the transport wants next.
type DataRequest struct {
	Token int
	// Row is the parameter array row, 0 outside array execution.
	Row int
}

// ParamDescription is what the transport knows about a parameter marker.
type ParamDescription struct {
	SQLType       sqltype.ID
	ColumnSize    int
	DecimalDigits int
	Nullable      bool
}

// ColumnDescription describes a result or bulk destination column.
type ColumnDescription struct {
	Name          string
	SQLType       sqltype.ID
	ColumnSize    int
	DecimalDigits int
	Nullable      bool
}

// StmtHandle is the statement level collaborator. Calls may block; a
// cancelled context or a concurrent cancel makes the in-flight call fail.
type StmtHandle interface {
	// DescribeParam returns ErrNotSupported when the transport cannot
	// describe parameters.
	DescribeParam(ctx context.Context, position int) (ParamDescription, error)
	BindParameter(ctx context.Context, b ParamBinding) error
	// SetParamArray sets the number of parameter rows and the row stride
	// in bytes. rows == 1 with stride 0 restores single row binding.
	SetParamArray(ctx context.Context, rows, stride int) error
	// Execute runs the prepared statement. needData reports that deferred
	// parameters must be sent through ParamData and PutData.
	Execute(ctx context.Context) (needData bool, err error)
	// ParamData completes the previous deferred value and reports the next
	// one. needData is false once the statement has completed.
	ParamData(ctx context.Context) (req DataRequest, needData bool, err error)
	// PutData sends a piece of the current deferred value. For table-valued
	// parameters data is nil and ind is the number of rows made available,
	// 0 ending the table.
	PutData(ctx context.Context, data []byte, ind int64) error
	// SetParamFocus directs following BindParameter calls at the columns of
	// a table-valued parameter; 0 restores normal parameters.
	SetParamFocus(ctx context.Context, position int) error
	RowCount(ctx context.Context) (int64, error)
	NumResultCols(ctx context.Context) (int, error)
	DescribeColumn(ctx context.Context, column int) (ColumnDescription, error)
	// GetData copies part of a column of the current row into buf, without
	// a terminator. n is the number of bytes written. ind is the number of
	// bytes that were available before the call, NullData or NoTotal. more
	// reports that data remains for a following call.
	GetData(ctx context.Context, column int, ctype sqltype.CType, buf []byte) (n int, ind int64, more bool, err error)
	ResetParams(ctx context.Context) error
}

// BulkBinding registers the scratch memory of one destination column.
type BulkBinding struct {
	SQLType sqltype.ID
	CType   sqltype.CType
	Data    []byte
	Ind     []byte
}

// BulkCopier is a row-at-a-time bulk insert interface. Bound memory is read
// on every SendRow; Rebind moves a column to new memory.
type BulkCopier interface {
	Init(ctx context.Context, table string) error
	Columns(ctx context.Context) ([]ColumnDescription, error)
	Bind(ctx context.Context, column int, b BulkBinding) error
	Rebind(ctx context.Context, column int, data []byte) error
	SendRow(ctx context.Context) error
	Done(ctx context.Context) (int64, error)
}

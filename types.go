package odbc

import (
	"time"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
)

// VarChar parameters are always sent as narrow character data, whatever
// the text channel policy.
type VarChar string

// DateTimeOffset encodes parameters to SS_TIMESTAMPOFFSET, preserving the
// UTC offset.
type DateTimeOffset time.Time

// NullBinary is a NULL for a binary column. A plain nil is sent as
// character NULL, which some servers refuse to convert to binary.
type NullBinary struct{}

// TypeOverride is a caller supplied hint for one parameter position. A zero
// SQLType leaves the wire type to inference and only applies the size.
type TypeOverride struct {
	SQLType       sqltype.ID
	ColumnSize    int
	DecimalDigits int
}

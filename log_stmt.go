package odbc

import (
	"context"
	"encoding/hex"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
)

// stmtLogger traces the calls made on a statement handle and dumps the
// data moved by PutData and GetData.
type stmtLogger struct {
	StmtHandle
	log                   flagLogger
	readCount, writeCount int
}

var _ StmtHandle = &stmtLogger{}

func newStmtLogger(h StmtHandle, log flagLogger) StmtHandle {
	return &stmtLogger{StmtHandle: h, log: log}
}

func (sl *stmtLogger) BindParameter(ctx context.Context, b ParamBinding) error {
	sl.log.logf(ctx, odbcdsn.LogDebug, "BindParameter %d sql=%d c=%d size=%d digits=%d buflen=%d token=%d",
		b.Position, b.SQLType, b.CType, b.ColumnSize, b.DecimalDigits, b.BufferLength, b.Token)
	return sl.StmtHandle.BindParameter(ctx, b)
}

func (sl *stmtLogger) SetParamArray(ctx context.Context, rows, stride int) error {
	sl.log.logf(ctx, odbcdsn.LogDebug, "SetParamArray rows=%d stride=%d", rows, stride)
	return sl.StmtHandle.SetParamArray(ctx, rows, stride)
}

func (sl *stmtLogger) ParamData(ctx context.Context) (DataRequest, bool, error) {
	req, needData, err := sl.StmtHandle.ParamData(ctx)
	if needData {
		sl.log.logf(ctx, odbcdsn.LogDebug, "ParamData token=%d row=%d", req.Token, req.Row)
	}
	return req, needData, err
}

func (sl *stmtLogger) PutData(ctx context.Context, data []byte, ind int64) error {
	err := sl.StmtHandle.PutData(ctx, data, ind)
	if len(data) > 0 {
		sl.log.logf(ctx, odbcdsn.LogDebug, "W %d\n%s", sl.writeCount, hex.Dump(data))
		sl.writeCount += len(data)
	} else {
		sl.log.logf(ctx, odbcdsn.LogDebug, "W ind=%d", ind)
	}
	return err
}

func (sl *stmtLogger) GetData(ctx context.Context, column int, ctype sqltype.CType, buf []byte) (int, int64, bool, error) {
	n, ind, more, err := sl.StmtHandle.GetData(ctx, column, ctype, buf)
	if n > 0 && n <= len(buf) {
		sl.log.logf(ctx, odbcdsn.LogDebug, "R %d column %d ind=%d\n%s", sl.readCount, column, ind, hex.Dump(buf[:n]))
		sl.readCount += n
	}
	return n, ind, more, err
}

// Package odbc marshals Go values to and from the fixed-layout buffers of
// an ODBC style call-level interface.
//
// Parameters are inferred into a wire type and a transfer type, encoded
// into scratch buffers and bound through a StmtHandle. Values too large to
// bind inline are streamed after Execute in chunks, and result columns of
// unknown length are read back in growing chunks. Multi-row execution uses
// parameter arrays, and Bulk loads rows through a transport's bulk copy
// interface.
//
// The transport is supplied by the caller through the Transport,
// StmtHandle and BulkCopier interfaces. Connection attributes are parsed by
// the odbcdsn package:
//
//	cfg, err := odbcdsn.Parse("maxvarchar=8000;encoding=utf-16le;ctype=wchar;log=1")
//	conn, err := odbc.NewConn(transport, cfg)
//	stmt := conn.NewStatement(handle)
//	n, err := stmt.Exec(ctx, 1, "text", civil.DateOf(time.Now()))
package odbc

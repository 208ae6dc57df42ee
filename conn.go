package odbc

import (
	"context"
	"errors"
	"sync"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
)

// Conn holds the connection scoped marshaling state: limits, text channel
// codecs and logging. Statements created from a Conn must not be used
// concurrently; Closed on the transport may be observed from any goroutine.
type Conn struct {
	t   Transport
	cfg odbcdsn.Config
	log flagLogger

	// text encodes string parameters, narrow and wide decode columns and
	// encode data forced to one width.
	text   *textCodec
	narrow *textCodec
	wide   *textCodec

	mu   sync.Mutex
	bulk BulkCopier
}

// NewConn validates the text channel policies of cfg and returns a Conn
// marshaling over t.
func NewConn(t Transport, cfg odbcdsn.Config) (*Conn, error) {
	c := &Conn{t: t, cfg: cfg}
	var err error
	if c.text, err = newTextCodec(cfg.Encodings.Text); err != nil {
		return nil, err
	}
	if c.narrow, err = newTextCodec(cfg.Encodings.Char); err != nil {
		return nil, err
	}
	if c.narrow.wide() {
		return nil, errors.New("odbc: the char decoding must use a narrow transfer type")
	}
	if c.wide, err = newTextCodec(cfg.Encodings.WChar); err != nil {
		return nil, err
	}
	if c.cfg.ChunkSize < 2 {
		c.cfg.ChunkSize = odbcdsn.DefaultChunkSize
	}
	if c.cfg.MaxBuffer <= 0 {
		c.cfg.MaxBuffer = odbcdsn.DefaultMaxBuffer
	}
	c.log = flagLogger{out: optionalCtxLogger{}, flags: cfg.LogFlags}
	return c, nil
}

// SetLogger routes log output to logger.
func (c *Conn) SetLogger(logger Logger) {
	c.SetContextLogger(loggerAdapter{logger: logger})
}

// SetContextLogger routes log output to ctxLogger.
func (c *Conn) SetContextLogger(ctxLogger ContextLogger) {
	c.log.out = optionalCtxLogger{ctxLogger: ctxLogger}
}

// Config returns the effective configuration.
func (c *Conn) Config() odbcdsn.Config {
	return c.cfg
}

// textCodecFor returns the codec used to encode data sent with ctype. The
// text channel wins when it uses ctype.
func (c *Conn) textCodecFor(ctype sqltype.CType) *textCodec {
	switch {
	case c.text.ctype == ctype:
		return c.text
	case ctype == sqltype.CChar:
		return c.narrow
	}
	return c.wide
}

// Statement marshals parameters and columns for one statement handle.
type Statement struct {
	c *Conn
	h StmtHandle

	params    []*Binding
	overrides []TypeOverride
	hints     map[int]*ParamDescription
	// set once the transport reports it cannot describe parameters
	noDescribe bool
	tokens     map[int]*deferredToken
	nextToken  int
	// set while a parameter array size other than 1 is bound
	arrayBound bool
	cols       map[int]*ColumnDescription
}

// NewStatement wraps h. With debug logging enabled every transport call is
// traced.
func (c *Conn) NewStatement(h StmtHandle) *Statement {
	if c.log.enabled(odbcdsn.LogDebug) {
		h = newStmtLogger(h, c.log)
	}
	return &Statement{
		c:      c,
		h:      h,
		hints:  make(map[int]*ParamDescription),
		tokens: make(map[int]*deferredToken),
		cols:   make(map[int]*ColumnDescription),
	}
}

// call runs one transport call, translating a close of the connection that
// happened around it into ErrConnectionClosed.
func (s *Statement) call(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.c.t.Closed() {
		return &CallError{Call: name, Err: ErrConnectionClosed}
	}
	err := fn()
	if s.c.t.Closed() {
		err = ErrConnectionClosed
	}
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotSupported) {
		callErrors.Inc()
		s.c.log.logf(ctx, odbcdsn.LogErrors, "%s failed: %v", name, err)
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return err
	}
	return &CallError{Call: name, Err: err}
}

// cleanupContext keeps cleanup calls running after ctx is cancelled.
func cleanupContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

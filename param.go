package odbc

import (
	"context"
	"errors"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
)

// SetInputSizes sets per position overrides used before any other hint.
// Entries with a zero SQLType only set the column size.
func (s *Statement) SetInputSizes(sizes []TypeOverride) {
	s.overrides = append([]TypeOverride(nil), sizes...)
}

func (s *Statement) override(pos int) (TypeOverride, bool) {
	if pos < 1 || pos > len(s.overrides) {
		return TypeOverride{}, false
	}
	return s.overrides[pos-1], true
}

// hint returns the wire type hint for pos, or nil. Descriptions are cached
// for the life of the statement.
func (s *Statement) hint(ctx context.Context, pos int) (*ParamDescription, error) {
	if o, ok := s.override(pos); ok && o.SQLType != sqltype.Unknown {
		return &ParamDescription{
			SQLType:       o.SQLType,
			ColumnSize:    o.ColumnSize,
			DecimalDigits: o.DecimalDigits,
			Nullable:      true,
		}, nil
	}
	if s.noDescribe {
		return nil, nil
	}
	if h, ok := s.hints[pos]; ok {
		return h, nil
	}
	var d ParamDescription
	err := s.call(ctx, "DescribeParam", func() (err error) {
		d, err = s.h.DescribeParam(ctx, pos)
		return err
	})
	switch {
	case err == nil:
		if d.SQLType == sqltype.Unknown {
			s.hints[pos] = nil
			return nil, nil
		}
		s.hints[pos] = &d
		return &d, nil
	case errors.Is(err, ErrNotSupported):
		s.noDescribe = true
		return nil, nil
	case errors.Is(err, ErrConnectionClosed), ctx.Err() != nil:
		return nil, err
	}
	s.c.log.logf(ctx, odbcdsn.LogMessages, "parameter %d: no description, using the value type: %v", pos, err)
	s.hints[pos] = nil
	return nil, nil
}

func (s *Statement) applySize(b *Binding) {
	o, ok := s.override(b.Position)
	if !ok || o.SQLType != sqltype.Unknown {
		return
	}
	if o.ColumnSize > 0 {
		b.ColumnSize = o.ColumnSize
	}
	if o.DecimalDigits > 0 {
		b.Scale = o.DecimalDigits
	}
}

// ParamSetup infers and binds every value. On failure all bindings made so
// far are released and the error names the failing position.
func (s *Statement) ParamSetup(ctx context.Context, values []interface{}) error {
	if err := s.FreeParameterData(ctx); err != nil {
		return err
	}
	s.params = make([]*Binding, 0, len(values))
	for i, raw := range values {
		pos := i + 1
		if err := s.setupOne(ctx, pos, raw); err != nil {
			err = paramError(pos, -1, err)
			return appendErr(err, s.FreeParameterData(cleanupContext(ctx)))
		}
	}
	return nil
}

func (s *Statement) setupOne(ctx context.Context, pos int, raw interface{}) error {
	v, err := normalize(raw)
	if err != nil {
		return err
	}
	hint, err := s.hint(ctx, pos)
	if err != nil {
		return err
	}
	b, err := s.c.newBinding(pos, v, hint, false)
	if err != nil {
		return err
	}
	s.applySize(b)
	s.params = append(s.params, b)
	return s.BindAndConvert(ctx, pos, v, b)
}

func paramBinding(b *Binding) ParamBinding {
	return ParamBinding{
		Position:      b.Position,
		SQLType:       b.SQLType,
		CType:         b.CType,
		ColumnSize:    b.ColumnSize,
		DecimalDigits: b.Scale,
	}
}

// BindAndConvert encodes v as described by b and registers it with the
// transport: inline values in the scratch buffer, NULL through the
// indicator, deferred values through a token answered after Execute.
func (s *Statement) BindAndConvert(ctx context.Context, pos int, v interface{}, b *Binding) error {
	pb := paramBinding(b)
	pb.Position = pos
	ind := b.indicator()
	pb.Ind = ind
	switch {
	case b.null:
		putInd(ind, sqltype.NullData)
	case b.Deferred():
		tok := s.newToken(b, []interface{}{v})
		pb.Token = tok.id
		if tvp, ok := v.(TVP); ok {
			pb.TypeName = tvp.TypeName
			putInd(ind, sqltype.DataAtExec)
			break
		}
		if !s.c.cfg.Limits.NeedLongDataLen {
			putInd(ind, sqltype.DataAtExec)
			break
		}
		data, err := s.c.encodeValue(b, v)
		if err != nil {
			return err
		}
		putInd(ind, sqltype.LenDataAtExec(len(data)))
	default:
		if _, err := b.store(s.c, v); err != nil {
			return err
		}
		pb.Data = b.data()
		pb.BufferLength = len(pb.Data)
	}
	s.c.log.logf(ctx, odbcdsn.LogParams, "bind %s", b)
	return s.call(ctx, "BindParameter", func() error {
		return s.h.BindParameter(ctx, pb)
	})
}

// FreeParameterData releases the scratch buffers and tokens of the bound
// parameters and resets the transport bindings. Safe to call repeatedly.
func (s *Statement) FreeParameterData(ctx context.Context) error {
	var err error
	if len(s.params) > 0 || len(s.tokens) > 0 || s.arrayBound {
		err = s.call(ctx, "ResetParams", func() error {
			return s.h.ResetParams(ctx)
		})
	}
	if s.arrayBound {
		err = appendErr(err, s.call(ctx, "SetParamArray", func() error {
			return s.h.SetParamArray(ctx, 1, 0)
		}))
		s.arrayBound = false
	}
	for _, b := range s.params {
		b.release()
	}
	s.params = nil
	s.tokens = make(map[int]*deferredToken)
	return err
}

// FreeParameterInfo drops the cached parameter descriptions.
func (s *Statement) FreeParameterInfo() {
	s.hints = make(map[int]*ParamDescription)
	s.noDescribe = false
}

// Exec binds values, executes the statement, sends deferred values and
// returns the affected row count. Bindings are released on every path.
func (s *Statement) Exec(ctx context.Context, values ...interface{}) (n int64, err error) {
	if err = s.ParamSetup(ctx, values); err != nil {
		return 0, err
	}
	defer func() {
		err = appendErr(err, s.FreeParameterData(cleanupContext(ctx)))
	}()
	return s.execute(ctx)
}

func (s *Statement) execute(ctx context.Context) (int64, error) {
	s.cols = make(map[int]*ColumnDescription)
	var needData bool
	err := s.call(ctx, "Execute", func() (err error) {
		needData, err = s.h.Execute(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if needData {
		if err = s.sendDeferred(ctx); err != nil {
			return 0, err
		}
	}
	var n int64
	err = s.call(ctx, "RowCount", func() (err error) {
		n, err = s.h.RowCount(ctx)
		return err
	})
	return n, err
}

// ExecMany executes the statement once per row. With fast execution
// enabled the rows are sent as parameter arrays.
func (s *Statement) ExecMany(ctx context.Context, rows [][]interface{}) (int64, error) {
	if s.c.cfg.FastExecMany {
		return s.ExecuteMulti(ctx, rows)
	}
	var total int64
	for i, row := range rows {
		n, err := s.Exec(ctx, row...)
		if err != nil {
			var pe *ParamError
			if errors.As(err, &pe) && pe.Row < 0 {
				pe.Row = i
			}
			return total, err
		}
		if n > 0 {
			total += n
		}
	}
	return total, nil
}

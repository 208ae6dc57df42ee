package odbc

import (
	"fmt"
	"strings"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
	"github.com/mkleehammer/pyodbc-sub000/odbcdsn"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// textCodec converts between Go strings and the bytes of one text channel.
type textCodec struct {
	name  string
	ctype sqltype.CType
	// nil for utf-8, which needs no conversion
	enc encoding.Encoding
}

func newTextCodec(e odbcdsn.Encoding) (*textCodec, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(e.Name))
	if err != nil {
		return nil, fmt.Errorf("odbc: unknown text encoding %q: %w", e.Name, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return nil, fmt.Errorf("odbc: unknown text encoding %q: %w", e.Name, err)
	}
	tc := &textCodec{name: name, ctype: e.CType}
	switch e.CType {
	case sqltype.CWChar:
		if name != "utf-16le" {
			return nil, fmt.Errorf("odbc: encoding %s cannot be used for wide characters", name)
		}
	case sqltype.CChar:
	default:
		return nil, fmt.Errorf("odbc: invalid text transfer type %d", e.CType)
	}
	if name != "utf-8" {
		tc.enc = enc
	}
	return tc, nil
}

func (tc *textCodec) wide() bool {
	return tc.ctype == sqltype.CWChar
}

// unit is the byte width of one character position.
func (tc *textCodec) unit() int {
	if tc.wide() {
		return 2
	}
	return 1
}

func (tc *textCodec) encode(s string) ([]byte, error) {
	if tc.enc == nil {
		return []byte(s), nil
	}
	b, err := tc.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("odbc: cannot encode text as %s: %w", tc.name, err)
	}
	return b, nil
}

func (tc *textCodec) decode(b []byte) (string, error) {
	if tc.enc == nil {
		return string(b), nil
	}
	s, err := tc.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("odbc: cannot decode %s text: %w", tc.name, err)
	}
	return string(s), nil
}

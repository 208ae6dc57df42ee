package odbc

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/golang-sql/civil"
	"github.com/golang-sql/sqlexp"
	"github.com/google/uuid"
)

// ParseInsertTableName returns the destination table of an INSERT
// statement exactly as written, including any brackets or quotes. ok is
// false when sql does not start with INSERT followed by a table name.
//
// An optional TOP (n) [PERCENT] clause and the optional INTO keyword are
// skipped.
func ParseInsertTableName(sql string) (table string, ok bool) {
	p := &sqlScanner{s: sql}
	if !p.keyword("INSERT") {
		return "", false
	}
	if p.keyword("TOP") {
		p.space()
		if !p.parens() {
			return "", false
		}
		p.keyword("PERCENT")
	}
	p.keyword("INTO")
	p.space()
	start := p.pos
	for {
		if !p.identifier() {
			return "", false
		}
		if p.pos < len(p.s) && p.s[p.pos] == '.' {
			p.pos++
			continue
		}
		break
	}
	return p.s[start:p.pos], true
}

type sqlScanner struct {
	s   string
	pos int
}

func (p *sqlScanner) space() {
	for p.pos < len(p.s) && unicode.IsSpace(rune(p.s[p.pos])) {
		p.pos++
	}
}

// keyword consumes kw when it is the next word.
func (p *sqlScanner) keyword(kw string) bool {
	p.space()
	end := p.pos + len(kw)
	if end > len(p.s) || !strings.EqualFold(p.s[p.pos:end], kw) {
		return false
	}
	if end < len(p.s) && isBareIdentChar(p.s[end]) {
		return false
	}
	p.pos = end
	return true
}

// parens consumes a balanced parenthesized group.
func (p *sqlScanner) parens() bool {
	if p.pos >= len(p.s) || p.s[p.pos] != '(' {
		return false
	}
	depth := 0
	for ; p.pos < len(p.s); p.pos++ {
		switch p.s[p.pos] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				p.pos++
				return true
			}
		}
	}
	return false
}

// identifier consumes one part of a multipart name: [bracketed],
// "quoted" or bare.
func (p *sqlScanner) identifier() bool {
	if p.pos >= len(p.s) {
		return false
	}
	switch p.s[p.pos] {
	case '[':
		return p.delimited(']')
	case '"':
		return p.delimited('"')
	}
	start := p.pos
	for p.pos < len(p.s) && isBareIdentChar(p.s[p.pos]) {
		p.pos++
	}
	return p.pos > start
}

// delimited consumes an identifier enclosed up to close, where a doubled
// close character is part of the name.
func (p *sqlScanner) delimited(close byte) bool {
	for i := p.pos + 1; i < len(p.s); i++ {
		if p.s[i] != close {
			continue
		}
		if i+1 < len(p.s) && p.s[i+1] == close {
			i++
			continue
		}
		if i == p.pos+1 {
			return false
		}
		p.pos = i + 1
		return true
	}
	return false
}

func isBareIdentChar(c byte) bool {
	return c == '_' || c == '@' || c == '#' || c == '$' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// Quoter quotes identifiers with brackets and values as SQL literals.
type Quoter struct{}

var _ sqlexp.Quoter = Quoter{}

// ID quotes a single identifier part.
func (Quoter) ID(name string) string {
	return "[" + strings.Replace(name, "]", "]]", -1) + "]"
}

// Value quotes a value as a literal. Types without a literal form are
// quoted as their default text.
func (Quoter) Value(v interface{}) string {
	switch v := v.(type) {
	case nil, NullBinary:
		return "NULL"
	case NullGUID:
		if !v.Valid {
			return "NULL"
		}
		return "'" + v.GUID.String() + "'"
	case uuid.UUID:
		return "'" + v.String() + "'"
	case string:
		return quoteText("N'", v)
	case VarChar:
		return quoteText("'", string(v))
	case []byte:
		return "0x" + hex.EncodeToString(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return "'" + v.Format("2006-01-02T15:04:05.9999999") + "'"
	case DateTimeOffset:
		return "'" + time.Time(v).Format("2006-01-02T15:04:05.9999999-07:00") + "'"
	case civil.Date, civil.Time, civil.DateTime:
		return "'" + v.(fmt.Stringer).String() + "'"
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	if n, ok := asInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	if d, ok := asDecimal(v); ok {
		return d.Text('f')
	}
	return quoteText("N'", fmt.Sprint(v))
}

func quoteText(open, s string) string {
	return open + strings.Replace(s, "'", "''", -1) + "'"
}

// quoteRow renders row as a parenthesized literal list for logs.
func quoteRow(row []interface{}) string {
	var q Quoter
	parts := make([]string, len(row))
	for i, v := range row {
		if nv, err := normalize(v); err == nil {
			v = nv
		}
		parts[i] = q.Value(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// InsertSQL builds a parameterized INSERT for columns of table. table is
// used as written; columns are quoted.
func InsertSQL(table string, columns ...string) string {
	var q Quoter
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	if len(columns) > 0 {
		b.WriteString(" (")
		for i, col := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(q.ID(col))
		}
		b.WriteString(")")
	}
	b.WriteString(" VALUES (")
	b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", max(len(columns), 1)), ", "))
	b.WriteString(")")
	return b.String()
}

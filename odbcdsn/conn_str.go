// Package odbcdsn parses the connection attributes that the marshaling
// engine consumes: column limits, text channel encodings, logging flags
// and transport quirks.
package odbcdsn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
)

type Log uint64

const (
	LogErrors      Log = 1
	LogMessages    Log = 2
	LogRows        Log = 4
	LogSQL         Log = 8
	LogParams      Log = 16
	LogTransaction Log = 32
	LogDebug       Log = 64
)

// Defaults used when a key is absent from the attribute string.
const (
	DefaultMaxVarchar        = 8000
	DefaultMaxWVarchar       = 4000
	DefaultMaxBinary         = 8000
	DefaultDatetimePrecision = 3
	DefaultChunkSize         = 4096
	DefaultMaxBuffer         = 1 << 30
)

// Limits are the scalar limits reported by the connection.
type Limits struct {
	// MaxVarchar is the longest narrow character value bound inline, in bytes.
	MaxVarchar int
	// MaxWVarchar is the longest wide character value bound inline, in characters.
	MaxWVarchar int
	// MaxBinary is the longest binary value bound inline, in bytes.
	MaxBinary int
	// NeedLongDataLen is set when the transport wants the total byte count
	// of a deferred value at bind time.
	NeedLongDataLen bool
	// DatetimePrecision is the number of fractional second digits kept
	// when sending timestamps.
	DatetimePrecision int
}

// Encoding is the policy for one text channel.
type Encoding struct {
	// Name is resolved with golang.org/x/text/encoding/htmlindex.
	Name  string
	CType sqltype.CType
}

// Encodings holds the policies for the three text channels.
type Encodings struct {
	// Text is used for string parameters.
	Text Encoding
	// Char is used to read narrow character columns.
	Char Encoding
	// WChar is used to read wide character columns.
	WChar Encoding
}

type Config struct {
	Limits    Limits
	Encodings Encodings

	// DecimalAsString sends decimals as formatted character data instead
	// of the packed numeric struct.
	DecimalAsString bool
	// NegativeLengthIsNull treats a negative length returned by a chunked
	// read as NULL. Some drivers report NULL this way.
	NegativeLengthIsNull bool
	// ChunkSize is the largest piece of deferred data sent per call.
	ChunkSize int
	// MaxBuffer bounds a single scratch or batch buffer, in bytes.
	MaxBuffer int
	// FastExecMany selects the batched array binder for multi-row execution.
	FastExecMany bool

	LogFlags Log

	// Parameters not consumed by this package.
	Parameters map[string]string
}

// Default returns the configuration used when no attributes are given.
func Default() Config {
	return Config{
		Limits: Limits{
			MaxVarchar:        DefaultMaxVarchar,
			MaxWVarchar:       DefaultMaxWVarchar,
			MaxBinary:         DefaultMaxBinary,
			DatetimePrecision: DefaultDatetimePrecision,
		},
		Encodings: Encodings{
			Text:  Encoding{Name: "utf-16le", CType: sqltype.CWChar},
			Char:  Encoding{Name: "utf-8", CType: sqltype.CChar},
			WChar: Encoding{Name: "utf-16le", CType: sqltype.CWChar},
		},
		NegativeLengthIsNull: true,
		ChunkSize:            DefaultChunkSize,
		MaxBuffer:            DefaultMaxBuffer,
		Parameters:           map[string]string{},
	}
}

// Parse reads a "key=value;key=value" attribute string. Keys are case
// insensitive and unknown keys are kept in Config.Parameters.
func Parse(dsn string) (Config, error) {
	p := Default()
	params := splitConnectionString(dsn)

	var err error
	intParam := func(name string, dst *int, min int) error {
		s, ok := params[name]
		if !ok {
			return nil
		}
		delete(params, name)
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %s", name, s, err.Error())
		}
		if v < min {
			return fmt.Errorf("invalid %s '%s': must be at least %d", name, s, min)
		}
		*dst = v
		return nil
	}
	boolParam := func(name string, dst *bool) error {
		s, ok := params[name]
		if !ok {
			return nil
		}
		delete(params, name)
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %s", name, s, err.Error())
		}
		*dst = v
		return nil
	}

	for _, ip := range []struct {
		name string
		dst  *int
		min  int
	}{
		{"maxvarchar", &p.Limits.MaxVarchar, 1},
		{"maxwvarchar", &p.Limits.MaxWVarchar, 1},
		{"maxbinary", &p.Limits.MaxBinary, 1},
		{"datetimeprecision", &p.Limits.DatetimePrecision, 0},
		{"chunksize", &p.ChunkSize, 2},
		{"maxbuffer", &p.MaxBuffer, 256},
	} {
		if err = intParam(ip.name, ip.dst, ip.min); err != nil {
			return p, err
		}
	}
	if p.Limits.DatetimePrecision > 9 {
		return p, fmt.Errorf("invalid datetimeprecision '%d': must be at most 9", p.Limits.DatetimePrecision)
	}

	for _, bp := range []struct {
		name string
		dst  *bool
	}{
		{"needlongdatalen", &p.Limits.NeedLongDataLen},
		{"decimalasstring", &p.DecimalAsString},
		{"negativelengthisnull", &p.NegativeLengthIsNull},
		{"fastexecmany", &p.FastExecMany},
	} {
		if err = boolParam(bp.name, bp.dst); err != nil {
			return p, err
		}
	}

	if s, ok := params["log"]; ok {
		delete(params, "log")
		flags, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return p, fmt.Errorf("invalid log parameter '%s': %s", s, err.Error())
		}
		p.LogFlags = Log(flags)
	}

	if s, ok := params["encoding"]; ok {
		delete(params, "encoding")
		p.Encodings.Text.Name = s
	}
	if s, ok := params["ctype"]; ok {
		delete(params, "ctype")
		if p.Encodings.Text.CType, err = parseCType(s); err != nil {
			return p, err
		}
	}
	if s, ok := params["decoding"]; ok {
		delete(params, "decoding")
		p.Encodings.Char.Name = s
	}
	if s, ok := params["wdecoding"]; ok {
		delete(params, "wdecoding")
		p.Encodings.WChar.Name = s
	}

	p.Parameters = params
	return p, nil
}

func parseCType(s string) (sqltype.CType, error) {
	switch strings.ToLower(s) {
	case "char", "sql_c_char":
		return sqltype.CChar, nil
	case "wchar", "sql_c_wchar":
		return sqltype.CWChar, nil
	}
	return 0, fmt.Errorf("invalid ctype '%s': must be char or wchar", s)
}

// splitConnectionString splits "key=value;key=value" pairs. Keys are
// lowercased and trimmed; values are trimmed. Empty pairs are skipped.
func splitConnectionString(dsn string) map[string]string {
	res := map[string]string{}
	for _, part := range strings.Split(dsn, ";") {
		if len(strings.TrimSpace(part)) == 0 {
			continue
		}
		lst := strings.SplitN(part, "=", 2)
		name := strings.TrimSpace(strings.ToLower(lst[0]))
		if len(name) == 0 {
			continue
		}
		var value string
		if len(lst) > 1 {
			value = strings.TrimSpace(lst[1])
		}
		res[name] = value
	}
	return res
}

// String renders the non-default settings back into attribute form.
func (p Config) String() string {
	d := Default()
	var parts []string
	add := func(k string, v interface{}) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if p.Limits.MaxVarchar != d.Limits.MaxVarchar {
		add("maxvarchar", p.Limits.MaxVarchar)
	}
	if p.Limits.MaxWVarchar != d.Limits.MaxWVarchar {
		add("maxwvarchar", p.Limits.MaxWVarchar)
	}
	if p.Limits.MaxBinary != d.Limits.MaxBinary {
		add("maxbinary", p.Limits.MaxBinary)
	}
	if p.Limits.NeedLongDataLen {
		add("needlongdatalen", true)
	}
	if p.Limits.DatetimePrecision != d.Limits.DatetimePrecision {
		add("datetimeprecision", p.Limits.DatetimePrecision)
	}
	if p.Encodings.Text.Name != d.Encodings.Text.Name {
		add("encoding", p.Encodings.Text.Name)
	}
	if p.Encodings.Text.CType != d.Encodings.Text.CType {
		if p.Encodings.Text.CType == sqltype.CChar {
			add("ctype", "char")
		} else {
			add("ctype", "wchar")
		}
	}
	if p.Encodings.Char.Name != d.Encodings.Char.Name {
		add("decoding", p.Encodings.Char.Name)
	}
	if p.Encodings.WChar.Name != d.Encodings.WChar.Name {
		add("wdecoding", p.Encodings.WChar.Name)
	}
	if p.DecimalAsString {
		add("decimalasstring", true)
	}
	if !p.NegativeLengthIsNull {
		add("negativelengthisnull", false)
	}
	if p.ChunkSize != d.ChunkSize {
		add("chunksize", p.ChunkSize)
	}
	if p.MaxBuffer != d.MaxBuffer {
		add("maxbuffer", p.MaxBuffer)
	}
	if p.FastExecMany {
		add("fastexecmany", true)
	}
	if p.LogFlags != 0 {
		add("log", uint64(p.LogFlags))
	}
	return strings.Join(parts, ";")
}

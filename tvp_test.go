package odbc

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type testFields struct {
	PBinary       []byte    `tvp:"p_binary"`
	PVarchar      string    `json:"p_varchar"`
	PNvarchar     *string   `json:"p_nvarchar"`
	TimeValue     time.Time `echo:"-"`
	TimeNullValue *time.Time
	skipped       int
}

func TestTVP_check(t *testing.T) {
	type fields struct {
		TVPName  string
		TVPValue interface{}
	}

	var nullSlice []*string
	var nullRows [][]interface{}

	tests := []struct {
		name    string
		fields  fields
		wantErr error
	}{
		{
			name:    "TypeName is empty",
			wantErr: errorEmptyTVPTypeName,
		},
		{
			name: "Value is nil",
			fields: fields{
				TVPName: "Test",
			},
			wantErr: errorTypeSliceIsNil,
		},
		{
			name: "Value isn't slice",
			fields: fields{
				TVPName:  "Test",
				TVPValue: 12345,
			},
			wantErr: errorTypeSlice,
		},
		{
			name: "Value is a nil slice",
			fields: fields{
				TVPName:  "Test",
				TVPValue: nullSlice,
			},
			wantErr: errorTypeSliceIsNil,
		},
		{
			name: "Rows are a nil slice",
			fields: fields{
				TVPName:  "Test",
				TVPValue: nullRows,
			},
			wantErr: errorTypeSliceIsNil,
		},
		{
			name: "Value isn't a slice of structs",
			fields: fields{
				TVPName:  "Test",
				TVPValue: []*fields{},
			},
			wantErr: errorTypeSlice,
		},
		{
			name: "Value is a slice of structs",
			fields: fields{
				TVPName:  "Test",
				TVPValue: []fields{},
			},
		},
		{
			name: "Value is rows",
			fields: fields{
				TVPName:  "[123].[Test]",
				TVPValue: [][]interface{}{{1, "a"}},
			},
		},
		{
			name: "TVP name has a schema",
			fields: fields{
				TVPName:  "[123].Test",
				TVPValue: []fields{},
			},
		},
		{
			name: "TVP name has too many parts",
			fields: fields{
				TVPName:  "123.[Test].456",
				TVPValue: []fields{},
			},
			wantErr: errorObjectName,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tvp := TVP{
				TypeName: tt.fields.TVPName,
				Value:    tt.fields.TVPValue,
			}
			if err := tvp.check(); !errors.Is(err, tt.wantErr) {
				t.Errorf("TVP.check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTVP_rows(t *testing.T) {
	type customTypeAllFieldsSkipOne struct {
		SkipTest int `tvp:"-"`
	}
	type customTypeAllFieldsSkipMoreOne struct {
		SkipTest  int `tvp:"-"`
		SkipTest1 int `json:"-"`
	}
	type skipWithAnotherTagValue struct {
		SkipTest int `json:"-" tvp:"test"`
	}
	type positioned struct {
		A int    `tvp:"a,3"`
		B string `tvp:"b,1"`
		C bool   `tvp:",2"`
	}
	type partlyPositioned struct {
		A int `tvp:"a,1"`
		B int
	}
	type badPosition struct {
		A int `tvp:"a,x"`
	}

	now := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		value   interface{}
		want    [][]interface{}
		wantErr error
	}{
		{
			name:  "exported fields in declaration order",
			value: []testFields{{PBinary: []byte{1}, PVarchar: "v", TimeValue: now}},
			want:  [][]interface{}{{[]byte{1}, "v", (*string)(nil), now, (*time.Time)(nil)}},
		},
		{
			name:    "all fields are skipped, single field",
			value:   []customTypeAllFieldsSkipOne{{}},
			wantErr: errorSkip,
		},
		{
			name:    "all fields are skipped, > 1 field",
			value:   []customTypeAllFieldsSkipMoreOne{{}},
			wantErr: errorSkip,
		},
		{
			name:  "tvp tag wins over json skip",
			value: []skipWithAnotherTagValue{{SkipTest: 4}},
			want:  [][]interface{}{{4}},
		},
		{
			name:  "fields ordered by position",
			value: []positioned{{A: 1, B: "b", C: true}},
			want:  [][]interface{}{{"b", true, 1}},
		},
		{
			name:    "positions on some fields only",
			value:   []partlyPositioned{{}},
			wantErr: errorTVPTagPositionNumber,
		},
		{
			name:    "position is not a number",
			value:   []badPosition{{}},
			wantErr: errorTvpTagPositionWrong,
		},
		{
			name:  "rows are used as given",
			value: [][]interface{}{{1, nil}, {2, "x"}},
			want:  [][]interface{}{{1, nil}, {2, "x"}},
		},
		{
			name:    "rows of different width",
			value:   [][]interface{}{{1, nil}, {2}},
			wantErr: errorRowWidth,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TVP{TypeName: "Test", Value: tt.value}.rows()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("TVP.rows() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TVP.rows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkipField(t *testing.T) {
	type args struct {
		tvpTagValue    string
		isTvpValue     bool
		jsonTagValue   string
		isJsonTagValue bool
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		{
			name: "Empty tags",
			want: false,
		},
		{
			name: "tvp is skip",
			want: true,
			args: args{
				isTvpValue:  true,
				tvpTagValue: skipTagValue,
			},
		},
		{
			name: "tvp is any",
			want: false,
			args: args{
				isTvpValue:  true,
				tvpTagValue: "tvp",
			},
		},
		{
			name: "Json is skip",
			want: true,
			args: args{
				isJsonTagValue: true,
				jsonTagValue:   skipTagValue,
			},
		},
		{
			name: "Json is any",
			want: false,
			args: args{
				isJsonTagValue: true,
				jsonTagValue:   "any",
			},
		},
		{
			name: "Json is skip tvp is any",
			want: false,
			args: args{
				isJsonTagValue: true,
				jsonTagValue:   skipTagValue,
				isTvpValue:     true,
				tvpTagValue:    "tvp",
			},
		},
		{
			name: "Json is any tvp is skip",
			want: true,
			args: args{
				isJsonTagValue: true,
				jsonTagValue:   "json",
				isTvpValue:     true,
				tvpTagValue:    skipTagValue,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSkipField(tt.args.tvpTagValue, tt.args.isTvpValue, tt.args.jsonTagValue, tt.args.isJsonTagValue); got != tt.want {
				t.Errorf("isSkipField() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_getSchemeAndName(t *testing.T) {
	tests := []struct {
		name    string
		tvpName string
		schema  string
		object  string
		wantErr bool
	}{
		{name: "Empty object name", wantErr: true},
		{name: "Wrong object name", tvpName: "1.2.3", wantErr: true},
		{name: "Schema+name", tvpName: "obj.tvp", schema: "obj", object: "tvp"},
		{name: "Bracketed schema+name", tvpName: "[obj].[tvp]", schema: "obj", object: "tvp"},
		{name: "only name", tvpName: "tvp", object: "tvp"},
		{name: "only bracketed name", tvpName: "[tvp]", object: "tvp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, name, err := getSchemeAndName(tt.tvpName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("getSchemeAndName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if schema != tt.schema {
				t.Errorf("getSchemeAndName() schema = %v, want %v", schema, tt.schema)
			}
			if name != tt.object {
				t.Errorf("getSchemeAndName() name = %v, want %v", name, tt.object)
			}
		})
	}
}

func Test_parseTvpTag(t *testing.T) {
	tests := []struct {
		name     string
		tvpValue string
		want     string
		position uint16
		wantErr  bool
	}{
		{name: "empty value"},
		{name: "only name", tvpValue: "TVP", want: "TVP"},
		{name: "only position", tvpValue: ",1", position: 1},
		{name: "only skip value", tvpValue: "-", want: "-"},
		{name: "skip tag and position", tvpValue: "-,10", want: "-", position: 10},
		{name: "wrong tvp position is string", tvpValue: "-,tsc", wantErr: true},
		{name: "wrong tvp", tvpValue: "-,1,123", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, position, err := parseTvpTag(tt.tvpValue)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTvpTag() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseTvpTag() got = %v, want %v", got, tt.want)
			}
			if position != tt.position {
				t.Errorf("parseTvpTag() position = %v, want %v", position, tt.position)
			}
		})
	}
}

func Test_checkPosition(t *testing.T) {
	tests := []struct {
		name    string
		check   []indexPosition
		ordered bool
		wantErr bool
	}{
		{name: "empty value", wantErr: true},
		{name: "empty slice", check: []indexPosition{}, wantErr: true},
		{name: "Single value", check: []indexPosition{{1, 1}}, ordered: true},
		{name: "2 values", check: []indexPosition{{1, 0}, {2, 0}}},
		{name: "2 values with wrong positions", check: []indexPosition{{1, 0}, {2, 1}}, wantErr: true},
		{name: "2 values with same position", check: []indexPosition{{1, 1}, {2, 1}}, wantErr: true},
		{name: "2 values with a gap", check: []indexPosition{{1, 1}, {2, 3}}, wantErr: true},
		{name: "2 values reversed with a gap", check: []indexPosition{{1, 3}, {2, 1}}, wantErr: true},
		{name: "positions are right", check: []indexPosition{{0, 2}, {2, 1}}, ordered: true},
		{name: "positions are right in order", check: []indexPosition{{0, 1}, {2, 2}}, ordered: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ordered, err := checkPosition(tt.check)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkPosition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ordered != tt.ordered {
				t.Errorf("checkPosition() ordered = %v, want %v", ordered, tt.ordered)
			}
		})
	}
}

func BenchmarkTVP_rows(b *testing.B) {
	type row struct {
		ID    int64
		Name  string
		Price float64
		Seen  *time.Time
	}
	tvp := TVP{TypeName: "Test", Value: make([]row, 100)}
	for i := 0; i < b.N; i++ {
		if _, err := tvp.rows(); err != nil {
			b.Fatal(err)
		}
	}
}

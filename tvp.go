package odbc

import (
	"errors"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

const (
	jsonTag      = "json"
	tvpTag       = "tvp"
	skipTagValue = "-"
	sqlSeparator = "."
)

var (
	errorEmptyTVPTypeName     = errors.New("odbc: TVP TypeName must not be empty")
	errorTypeSlice            = errors.New("odbc: TVP Value must be a slice of structs or of rows")
	errorTypeSliceIsNil       = errors.New("odbc: TVP Value must not be nil")
	errorSkip                 = errors.New("odbc: TVP struct must not skip all fields")
	errorObjectName           = errors.New("odbc: wrong TVP type name")
	errorTvpTagWrong          = errors.New("odbc: tvp tag is wrong")
	errorTvpTagPositionWrong  = errors.New("odbc: tvp tag position is not a number")
	errorTVPTagPositionNumber = errors.New("odbc: all fields must have a tvp position number")
	errorRowWidth             = errors.New("odbc: TVP rows must have the same number of columns")
)

// TVP is a table-valued parameter. Value is a slice of structs, whose
// exported fields are the columns, or a [][]interface{} of rows.
//
// Struct fields can be excluded with a `tvp:"-"` or `json:"-"` tag, and
// reordered with `tvp:"name,position"` where positions start at 1.
type TVP struct {
	// TypeName is the table type, optionally schema qualified.
	TypeName string
	Value    interface{}
}

// the model keeps the link between a struct field and its TVP column
type indexPosition struct {
	fieldIndex  int
	tvpPosition uint16
}

func (tvp TVP) check() error {
	if _, _, err := getSchemeAndName(tvp.TypeName); err != nil {
		return err
	}
	if tvp.Value == nil {
		return errorTypeSliceIsNil
	}
	valueOf := reflect.ValueOf(tvp.Value)
	if valueOf.Kind() != reflect.Slice {
		return errorTypeSlice
	}
	if valueOf.IsNil() {
		return errorTypeSliceIsNil
	}
	if _, isRows := tvp.Value.([][]interface{}); isRows {
		return nil
	}
	if valueOf.Type().Elem().Kind() != reflect.Struct {
		return errorTypeSlice
	}
	return nil
}

func (tvp TVP) len() (int, error) {
	if err := tvp.check(); err != nil {
		return 0, err
	}
	return reflect.ValueOf(tvp.Value).Len(), nil
}

// rows returns the cells of every row in column order.
func (tvp TVP) rows() ([][]interface{}, error) {
	if err := tvp.check(); err != nil {
		return nil, err
	}
	if rows, ok := tvp.Value.([][]interface{}); ok {
		for _, row := range rows {
			if len(row) != len(rows[0]) {
				return nil, errorRowWidth
			}
		}
		return rows, nil
	}

	indexes, err := tvp.fieldIndexes()
	if err != nil {
		return nil, err
	}
	val := reflect.ValueOf(tvp.Value)
	rows := make([][]interface{}, val.Len())
	for i := range rows {
		refStr := val.Index(i)
		row := make([]interface{}, len(indexes))
		for j, idx := range indexes {
			row[j] = refStr.Field(idx.fieldIndex).Interface()
		}
		rows[i] = row
	}
	return rows, nil
}

// fieldIndexes lists the struct fields sent as columns, in column order.
func (tvp TVP) fieldIndexes() ([]indexPosition, error) {
	tvpRow := reflect.TypeOf(tvp.Value).Elem()
	columnCount := tvpRow.NumField()
	tvpFieldIndexes := make([]indexPosition, 0, columnCount)
	for idx := 0; idx < columnCount; idx++ {
		field := tvpRow.Field(idx)
		if !field.IsExported() {
			continue
		}
		tvpTagValue, isTvpTag := field.Tag.Lookup(tvpTag)
		jsonTagValue, isJsonTag := field.Tag.Lookup(jsonTag)
		var positionIndex uint16
		if isTvpTag {
			tvpPart, position, errParse := parseTvpTag(tvpTagValue)
			if errParse != nil {
				return nil, errParse
			}
			tvpTagValue = tvpPart
			positionIndex = position
		}
		if isSkipField(tvpTagValue, isTvpTag, jsonTagValue, isJsonTag) {
			continue
		}
		tvpFieldIndexes = append(tvpFieldIndexes, indexPosition{
			fieldIndex:  idx,
			tvpPosition: positionIndex,
		})
	}
	if len(tvpFieldIndexes) == 0 {
		return nil, errorSkip
	}
	ordered, err := checkPosition(tvpFieldIndexes)
	if err != nil {
		return nil, err
	}
	if ordered {
		slices.SortFunc(tvpFieldIndexes, func(a, b indexPosition) int {
			return int(a.tvpPosition) - int(b.tvpPosition)
		})
	}
	return tvpFieldIndexes, nil
}

// isSkipField reports whether the tags of a struct field exclude it from the
// table. A tvp tag takes precedence over a json tag.
func isSkipField(tvpTagValue string, isTvpValue bool, jsonTagValue string, isJsonTagValue bool) bool {
	if isTvpValue {
		return tvpTagValue == skipTagValue
	}
	return isJsonTagValue && jsonTagValue == skipTagValue
}

func getSchemeAndName(tvpName string) (string, string, error) {
	if len(tvpName) == 0 {
		return "", "", errorEmptyTVPTypeName
	}
	splitVal := strings.Split(tvpName, sqlSeparator)
	if len(splitVal) > 2 {
		return "", "", errorObjectName
	}
	unquote := func(s string) string {
		s = strings.Replace(s, "[", "", -1)
		return strings.Replace(s, "]", "", -1)
	}
	if len(splitVal) == 2 {
		return unquote(splitVal[0]), unquote(splitVal[1]), nil
	}
	return "", unquote(splitVal[0]), nil
}

func parseTvpTag(tvpValue string) (string, uint16, error) {
	parsedValues := strings.Split(tvpValue, ",")
	switch len(parsedValues) {
	case 1:
		return parsedValues[0], 0, nil
	case 2:
		position, err := strconv.ParseUint(parsedValues[1], 10, 16)
		if err != nil {
			return "", 0, errorTvpTagPositionWrong
		}
		return parsedValues[0], uint16(position), nil
	}
	return "", 0, errorTvpTagWrong
}

// checkPosition reports whether the fields carry explicit positions. Either
// no field or every field has one, and they must number 1..n.
func checkPosition(check []indexPosition) (bool, error) {
	if len(check) == 0 {
		return false, errorSkip
	}
	first := check[0].tvpPosition
	if first == 0 {
		for idx := range check {
			if check[idx].tvpPosition != 0 {
				return false, errorTVPTagPositionNumber
			}
		}
		return false, nil
	}

	seen := make([]bool, len(check)+1)
	for _, c := range check {
		pos := int(c.tvpPosition)
		if pos < 1 || pos > len(check) || seen[pos] {
			return false, errorTVPTagPositionNumber
		}
		seen[pos] = true
	}
	return true, nil
}

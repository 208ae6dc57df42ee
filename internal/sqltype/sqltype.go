// Package sqltype holds the call-level wire type codes, the native transfer
// (C) type codes and the length-indicator sentinels shared by the marshaling
// engine and its transports.
package sqltype

// ID is a wire-level SQL type code.
type ID int16

// standard SQL data types
// https://learn.microsoft.com/en-us/sql/odbc/reference/appendixes/sql-data-types
const (
	Unknown       ID = 0
	Char          ID = 1
	Numeric       ID = 2
	Decimal       ID = 3
	Integer       ID = 4
	SmallInt      ID = 5
	Float         ID = 6
	Real          ID = 7
	Double        ID = 8
	DateTime      ID = 9
	VarChar       ID = 12
	TypeDate      ID = 91
	TypeTime      ID = 92
	TypeTimestamp ID = 93
	LongVarChar   ID = -1
	Binary        ID = -2
	VarBinary     ID = -3
	LongVarBinary ID = -4
	BigInt        ID = -5
	TinyInt       ID = -6
	Bit           ID = -7
	WChar         ID = -8
	WVarChar      ID = -9
	WLongVarChar  ID = -10
	Guid          ID = -11
)

// driver specific types
const (
	SSVariant         ID = -150
	SSUdt             ID = -151
	SSXml             ID = -152
	SSTable           ID = -153
	SSTime2           ID = -154
	SSTimestampOffset ID = -155
)

// IsChar reports whether t carries character data.
func (t ID) IsChar() bool {
	switch t {
	case Char, VarChar, LongVarChar, WChar, WVarChar, WLongVarChar, SSXml:
		return true
	}
	return false
}

// IsWide reports whether t is one of the wide character types.
func (t ID) IsWide() bool {
	switch t {
	case WChar, WVarChar, WLongVarChar, SSXml:
		return true
	}
	return false
}

// IsBinary reports whether t carries raw bytes.
func (t ID) IsBinary() bool {
	switch t {
	case Binary, VarBinary, LongVarBinary, SSUdt:
		return true
	}
	return false
}

// IsLong reports whether t has no fixed maximum length.
func (t ID) IsLong() bool {
	switch t {
	case LongVarChar, WLongVarChar, LongVarBinary, SSXml, SSTable:
		return true
	}
	return false
}

// IsInteger reports whether t is an exact integer type.
func (t ID) IsInteger() bool {
	switch t {
	case TinyInt, SmallInt, Integer, BigInt:
		return true
	}
	return false
}

// CType is a native transfer type code.
type CType int16

const (
	signedOffset   = -20
	unsignedOffset = -22
)

// C data types
// https://learn.microsoft.com/en-us/sql/odbc/reference/appendixes/c-data-types
const (
	CChar              CType = CType(Char)
	CWChar             CType = CType(WChar)
	CBit               CType = CType(Bit)
	CSTinyInt          CType = CType(TinyInt) + signedOffset
	CUTinyInt          CType = CType(TinyInt) + unsignedOffset
	CSShort            CType = CType(SmallInt) + signedOffset
	CUShort            CType = CType(SmallInt) + unsignedOffset
	CSLong             CType = CType(Integer) + signedOffset
	CULong             CType = CType(Integer) + unsignedOffset
	CSBigInt           CType = CType(BigInt) + signedOffset
	CUBigInt           CType = CType(BigInt) + unsignedOffset
	CFloat             CType = CType(Real)
	CDouble            CType = CType(Double)
	CNumeric           CType = CType(Numeric)
	CDate              CType = CType(TypeDate)
	CTime              CType = CType(TypeTime)
	CTimestamp         CType = CType(TypeTimestamp)
	CBinary            CType = CType(Binary)
	CGuid              CType = CType(Guid)
	CDefault           CType = 99
	CSSTime2           CType = 0x4000
	CSSTimestampOffset CType = 0x4001
)

// Sizes of the fixed-layout transfer structs.
const (
	SizeBit             = 1
	SizeTinyInt         = 1
	SizeShort           = 2
	SizeLong            = 4
	SizeBigInt          = 8
	SizeFloat           = 4
	SizeDouble          = 8
	SizeDate            = 6
	SizeTime            = 6
	SizeTimestamp       = 16
	SizeNumeric         = 19
	SizeGuid            = 16
	SizeSSTime2         = 12
	SizeTimestampOffset = 20
)

// Size returns the fixed element size of c, or 0 for variable-length types.
func (c CType) Size() int {
	switch c {
	case CBit:
		return SizeBit
	case CSTinyInt, CUTinyInt:
		return SizeTinyInt
	case CSShort, CUShort:
		return SizeShort
	case CSLong, CULong:
		return SizeLong
	case CSBigInt, CUBigInt:
		return SizeBigInt
	case CFloat:
		return SizeFloat
	case CDouble:
		return SizeDouble
	case CDate:
		return SizeDate
	case CTime:
		return SizeTime
	case CTimestamp:
		return SizeTimestamp
	case CNumeric:
		return SizeNumeric
	case CGuid:
		return SizeGuid
	case CSSTime2:
		return SizeSSTime2
	case CSSTimestampOffset:
		return SizeTimestampOffset
	}
	return 0
}

// Length indicator sentinels.
const (
	NullData   int64 = -1
	DataAtExec int64 = -2
	NTS        int64 = -3
	NoTotal    int64 = -4

	lenDataAtExecOffset int64 = -100
)

// LenDataAtExec encodes a deferred length for transports that need the
// total byte count up front.
func LenDataAtExec(n int) int64 {
	return lenDataAtExecOffset - int64(n)
}

// IsDataAtExec reports whether ind marks a deferred value.
func IsDataAtExec(ind int64) bool {
	return ind == DataAtExec || ind <= lenDataAtExecOffset
}

// IndicatorSize is the width of a length/indicator slot.
const IndicatorSize = 8

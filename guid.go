package odbc

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// The GUID struct stores Data1, Data2 and Data3 little-endian, so the
// first three groups of the RFC 4122 byte order are reversed.
func swapGUID(b []byte) {
	reverse := func(b []byte) {
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
	}
	reverse(b[0:4])
	reverse(b[4:6])
	reverse(b[6:8])
}

func putGUID(_ *Conn, b *Binding, v interface{}, dst []byte) ([]byte, error) {
	var u uuid.UUID
	switch v := v.(type) {
	case uuid.UUID:
		u = v
	case NullGUID:
		u = v.GUID
	case [16]byte:
		u = uuid.UUID(v)
	default:
		return nil, conversionError(v, b)
	}
	copy(dst, u[:])
	swapGUID(dst[:16])
	return dst, nil
}

func getGUID(_ *Conn, _ *Binding, src []byte) (interface{}, error) {
	var u uuid.UUID
	copy(u[:], src[:16])
	swapGUID(u[:])
	return u, nil
}

// NullGUID represents a GUID that may be null.
// NullGUID implements the Scanner interface so it can be used as a scan destination.
type NullGUID struct {
	GUID  uuid.UUID
	Valid bool
}

// Scan implements the Scanner interface. A 16 byte slice is read in the
// mixed-endian struct layout.
func (n *NullGUID) Scan(v interface{}) error {
	switch vt := v.(type) {
	case nil:
		n.GUID, n.Valid = uuid.Nil, false
		return nil
	case uuid.UUID:
		n.GUID = vt
	case []byte:
		if len(vt) != 16 {
			return fmt.Errorf("odbc: invalid GUID length %d", len(vt))
		}
		copy(n.GUID[:], vt)
		swapGUID(n.GUID[:])
	case string:
		u, err := uuid.Parse(vt)
		if err != nil {
			return fmt.Errorf("odbc: invalid GUID string: %w", err)
		}
		n.GUID = u
	default:
		return fmt.Errorf("odbc: cannot convert %T to GUID", v)
	}
	n.Valid = true
	return nil
}

// Value implements the driver Valuer interface.
func (n NullGUID) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.GUID.String(), nil
}

// String returns the GUID, or "" when null.
func (n NullGUID) String() string {
	if !n.Valid {
		return ""
	}
	return n.GUID.String()
}

package odbc

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mkleehammer/pyodbc-sub000/internal/sqltype"
)

// Binding describes how one parameter or column moves across the transport:
// the wire type, the transfer type and the element size. An ElementSize of 0
// marks a deferred value that is streamed with PutData.
type Binding struct {
	Position    int
	SQLType     sqltype.ID
	CType       sqltype.CType
	ElementSize int
	ColumnSize  int
	Precision   int
	// Scale is the decimal scale, or the fractional second digits of the
	// time types.
	Scale    int
	Nullable bool
	Wide     bool

	// hinted is set when the wire type came from an override or from the
	// transport instead of the value.
	hinted bool
	null   bool
	// tick is the unit of the fraction field of SS_TIME2, 1ns when zero.
	tick time.Duration

	buf *ScratchBuffer
	ind []byte
}

// Deferred reports whether values for b are streamed instead of bound inline.
func (b *Binding) Deferred() bool {
	return b.ElementSize == 0 && !b.null
}

func (b *Binding) String() string {
	return fmt.Sprintf("%d: sql=%d c=%d size=%d colsize=%d p=%d s=%d", b.Position, b.SQLType, b.CType, b.ElementSize, b.ColumnSize, b.Precision, b.Scale)
}

// indicator returns the 8 byte length slot bound for b.
func (b *Binding) indicator() []byte {
	if b.ind == nil {
		b.ind = make([]byte, sqltype.IndicatorSize)
	}
	return b.ind
}

// store encodes v into the scratch buffer and records the written length.
// moved reports that the buffer was reallocated and must be registered with
// the transport again.
func (b *Binding) store(c *Conn, v interface{}) (moved bool, err error) {
	ind := b.indicator()
	if isNull(v) {
		putInd(ind, sqltype.NullData)
		return false, nil
	}
	cd, ok := codecs[b.CType]
	if !ok {
		return false, fmt.Errorf("%w: no codec for transfer type %d", ErrUnsupportedType, b.CType)
	}
	if b.buf == nil {
		size := b.ElementSize
		if size == 0 {
			size = cd.size
		}
		b.buf, err = newScratchBuffer(size, c.cfg.MaxBuffer)
		if err != nil {
			return false, err
		}
		moved = true
	}
	if cd.size > 0 {
		if _, err = cd.put(c, b, v, b.buf.Bytes()[:cd.size]); err != nil {
			return false, err
		}
		putInd(ind, int64(cd.size))
		return moved, nil
	}

	data, err := cd.put(c, b, v, nil)
	if err != nil {
		return false, err
	}
	grown, err := b.buf.Grow(len(data))
	if err != nil {
		return false, err
	}
	if grown {
		scratchRebinds.Inc()
	}
	copy(b.buf.Bytes(), data)
	putInd(ind, int64(len(data)))
	return moved || grown, nil
}

// data is the bound region of the scratch buffer.
func (b *Binding) data() []byte {
	if b.buf == nil {
		return nil
	}
	return b.buf.Bytes()
}

func (b *Binding) release() {
	b.buf = nil
	b.ind = nil
}

// ScratchBuffer is an owned byte region that only grows. Memory handed to
// the transport stays valid until the next Grow that reports a move.
type ScratchBuffer struct {
	data  []byte
	limit int
}

func newScratchBuffer(size, limit int) (*ScratchBuffer, error) {
	if size < 1 {
		size = 1
	}
	if limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %d byte buffer exceeds the limit of %d", ErrOutOfMemory, size, limit)
	}
	return &ScratchBuffer{data: make([]byte, size), limit: limit}, nil
}

// Grow makes room for at least n bytes, keeping the current contents.
// moved reports that the base address changed.
func (sb *ScratchBuffer) Grow(n int) (moved bool, err error) {
	if n <= len(sb.data) {
		return false, nil
	}
	if n <= cap(sb.data) {
		sb.data = sb.data[:cap(sb.data)]
		return false, nil
	}
	if sb.limit > 0 && n > sb.limit {
		return false, fmt.Errorf("%w: %d byte buffer exceeds the limit of %d", ErrOutOfMemory, n, sb.limit)
	}
	size := 2 * len(sb.data)
	if size < n {
		size = n
	}
	if sb.limit > 0 && size > sb.limit {
		size = sb.limit
	}
	data := make([]byte, size)
	copy(data, sb.data)
	sb.data = data
	return true, nil
}

// Bytes returns the whole buffer.
func (sb *ScratchBuffer) Bytes() []byte {
	return sb.data
}

func (sb *ScratchBuffer) Len() int {
	return len(sb.data)
}

func putInd(dst []byte, v int64) {
	binary.LittleEndian.PutUint64(dst, uint64(v))
}

func getInd(src []byte) int64 {
	return int64(binary.LittleEndian.Uint64(src))
}

package chef

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// HighLevelPC identifies a position in the interpreted program. It is usually
// a call-frame stack of addresses with the innermost frame first. Equal
// sequences denote the same logical location.
type HighLevelPC []uint32

// Key returns a string suitable for use as a map key.
func (pc HighLevelPC) Key() string {
	buf := make([]byte, 4*len(pc))
	for i, v := range pc {
		binary.BigEndian.PutUint32(buf[i*4:], v)
	}
	return string(buf)
}

// Equal returns true if pc and other hold the same sequence.
func (pc HighLevelPC) Equal(other HighLevelPC) bool {
	return ComparePC(pc, other) == 0
}

// Clone returns a copy of pc that does not share the underlying array.
func (pc HighLevelPC) Clone() HighLevelPC {
	if pc == nil {
		return nil
	}
	other := make(HighLevelPC, len(pc))
	copy(other, pc)
	return other
}

// String returns the frames outermost first, e.g. "[0x1/0x2a]".
func (pc HighLevelPC) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := len(pc) - 1; i >= 0; i-- {
		if i != len(pc)-1 {
			sb.WriteByte('/')
		}
		fmt.Fprintf(&sb, "0x%x", pc[i])
	}
	sb.WriteByte(']')
	return sb.String()
}

// ComparePC orders two PCs lexicographically. A shorter sequence that is a
// prefix of a longer one sorts first.
func ComparePC(a, b HighLevelPC) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] < b[i] {
			return -1
		} else if a[i] > b[i] {
			return 1
		}
	}
	if len(a) < len(b) {
		return -1
	} else if len(a) > len(b) {
		return 1
	}
	return 0
}

// pcComparer compares two HighLevelPC keys. Implements immutable.Comparer.
type pcComparer struct{}

// Compare returns -1 if a sorts before b, 1 if after, and 0 if equal.
// Panic if a or b is not a HighLevelPC.
func (c *pcComparer) Compare(a, b interface{}) int {
	return ComparePC(a.(HighLevelPC), b.(HighLevelPC))
}

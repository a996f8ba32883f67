package objfile

// StringTable is the null-prefixed, null-terminated, content-deduplicated
// string pool written as its own section. Offset 0 is always the empty
// string, matching the convention that a zero string-table offset means
// "no name."
type StringTable struct {
	offsets map[string]uint32
	bytes   []byte
}

func NewStringTable() *StringTable {
	return &StringTable{
		offsets: map[string]uint32{"": 0},
		bytes:   []byte{0x00},
	}
}

// Add interns s and returns its offset. A repeated addition of the same
// content returns the offset it was first assigned.
func (t *StringTable) Add(s string) uint32 {
	if off, ok := t.offsets[s]; ok {
		return off
	}
	off := uint32(len(t.bytes))
	t.bytes = append(t.bytes, []byte(s)...)
	t.bytes = append(t.bytes, 0x00)
	t.offsets[s] = off
	return off
}

func (t *StringTable) Bytes() []byte { return t.bytes }
func (t *StringTable) Size() int     { return len(t.bytes) }

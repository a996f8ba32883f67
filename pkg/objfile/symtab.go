package objfile

// Symbol is one entry in the optional object symbol table: a name and the
// byte offset, within the code section, where it is defined.
type Symbol struct {
	Name       string
	CodeOffset uint32
}

const symbolEntrySize = 8 // name-offset:u32, code-offset:u32

func encodeSymbolTable(symbols []Symbol, strtab *StringTable) []byte {
	buf := make([]byte, 0, len(symbols)*symbolEntrySize)
	for _, s := range symbols {
		nameOff := strtab.Add(s.Name)
		buf = appendLE(buf, uint64(nameOff), 4)
		buf = appendLE(buf, uint64(s.CodeOffset), 4)
	}
	return buf
}

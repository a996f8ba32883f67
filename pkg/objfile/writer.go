package objfile

import (
	"io"

	"coilc/pkg/diag"
	"coilc/pkg/isa"
)

// Unit is everything the generator hands the writer for one compiled
// program: the flat instruction stream, the index within it marking the
// entrypoint (the SYMB directive for "main"; -1 if there is none), and
// the global symbols to record in the optional symbol table.
type Unit struct {
	Instructions []isa.Instruction
	EntryIndex   int
	Symbols      []SymbolDecl
}

// SymbolDecl is a named program point the generator wants recorded in the
// object symbol table, given as an index into Unit.Instructions rather
// than a byte offset: only the Writer, which does the encoding, knows how
// many bytes an instruction occupies.
type SymbolDecl struct {
	Name       string
	InstrIndex int
}

// Writer assembles a Unit into the on-disk Object Format. It writes
// section offsets and sizes as zero placeholders while the code and
// string-table passes run, recording each placeholder's byte position,
// then patches them once every size is known — the header fixup pass
// described by the file format.
type Writer struct {
	strtab *StringTable
}

func NewWriter() *Writer { return &Writer{strtab: NewStringTable()} }

// Build encodes u and returns the complete object file bytes.
func (w *Writer) Build(u Unit) ([]byte, error) {
	codeBytes := make([]byte, 0, 256)
	entrypointOffset := uint32(0)
	instrOffsets := make([]uint32, len(u.Instructions))

	for i, in := range u.Instructions {
		instrOffsets[i] = uint32(len(codeBytes))
		if i == u.EntryIndex {
			entrypointOffset = instrOffsets[i]
		}
		var err error
		codeBytes, err = encodeInstruction(codeBytes, in, w.strtab)
		if err != nil {
			return nil, err
		}
	}

	symbols := make([]Symbol, len(u.Symbols))
	for i, sd := range u.Symbols {
		symbols[i] = Symbol{Name: sd.Name, CodeOffset: instrOffsets[sd.InstrIndex]}
	}
	symBytes := encodeSymbolTable(symbols, w.strtab)

	hasSymtab := len(symBytes) > 0
	sectionCount := 2
	if hasSymtab {
		sectionCount = 3
	}

	nameCode := w.strtab.Add(".code")
	nameStr := w.strtab.Add(".strtab")
	var nameSym uint32
	if hasSymtab {
		nameSym = w.strtab.Add(".symtab")
	}
	strBytes := w.strtab.Bytes()

	out := make([]byte, headerSize)
	// Placeholder header; every field gets patched below once offsets
	// are known. SectionCount, Flags, and the version triple are the
	// only fields that don't depend on a later pass, so they are final
	// already.
	hdr := Header{Major: 1, Minor: 0, Patch: 0, Flags: FlagExecutable, SectionCount: uint16(sectionCount)}
	copy(out, hdr.encode())

	sectionHeadersOffset := len(out)
	for i := 0; i < sectionCount; i++ {
		out = append(out, make([]byte, sectionHeaderSize)...)
	}

	codeOffset := uint32(len(out))
	out = append(out, codeBytes...)

	strOffset := uint32(len(out))
	out = append(out, strBytes...)

	var symOffset uint32
	if hasSymtab {
		symOffset = uint32(len(out))
		out = append(out, symBytes...)
	}

	sections := []SectionHeader{
		{NameOffset: nameCode, Type: SectionTypeCode, Offset: codeOffset, Size: uint32(len(codeBytes)), Align: 1},
		{NameOffset: nameStr, Type: SectionTypeStrtab, Offset: strOffset, Size: uint32(len(strBytes)), Align: 1},
	}
	if hasSymtab {
		sections = append(sections, SectionHeader{
			NameOffset: nameSym, Type: SectionTypeSymtab, Offset: symOffset, Size: uint32(len(symBytes)),
			Align: 4, EntrySize: symbolEntrySize,
		})
	}
	for i, sh := range sections {
		copy(out[sectionHeadersOffset+i*sectionHeaderSize:], sh.encode())
	}

	if u.EntryIndex < 0 {
		hdr.Entrypoint = 0
	} else {
		hdr.Entrypoint = codeOffset + entrypointOffset
	}
	hdr.StrTabOffset = strOffset
	hdr.StrTabSize = uint32(len(strBytes))
	hdr.SymTabOffset = symOffset
	hdr.SymTabSize = uint32(len(symBytes))
	copy(out, hdr.encode())

	return out, nil
}

// WriteTo encodes u and writes it to sink in one call.
func (w *Writer) WriteTo(sink io.Writer, u Unit) error {
	data, err := w.Build(u)
	if err != nil {
		return err
	}
	if _, err := sink.Write(data); err != nil {
		return diag.NewIOError(diag.Position{}, err, "writing object file")
	}
	return nil
}

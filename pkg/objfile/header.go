// Package objfile implements the Object Writer: a byte-exact,
// little-endian, multi-section container with a code section, a string
// table, and an optional symbol table. Every multi-byte scalar is written
// little-endian irrespective of host byte order; floats go out via their
// IEEE-754 bit pattern.
package objfile

import "encoding/binary"

// Magic is the four-byte signature at offset 0 of every object file.
var Magic = [4]byte{0x43, 0x4F, 0x49, 0x4C}

const (
	headerSize        = 32
	sectionHeaderSize = 36

	FlagExecutable = 0x01
	FlagLinkable   = 0x02

	SectionTypeCode   = 1
	SectionTypeStrtab = 2
	SectionTypeSymtab = 3
)

// Header is the 32-byte object header described by the file layout:
// magic, version triple, flags, architecture tag, section count,
// entrypoint, and the string/symbol table locations.
type Header struct {
	Major, Minor, Patch byte
	Flags               byte
	ArchTag             uint16
	SectionCount        uint16
	Entrypoint          uint32
	StrTabOffset        uint32
	StrTabSize          uint32
	SymTabOffset        uint32
	SymTabSize          uint32
}

func (h Header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], Magic[:])
	buf[4] = h.Major
	buf[5] = h.Minor
	buf[6] = h.Patch
	buf[7] = h.Flags
	binary.LittleEndian.PutUint16(buf[8:10], h.ArchTag)
	binary.LittleEndian.PutUint16(buf[10:12], h.SectionCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.Entrypoint)
	binary.LittleEndian.PutUint32(buf[16:20], h.StrTabOffset)
	binary.LittleEndian.PutUint32(buf[20:24], h.StrTabSize)
	binary.LittleEndian.PutUint32(buf[24:28], h.SymTabOffset)
	binary.LittleEndian.PutUint32(buf[28:32], h.SymTabSize)
	return buf
}

// SectionHeader is one 36-byte section header: nine little-endian
// uint32 fields.
type SectionHeader struct {
	NameOffset uint32
	Type       uint32
	Flags      uint32
	Offset     uint32
	Size       uint32
	Link       uint32
	Info       uint32
	Align      uint32
	EntrySize  uint32
}

func (s SectionHeader) encode() []byte {
	buf := make([]byte, sectionHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], s.NameOffset)
	binary.LittleEndian.PutUint32(buf[4:8], s.Type)
	binary.LittleEndian.PutUint32(buf[8:12], s.Flags)
	binary.LittleEndian.PutUint32(buf[12:16], s.Offset)
	binary.LittleEndian.PutUint32(buf[16:20], s.Size)
	binary.LittleEndian.PutUint32(buf[20:24], s.Link)
	binary.LittleEndian.PutUint32(buf[24:28], s.Info)
	binary.LittleEndian.PutUint32(buf[28:32], s.Align)
	binary.LittleEndian.PutUint32(buf[32:36], s.EntrySize)
	return buf
}

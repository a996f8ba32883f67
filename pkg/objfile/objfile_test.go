package objfile

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"coilc/pkg/isa"
)

func TestStringTableDedup(t *testing.T) {
	st := NewStringTable()
	a := st.Add("main")
	b := st.Add("main")
	require.Equal(t, a, b)

	c := st.Add("helper")
	require.NotEqual(t, a, c)
	require.Equal(t, uint32(0), st.Add(""))
}

func TestBuildEmptyProgramIsHeaderOnly(t *testing.T) {
	w := NewWriter()
	data, err := w.Build(Unit{EntryIndex: -1})
	require.NoError(t, err)
	require.True(t, len(data) >= headerSize)
	require.Equal(t, Magic[:], data[0:4])
	entry := binary.LittleEndian.Uint32(data[12:16])
	require.Equal(t, uint32(0), entry)
}

func TestBuildMagicAndEntrypoint(t *testing.T) {
	w := NewWriter()
	instrs := []isa.Instruction{
		{Op: isa.OpSYMB, Operands: []isa.Operand{isa.Sym("main")}},
		{Op: isa.OpENTER, Operands: []isa.Operand{isa.Imm(0, 0x00, 4)}},
		{Op: isa.OpMOVI, Operands: []isa.Operand{isa.Reg(0, 0x00, 4), isa.Imm(0, 0x00, 4)}},
		{Op: isa.OpRESULT, Operands: []isa.Operand{isa.Reg(0, 0x00, 4)}},
		{Op: isa.OpLEAVE},
		{Op: isa.OpRET},
	}
	data, err := w.Build(Unit{Instructions: instrs, EntryIndex: 0})
	require.NoError(t, err)

	require.Equal(t, Magic[:], data[0:4])
	sectionCount := binary.LittleEndian.Uint16(data[10:12])
	require.Equal(t, uint16(2), sectionCount)

	entry := binary.LittleEndian.Uint32(data[12:16])
	codeOffset := uint32(headerSize + int(sectionCount)*sectionHeaderSize)
	require.Equal(t, codeOffset, entry, "entrypoint must point at the start of the code section, where the main SYMB sits")

	strOff := binary.LittleEndian.Uint32(data[16:20])
	strSize := binary.LittleEndian.Uint32(data[20:24])
	require.True(t, strOff > codeOffset)
	require.True(t, strSize > 0)
	require.Equal(t, uint32(len(data)), strOff+strSize, "the string table is the last section when there is no symbol table")
}

func TestBuildWithSymbolTable(t *testing.T) {
	w := NewWriter()
	instrs := []isa.Instruction{
		{Op: isa.OpSYMB, Operands: []isa.Operand{isa.Sym("main")}},
		{Op: isa.OpRET},
	}
	data, err := w.Build(Unit{
		Instructions: instrs,
		EntryIndex:   0,
		Symbols:      []SymbolDecl{{Name: "main", InstrIndex: 0}},
	})
	require.NoError(t, err)

	sectionCount := binary.LittleEndian.Uint16(data[10:12])
	require.Equal(t, uint16(3), sectionCount)

	symOff := binary.LittleEndian.Uint32(data[24:28])
	symSize := binary.LittleEndian.Uint32(data[28:32])
	require.Equal(t, uint32(symbolEntrySize), symSize)
	require.Equal(t, uint32(len(data)), symOff+symSize)
}

func TestEncodeInstructionOperandCount(t *testing.T) {
	st := NewStringTable()
	buf, err := encodeInstruction(nil, isa.Instruction{
		Op:        isa.OpADD,
		Operands:  []isa.Operand{isa.Reg(1, 0x00, 4), isa.Reg(2, 0x00, 4), isa.Reg(3, 0x00, 4)},
		Qualifier: 0,
	}, st)
	require.NoError(t, err)
	require.Equal(t, byte(isa.OpADD), buf[0])
	require.Equal(t, byte(0), buf[1])
	require.Equal(t, byte(3), buf[2])
}

func TestEncodeImmediateRoundTripsLittleEndian(t *testing.T) {
	st := NewStringTable()
	buf, err := encodeInstruction(nil, isa.Instruction{
		Op:       isa.OpMOVI,
		Operands: []isa.Operand{isa.Reg(0, 0x00, 4), isa.Imm(0x11223344, 0x00, 4)},
	}, st)
	require.NoError(t, err)
	// header(3) + reg-operand(3+4) + imm-operand header(3) then 4 payload bytes
	payload := buf[len(buf)-4:]
	v := binary.LittleEndian.Uint32(payload)
	require.Equal(t, uint32(0x11223344), v)
}

func TestEncodeStringOperandInternsIntoTable(t *testing.T) {
	st := NewStringTable()
	_, err := encodeInstruction(nil, isa.Instruction{
		Op:       isa.OpCALL,
		Operands: []isa.Operand{isa.Sym("factorial")},
	}, st)
	require.NoError(t, err)
	off := st.Add("factorial")
	require.True(t, off > 0)
}

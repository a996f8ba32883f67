// Package isa defines the Virtual ISA: the typed, register-based
// instruction vocabulary the code generator emits and the object writer
// frames into bytes. An Instruction here is the in-memory shape; pkg/objfile
// is the only package that knows how to turn one into bytes.
package isa

import "fmt"

// Opcode identifies an instruction's operation.
type Opcode uint8

const (
	OpNOP Opcode = 0x00
	OpSYMB Opcode = 0x01
	OpBR   Opcode = 0x02
	OpBRC  Opcode = 0x03
	OpCALL Opcode = 0x04
	OpRET  Opcode = 0x05

	OpADD Opcode = 0x10
	OpSUB Opcode = 0x11
	OpMUL Opcode = 0x12
	OpDIV Opcode = 0x13
	OpMOD Opcode = 0x14
	OpNEG Opcode = 0x15
	OpINC Opcode = 0x16
	OpDEC Opcode = 0x17

	OpAND Opcode = 0x20
	OpOR  Opcode = 0x21
	OpXOR Opcode = 0x22
	OpNOT Opcode = 0x23
	OpSHL Opcode = 0x24
	OpSHR Opcode = 0x25
	OpSAR Opcode = 0x26

	OpCMP Opcode = 0x30

	OpMOV   Opcode = 0x40
	OpLOAD  Opcode = 0x41
	OpSTORE Opcode = 0x42
	OpMOVI  Opcode = 0x45

	OpPUSH  Opcode = 0x50
	OpPOP   Opcode = 0x51
	OpADJSP Opcode = 0x56

	OpVARCR  Opcode = 0x60
	OpVARDL  Opcode = 0x61
	OpVARSC  Opcode = 0x62
	OpVAREND Opcode = 0x63
	OpVARGET Opcode = 0x64
	OpVARSET Opcode = 0x65
	OpVARREF Opcode = 0x66

	OpFTOI Opcode = 0x73
	OpITOF Opcode = 0x74

	OpENTER  Opcode = 0xC0
	OpLEAVE  Opcode = 0xC1
	OpPARAM  Opcode = 0xC2
	OpRESULT Opcode = 0xC3

	// Directives. The generator emits DirVersion and DirTarget once, at the
	// top of the code section; the object writer does not interpret these beyond
	// counting and framing them like any other instruction.
	DirVersion  Opcode = 0xD0
	DirTarget   Opcode = 0xD1
	DirSection  Opcode = 0xD2
	DirSymbol   Opcode = 0xD3
	DirAlign    Opcode = 0xD4
	DirData     Opcode = 0xD5
	DirABI      Opcode = 0xD6
	DirFeature  Opcode = 0xD7
	DirOptimize Opcode = 0xD8
)

var opcodeNames = map[Opcode]string{
	OpNOP: "NOP", OpSYMB: "SYMB", OpBR: "BR", OpBRC: "BRC", OpCALL: "CALL", OpRET: "RET",
	OpADD: "ADD", OpSUB: "SUB", OpMUL: "MUL", OpDIV: "DIV", OpMOD: "MOD", OpNEG: "NEG",
	OpINC: "INC", OpDEC: "DEC",
	OpAND: "AND", OpOR: "OR", OpXOR: "XOR", OpNOT: "NOT", OpSHL: "SHL", OpSHR: "SHR", OpSAR: "SAR",
	OpCMP: "CMP",
	OpMOV: "MOV", OpLOAD: "LOAD", OpSTORE: "STORE", OpMOVI: "MOVI",
	OpPUSH: "PUSH", OpPOP: "POP", OpADJSP: "ADJSP",
	OpVARCR: "VARCR", OpVARDL: "VARDL", OpVARSC: "VARSC", OpVAREND: "VAREND",
	OpVARGET: "VARGET", OpVARSET: "VARSET", OpVARREF: "VARREF",
	OpFTOI: "FTOI", OpITOF: "ITOF",
	OpENTER: "ENTER", OpLEAVE: "LEAVE", OpPARAM: "PARAM", OpRESULT: "RESULT",
	DirVersion: "DIR_VERSION", DirTarget: "DIR_TARGET", DirSection: "DIR_SECTION",
	DirSymbol: "DIR_SYMBOL", DirAlign: "DIR_ALIGN", DirData: "DIR_DATA",
	DirABI: "DIR_ABI", DirFeature: "DIR_FEATURE", DirOptimize: "DIR_OPTIMIZE",
}

func (op Opcode) String() string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return fmt.Sprintf("Opcode(0x%02X)", uint8(op))
}

// Cond is the branch-condition qualifier carried by BRC.
type Cond uint8

const (
	CondALWAYS Cond = 0
	CondEQ     Cond = 1
	CondNE     Cond = 2
	CondLT     Cond = 3
	CondLE     Cond = 4
	CondGT     Cond = 5
	CondGE     Cond = 6
)

// BinaryOpcode looks up the arithmetic/bitwise opcode for a token-level
// operator name understood by the generator (+ - * / % & | ^ << >>).
var BinaryOpcode = map[string]Opcode{
	"+": OpADD, "-": OpSUB, "*": OpMUL, "/": OpDIV, "%": OpMOD,
	"&": OpAND, "|": OpOR, "^": OpXOR, "<<": OpSHL, ">>": OpSHR,
}

// CompareCond looks up the branch condition for a comparison operator,
// per the fixed table in the generator's lowering rules.
var CompareCond = map[string]Cond{
	"==": CondEQ, "!=": CondNE, "<": CondLT, "<=": CondLE, ">": CondGT, ">=": CondGE,
}

// OperandKind discriminates an Operand's payload.
type OperandKind uint8

const (
	OperandImmediate OperandKind = iota
	OperandVariable
	OperandRegister
	OperandMemory
	OperandLabel
	OperandString
	OperandSymbol
)

// Operand is one typed argument to an Instruction. Exactly one payload
// field is meaningful, selected by Kind.
type Operand struct {
	Kind OperandKind

	TypeByte  byte // from types.Encode
	WidthByte byte

	Reg        uint32 // OperandRegister, OperandVariable: virtual-register / var id
	ImmInt     int64  // OperandImmediate: integer/char payload
	ImmFloat   float64
	IsFloatImm bool

	BaseReg int32 // OperandMemory: base register
	Offset  int32 // OperandMemory: signed byte offset

	Label int32 // OperandLabel: signed label id

	StringRef string // OperandString/OperandSymbol: value, resolved to a
	// string-table offset by the object writer at framing time
}

func Imm(i int64, typeByte, widthByte byte) Operand {
	return Operand{Kind: OperandImmediate, ImmInt: i, TypeByte: typeByte, WidthByte: widthByte}
}

func ImmFloat(f float64, widthByte byte) Operand {
	return Operand{Kind: OperandImmediate, ImmFloat: f, IsFloatImm: true, TypeByte: 0x02, WidthByte: widthByte}
}

func Reg(id uint32, typeByte, widthByte byte) Operand {
	return Operand{Kind: OperandRegister, Reg: id, TypeByte: typeByte, WidthByte: widthByte}
}

func Var(id uint32, typeByte, widthByte byte) Operand {
	return Operand{Kind: OperandVariable, Reg: id, TypeByte: typeByte, WidthByte: widthByte}
}

func Mem(base int32, offset int32, typeByte, widthByte byte) Operand {
	return Operand{Kind: OperandMemory, BaseReg: base, Offset: offset, TypeByte: typeByte, WidthByte: widthByte}
}

func Lbl(id int32) Operand {
	return Operand{Kind: OperandLabel, Label: id}
}

func Str(s string) Operand {
	return Operand{Kind: OperandString, StringRef: s}
}

func Sym(name string) Operand {
	return Operand{Kind: OperandSymbol, StringRef: name}
}

// Instruction is one Virtual ISA instruction: an opcode, an 8-bit
// qualifier (the branch condition for BRC; unused and zero otherwise),
// and its operand list. This is the generator's sole output type; it
// knows nothing about byte offsets or section layout.
type Instruction struct {
	Op        Opcode
	Qualifier uint8
	Operands  []Operand
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s %v", i.Op, i.Operands)
}

package objfile

import (
	"encoding/binary"
	"fmt"
	"math"

	"coilc/pkg/diag"
	"coilc/pkg/isa"
)

// encodeInstruction appends one framed instruction to buf:
// opcode:u8, qualifier:u8, operand-count:u8, then each operand as
// kind:u8, type-byte:u8, width-byte:u8, payload. String and symbol
// operands are interned into strtab as they are encountered.
func encodeInstruction(buf []byte, in isa.Instruction, strtab *StringTable) ([]byte, error) {
	buf = append(buf, byte(in.Op), in.Qualifier, byte(len(in.Operands)))
	for _, op := range in.Operands {
		var err error
		buf, err = encodeOperand(buf, op, strtab)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func encodeOperand(buf []byte, op isa.Operand, strtab *StringTable) ([]byte, error) {
	buf = append(buf, byte(op.Kind), op.TypeByte, op.WidthByte)

	switch op.Kind {
	case isa.OperandImmediate:
		if op.IsFloatImm {
			var bits uint64
			if op.WidthByte == 4 {
				bits = uint64(math.Float32bits(float32(op.ImmFloat)))
			} else {
				bits = math.Float64bits(op.ImmFloat)
			}
			buf = appendLE(buf, bits, int(op.WidthByte))
			return buf, nil
		}
		width := int(op.WidthByte)
		if width == 0 {
			width = 4
		}
		buf = appendLE(buf, uint64(op.ImmInt), width)
		return buf, nil

	case isa.OperandVariable, isa.OperandRegister:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], op.Reg)
		return append(buf, tmp[:]...), nil

	case isa.OperandMemory:
		var base, off [4]byte
		binary.LittleEndian.PutUint32(base[:], uint32(op.BaseReg))
		buf = append(buf, base[:]...)
		binary.LittleEndian.PutUint32(off[:], uint32(op.Offset))
		return append(buf, off[:]...), nil

	case isa.OperandLabel:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(op.Label))
		return append(buf, tmp[:]...), nil

	case isa.OperandString, isa.OperandSymbol:
		off := strtab.Add(op.StringRef)
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], off)
		return append(buf, tmp[:]...), nil

	default:
		return nil, diag.NewInternalError(diag.Position{}, "objfile: unknown operand kind %d", op.Kind)
	}
}

// appendLE appends the low `width` bytes of v, little-endian. width must
// be one of 1, 2, 4, 8.
func appendLE(buf []byte, v uint64, width int) []byte {
	switch width {
	case 1:
		return append(buf, byte(v))
	case 2:
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(v))
		return append(buf, tmp[:]...)
	case 4:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(v))
		return append(buf, tmp[:]...)
	case 8:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], v)
		return append(buf, tmp[:]...)
	default:
		panic(fmt.Sprintf("objfile: invalid operand width %d", width))
	}
}

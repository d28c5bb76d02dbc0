// Package bytecode also provides serialization for .xuc compiled-bytecode
// files, so a Bytecode can be pre-compiled and loaded without re-parsing.
//
// Binary Format Layout:
//
//	[Header]
//	  Magic Number (4 bytes): "XUBC" (0x58554243)
//	  Version (4 bytes): format version, currently 2
//	  Entry (4 bytes): index of the entry FunctionProto
//
//	[Constants Section]
//	  Count (4 bytes)
//	  For each constant: Kind (1 byte) + type-specific payload
//
//	[Structs Section] / [Enums Section] / [Functions Section]
//	  Count-prefixed; entries follow one another with no per-entry length
package bytecode

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

const (
	magicNumber   uint32 = 0x58554243 // "XUBC"
	formatVersion uint32 = 2
)

// Encode writes bc in the .xuc binary format.
func Encode(w io.Writer, bc *Bytecode) error {
	bw := bufio.NewWriter(w)
	if err := writeU32(bw, magicNumber); err != nil {
		return err
	}
	if err := writeU32(bw, formatVersion); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(bc.Entry)); err != nil {
		return err
	}

	if err := writeU32(bw, uint32(len(bc.Constants))); err != nil {
		return err
	}
	for _, c := range bc.Constants {
		if err := encodeConstant(bw, c); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(bc.Structs))); err != nil {
		return err
	}
	for _, s := range bc.Structs {
		if err := encodeStruct(bw, s); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(bc.Enums))); err != nil {
		return err
	}
	for _, e := range bc.Enums {
		if err := encodeEnum(bw, e); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(bc.Functions))); err != nil {
		return err
	}
	for _, f := range bc.Functions {
		if err := encodeFunc(bw, f); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Decode reads a Bytecode previously written by Encode.
func Decode(r io.Reader) (*Bytecode, error) {
	br := bufio.NewReader(r)

	magic, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if magic != magicNumber {
		return nil, errors.Errorf("bytecode: bad magic number %#x", magic)
	}
	version, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, errors.Errorf("bytecode: unsupported version %d", version)
	}
	entry, err := readU32(br)
	if err != nil {
		return nil, err
	}

	nConsts, err := readU32(br)
	if err != nil {
		return nil, err
	}
	consts := make([]Constant, nConsts)
	for i := range consts {
		c, err := decodeConstant(br)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding constant %d", i)
		}
		consts[i] = c
	}

	nStructs, err := readU32(br)
	if err != nil {
		return nil, err
	}
	structs := make([]*StructDef, nStructs)
	for i := range structs {
		s, err := decodeStruct(br)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding struct %d", i)
		}
		structs[i] = s
	}

	nEnums, err := readU32(br)
	if err != nil {
		return nil, err
	}
	enums := make([]*EnumDef, nEnums)
	for i := range enums {
		e, err := decodeEnum(br)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding enum %d", i)
		}
		enums[i] = e
	}

	nFuncs, err := readU32(br)
	if err != nil {
		return nil, err
	}
	funcs := make([]*FunctionProto, nFuncs)
	for i := range funcs {
		f, err := decodeFunc(br)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding function %d", i)
		}
		funcs[i] = f
	}

	return &Bytecode{
		Constants: consts,
		Structs:   structs,
		Enums:     enums,
		Functions: funcs,
		Entry:     int(entry),
	}, nil
}

func encodeConstant(w io.Writer, c Constant) error {
	if err := writeByte(w, byte(c.Kind)); err != nil {
		return err
	}
	switch c.Kind {
	case ConstInt:
		return writeU32(w, uint32(c.Int))
	case ConstFloat:
		return writeU64(w, math.Float64bits(c.Float))
	case ConstStr:
		return writeString(w, c.Str)
	case ConstFuncProto:
		return encodeFunc(w, c.Proto)
	default:
		return errors.Errorf("bytecode: unknown constant kind %d", c.Kind)
	}
}

func decodeConstant(r io.Reader) (Constant, error) {
	kind, err := readByte(r)
	if err != nil {
		return Constant{}, err
	}
	switch ConstKind(kind) {
	case ConstInt:
		v, err := readU32(r)
		return Constant{Kind: ConstInt, Int: int32(v)}, err
	case ConstFloat:
		v, err := readU64(r)
		return Constant{Kind: ConstFloat, Float: math.Float64frombits(v)}, err
	case ConstStr:
		s, err := readString(r)
		return Constant{Kind: ConstStr, Str: s}, err
	case ConstFuncProto:
		proto, err := decodeFunc(r)
		return Constant{Kind: ConstFuncProto, Proto: proto}, err
	default:
		return Constant{}, errors.Errorf("bytecode: unknown constant kind byte %d", kind)
	}
}

func encodeFunc(w io.Writer, f *FunctionProto) error {
	if err := writeString(w, f.Name); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(f.Params))); err != nil {
		return err
	}
	for i, p := range f.Params {
		if err := writeString(w, p); err != nil {
			return err
		}
		ty := ""
		if i < len(f.ParamTypes) {
			ty = f.ParamTypes[i]
		}
		if err := writeString(w, ty); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(f.NumLocals)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(f.Code))); err != nil {
		return err
	}
	for _, inst := range f.Code {
		if err := writeByte(w, byte(inst.Op)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(inst.Operand)); err != nil {
			return err
		}
	}
	return nil
}

func decodeFunc(r io.Reader) (*FunctionProto, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	nParams, err := readU32(r)
	if err != nil {
		return nil, err
	}
	params := make([]string, nParams)
	paramTypes := make([]string, nParams)
	for i := range params {
		if params[i], err = readString(r); err != nil {
			return nil, err
		}
		if paramTypes[i], err = readString(r); err != nil {
			return nil, err
		}
	}
	numLocals, err := readU32(r)
	if err != nil {
		return nil, err
	}
	nCode, err := readU32(r)
	if err != nil {
		return nil, err
	}
	code := make([]Instruction, nCode)
	for i := range code {
		op, err := readByte(r)
		if err != nil {
			return nil, err
		}
		operand, err := readU32(r)
		if err != nil {
			return nil, err
		}
		code[i] = Instruction{Op: Op(op), Operand: int32(operand)}
	}
	return &FunctionProto{Name: name, Params: params, ParamTypes: paramTypes, NumLocals: int(numLocals), Code: code}, nil
}

func encodeStruct(w io.Writer, s *StructDef) error {
	if err := writeString(w, s.Name); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(s.Fields))); err != nil {
		return err
	}
	for _, f := range s.Fields {
		if err := writeString(w, f.Name); err != nil {
			return err
		}
	}
	if err := encodeNameIndexMap(w, s.Methods); err != nil {
		return err
	}
	return encodeNameIndexMap(w, s.Statics)
}

func decodeStruct(r io.Reader) (*StructDef, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	nFields, err := readU32(r)
	if err != nil {
		return nil, err
	}
	fields := make([]FieldDef, nFields)
	for i := range fields {
		if fields[i].Name, err = readString(r); err != nil {
			return nil, err
		}
	}
	methods, err := decodeNameIndexMap(r)
	if err != nil {
		return nil, err
	}
	statics, err := decodeNameIndexMap(r)
	if err != nil {
		return nil, err
	}
	return &StructDef{Name: name, Fields: fields, Methods: methods, Statics: statics}, nil
}

func encodeEnum(w io.Writer, e *EnumDef) error {
	if err := writeString(w, e.Name); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(e.Variants))); err != nil {
		return err
	}
	for _, v := range e.Variants {
		if err := writeString(w, v.Name); err != nil {
			return err
		}
		if err := writeU32(w, uint32(v.Arity)); err != nil {
			return err
		}
	}
	return nil
}

func decodeEnum(r io.Reader) (*EnumDef, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	variants := make([]EnumVariantDef, n)
	for i := range variants {
		if variants[i].Name, err = readString(r); err != nil {
			return nil, err
		}
		arity, err := readU32(r)
		if err != nil {
			return nil, err
		}
		variants[i].Arity = int(arity)
	}
	return &EnumDef{Name: name, Variants: variants}, nil
}

func encodeNameIndexMap(w io.Writer, m map[string]int) error {
	if err := writeU32(w, uint32(len(m))); err != nil {
		return err
	}
	for name, idx := range m {
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := writeU32(w, uint32(idx)); err != nil {
			return err
		}
	}
	return nil
}

func decodeNameIndexMap(r io.Reader) (map[string]int, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	m := make(map[string]int, n)
	for i := uint32(0); i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		idx, err := readU32(r)
		if err != nil {
			return nil, err
		}
		m[name] = int(idx)
	}
	return m, nil
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

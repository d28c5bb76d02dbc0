package bytecode

import (
	"bytes"
	"testing"
)

func TestPackUnpackCall(t *testing.T) {
	op := PackCall(7, 3)
	selIdx, argCount := UnpackCall(op)
	if selIdx != 7 || argCount != 3 {
		t.Fatalf("UnpackCall(PackCall(7,3)) = (%d,%d), want (7,3)", selIdx, argCount)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	bc := &Bytecode{
		Constants: []Constant{
			{Kind: ConstInt, Int: 42},
			{Kind: ConstFloat, Float: 3.5},
			{Kind: ConstStr, Str: "hello"},
		},
		Structs: []*StructDef{
			{Name: "Point", Fields: []FieldDef{{Name: "x"}, {Name: "y"}}, Methods: map[string]int{}, Statics: map[string]int{}},
		},
		Enums: []*EnumDef{
			{Name: "Color", Variants: []EnumVariantDef{{Name: "Red", Arity: 0}}},
		},
		Functions: []*FunctionProto{
			{
				Name:      "main",
				Params:    nil,
				NumLocals: 1,
				Code: []Instruction{
					{Op: OpConstInt, Operand: 0},
					{Op: OpReturn},
				},
			},
		},
		Entry: 0,
	}

	var buf bytes.Buffer
	if err := Encode(&buf, bc); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(got.Constants) != 3 || got.Constants[2].Str != "hello" {
		t.Fatalf("constants did not round trip: %+v", got.Constants)
	}
	if len(got.Structs) != 1 || got.Structs[0].Name != "Point" {
		t.Fatalf("structs did not round trip: %+v", got.Structs)
	}
	if len(got.Functions) != 1 || len(got.Functions[0].Code) != 2 {
		t.Fatalf("functions did not round trip: %+v", got.Functions)
	}
}

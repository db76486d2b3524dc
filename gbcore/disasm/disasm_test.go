package disasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type flatReader [64 * 1024]byte

func (r *flatReader) Read(a uint16) byte { return r[a] }

func TestDisassemblesBasicInstructions(t *testing.T) {
	var mem flatReader
	mem[0] = 0x00 // NOP
	mem[1] = 0x3E // LD A,n
	mem[2] = 0x42
	mem[3] = 0xC3 // JP nn
	mem[4] = 0x00
	mem[5] = 0x01

	lines := Range(0, 3, &mem)
	assert.Equal(t, "NOP", lines[0].Instruction)
	assert.Equal(t, 1, lines[0].Length)
	assert.Equal(t, "LD A,0x42", lines[1].Instruction)
	assert.Equal(t, 2, lines[1].Length)
	assert.Equal(t, "JP 0x0100", lines[2].Instruction)
	assert.Equal(t, 3, lines[2].Length)
}

func TestUnimplementedOpcodeIsFlagged(t *testing.T) {
	var mem flatReader
	mem[0] = 0xD3
	line := At(0, &mem)
	assert.Contains(t, line.Instruction, "unimplemented")
}

func TestCBPrefixedBitInstruction(t *testing.T) {
	var mem flatReader
	mem[0] = 0xCB
	mem[1] = 0x7C // BIT 7,H
	line := At(0, &mem)
	assert.Equal(t, "BIT 7,H", line.Instruction)
	assert.Equal(t, 2, line.Length)
}

// Package cpu implements the Sharp LR35902 instruction set: register file,
// a 256-entry main dispatch plus a 256-entry CB-prefixed dispatch, interrupt
// dispatch, HALT/STOP/DI/EI and the HALT-bug.
package cpu

import (
	"fmt"
	"log/slog"

	"github.com/example/gbcore/gbcore/addr"
)

// Bus is the address-decoder contract the CPU reads and writes through. It is
// satisfied by the memory package's MMU; defining it here (rather than
// importing memory) keeps the CPU package free of a dependency on memory
// region/MBC concerns it has no business knowing about.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
}

// CPU is the Sharp LR35902 execution core.
type CPU struct {
	registers

	bus Bus

	ime       bool
	pendingEI bool
	halted    bool
	haltBug   bool

	// Trapped is set when an unimplemented opcode is fetched. A trapped CPU
	// behaves like a halted one (idles 4 cycles per Step) so callers observe
	// a stopped machine instead of a panic.
	Trapped    bool
	TrapOpcode uint16

	Trace func(pc uint16, opcode uint16, cycles int)
}

// New returns a CPU wired to the given bus, with registers zeroed. Callers
// that need the documented post-boot register values should call
// SetPostBootState after construction (gbcore.New does this).
func New(bus Bus) *CPU {
	return &CPU{bus: bus}
}

// SetPostBootState initializes registers to the values the DMG boot ROM
// leaves behind, replacing actual boot ROM emulation (spec non-goal).
func (c *CPU) SetPostBootState() {
	c.setAF(0x01B0)
	c.setBC(0x0013)
	c.setDE(0x00D8)
	c.setHL(0x014D)
	c.sp = 0xFFFE
	c.pc = 0x0100
	c.ime = false
}

func (c *CPU) PC() uint16 { return c.pc }
func (c *CPU) SP() uint16 { return c.sp }
func (c *CPU) SetPC(v uint16) { c.pc = v }

func (c *CPU) Registers() (a, b, cc, d, e, h, l byte, sp, pc uint16, f byte) {
	return c.a, c.b, c.c, c.d, c.e, c.h, c.l, c.sp, c.pc, c.f()
}

func (c *CPU) IME() bool    { return c.ime }
func (c *CPU) Halted() bool { return c.halted }

// Step executes exactly one instruction (or one idle tick, if halted or
// trapped) and returns the number of master cycles consumed, including any
// interrupt-dispatch overhead charged after the instruction retires.
func (c *CPU) Step() int {
	if c.pendingEI {
		c.pendingEI = false
		c.ime = true
	}

	if c.Trapped {
		return 4
	}

	var cycles int
	if c.halted {
		cycles = 4
	} else {
		opcode := c.fetchOpcode()
		cycles = c.execute(opcode)
		if c.Trace != nil {
			c.Trace(c.pc, uint16(opcode), cycles)
		}
	}

	cycles += c.dispatchInterrupts()
	return cycles
}

// fetchOpcode reads the opcode byte at PC. When the HALT-bug is armed, PC is
// not advanced, so the very next fetch reads the same byte again.
func (c *CPU) fetchOpcode() byte {
	op := c.bus.Read(c.pc)
	if c.haltBug {
		c.haltBug = false
	} else {
		c.pc++
	}
	return op
}

func (c *CPU) fetch8() byte {
	v := c.bus.Read(c.pc)
	c.pc++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(hi)<<8 | uint16(lo)
}

func (c *CPU) push16(v uint16) {
	c.sp--
	c.bus.Write(c.sp, byte(v>>8))
	c.sp--
	c.bus.Write(c.sp, byte(v))
}

func (c *CPU) pop16() uint16 {
	lo := c.bus.Read(c.sp)
	c.sp++
	hi := c.bus.Read(c.sp)
	c.sp++
	return uint16(hi)<<8 | uint16(lo)
}

// halt implements the HALT opcode's three-way contract (spec §4.2).
func (c *CPU) halt() {
	ie := c.bus.Read(addr.IE)
	iflag := c.bus.Read(addr.IF)
	pending := ie & iflag & 0x1F

	switch {
	case c.ime:
		c.halted = true
	case pending == 0:
		c.halted = true
	default:
		// IME=0 with a pending interrupt: don't halt, arm the HALT-bug instead.
		c.haltBug = true
	}
}

// dispatchInterrupts implements the interrupt controller (spec §4.3). It
// returns the extra cycles consumed by a vector push, or 0 if none fired.
func (c *CPU) dispatchInterrupts() int {
	ie := c.bus.Read(addr.IE)
	iflag := c.bus.Read(addr.IF)
	pending := ie & iflag & 0x1F
	if pending == 0 {
		return 0
	}

	if c.halted {
		c.halted = false
		if !c.ime {
			// Wake without dispatch (spec §4.2/§4.3).
			return 0
		}
	} else if !c.ime {
		return 0
	}

	bitIdx, vector := lowestPendingInterrupt(pending)
	c.ime = false
	c.bus.Write(addr.IF, iflag&^(1<<bitIdx))
	c.push16(c.pc)
	c.pc = vector
	return 20
}

func lowestPendingInterrupt(pending byte) (uint8, uint16) {
	switch {
	case pending&0x01 != 0:
		return 0, addr.VBlankVector
	case pending&0x02 != 0:
		return 1, addr.LCDStatVector
	case pending&0x04 != 0:
		return 2, addr.TimerVector
	case pending&0x08 != 0:
		return 3, addr.SerialVector
	default:
		return 4, addr.JoypadVector
	}
}

func (c *CPU) trap(opcode byte) int {
	slog.Warn("cpu trapped on unimplemented opcode", "opcode", fmt.Sprintf("0x%02X", opcode), "pc", fmt.Sprintf("0x%04X", c.pc-1))
	c.Trapped = true
	c.TrapOpcode = uint16(opcode)
	return 4
}

// Package gbcore is the root package: it aggregates the CPU, MMU, PPU and
// APU into a Machine and drives them in lockstep.
package gbcore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/gbcore/gbcore/audio"
	"github.com/example/gbcore/gbcore/cpu"
	"github.com/example/gbcore/gbcore/memory"
	"github.com/example/gbcore/gbcore/video"
)

// ErrROMSizeNotPowerOfTwo is returned when a ROM's length isn't a
// power-of-two number of 16KiB banks, a shape real cartridges always have.
var ErrROMSizeNotPowerOfTwo = errors.New("gbcore: rom size is not a power-of-two multiple of 16KiB")

// EventMask reports which stop conditions fired during a RunUntilEvent call.
// The caller clears the edges it handled and resumes.
type EventMask uint8

const (
	// NewFrame is set when the PPU completed a frame (VBlank entry).
	NewFrame EventMask = 1 << iota
	// AudioBufferFull is set when the audio ring reached the caller's
	// requested sample budget.
	AudioBufferFull
)

// EventBudget bounds one RunUntilEvent call: it returns at the first frame
// boundary, or once at least RequestedSamples stereo pairs are buffered,
// whichever comes first. A zero RequestedSamples disables the audio stop
// condition.
type EventBudget struct {
	RequestedSamples int
}

// Machine is the DMG aggregate: CPU, MMU (which itself owns the MBC, PPU and
// APU) driven in single-threaded lockstep.
type Machine struct {
	cpu *cpu.CPU
	mem *memory.MMU

	frameCount       uint64
	instructionCount uint64
}

// New constructs a Machine from a ROM image, validating its size and header
// before any emulation state is built.
func New(romBytes []byte) (*Machine, error) {
	if len(romBytes) < 0x8000 {
		return nil, memory.ErrROMTooSmall
	}
	banks := len(romBytes) / 0x4000
	if len(romBytes)%0x4000 != 0 || banks&(banks-1) != 0 {
		return nil, ErrROMSizeNotPowerOfTwo
	}

	cart, err := memory.NewCartridge(romBytes)
	if err != nil {
		return nil, err
	}

	mem, err := memory.NewWithCartridge(cart)
	if err != nil {
		return nil, err
	}

	m := &Machine{mem: mem}
	m.cpu = cpu.New(mem)
	m.cpu.SetPostBootState()

	slog.Info("gbcore machine constructed", "title", cart.Title, "mbc", cart.MBC)
	return m, nil
}

// RunUntilEvent steps the CPU and then advances DMA/PPU/Timer/APU by the
// instruction's cost, until a frame completes or, if budget requests
// it, enough audio samples accumulate. Both conditions may fire on the same
// step, in which case both bits are set.
func (m *Machine) RunUntilEvent(budget EventBudget) EventMask {
	var mask EventMask

	for {
		frameBefore := m.mem.PPU.FrameCount()
		cycles := m.cpu.Step()
		m.mem.Tick(cycles)
		m.instructionCount++

		if m.mem.PPU.FrameCount() != frameBefore {
			m.frameCount++
			mask |= NewFrame
			if m.frameCount%60 == 0 {
				slog.Debug("gbcore frame completed", "frame", m.frameCount, "instructions", m.instructionCount)
			}
		}

		if budget.RequestedSamples > 0 && m.mem.APU.Ring.Len() >= budget.RequestedSamples {
			mask |= AudioBufferFull
		}

		if mask != 0 {
			return mask
		}
	}
}

// Frame returns the most recently completed 160x144 frame buffer.
func (m *Machine) Frame() *video.FrameBuffer { return m.mem.PPU.Frame() }

// AudioBuffer returns the raw stereo sample ring; a host backend drains it
// on its own schedule.
func (m *Machine) AudioBuffer() *audio.Ring { return m.mem.APU.Ring }

// SetJoypad updates the pressed/released state of all 8 buttons.
func (m *Machine) SetJoypad(state memory.JoypadState) { m.mem.SetJoypad(state) }

// SaveRAM returns the cartridge's battery-backed external RAM, for
// persisting alongside the ROM's .sav file, or nil if the cartridge has
// none worth persisting.
func (m *Machine) SaveRAM() []byte { return m.mem.SaveRAM() }

// LoadRAM restores previously-saved external RAM.
func (m *Machine) LoadRAM(data []byte) error {
	if data == nil {
		return fmt.Errorf("gbcore: nil save data")
	}
	m.mem.LoadRAM(data)
	return nil
}

// CPU exposes the register file for diagnostics and disassembly; not part
// of the stop-condition contract.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// ReadByte exposes a single bus read for diagnostics (disassembly, trace
// tooling), without handing callers the MMU itself.
func (m *Machine) ReadByte(address uint16) byte { return m.mem.Read(address) }

// Trapped reports whether the CPU halted on an unimplemented opcode.
func (m *Machine) Trapped() (bool, uint16) { return m.cpu.Trapped, m.cpu.TrapOpcode }

// SetTraceWrite installs a callback invoked on every MMU write outside
// WRAM, useful for a disassembler-style side channel.
func (m *Machine) SetTraceWrite(fn func(address uint16, value byte)) {
	m.mem.Trace = fn
}

// InstructionCount returns the number of CPU instructions (including idle
// HALT/trap ticks) executed so far.
func (m *Machine) InstructionCount() uint64 { return m.instructionCount }

// FrameCount returns the number of frames completed so far.
func (m *Machine) FrameCount() uint64 { return m.frameCount }

// Package memory implements the DMG address space: cartridge/MBC decoding,
// work/high RAM, and routing of the PPU, APU, timer and joypad register
// windows to the components that own them.
package memory

import (
	"fmt"
	"log/slog"

	"github.com/example/gbcore/gbcore/addr"
	"github.com/example/gbcore/gbcore/audio"
	"github.com/example/gbcore/gbcore/video"
)

// dmaCycles is the real hardware's OAM DMA duration: 160 bytes copied one
// per 4 master cycles, plus the documented startup overhead.
const dmaCycles = 648

// MMU is the address decoder the CPU drives through the cpu.Bus interface.
// It owns WRAM/HRAM directly and delegates VRAM/OAM/LCD registers to a
// *video.PPU, sound registers to a *audio.APU, and the bank-switched
// cartridge window to an MBC.
type MMU struct {
	cart *Cartridge
	mbc  MBC

	wram [0x2000]byte
	hram [0x7F]byte

	ie byte
	ifr byte

	sb, sc byte

	timer  Timer
	joypad joypad

	PPU *video.PPU
	APU *audio.APU

	dmaCyclesLeft  int
	dmaBytesDone   int
	dmaSource      uint16
	dmaSourceVRAM  bool

	// Trace, if set, is invoked on every Write for addresses outside WRAM
	// (0xC000-0xDFFF),
	// useful for a disassembler-style side channel without coupling the MMU
	// to any particular frontend.
	Trace func(address uint16, value byte)
}

// New returns an MMU with no cartridge loaded: ROM reads return 0xFF, as on
// real hardware with an empty cartridge slot.
func New() *MMU {
	m := &MMU{
		PPU: video.New(),
		APU: audio.New(),
	}
	m.timer = *NewTimer()
	m.timer.RequestInterrupt = m.RequestInterrupt
	m.joypad.RequestInterrupt = m.RequestInterrupt
	m.PPU.RequestInterrupt = m.RequestInterrupt
	return m
}

// NewWithCartridge returns an MMU with cart loaded and its MBC constructed
// per the cartridge header.
func NewWithCartridge(cart *Cartridge) (*MMU, error) {
	m := New()
	m.cart = cart

	switch cart.MBC {
	case MBCNone:
		m.mbc = NewNoMBC(cart.data)
	case MBC1Kind, MBC1RAMBatteryKind:
		m.mbc = NewMBC1(cart.data, cart.RAMBanks)
	case MBC2Kind:
		m.mbc = NewMBC2(cart.data)
	case MBC3Kind, MBC3RAMBatteryKind:
		m.mbc = NewMBC3(cart.data, cart.RAMBanks)
	default:
		// NewCartridge never produces any other MBCKind; this only guards
		// against a future cartTypeTable entry outrunning this switch.
		return nil, fmt.Errorf("gbcore/memory: no MBC implementation wired for kind %d", cart.MBC)
	}

	return m, nil
}

// Tick advances OAM DMA, the PPU, the timer and the APU by cycles master
// cycles, in that order: DMA -> PPU -> Timer -> APU, matching the driver
// loop's per-instruction device ordering.
func (m *MMU) Tick(cycles int) {
	m.tickDMA(cycles)
	m.PPU.Tick(cycles)
	m.timer.Tick(cycles)
	m.APU.Tick(cycles)
}

// tickDMA spends the startup overhead first and then copies one byte every
// 4 master cycles, so a 160-byte transfer takes exactly dmaCycles cycles,
// with its last byte landing on the final cycle, regardless of how Tick's
// cycles argument is chunked.
func (m *MMU) tickDMA(cycles int) {
	if m.dmaCyclesLeft <= 0 {
		return
	}
	const startup = dmaCycles - 160*4
	for i := 0; i < cycles && m.dmaCyclesLeft > 0; i++ {
		m.dmaCyclesLeft--
		elapsed := dmaCycles - m.dmaCyclesLeft
		if elapsed > startup && (elapsed-startup)%4 == 0 && m.dmaBytesDone < 160 {
			m.PPU.WriteOAMByte(byte(m.dmaBytesDone), m.readNoDMA(m.dmaSource+uint16(m.dmaBytesDone)))
			m.dmaBytesDone++
		}
	}
}

// RequestInterrupt sets the corresponding bit of IF. Passed by reference to
// the PPU/APU/timer/joypad so they can raise interrupts without importing
// this package.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		slog.Warn("unknown interrupt requested", "interrupt", uint8(interrupt))
		return
	}
	m.ifr |= 1 << bitPos
}

// SetJoypad updates button state and fires the joypad interrupt on any
// release-to-press transition of a currently-selected button group.
func (m *MMU) SetJoypad(state JoypadState) {
	m.joypad.set(state)
}

func (m *MMU) Read(address uint16) byte {
	if m.dmaBlocks(address) {
		return 0xFF
	}
	switch {
	case address <= 0x7FFF:
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case address >= 0x8000 && address <= 0x9FFF:
		return m.PPU.Read(address)
	case address >= 0xA000 && address <= 0xBFFF:
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case address >= 0xC000 && address <= 0xDFFF:
		return m.wram[address-0xC000]
	case address >= 0xE000 && address <= 0xFDFF:
		return m.wram[address-0xE000]
	case address >= 0xFE00 && address <= 0xFEFF:
		return m.PPU.Read(address)
	case address == addr.P1:
		return m.joypad.read()
	case address == addr.SB:
		return m.sb
	case address == addr.SC:
		return m.sc | addr.SCUnusedMask
	case address == addr.DIV, address == addr.TIMA, address == addr.TMA, address == addr.TAC:
		return m.timer.Read(address)
	case address == addr.IF:
		return m.ifr | addr.IFUnusedMask
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		return m.APU.ReadRegister(address)
	case address >= addr.LCDC && address <= addr.WX:
		return m.PPU.Read(address)
	case address >= 0xFF80 && address <= 0xFFFE:
		return m.hram[address-0xFF80]
	case address == addr.IE:
		return m.ie
	default:
		return 0xFF
	}
}

// dmaBlocks reports whether a CPU-issued read of address is blocked by an
// in-progress OAM DMA. HRAM always stays reachable (the classic "run the
// transfer routine from HRAM" trick); when the DMA source is VRAM, the bus
// conflict is isolated to VRAM/OAM instead of the whole map.
func (m *MMU) dmaBlocks(address uint16) bool {
	if m.dmaCyclesLeft <= 0 {
		return false
	}
	if address >= 0xFF80 && address <= 0xFFFE {
		return false
	}
	if m.dmaSourceVRAM {
		return address >= 0x8000 && address <= 0x9FFF || address >= 0xFE00 && address <= 0xFE9F
	}
	return true
}

// readNoDMA is the raw source read used internally by DMA: it bypasses both
// the CPU-facing DMA bus-conflict rule (dmaBlocks) and the PPU's own mode
// based access blocking, since the transfer has exclusive access to its
// source region while it runs.
func (m *MMU) readNoDMA(address uint16) byte {
	switch {
	case address <= 0x7FFF:
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case address >= 0x8000 && address <= 0x9FFF:
		return m.PPU.VRAMByte(address - 0x8000)
	case address >= 0xA000 && address <= 0xBFFF:
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case address >= 0xC000 && address <= 0xDFFF:
		return m.wram[address-0xC000]
	case address >= 0xE000 && address <= 0xFDFF:
		return m.wram[address-0xE000]
	default:
		return 0xFF
	}
}

func (m *MMU) Write(address uint16, value byte) {
	if m.dmaBlocks(address) && address != addr.DMA {
		return
	}
	if m.Trace != nil && !(address >= 0xC000 && address <= 0xDFFF) {
		m.Trace(address, value)
	}

	switch {
	case address <= 0x7FFF:
		if m.mbc != nil {
			m.mbc.Write(address, value)
		}
	case address >= 0x8000 && address <= 0x9FFF:
		m.PPU.Write(address, value)
	case address >= 0xA000 && address <= 0xBFFF:
		if m.mbc != nil {
			m.mbc.Write(address, value)
		}
	case address >= 0xC000 && address <= 0xDFFF:
		m.wram[address-0xC000] = value
	case address >= 0xE000 && address <= 0xFDFF:
		m.wram[address-0xE000] = value
	case address >= 0xFE00 && address <= 0xFEFF:
		m.PPU.Write(address, value)
	case address == addr.P1:
		m.joypad.write(value)
	case address == addr.SB:
		m.sb = value
	case address == addr.SC:
		m.sc = value & 0x81
	case address == addr.DIV, address == addr.TIMA, address == addr.TMA, address == addr.TAC:
		m.timer.Write(address, value)
	case address == addr.IF:
		m.ifr = value & 0x1F
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		m.APU.WriteRegister(address, value)
	case address == addr.DMA:
		m.startDMA(value)
	case address >= addr.LCDC && address <= addr.WX:
		m.PPU.Write(address, value)
	case address >= 0xFF80 && address <= 0xFFFE:
		m.hram[address-0xFF80] = value
	case address == addr.IE:
		m.ie = value
	default:
		// unmapped I/O register: writes are simply discarded
	}
}

// startDMA arms a 160-byte OAM transfer from (value<<8) that completes over
// dmaCycles master cycles rather than instantaneously, so a program racing
// the transfer observes partially-updated OAM the way real hardware does.
func (m *MMU) startDMA(value byte) {
	m.dmaSource = uint16(value) << 8
	m.dmaSourceVRAM = m.dmaSource >= 0x8000 && m.dmaSource <= 0x9FFF
	m.dmaCyclesLeft = dmaCycles
	m.dmaBytesDone = 0
}

func (m *MMU) String() string {
	return fmt.Sprintf("MMU{cart=%q}", m.cartTitle())
}

func (m *MMU) cartTitle() string {
	if m.cart == nil {
		return ""
	}
	return m.cart.Title
}

// SaveRAM returns the cartridge's battery-backed external RAM, or nil if the
// loaded MBC has none worth persisting.
func (m *MMU) SaveRAM() []byte {
	if m.mbc == nil || m.cart == nil || !m.cart.HasBattery {
		return nil
	}
	data := m.mbc.SaveRAM()
	if len(data) == 0 {
		return nil
	}
	return data
}

// LoadRAM restores previously-saved external RAM into the loaded MBC.
func (m *MMU) LoadRAM(data []byte) {
	if m.mbc != nil {
		m.mbc.LoadRAM(data)
	}
}

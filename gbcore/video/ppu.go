package video

import "github.com/example/gbcore/gbcore/addr"

// mode is the PPU's current scanline phase, mirrored in STAT bits 1-0.
type mode byte

const (
	modeHBlank mode = 0
	modeVBlank mode = 1
	modeOAM    mode = 2
	modeDraw   mode = 3
)

// Per-mode durations in master cycles, per spec's scanline timing table.
const (
	oamCycles  = 80
	drawCycles = 172
	hblankCycles = 204
	lineCycles = oamCycles + drawCycles + hblankCycles // 456
	linesPerFrame = 154
	visibleLines  = 144
)

// LCDC bit positions.
const (
	lcdcEnable        = 7
	lcdcWindowMap     = 6
	lcdcWindowEnable  = 5
	lcdcTileData      = 4
	lcdcBGMap         = 3
	lcdcObjSize       = 2
	lcdcObjEnable     = 1
	lcdcBGEnable      = 0
)

// STAT bit positions.
const (
	statLYCIrq    = 6
	statOAMIrq    = 5
	statVBlankIrq = 4
	statHBlankIrq = 3
	statCoincide  = 2
)

// PPU owns VRAM, OAM, the LCD register block and the frame buffer, and runs
// independently of the CPU's bus: the memory package's MMU delegates the
// 0x8000-0x9FFF, 0xFE00-0xFE9F and 0xFF40-0xFF4B ranges to it.
type PPU struct {
	vram [0x2000]byte
	oam  [0xA0]byte

	lcdc, stat, scy, scx, ly, lyc, bgp, obp0, obp1, wy, wx byte

	mode        mode
	dotInLine   int
	windowLine  int
	fakeLY      int // synthetic line counter while LCDC bit 7 is clear
	frameCount  uint64
	frame       *FrameBuffer
	bgColorIdx  [Width]byte // this scanline's BG/window color index, for sprite priority
	oamBlocked  bool
	vramBlocked bool

	RequestInterrupt func(addr.Interrupt)
	// FrameComplete is invoked once per frame, at the HBlank->VBlank
	// transition on line 144, with the just-finished frame.
	FrameComplete func(*FrameBuffer)
}

func New() *PPU {
	frame := &FrameBuffer{}
	frame.clear(0)
	return &PPU{frame: frame, mode: modeOAM}
}

func (p *PPU) Frame() *FrameBuffer { return p.frame }

// FrameCount returns the number of frames completed so far (VBlank entries).
func (p *PPU) FrameCount() uint64 { return p.frameCount }

// Tick advances the PPU by cycles master cycles. While LCDC bit 7 is clear,
// rendering is frozen but a synthetic line counter keeps advancing at the
// normal 456-cycle/154-line cadence, so frame-complete events keep firing
// even though nothing is drawn (real hardware's own behavior, per
// original_source's update_lcd_cycles: no mode transitions or STAT/VBlank
// interrupts while disabled, just the frame-count edge).
func (p *PPU) Tick(cycles int) {
	if p.lcdc&(1<<lcdcEnable) == 0 {
		for i := 0; i < cycles; i++ {
			p.tickDisabled()
		}
		return
	}
	for i := 0; i < cycles; i++ {
		p.tickOne()
	}
}

func (p *PPU) tickDisabled() {
	p.dotInLine++
	if p.dotInLine == lineCycles {
		p.dotInLine = 0
		p.fakeLY++
		if p.fakeLY == linesPerFrame {
			p.fakeLY = 0
			p.frameCount++
		}
	}
}

func (p *PPU) tickOne() {
	p.dotInLine++

	switch p.mode {
	case modeOAM:
		if p.dotInLine == oamCycles {
			p.setMode(modeDraw)
		}
	case modeDraw:
		if p.dotInLine == oamCycles+drawCycles {
			p.renderScanline()
			p.setMode(modeHBlank)
		}
	case modeHBlank:
		if p.dotInLine == lineCycles {
			p.dotInLine = 0
			p.advanceLine()
		}
	case modeVBlank:
		if p.dotInLine == lineCycles {
			p.dotInLine = 0
			p.advanceLine()
		}
	}
}

func (p *PPU) advanceLine() {
	p.ly++
	if p.ly == visibleLines {
		p.setMode(modeVBlank)
		p.windowLine = 0
		p.frameCount++
		if p.RequestInterrupt != nil {
			p.RequestInterrupt(addr.VBlankInterrupt)
		}
		if p.statIRQEnabled(statVBlankIrq) {
			p.requestStat()
		}
		if p.FrameComplete != nil {
			p.FrameComplete(p.frame)
		}
	} else if p.ly == linesPerFrame {
		p.ly = 0
		p.setMode(modeOAM)
	} else if p.mode == modeVBlank {
		// stay in VBlank, just advance LY
	} else {
		p.setMode(modeOAM)
	}
	p.checkLYC()
}

func (p *PPU) setMode(m mode) {
	p.mode = m
	switch m {
	case modeOAM:
		if p.statIRQEnabled(statOAMIrq) {
			p.requestStat()
		}
	case modeHBlank:
		if p.statIRQEnabled(statHBlankIrq) {
			p.requestStat()
		}
	}
}

func (p *PPU) statIRQEnabled(bit byte) bool { return p.stat&(1<<bit) != 0 }

func (p *PPU) requestStat() {
	if p.RequestInterrupt != nil {
		p.RequestInterrupt(addr.LCDSTATInterrupt)
	}
}

func (p *PPU) checkLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << statCoincide
		if p.statIRQEnabled(statLYCIrq) {
			p.requestStat()
		}
	} else {
		p.stat &^= 1 << statCoincide
	}
}

func (p *PPU) statValue() byte {
	return addr.STATUnusedMask | p.stat | byte(p.mode)
}

// Read services the VRAM/OAM/register ranges delegated to the PPU.
func (p *PPU) Read(address uint16) byte {
	switch {
	case address >= 0x8000 && address <= 0x9FFF:
		if p.mode == modeDraw {
			return 0xFF
		}
		return p.vram[address-0x8000]
	case address >= addr.OAMStart && address <= 0xFEFF:
		if address > addr.OAMEnd {
			return 0xFF // unused 0xFEA0-0xFEFF
		}
		if p.mode == modeOAM || p.mode == modeDraw {
			return 0xFF
		}
		return p.oam[address-addr.OAMStart]
	default:
		return p.readRegister(address)
	}
}

func (p *PPU) Write(address uint16, value byte) {
	switch {
	case address >= 0x8000 && address <= 0x9FFF:
		if p.mode == modeDraw {
			return
		}
		p.vram[address-0x8000] = value
	case address >= addr.OAMStart && address <= 0xFEFF:
		if address > addr.OAMEnd {
			return
		}
		if p.mode == modeOAM || p.mode == modeDraw {
			return
		}
		p.oam[address-addr.OAMStart] = value
	default:
		p.writeRegister(address, value)
	}
}

// WriteOAMByte bypasses mode-based access blocking; used by OAM DMA, which
// has exclusive bus access to the destination while it runs.
func (p *PPU) WriteOAMByte(offset byte, value byte) {
	p.oam[offset] = value
}

// VRAMByte bypasses mode-based access blocking; used by OAM DMA when its
// source region is VRAM, which has exclusive bus access to it while it runs.
func (p *PPU) VRAMByte(offset uint16) byte {
	return p.vram[offset]
}

// OAMByte bypasses mode-based access blocking, for diagnostics/tests that
// want to read OAM regardless of the PPU's current scanline phase.
func (p *PPU) OAMByte(offset byte) byte {
	return p.oam[offset]
}

func (p *PPU) readRegister(address uint16) byte {
	switch address {
	case addr.LCDC:
		return p.lcdc
	case addr.STAT:
		return p.statValue()
	case addr.SCY:
		return p.scy
	case addr.SCX:
		return p.scx
	case addr.LY:
		return p.ly
	case addr.LYC:
		return p.lyc
	case addr.BGP:
		return p.bgp
	case addr.OBP0:
		return p.obp0
	case addr.OBP1:
		return p.obp1
	case addr.WY:
		return p.wy
	case addr.WX:
		return p.wx
	default:
		return 0xFF
	}
}

func (p *PPU) writeRegister(address uint16, value byte) {
	switch address {
	case addr.LCDC:
		wasEnabled := p.lcdc&(1<<lcdcEnable) != 0
		p.lcdc = value
		nowEnabled := value&(1<<lcdcEnable) != 0
		if wasEnabled && !nowEnabled {
			p.disableLCD()
		} else if !wasEnabled && nowEnabled {
			p.enableLCD()
		}
	case addr.STAT:
		p.stat = (p.stat & 0x07) | (value &^ 0x07)
	case addr.SCY:
		p.scy = value
	case addr.SCX:
		p.scx = value
	case addr.LY:
		// read-only on real hardware
	case addr.LYC:
		p.lyc = value
		p.checkLYC()
	case addr.BGP:
		p.bgp = value
	case addr.OBP0:
		p.obp0 = value
	case addr.OBP1:
		p.obp1 = value
	case addr.WY:
		p.wy = value
	case addr.WX:
		p.wx = value
	}
}

// disableLCD resets the PPU to line 0, forces STAT's mode to VBlank (real
// hardware's reported mode while the display is off) and blanks the frame;
// tickDisabled takes over generating the 456-cycle/154-line frame cadence
// from here via fakeLY.
func (p *PPU) disableLCD() {
	p.ly = 0
	p.dotInLine = 0
	p.fakeLY = 0
	p.mode = modeVBlank
	p.frame.clear(0)
}

// enableLCD resumes normal scanline timing from line 0, OAM mode, matching
// the original hardware's re-enable behavior.
func (p *PPU) enableLCD() {
	p.ly = 0
	p.dotInLine = 0
	p.mode = modeOAM
}

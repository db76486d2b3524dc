package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gbcore/gbcore/addr"
)

func validHeaderROM(size int, cartType byte) []byte {
	rom := make([]byte, size)
	rom[cartTypeAddress] = cartType
	rom[ramSizeAddress] = 0x00
	var sum byte
	for a := 0x0134; a <= 0x014C; a++ {
		sum = sum - rom[a] - 1
	}
	rom[headerChecksumAddress] = sum
	return rom
}

func TestWRAMRoundTrip(t *testing.T) {
	m := New()
	m.Write(0xC010, 0x42)
	assert.Equal(t, byte(0x42), m.Read(0xC010))
}

func TestEchoRAMMirrorsWRAM(t *testing.T) {
	m := New()
	m.Write(0xC010, 0x99)
	assert.Equal(t, byte(0x99), m.Read(0xE010))
	m.Write(0xE020, 0x55)
	assert.Equal(t, byte(0x55), m.Read(0xC020))
}

func TestIFAlwaysReadsUpperBitsSet(t *testing.T) {
	m := New()
	m.Write(addr.IF, 0x01)
	assert.Equal(t, byte(0xE1), m.Read(addr.IF))
}

func TestHRAMAndIERoundTrip(t *testing.T) {
	m := New()
	m.Write(0xFF85, 0x11)
	assert.Equal(t, byte(0x11), m.Read(0xFF85))
	m.Write(addr.IE, 0x1F)
	assert.Equal(t, byte(0x1F), m.Read(addr.IE))
}

func TestMBC1RAMRoundTripWithCartridge(t *testing.T) {
	rom := validHeaderROM(0x8000, 0x03) // MBC1+RAM+BATTERY
	rom[ramSizeAddress] = 0x02          // 1 RAM bank
	var sum byte
	for a := 0x0134; a <= 0x014C; a++ {
		sum = sum - rom[a] - 1
	}
	rom[headerChecksumAddress] = sum

	cart, err := NewCartridge(rom)
	require.NoError(t, err)
	m, err := NewWithCartridge(cart)
	require.NoError(t, err)

	m.Write(0x0000, 0x0A) // enable external RAM
	m.Write(0xA000, 0x5A)
	assert.Equal(t, byte(0x5A), m.Read(0xA000))
}

func TestTimerOverflowRequestsInterruptAfterDelay(t *testing.T) {
	m := New()
	m.Write(addr.TAC, 0x05) // enabled, fastest clock
	m.Write(addr.TIMA, 0xFF)
	m.Write(addr.TMA, 0x7A)

	m.Tick(16) // enough cycles to overflow and clear the delay
	assert.NotEqual(t, byte(0), m.Read(addr.IF)&0x04)
	assert.Equal(t, byte(0x7A), m.Read(addr.TIMA))
}

func TestTACWriteWhileOffCanGlitchTIMA(t *testing.T) {
	m := New()
	m.Write(addr.TIMA, 0x10)
	m.timer.tac = 0x00            // disabled
	m.timer.systemCounter = 1 << 9 // clock-select 0's bit already set

	m.Write(addr.TAC, 0x05) // enable at the fastest clock: old bit was set
	assert.Equal(t, byte(0x11), m.Read(addr.TIMA), "enabling TAC while the old selected bit is set should tick TIMA once")
}

func TestOAMDMATakesExactlyDmaCyclesAndCopiesCorrectly(t *testing.T) {
	m := New()
	m.Write(0xC09F, 0xAB)   // last byte of the transfer
	m.Write(addr.DMA, 0xC0) // source = 0xC000

	m.Tick(dmaCycles - 1)
	assert.NotEqual(t, byte(0xAB), m.PPU.OAMByte(159), "DMA should not be complete yet")

	m.Tick(1)
	assert.Equal(t, byte(0xAB), m.PPU.OAMByte(159))
}

func TestJoypadSelectionMuxesDpadAndButtons(t *testing.T) {
	m := New()
	m.SetJoypad(JoypadState{Right: true, A: true})

	m.Write(addr.P1, 0x20) // select d-pad (bit 4 clear)
	assert.Equal(t, byte(0), m.Read(addr.P1)&0x01, "right should read as pressed (0)")

	m.Write(addr.P1, 0x10) // select buttons (bit 5 clear)
	assert.Equal(t, byte(0), m.Read(addr.P1)&0x01, "A should read as pressed (0)")
}

func TestUnsupportedCartridgeTypeErrors(t *testing.T) {
	rom := validHeaderROM(0x8000, 0x19) // MBC5, unsupported
	_, err := NewCartridge(rom)
	require.Error(t, err)
	var unsupported ErrUnsupportedCartridgeType
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, byte(0x19), unsupported.CartType)
}

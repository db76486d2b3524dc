package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPowerOnOffClearsRegisters(t *testing.T) {
	a := New()
	a.WriteRegister(0xFF26, 0x80)
	a.WriteRegister(0xFF11, 0xFF)
	assert.Equal(t, byte(0xFF), a.nr11)

	a.WriteRegister(0xFF26, 0x00)
	assert.Equal(t, byte(0), a.nr11)
	assert.False(t, a.enabled)
}

func TestLengthRegistersAreWritableWhilePoweredOff(t *testing.T) {
	a := New()
	a.WriteRegister(0xFF26, 0x00) // power off

	a.WriteRegister(0xFF11, 0x3F) // NR11, length load
	a.WriteRegister(0xFF16, 0x20) // NR21, length load
	a.WriteRegister(0xFF1B, 0x10) // NR31, length load
	a.WriteRegister(0xFF20, 0x3F) // NR41, length load

	assert.Equal(t, uint16(1), a.ch[0].length, "NR11 length load should reach the channel even while powered off")
	assert.Equal(t, uint16(32), a.ch[1].length, "NR21 length load should reach the channel even while powered off")
	assert.Equal(t, uint16(240), a.ch[2].length, "NR31 length load should reach the channel even while powered off")
	assert.Equal(t, uint16(1), a.ch[3].length, "NR41 length load should reach the channel even while powered off")
}

func TestSquareChannelDutyStepsOverTime(t *testing.T) {
	a := New()
	a.WriteRegister(0xFF26, 0x80)
	a.WriteRegister(0xFF12, 0xF0) // max volume, no envelope sweep
	a.WriteRegister(0xFF11, 0x80) // duty 2
	a.WriteRegister(0xFF13, 0xFF)
	a.WriteRegister(0xFF14, 0x87) // trigger, period high bits 0x07

	ch := &a.ch[0]
	assert.True(t, ch.enabled)
	start := ch.dutyStep
	a.ch[0].stepSquare(4) // period 0x7FF: one duty step every 4 master cycles
	assert.NotEqual(t, start, a.ch[0].dutyStep)
}

func TestLengthCounterDisablesChannel(t *testing.T) {
	a := New()
	a.WriteRegister(0xFF26, 0x80)
	a.WriteRegister(0xFF11, 0x3F) // length = 64 - 63 = 1
	a.WriteRegister(0xFF12, 0xF0)
	a.WriteRegister(0xFF14, 0xC0) // trigger + length enable

	assert.True(t, a.ch[0].enabled)
	a.ch[0].tickLength()
	assert.False(t, a.ch[0].enabled)
}

func TestEnvelopeRampsVolumeUp(t *testing.T) {
	ch := &channel{dacEnabled: true, volume: 0, envelopeUp: true, envelopePace: 1}
	for i := 0; i < 2; i++ {
		ch.tickEnvelope()
	}
	assert.Equal(t, uint8(2), ch.volume)
}

func TestSweepOverflowDisablesChannelOnTrigger(t *testing.T) {
	a := New()
	a.WriteRegister(0xFF26, 0x80)
	a.WriteRegister(0xFF10, 0x01) // sweep period 0, increasing, shift 1
	a.WriteRegister(0xFF12, 0xF0) // DAC on, so only the sweep check can keep the channel off
	a.WriteRegister(0xFF13, 0xFF)
	a.WriteRegister(0xFF14, 0x87) // period = 0x7FF, sweep up with step 1 overflows immediately
	assert.False(t, a.ch[0].enabled)
}

func TestWaveRAMCorruptionOnRetrigger(t *testing.T) {
	a := New()
	a.WriteRegister(0xFF26, 0x80)
	a.WriteRegister(0xFF1A, 0x80) // DAC on
	for i := 0; i < 16; i++ {
		a.waveRAM[i] = byte(i)
	}
	a.WriteRegister(0xFF1E, 0x80) // trigger
	a.ch[2].waveIndex = 9         // position in the 8-15 quarter (byte index 4)
	a.ch[2].freqTimer = 1
	a.WriteRegister(0xFF1E, 0x80) // retrigger while reading

	assert.Equal(t, a.waveRAM[4], a.waveRAM[0])
	assert.Equal(t, a.waveRAM[5], a.waveRAM[1])
}

func TestRawOutputPushesSamplePairsEveryTwoCycles(t *testing.T) {
	a := New()
	a.WriteRegister(0xFF26, 0x80)
	a.WriteRegister(0xFF25, 0xFF) // pan everything to both channels
	a.WriteRegister(0xFF24, 0x77) // max master volume
	a.WriteRegister(0xFF12, 0xF0)
	a.WriteRegister(0xFF11, 0x80)
	a.WriteRegister(0xFF14, 0x80)

	a.Tick(20)
	assert.Equal(t, 10, a.Ring.Len())
}

func TestRingOverflowDropsOldest(t *testing.T) {
	r := NewRing(2)
	r.Push(1, 1)
	r.Push(2, 2)
	r.Push(3, 3)
	out := r.Drain(2)
	assert.Equal(t, []uint16{2, 2, 3, 3}, out)
}

package audio

import (
	"github.com/example/gbcore/gbcore/addr"
	"github.com/example/gbcore/gbcore/bit"
)

const (
	framesPerSequencerStep = 8192 // 512Hz at 4.194304MHz
	sampleEveryNCycles     = 2    // raw output rate: ~2.097MHz
)

// APU is the DMG Audio Processing Unit: four channels mixed to a raw,
// non-resampled stereo stream. Unlike a host-facing resampler, this emits
// one unsigned-16-bit stereo sample pair every 2 master cycles so a host
// backend owns the only downsampling step in the pipeline.
type APU struct {
	enabled bool
	ch      [4]channel

	vinLeft, vinRight bool
	volLeft, volRight uint8

	nr10, nr11, nr12, nr13, nr14 byte
	nr21, nr22, nr23, nr24       byte
	nr30, nr31, nr32, nr33, nr34 byte
	nr41, nr42, nr43, nr44       byte
	nr50, nr51, nr52             byte
	waveRAM                      [16]byte

	sequencerStep  int
	sequencerCycle int
	sampleCycle    int

	Ring *Ring
}

func New() *APU {
	return &APU{Ring: NewRing(8192)}
}

// Tick advances every channel generator, the 512Hz frame sequencer, and the
// raw sample emitter by cycles master cycles.
func (a *APU) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		a.tickOne()
	}
}

func (a *APU) tickOne() {
	if a.enabled {
		for i := range a.ch {
			if !a.ch[i].enabled || !a.ch[i].dacEnabled {
				continue
			}
			switch i {
			case 0, 1:
				a.ch[i].stepSquare(1)
			case 2:
				a.ch[i].stepWave(1, &a.waveRAM)
			case 3:
				a.ch[i].stepNoise(1)
			}
		}

		a.sequencerCycle++
		if a.sequencerCycle >= framesPerSequencerStep {
			a.sequencerCycle = 0
			a.tickSequencer()
		}
	}

	a.sampleCycle++
	if a.sampleCycle >= sampleEveryNCycles {
		a.sampleCycle = 0
		a.emitSample()
	}
}

func (a *APU) tickSequencer() {
	switch a.sequencerStep {
	case 0, 4:
		a.ch[0].tickLength()
		a.ch[1].tickLength()
		a.ch[2].tickLength()
		a.ch[3].tickLength()
	case 2, 6:
		a.ch[0].tickLength()
		a.ch[1].tickLength()
		a.ch[2].tickLength()
		a.ch[3].tickLength()
		if newPeriod, changed := a.ch[0].tickSweep(); changed {
			a.nr13 = byte(newPeriod)
			a.nr14 = (a.nr14 &^ 0x07) | byte(newPeriod>>8)&0x07
		}
	case 7:
		a.ch[0].tickEnvelope()
		a.ch[1].tickEnvelope()
		a.ch[3].tickEnvelope()
	}
	a.sequencerStep = (a.sequencerStep + 1) & 0x7
}

// channelLevel returns a channel's current instantaneous level, 0-15,
// recomputed from its last-stepped phase without advancing it.
func (a *APU) channelLevel(i int) int {
	ch := &a.ch[i]
	if !a.enabled || !ch.enabled || !ch.dacEnabled {
		return 0
	}
	switch i {
	case 0, 1:
		if !dutyPatterns[ch.duty&0x3][ch.dutyStep] {
			return 0
		}
		return int(ch.volume)
	case 2:
		sample := a.waveRAM[ch.waveIndex>>1]
		if ch.waveIndex&1 == 0 {
			sample >>= 4
		} else {
			sample &= 0x0F
		}
		switch ch.volume & 0x03 {
		case 0:
			return 0
		case 1:
			return int(sample)
		case 2:
			return int(sample) / 2
		default:
			return int(sample) / 4
		}
	default:
		if ch.lfsr&1 != 0 {
			return 0
		}
		return int(ch.volume)
	}
}

// emitSample mixes the four channels' current levels (NR50/NR51 panning and
// master volume) into one raw unsigned-16-bit stereo pair and pushes it.
func (a *APU) emitSample() {
	var leftSum, rightSum int

	for i := 0; i < 4; i++ {
		level := a.channelLevel(i)
		if level == 0 {
			continue
		}
		if a.ch[i].left {
			leftSum += level
		}
		if a.ch[i].right {
			rightSum += level
		}
	}

	// each channel contributes 0-15; 4 channels sum to 0-60, scaled by the
	// 0-7 master volume (NR50) to the full unsigned 16-bit range.
	left := scaleToU16(leftSum, a.volLeft)
	right := scaleToU16(rightSum, a.volRight)
	a.Ring.Push(left, right)
}

func scaleToU16(sum int, masterVol byte) uint16 {
	gain := (int(masterVol) + 1) * 65535 / (8 * 60)
	v := sum * gain
	if v > 65535 {
		v = 65535
	}
	return uint16(v)
}

func (a *APU) ReadRegister(address uint16) byte {
	switch {
	case address == 0xFF10:
		return a.nr10 | 0x80
	case address == 0xFF11:
		return a.nr11 | 0x3F
	case address == 0xFF12:
		return a.nr12
	case address == 0xFF13:
		return 0xFF
	case address == 0xFF14:
		return a.nr14 | 0xBF
	case address == 0xFF16:
		return a.nr21 | 0x3F
	case address == 0xFF17:
		return a.nr22
	case address == 0xFF18:
		return 0xFF
	case address == 0xFF19:
		return a.nr24 | 0xBF
	case address == 0xFF1A:
		return a.nr30 | 0x7F
	case address == 0xFF1B:
		return 0xFF
	case address == 0xFF1C:
		return a.nr32 | 0x9F
	case address == 0xFF1D:
		return 0xFF
	case address == 0xFF1E:
		return a.nr34 | 0xBF
	case address == 0xFF20:
		return 0xFF
	case address == 0xFF21:
		return a.nr42
	case address == 0xFF22:
		return a.nr43
	case address == 0xFF23:
		return a.nr44 | 0xBF
	case address == 0xFF24:
		return a.nr50
	case address == 0xFF25:
		return a.nr51
	case address == 0xFF26:
		return a.statusByte()
	case address >= 0xFF30 && address <= 0xFF3F:
		if a.waveRAMLocked() {
			return a.waveRAM[a.ch[2].waveIndex>>1]
		}
		return a.waveRAM[address-0xFF30]
	default:
		return 0xFF
	}
}

func (a *APU) statusByte() byte {
	v := byte(0x70)
	if a.enabled {
		v |= 0x80
	}
	for i := range a.ch {
		if a.ch[i].enabled {
			v |= 1 << i
		}
	}
	return v
}

func (a *APU) waveRAMLocked() bool {
	return a.enabled && a.ch[2].enabled && a.ch[2].dacEnabled
}

// ChannelLength returns channel i's loaded length-counter value, for
// diagnostics and tests; it does not reflect live countdown state beyond
// what NRx1/NR11/NR21/NR31/NR41 last loaded and subsequent length ticks
// have decremented.
func (a *APU) ChannelLength(i int) uint16 {
	return a.ch[i].length
}

func (a *APU) WriteRegister(address uint16, value byte) {
	isWaveRAM := address >= 0xFF30 && address <= 0xFF3F
	isLengthReg := address == addr.NR11 || address == addr.NR21 || address == addr.NR31 || address == addr.NR41
	if !a.enabled && address != 0xFF26 && !isWaveRAM && !isLengthReg {
		return
	}

	switch {
	case address == 0xFF10:
		a.nr10 = value
		prevDown := a.ch[0].sweepDown
		a.ch[0].sweepPeriod = extractBits(value, 6, 4)
		a.ch[0].sweepDown = value&0x08 != 0
		a.ch[0].sweepStep = extractBits(value, 2, 0)
		if !a.ch[0].sweepDown && prevDown && a.ch[0].sweepNegUsed {
			a.ch[0].enabled = false
		}
	case address == 0xFF11:
		a.nr11 = value
		a.ch[0].duty = extractBits(value, 7, 6)
		a.ch[0].length = 64 - uint16(extractBits(value, 5, 0))
	case address == 0xFF12:
		a.nr12 = value
		a.writeEnvelope(&a.ch[0], value)
	case address == 0xFF13:
		a.nr13 = value
		a.ch[0].period = bit.Combine(a.nr14&0x07, a.nr13)
	case address == 0xFF14:
		a.nr14 = value
		a.ch[0].period = bit.Combine(a.nr14&0x07, a.nr13)
		a.ch[0].lengthEnable = value&0x40 != 0
		if value&0x80 != 0 {
			a.triggerSquare(0)
		}
	case address == 0xFF16:
		a.nr21 = value
		a.ch[1].duty = extractBits(value, 7, 6)
		a.ch[1].length = 64 - uint16(extractBits(value, 5, 0))
	case address == 0xFF17:
		a.nr22 = value
		a.writeEnvelope(&a.ch[1], value)
	case address == 0xFF18:
		a.nr23 = value
		a.ch[1].period = bit.Combine(a.nr24&0x07, a.nr23)
	case address == 0xFF19:
		a.nr24 = value
		a.ch[1].period = bit.Combine(a.nr24&0x07, a.nr23)
		a.ch[1].lengthEnable = value&0x40 != 0
		if value&0x80 != 0 {
			a.triggerSquare(1)
		}
	case address == 0xFF1A:
		a.nr30 = value
		a.ch[2].dacEnabled = value&0x80 != 0
		if !a.ch[2].dacEnabled {
			a.ch[2].enabled = false
		}
	case address == 0xFF1B:
		a.nr31 = value
		a.ch[2].length = 256 - uint16(value)
	case address == 0xFF1C:
		a.nr32 = value
		a.ch[2].volume = extractBits(value, 6, 5)
	case address == 0xFF1D:
		a.nr33 = value
		a.ch[2].period = bit.Combine(a.nr34&0x07, a.nr33)
	case address == 0xFF1E:
		a.nr34 = value
		a.ch[2].period = bit.Combine(a.nr34&0x07, a.nr33)
		a.ch[2].lengthEnable = value&0x40 != 0
		if value&0x80 != 0 {
			a.triggerWave()
		}
	case address == 0xFF20:
		a.nr41 = value
		a.ch[3].length = 64 - uint16(extractBits(value, 5, 0))
	case address == 0xFF21:
		a.nr42 = value
		a.writeEnvelope(&a.ch[3], value)
	case address == 0xFF22:
		a.nr43 = value
		a.ch[3].shift = extractBits(value, 7, 4)
		a.ch[3].use7bitLFSR = value&0x08 != 0
		a.ch[3].divider = extractBits(value, 2, 0)
	case address == 0xFF23:
		a.nr44 = value
		a.ch[3].lengthEnable = value&0x40 != 0
		if value&0x80 != 0 {
			a.triggerNoise()
		}
	case address == 0xFF24:
		a.nr50 = value
		a.vinLeft, a.vinRight = value&0x80 != 0, value&0x08 != 0
		a.volLeft, a.volRight = extractBits(value, 6, 4), extractBits(value, 2, 0)
	case address == 0xFF25:
		a.nr51 = value
		for i := range a.ch {
			a.ch[i].right = value&(1<<i) != 0
			a.ch[i].left = value&(1<<(i+4)) != 0
		}
	case address == 0xFF26:
		a.writeNR52(value)
	}

	if isWaveRAM {
		if a.waveRAMLocked() {
			a.waveRAM[a.ch[2].waveIndex>>1] = value
		} else {
			a.waveRAM[address-0xFF30] = value
		}
	}
}

func (a *APU) writeEnvelope(ch *channel, value byte) {
	ch.volume = extractBits(value, 7, 4)
	ch.envelopeUp = value&0x08 != 0
	ch.envelopePace = extractBits(value, 2, 0)
	ch.dacEnabled = ch.volume > 0 || ch.envelopeUp
	if !ch.dacEnabled {
		ch.enabled = false
	}
}

func (a *APU) writeNR52(value byte) {
	wasEnabled := a.enabled
	a.enabled = value&0x80 != 0
	a.nr52 = value
	if wasEnabled && !a.enabled {
		a.nr10, a.nr11, a.nr12, a.nr13, a.nr14 = 0, 0, 0, 0, 0
		a.nr21, a.nr22, a.nr23, a.nr24 = 0, 0, 0, 0
		a.nr30, a.nr31, a.nr32, a.nr33, a.nr34 = 0, 0, 0, 0, 0
		a.nr41, a.nr42, a.nr43, a.nr44 = 0, 0, 0, 0
		a.nr50, a.nr51 = 0, 0
		for i := range a.ch {
			a.ch[i] = channel{}
		}
	}
}

func (a *APU) triggerSquare(idx int) {
	ch := &a.ch[idx]
	if ch.dacEnabled {
		ch.enabled = true
	}
	ch.envelopeLatched = false
	ch.dutyStep = 0
	ch.freqTimer = squarePeriodCycles(ch.period)
	if ch.length == 0 {
		if idx == 0 {
			ch.length = 64
		} else {
			ch.length = 64
		}
	}

	if idx == 0 {
		ch.sweepEnabled = ch.sweepPeriod > 0 || ch.sweepStep > 0
		ch.sweepTimer = ch.sweepPeriod
		if ch.sweepTimer == 0 {
			ch.sweepTimer = 8
		}
		ch.shadowFreq = ch.period
		ch.sweepNegUsed = false
		if ch.sweepStep != 0 {
			if _, overflow := ch.sweepTargetFrequency(); overflow {
				ch.enabled = false
			}
		}
	}
}

// triggerWave implements the NR34 trigger including the wave-RAM corruption
// quirk: on some DMG revisions, retriggering while the channel is already
// reading RAM corrupts the first few bytes depending on which quarter of the
// 32-sample table the read pointer was in.
func (a *APU) triggerWave() {
	ch := &a.ch[2]
	wasReading := a.waveRAMLocked() && ch.freqTimer <= 2

	if ch.dacEnabled {
		ch.enabled = true
	}
	if ch.length == 0 {
		ch.length = 256
	}

	if wasReading {
		pos := int(ch.waveIndex >> 1)
		switch {
		case pos < 4:
			a.waveRAM[0] = a.waveRAM[pos]
		case pos < 8:
			copy(a.waveRAM[0:4], a.waveRAM[4:8])
		case pos < 12:
			copy(a.waveRAM[0:4], a.waveRAM[8:12])
		default:
			copy(a.waveRAM[0:4], a.waveRAM[12:16])
		}
	}

	ch.freqTimer = wavePeriodCycles(ch.period)
	ch.waveIndex = 0
}

func (a *APU) triggerNoise() {
	ch := &a.ch[3]
	if ch.dacEnabled {
		ch.enabled = true
	}
	ch.envelopeLatched = false
	if ch.length == 0 {
		ch.length = 64
	}
	ch.lfsr = 0x7FFF
	ch.noiseTimer = noisePeriodCycles(ch)
}

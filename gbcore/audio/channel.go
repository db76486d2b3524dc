package audio

import "github.com/example/gbcore/gbcore/bit"

// channel holds the running state of one of the four DMG sound channels.
// Not every field is meaningful for every channel (e.g. sweep only applies
// to channel 0); unused fields simply stay zero.
type channel struct {
	enabled    bool
	dacEnabled bool
	left, right bool

	length       uint16
	lengthEnable bool

	volume          uint8
	envelopeUp      bool
	envelopePace    uint8
	envelopeCounter uint8
	envelopeLatched bool

	sweepPeriod  uint8
	sweepDown    bool
	sweepStep    uint8
	sweepEnabled bool
	sweepTimer   uint8
	shadowFreq   uint16
	sweepNegUsed bool

	duty     uint8
	dutyStep uint8

	period    uint16
	freqTimer int

	waveIndex uint8

	shift       uint8
	use7bitLFSR bool
	divider     uint8
	lfsr        uint16
	noiseTimer  int
}

var dutyPatterns = [4][8]bool{
	{false, true, false, false, false, false, false, false},
	{false, true, true, false, false, false, false, false},
	{false, true, true, true, true, false, false, false},
	{true, false, false, true, true, true, true, true},
}

var noiseDividers = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

func squarePeriodCycles(period uint16) int {
	p := 2048 - int(period&0x7FF)
	if p <= 0 {
		return 4
	}
	return p * 4
}

func wavePeriodCycles(period uint16) int {
	p := 2048 - int(period&0x7FF)
	if p <= 0 {
		return 2
	}
	return p * 2
}

func noisePeriodCycles(ch *channel) int {
	return noiseDividers[ch.divider&0x7] << ch.shift
}

// stepSquare advances a square channel's duty phase by cycles master cycles
// and returns its current output level, 0-15.
func (ch *channel) stepSquare(cycles int) int {
	period := squarePeriodCycles(ch.period)
	ch.freqTimer -= cycles
	for ch.freqTimer <= 0 {
		ch.freqTimer += period
		ch.dutyStep = (ch.dutyStep + 1) & 0x7
	}
	if !dutyPatterns[ch.duty&0x3][ch.dutyStep] {
		return 0
	}
	return int(ch.volume)
}

// stepWave advances the wave channel's sample index and returns the shifted
// 4-bit sample, driven from the APU's shared wave RAM (the caller passes a
// pointer to the 16-byte wave RAM, so channel holds no RAM reference of its own).
func (ch *channel) stepWave(cycles int, waveRAM *[16]byte) int {
	period := wavePeriodCycles(ch.period)
	ch.freqTimer -= cycles
	for ch.freqTimer <= 0 {
		ch.freqTimer += period
		ch.waveIndex = (ch.waveIndex + 1) & 0x1F
	}
	sample := waveRAM[ch.waveIndex>>1]
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
}

func (ch *channel) stepNoise(cycles int) int {
	period := noisePeriodCycles(ch)
	ch.noiseTimer -= cycles
	for ch.noiseTimer <= 0 {
		ch.noiseTimer += period
		feedback := (ch.lfsr & 1) ^ ((ch.lfsr >> 1) & 1)
		ch.lfsr = (ch.lfsr >> 1) | (feedback << 14)
		if ch.use7bitLFSR {
			ch.lfsr = (ch.lfsr &^ (1 << 6)) | (feedback << 6)
		}
	}
	if ch.lfsr&1 != 0 {
		return 0 // bit set means output is low, per the LFSR's inverted convention
	}
	return int(ch.volume)
}

func (ch *channel) tickLength() {
	if ch.lengthEnable && ch.length > 0 {
		ch.length--
		if ch.length == 0 {
			ch.enabled = false
		}
	}
}

func (ch *channel) tickEnvelope() {
	if !ch.dacEnabled || ch.envelopeLatched {
		return
	}
	pace := ch.envelopePace
	if pace == 0 {
		pace = 8
	}
	if ch.envelopeCounter == 0 {
		ch.envelopeCounter = pace
	}
	ch.envelopeCounter--
	if ch.envelopeCounter > 0 {
		return
	}
	if ch.envelopeUp {
		if ch.volume < 15 {
			ch.volume++
			ch.envelopeCounter = pace
			return
		}
	} else if ch.volume > 0 {
		ch.volume--
		ch.envelopeCounter = pace
		return
	}
	ch.envelopeLatched = true
}

func (ch *channel) sweepTargetFrequency() (freq uint16, overflow bool) {
	delta := ch.shadowFreq >> ch.sweepStep
	if ch.sweepDown {
		if delta > ch.shadowFreq {
			return 0, false
		}
		return ch.shadowFreq - delta, false
	}
	target := uint32(ch.shadowFreq) + uint32(delta)
	return uint16(target), target > 0x7FF
}

func (ch *channel) tickSweep() (newPeriod uint16, periodChanged bool) {
	if !ch.sweepEnabled {
		return 0, false
	}
	if ch.sweepTimer > 0 {
		ch.sweepTimer--
	}
	if ch.sweepTimer != 0 {
		return 0, false
	}
	ch.sweepTimer = ch.sweepPeriod
	if ch.sweepTimer == 0 {
		ch.sweepTimer = 8
	}
	if ch.sweepPeriod == 0 {
		return 0, false
	}

	target, overflow := ch.sweepTargetFrequency()
	if ch.sweepDown {
		ch.sweepNegUsed = true
	}
	if overflow {
		ch.enabled = false
		return 0, false
	}
	if ch.sweepStep == 0 {
		return 0, false
	}

	ch.shadowFreq = target
	ch.period = target

	if _, overflow := ch.sweepTargetFrequency(); overflow {
		ch.enabled = false
	}
	return target, true
}

func extractBits(value byte, hi, lo uint8) byte {
	return bit.ExtractBits(value, hi, lo)
}

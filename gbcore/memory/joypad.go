package memory

import "github.com/example/gbcore/gbcore/addr"

// JoypadState is the pressed/released state of all 8 buttons, true meaning
// pressed. Host frontends build one of these per frame and hand it to
// Machine.SetJoypad.
type JoypadState struct {
	Right, Left, Up, Down   bool
	A, B, Select, Start     bool
}

// joypad tracks P1's selection bits and raises the joypad interrupt on any
// high-to-low (release-to-press) transition of a currently-selected button.
type joypad struct {
	selectBits byte // bits 4-5 of P1, as last written
	state      JoypadState

	RequestInterrupt func(addr.Interrupt)
}

func (j *joypad) set(state JoypadState) {
	before := j.selectedNibble()
	j.state = state
	after := j.selectedNibble()
	// a bit transitioning from 1 (released) to 0 (pressed) is a falling edge.
	if before&^after != 0 && j.RequestInterrupt != nil {
		j.RequestInterrupt(addr.JoypadInterrupt)
	}
}

func (j *joypad) selectedNibble() byte {
	dpad := byte(0x0F)
	if j.state.Right {
		dpad &^= 0x01
	}
	if j.state.Left {
		dpad &^= 0x02
	}
	if j.state.Up {
		dpad &^= 0x04
	}
	if j.state.Down {
		dpad &^= 0x08
	}

	buttons := byte(0x0F)
	if j.state.A {
		buttons &^= 0x01
	}
	if j.state.B {
		buttons &^= 0x02
	}
	if j.state.Select {
		buttons &^= 0x04
	}
	if j.state.Start {
		buttons &^= 0x08
	}

	selectDpad := j.selectBits&0x10 == 0
	selectButtons := j.selectBits&0x20 == 0

	switch {
	case selectDpad && selectButtons:
		return dpad & buttons
	case selectDpad:
		return dpad
	case selectButtons:
		return buttons
	default:
		return 0x0F
	}
}

func (j *joypad) read() byte {
	return addr.JoypadUnusedMask | j.selectBits | j.selectedNibble()
}

func (j *joypad) write(value byte) {
	j.selectBits = value & 0x30
}

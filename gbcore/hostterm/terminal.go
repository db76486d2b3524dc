// Package hostterm is a tcell-based terminal frontend: it renders the DMG
//160x144 frame as block glyphs, polls the keyboard for joypad input, and
// paces the emulator at roughly 60Hz.
package hostterm

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/example/gbcore/gbcore"
	"github.com/example/gbcore/gbcore/disasm"
	"github.com/example/gbcore/gbcore/memory"
	"github.com/example/gbcore/gbcore/video"
)

const (
	frameTime = time.Second / 60

	registerHeight = 6
	disasmHeight   = 9
	minTermWidth   = video.Width + 30
	minTermHeight  = video.Height + 2
)

var shadeChars = []rune{'█', '▒', '▓', ' '}

func shadeChar(pixel uint32) rune {
	switch pixel {
	case video.Shade3:
		return shadeChars[0]
	case video.Shade2:
		return shadeChars[1]
	case video.Shade1:
		return shadeChars[2]
	default:
		return shadeChars[3]
	}
}

// Terminal drives a *gbcore.Machine under a tcell screen until the user
// quits or the process receives a termination signal.
type Terminal struct {
	screen  tcell.Screen
	machine *gbcore.Machine
	running bool
	keys    memory.JoypadState
}

// New initializes a tcell screen and returns a Terminal ready to Run.
func New(m *gbcore.Machine) (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("hostterm: failed to initialize terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("hostterm: failed to initialize terminal: %w", err)
	}

	return &Terminal{screen: screen, machine: m, running: true}, nil
}

// Run drives the emulator at 60Hz, rendering each completed frame, until the
// user presses escape/ctrl-C or the process is signaled.
func (t *Terminal) Run() error {
	defer func() {
		slog.Info("hostterm: terminal shutting down")
		t.screen.Fini()
	}()

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	go t.pollInput()

	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	for t.running {
		select {
		case <-ticker.C:
			t.machine.SetJoypad(t.keys)
			t.machine.RunUntilEvent(gbcore.EventBudget{})
			t.render()
			t.screen.Show()
		case <-signals:
			t.running = false
			slog.Info("hostterm: received termination signal")
		}
	}

	return nil
}

func (t *Terminal) pollInput() {
	for t.running {
		ev := t.screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				t.running = false
				return
			case tcell.KeyEnter:
				t.keys.Start = true
			case tcell.KeyRight:
				t.keys.Right = true
			case tcell.KeyLeft:
				t.keys.Left = true
			case tcell.KeyUp:
				t.keys.Up = true
			case tcell.KeyDown:
				t.keys.Down = true
			case tcell.KeyRune:
				switch ev.Rune() {
				case 'a':
					t.keys.A = true
				case 's':
					t.keys.B = true
				case 'q':
					t.keys.Select = true
				}
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func (t *Terminal) render() {
	termWidth, termHeight := t.screen.Size()
	if termWidth < minTermWidth || termHeight < minTermHeight {
		t.screen.Clear()
		style := tcell.StyleDefault.Foreground(tcell.ColorRed)
		msg := fmt.Sprintf("terminal too small, need at least %dx%d", minTermWidth, minTermHeight)
		for i, ch := range msg {
			t.screen.SetContent(i, termHeight/2, ch, nil, style)
		}
		return
	}

	t.screen.Clear()
	t.drawScreen()
	t.drawRegisters(termWidth)
	t.drawDisassembly(termWidth, termHeight)
}

func (t *Terminal) drawScreen() {
	frame := t.machine.Frame().Pixels()
	style := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	for y := 0; y < video.Height; y++ {
		for x := 0; x < video.Width; x++ {
			t.screen.SetContent(x, y+1, shadeChar(frame[y*video.Width+x]), nil, style)
		}
	}
}

func (t *Terminal) drawRegisters(termWidth int) {
	startX := video.Width + 2
	if startX >= termWidth {
		return
	}
	cpu := t.machine.CPU()
	a, b, c, d, e, h, l, sp, pc, f := cpu.Registers()

	lines := []string{
		fmt.Sprintf("A:%02X F:%02X  IME:%v", a, f, cpu.IME()),
		fmt.Sprintf("B:%02X C:%02X  D:%02X E:%02X", b, c, d, e),
		fmt.Sprintf("H:%02X L:%02X", h, l),
		fmt.Sprintf("SP:%04X PC:%04X", sp, pc),
		fmt.Sprintf("frame %d  instr %d", t.machine.FrameCount(), t.machine.InstructionCount()),
	}
	style := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	for i, line := range lines {
		drawString(t.screen, startX, i, line, style)
	}
}

func (t *Terminal) drawDisassembly(termWidth, termHeight int) {
	startX := video.Width + 2
	startY := registerHeight + 1
	if startX >= termWidth || startY >= termHeight {
		return
	}

	cpu := t.machine.CPU()
	pc := cpu.PC()
	lines := disasm.Range(pc, disasmHeight, busReader{t.machine})

	normal := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	current := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlue)
	for i, line := range lines {
		if startY+i >= termHeight {
			break
		}
		style := normal
		if line.Address == pc {
			style = current
		}
		drawString(t.screen, startX, startY+i, disasm.Format(line, line.Address == pc), style)
	}
}

func drawString(screen tcell.Screen, x, y int, s string, style tcell.Style) {
	for i, ch := range s {
		screen.SetContent(x+i, y, ch, nil, style)
	}
}

// busReader adapts a *gbcore.Machine to disasm.Reader via its MMU's Read,
// reached through the CPU's bus only, so disasm has no MMU dependency.
type busReader struct{ m *gbcore.Machine }

func (b busReader) Read(address uint16) byte { return b.m.ReadByte(address) }

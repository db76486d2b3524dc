//go:build sdl2

// Package hostsdl is an optional SDL2 backend: a real window with a
// streaming texture for the frame buffer, and an SDL audio queue fed from
// the APU's sample ring. It only builds with -tags sdl2 and the SDL2
// development libraries installed; otherwise stub.go provides a
// backend that reports it is unavailable.
package hostsdl

import (
	"fmt"
	"log/slog"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/example/gbcore/gbcore"
	"github.com/example/gbcore/gbcore/memory"
	"github.com/example/gbcore/gbcore/video"
)

const (
	pixelScale   = 3
	windowWidth  = video.Width * pixelScale
	windowHeight = video.Height * pixelScale
	sampleRate   = 32768 // SDL device rate; the ring's pairs (one per 2 master cycles) are queued without resampling
)

// Backend is a real SDL2 window and audio device driving a *gbcore.Machine.
type Backend struct {
	machine *gbcore.Machine

	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	audioDev sdl.AudioDeviceID

	running bool
	keys    memory.JoypadState
}

// New creates an uninitialized Backend; call Init before Run.
func New(m *gbcore.Machine) *Backend {
	return &Backend{machine: m}
}

// Init opens the window, renderer, streaming texture and audio device.
func (b *Backend) Init(title string) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("hostsdl: sdl init: %w", err)
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		windowWidth, windowHeight, sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.Quit()
		return fmt.Errorf("hostsdl: create window: %w", err)
	}
	b.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("hostsdl: create renderer: %w", err)
	}
	b.renderer = renderer

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING,
		video.Width, video.Height)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("hostsdl: create texture: %w", err)
	}
	b.texture = texture

	dev, err := sdl.OpenAudioDevice("", false, &sdl.AudioSpec{
		Freq:     sampleRate,
		Format:   sdl.AUDIO_U16SYS,
		Channels: 2,
		Samples:  1024,
	}, nil, 0)
	if err != nil {
		slog.Warn("hostsdl: audio device unavailable, running video-only", "error", err)
	} else {
		b.audioDev = dev
		sdl.PauseAudioDevice(dev, false)
	}

	b.running = true
	slog.Info("hostsdl backend initialized", "width", windowWidth, "height", windowHeight)
	return nil
}

// Run drives the emulator until the window is closed or escape is pressed.
func (b *Backend) Run() error {
	defer b.Cleanup()

	for b.running {
		b.pollEvents()
		b.machine.SetJoypad(b.keys)
		b.machine.RunUntilEvent(gbcore.EventBudget{})
		b.drainAudio()
		if err := b.present(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) pollEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			b.running = false
		case *sdl.KeyboardEvent:
			pressed := e.Type == sdl.KEYDOWN
			switch e.Keysym.Sym {
			case sdl.K_ESCAPE:
				if pressed {
					b.running = false
				}
			case sdl.K_RETURN:
				b.keys.Start = pressed
			case sdl.K_RSHIFT, sdl.K_LSHIFT:
				b.keys.Select = pressed
			case sdl.K_z:
				b.keys.A = pressed
			case sdl.K_x:
				b.keys.B = pressed
			case sdl.K_UP:
				b.keys.Up = pressed
			case sdl.K_DOWN:
				b.keys.Down = pressed
			case sdl.K_LEFT:
				b.keys.Left = pressed
			case sdl.K_RIGHT:
				b.keys.Right = pressed
			}
		}
	}
}

func (b *Backend) drainAudio() {
	if b.audioDev == 0 {
		return
	}
	samples := b.machine.AudioBuffer().Drain(4096)
	if len(samples) == 0 {
		return
	}
	if err := sdl.QueueAudio(b.audioDev, sdl16ToBytes(samples)); err != nil {
		slog.Warn("hostsdl: queue audio failed", "error", err)
	}
}

func sdl16ToBytes(samples []uint16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func (b *Backend) present() error {
	pixels := b.machine.Frame().Pixels()
	raw := make([]byte, len(pixels)*4)
	for i, p := range pixels {
		raw[i*4] = byte(p >> 24)
		raw[i*4+1] = byte(p >> 16)
		raw[i*4+2] = byte(p >> 8)
		raw[i*4+3] = byte(p)
	}
	if err := b.texture.Update(nil, raw, video.Width*4); err != nil {
		return fmt.Errorf("hostsdl: texture update: %w", err)
	}
	b.renderer.Clear()
	b.renderer.Copy(b.texture, nil, nil)
	b.renderer.Present()
	return nil
}

// Cleanup tears down SDL resources; safe to call more than once.
func (b *Backend) Cleanup() error {
	if b.audioDev != 0 {
		sdl.CloseAudioDevice(b.audioDev)
		b.audioDev = 0
	}
	if b.texture != nil {
		b.texture.Destroy()
		b.texture = nil
	}
	if b.renderer != nil {
		b.renderer.Destroy()
		b.renderer = nil
	}
	if b.window != nil {
		b.window.Destroy()
		b.window = nil
	}
	sdl.Quit()
	return nil
}

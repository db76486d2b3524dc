// Command gbcore runs the DMG emulator core against a ROM file, either
// interactively (terminal frontend, optionally the SDL2 backend) or
// headless for a fixed number of frames.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/example/gbcore/gbcore"
	"github.com/example/gbcore/gbcore/disasm"
	"github.com/example/gbcore/gbcore/hostsdl"
	"github.com/example/gbcore/gbcore/hostterm"
)

func main() {
	app := cli.NewApp()
	app.Name = "gbcore"
	app.Usage = "gbcore [options] <ROM file>"
	app.Description = "A cycle-accurate Game Boy (DMG) emulator core"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "path to the ROM file",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "run without a frontend, for a fixed number of frames",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "number of frames to run in headless mode (required for headless)",
		},
		cli.BoolFlag{
			Name:  "sdl",
			Usage: "use the SDL2 backend instead of the terminal frontend (requires -tags sdl2)",
		},
		cli.BoolFlag{
			Name:  "trace",
			Usage: "log every MMU write outside WRAM and, after each frame, the disassembled instruction at PC (headless mode only)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("gbcore exited with error", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	romBytes, err := os.ReadFile(romPath)
	if err != nil {
		return fmt.Errorf("reading rom: %w", err)
	}

	m, err := gbcore.New(romBytes)
	if err != nil {
		return fmt.Errorf("loading rom: %w", err)
	}

	savePath := saveFilePath(romPath)
	if saved, err := os.ReadFile(savePath); err == nil {
		if err := m.LoadRAM(saved); err != nil {
			slog.Warn("failed to load save file", "path", savePath, "error", err)
		} else {
			slog.Info("loaded save file", "path", savePath)
		}
	}

	if c.Bool("headless") {
		return runHeadless(c, m, savePath)
	}
	return runInteractive(c, m, savePath)
}

func runHeadless(c *cli.Context, m *gbcore.Machine, savePath string) error {
	frames := c.Int("frames")
	if frames <= 0 {
		return errors.New("headless mode requires --frames with a positive value")
	}

	if c.Bool("trace") {
		m.SetTraceWrite(func(address uint16, value byte) {
			slog.Debug("mmu write", "address", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
		})
	}

	for i := 0; i < frames; i++ {
		m.RunUntilEvent(gbcore.EventBudget{})
		if c.Bool("trace") {
			line := disasm.At(m.CPU().PC(), traceReader{m})
			slog.Debug("frame completed", "frame", i+1, "pc", disasm.Format(line, true))
		}
		if (i+1)%10 == 0 {
			slog.Info("frame progress", "completed", i+1, "total", frames)
		}
	}

	slog.Info("headless execution completed", "frames", frames, "instructions", m.InstructionCount())
	return saveRAM(m, savePath)
}

func runInteractive(c *cli.Context, m *gbcore.Machine, savePath string) error {
	defer saveRAM(m, savePath)

	if c.Bool("sdl") {
		backend := hostsdl.New(m)
		if err := backend.Init("gbcore"); err != nil {
			return err
		}
		return backend.Run()
	}

	term, err := hostterm.New(m)
	if err != nil {
		return err
	}
	return term.Run()
}

func saveRAM(m *gbcore.Machine, path string) error {
	data := m.SaveRAM()
	if data == nil {
		return nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Error("failed to write save file", "path", path, "error", err)
		return err
	}
	slog.Info("wrote save file", "path", path)
	return nil
}

func saveFilePath(romPath string) string {
	ext := filepath.Ext(romPath)
	return romPath[:len(romPath)-len(ext)] + ".sav"
}

// traceReader adapts a *gbcore.Machine to disasm.Reader for trace logging.
type traceReader struct{ m *gbcore.Machine }

func (t traceReader) Read(address uint16) byte { return t.m.ReadByte(address) }

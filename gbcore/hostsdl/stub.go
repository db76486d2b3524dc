//go:build !sdl2

package hostsdl

import (
	"fmt"

	"github.com/example/gbcore/gbcore"
)

// Backend stub used when built without -tags sdl2: SDL2's development
// libraries aren't assumed to be present, so the default build keeps the
// terminal frontend as the only guaranteed-working option.
type Backend struct{}

// New returns a stub Backend; Init always fails.
func New(m *gbcore.Machine) *Backend { return &Backend{} }

// Init reports that the SDL2 backend was not compiled in.
func (b *Backend) Init(title string) error {
	return fmt.Errorf("hostsdl: built without -tags sdl2, SDL2 backend unavailable")
}

// Run is never reachable since Init always errors.
func (b *Backend) Run() error { return fmt.Errorf("hostsdl: unavailable") }

// Cleanup is a no-op for the stub.
func (b *Backend) Cleanup() error { return nil }

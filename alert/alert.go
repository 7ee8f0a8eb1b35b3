// Package alert emits the audible change notification. A failing sound
// backend must never stop the polling loop, so the caller logs and swallows
// emitter errors.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/gen2brain/beeep"
)

// Emitter produces one alert. Implementations must be side-effect only.
type Emitter interface {
	Emit(ctx context.Context) error
}

// Tone plays a beep of fixed frequency and duration through the system
// sound backend.
type Tone struct {
	frequency float64
	duration  time.Duration
}

// NewTone creates a Tone emitter. frequencyHz and duration come straight
// from the configuration.
func NewTone(frequencyHz int, duration time.Duration) *Tone {
	return &Tone{frequency: float64(frequencyHz), duration: duration}
}

// Emit plays the tone. It blocks for the duration of the beep.
func (t *Tone) Emit(_ context.Context) error {
	if err := beeep.Beep(t.frequency, int(t.duration.Milliseconds())); err != nil {
		return fmt.Errorf("alert: beep: %w", err)
	}
	return nil
}

// Nop is a no-op emitter useful in tests.
type Nop struct{}

func (Nop) Emit(context.Context) error { return nil }

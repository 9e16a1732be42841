package ingest

import (
	"context"
	"math"
)

// Event is one progress notification. The same shape carries progress,
// completion and fatal errors so a single consumer loop can tell them apart.
type Event struct {
	Progress  int    `json:"progress"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Complete  bool   `json:"complete,omitempty"`
	Table     string `json:"table,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Emitter delivers events to whoever started the run. Emit may block.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev Event) error

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// ChanEmitter sends events on ch, blocking until they are received or ctx is
// done.
func ChanEmitter(ch chan<- Event) Emitter {
	return EmitterFunc(func(ctx context.Context, ev Event) error {
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

var discard = EmitterFunc(func(context.Context, Event) error { return nil })

// Percent returns round(processed/total*100) clamped to [0, 100]. An unknown
// or zero total reports 0.
func Percent(processed, total int) int {
	if total <= 0 || processed <= 0 {
		return 0
	}
	p := int(math.Round(float64(processed) / float64(total) * 100))
	if p > 100 {
		return 100
	}
	return p
}

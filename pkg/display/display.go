// Package display renders menu views: a terminal UI for the local user and a
// websocket feed for remote viewers.
package display

import (
	"context"
	"errors"
	"time"

	"github.com/itohio/gopulse/pkg/menu"
)

// Display draws a view. Implementations must return quickly; Render is called
// from the main loop on every iteration.
type Display interface {
	Render(v menu.View) error
}

var (
	_ Display = (*Terminal)(nil)
	_ Display = (*Hub)(nil)
	_ Display = Multi(nil)
)

// Multi renders to every display in order and joins their errors.
type Multi []Display

// Render renders v on each display.
func (m Multi) Render(v menu.View) error {
	var errs []error
	for _, d := range m {
		if err := d.Render(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Engine is one iteration of the main loop plus the two input events.
type Engine interface {
	Step(ctx context.Context) menu.View
	Rotate(delta int)
	Confirm(ctx context.Context)
}

// Debouncer drops events that arrive within Interval of the last accepted one.
type Debouncer struct {
	Interval time.Duration
	last     time.Time
}

// Allow reports whether an event at now should be accepted.
func (d *Debouncer) Allow(now time.Time) bool {
	if !d.last.IsZero() && now.Sub(d.last) < d.Interval {
		return false
	}
	d.last = now
	return true
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/itohio/gopulse/pkg/config"
	"github.com/itohio/gopulse/pkg/display"
	"github.com/itohio/gopulse/pkg/menu"
	"github.com/itohio/gopulse/pkg/monitor"
	"github.com/itohio/gopulse/pkg/ppg"
	"github.com/itohio/gopulse/pkg/publish"
	"github.com/itohio/gopulse/pkg/queue"
	"github.com/itohio/gopulse/pkg/session"
	"github.com/itohio/gopulse/pkg/store"
)

var _ display.Engine = (*app)(nil)

// app owns every component. It is built once at startup and driven by the
// main loop.
type app struct {
	cfg     *config.Config
	device  ppg.Device
	monitor *monitor.Monitor
	session *session.Controller
	menu    *menu.Menu
	store   store.Store
	pub     publish.Publisher

	closers []func() error
}

// newApp wires the pipeline. The device is not connected until start.
func newApp(cfg *config.Config, device ppg.Device) (*app, error) {
	q, err := queue.New(cfg.Sampling.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create sample queue: %w", err)
	}

	a := &app{
		cfg:     cfg,
		device:  device,
		monitor: monitor.New(q, cfg),
		pub:     publish.Nop{},
	}

	a.store, err = store.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	if cfg.Publish.Enabled {
		nc, err := publish.Connect(cfg.Publish.URL)
		if err != nil {
			// Publishing is best effort; the monitor works without a broker.
			log.Printf("Publishing disabled: %v", err)
		} else {
			a.pub = nc
			a.closers = append(a.closers, nc.Close)
		}
	}

	a.session = session.New(a.monitor, a.store, a.pub,
		session.WithDuration(cfg.Session.Duration),
		session.WithPublishTimeout(cfg.Session.PublishTimeout),
		session.WithTopic(cfg.Publish.Topic),
	)
	a.menu = menu.New(a.monitor, a.session, a.store)

	a.monitor.OnBeat(func(b monitor.Beat) {
		if b.Published {
			log.Printf("HR %d BPM (ibi %d ms)", b.Smoothed, b.IBI)
		}
	})

	return a, nil
}

// start connects the sample source; from here on the queue fills at the
// sampling rate.
func (a *app) start() error {
	if err := a.device.Connect(a.monitor); err != nil {
		return fmt.Errorf("failed to connect sensor: %w", err)
	}
	a.closers = append([]func() error{a.device.Close}, a.closers...)
	return nil
}

// Step is one main loop iteration: drain the queue, advance the session and
// produce the view.
func (a *app) Step(ctx context.Context) menu.View {
	a.monitor.Poll()
	a.menu.Tick(ctx)
	return a.menu.View()
}

// Rotate forwards a rotation event.
func (a *app) Rotate(delta int) {
	a.menu.Rotate(delta)
}

// Confirm forwards a button press.
func (a *app) Confirm(ctx context.Context) {
	a.menu.Confirm(ctx)
}

// close stops the device first so nothing is pushed into a pipeline being
// torn down.
func (a *app) close() error {
	// Let an in-flight result publish finish before the connection drains.
	a.session.Wait()

	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	st := a.monitor.Stats()
	log.Printf("Processed %d samples, %d beats, %d dropped", st.Processed, st.Beats, st.Dropped)
	return errors.Join(errs...)
}

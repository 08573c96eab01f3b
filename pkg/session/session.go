// Package session runs the fixed-length HRV capture window.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itohio/gopulse/pkg/hrv"
	"github.com/itohio/gopulse/pkg/monitor"
	"github.com/itohio/gopulse/pkg/publish"
	"github.com/itohio/gopulse/pkg/rate"
	"github.com/itohio/gopulse/pkg/store"
)

// Defaults for a capture session.
const (
	DefaultDuration       = 30 * time.Second
	DefaultPublishTimeout = 2 * time.Second
	DefaultTopic          = "pulse.hrv"
)

// ErrNotComplete is returned by Result before the capture window has elapsed.
var ErrNotComplete = errors.New("session: capture not complete")

// State is the capture session state.
type State int

const (
	Idle       State = iota // no session
	Armed                   // session requested, timer not started
	Collecting              // timer running
	Complete                // window elapsed, snapshot computed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Collecting:
		return "collecting"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithDuration sets the capture window length.
func WithDuration(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.duration = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTopic sets the publish topic.
func WithTopic(topic string) Option {
	return func(c *Controller) {
		if topic != "" {
			c.topic = topic
		}
	}
}

// WithPublishTimeout bounds a single publish attempt.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.publishTimeout = d
		}
	}
}

// Controller is the capture session state machine:
//
//	Idle -> Armed -> Collecting -> Complete -> Idle
//
// The entry action of Complete (compute, store, publish) runs once per
// session no matter how often Tick is called afterwards. The publish runs in
// the background so a slow broker never holds up the main loop. Controller
// belongs to the main loop and is not safe for concurrent use.
type Controller struct {
	pipe  monitor.Pipeline
	store store.Store
	pub   publish.Publisher

	duration       time.Duration
	publishTimeout time.Duration
	topic          string
	now            func() time.Time

	state   State
	id      string
	started time.Time
	latched bool

	result    hrv.Snapshot
	resultErr error

	publishing sync.WaitGroup
}

// New creates an idle controller. A nil store or publisher disables that side
// effect.
func New(pipe monitor.Pipeline, st store.Store, pub publish.Publisher, opts ...Option) *Controller {
	if pub == nil {
		pub = publish.Nop{}
	}
	c := &Controller{
		pipe:           pipe,
		store:          st,
		pub:            pub,
		duration:       DefaultDuration,
		publishTimeout: DefaultPublishTimeout,
		topic:          DefaultTopic,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Arm starts a new session, discarding any previous one.
func (c *Controller) Arm() {
	c.reset()
	c.id = uuid.NewString()
	c.state = Armed
}

// Exit abandons the session and clears the pipeline.
func (c *Controller) Exit() {
	c.reset()
}

func (c *Controller) reset() {
	c.pipe.Reset()
	c.state = Idle
	c.id = ""
	c.started = time.Time{}
	c.latched = false
	c.result = hrv.Snapshot{}
	c.resultErr = nil
}

// Tick advances the state machine. Call it once per main loop iteration.
func (c *Controller) Tick(ctx context.Context) {
	switch c.state {
	case Armed:
		c.started = c.now()
		c.state = Collecting
	case Collecting:
		if c.now().Sub(c.started) >= c.duration {
			c.state = Complete
			c.complete(ctx)
		}
	}
}

// complete is the entry action of Complete.
func (c *Controller) complete(ctx context.Context) {
	if c.latched {
		return
	}
	c.latched = true

	ibis := c.pipe.IBIs()
	meanHR := c.pipe.CurrentHR()
	if meanHR == 0 {
		if ppi, err := hrv.MeanPPI(ibis); err == nil {
			meanHR = rate.InstantHR(ppi)
		}
	}

	snap, err := hrv.Compute(meanHR, ibis)
	if err != nil {
		c.resultErr = err
		log.Printf("Session %s: no result: %v", c.id, err)
		return
	}
	snap.SessionID = c.id
	snap.Time = c.now()
	snap.Beats = len(ibis)
	c.result = snap

	log.Printf("Session %s complete: %s", c.id, snap)

	if c.store != nil {
		if err := c.store.Save(ctx, snap); err != nil {
			log.Printf("Failed to store session %s: %v", c.id, err)
		}
	}

	// The publish outlives this Tick, so only the timeout bounds it.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
	c.publishing.Add(1)
	go func() {
		defer c.publishing.Done()
		defer cancel()
		if err := c.pub.Publish(pctx, c.topic, snap); err != nil {
			log.Printf("Failed to publish session %s: %v", snap.SessionID, err)
		}
	}()
}

// Wait blocks until background publishes have finished.
func (c *Controller) Wait() {
	c.publishing.Wait()
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// ID returns the current session ID, empty when idle.
func (c *Controller) ID() string {
	return c.id
}

// Remaining returns the time left in the capture window.
func (c *Controller) Remaining() time.Duration {
	switch c.state {
	case Armed:
		return c.duration
	case Collecting:
		return max(c.duration-c.now().Sub(c.started), 0)
	default:
		return 0
	}
}

// Result returns the session snapshot once Complete. It returns
// hrv.ErrInsufficientData when the window held fewer than two valid intervals.
func (c *Controller) Result() (hrv.Snapshot, error) {
	if c.state != Complete {
		return hrv.Snapshot{}, ErrNotComplete
	}
	return c.result, c.resultErr
}

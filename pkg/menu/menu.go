// Package menu is the page/selection state machine driven by the rotary
// input. It reads pipeline outputs and triggers resets, nothing more.
package menu

import (
	"context"
	"log"
	"time"

	"github.com/itohio/gopulse/pkg/hrv"
	"github.com/itohio/gopulse/pkg/monitor"
	"github.com/itohio/gopulse/pkg/rate"
	"github.com/itohio/gopulse/pkg/session"
	"github.com/itohio/gopulse/pkg/store"
)

// Page identifies a screen.
type Page int

const (
	Main Page = iota
	HeartRate
	HRVIntro
	HRVResult
	History
)

var pageNames = map[Page]string{
	Main:      "main",
	HeartRate: "heart_rate",
	HRVIntro:  "hrv_intro",
	HRVResult: "hrv_result",
	History:   "history",
}

func (p Page) String() string {
	if s, ok := pageNames[p]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the page by name.
func (p Page) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Options are the main page entries, in selection order.
var Options = []string{"Measure HR", "HRV analysis", "History"}

// targets maps a main page selection to the page it opens.
var targets = [...]Page{HeartRate, HRVIntro, History}

// Session is the capture session the HRV pages drive.
type Session interface {
	Arm()
	Exit()
	Tick(ctx context.Context)
	State() session.State
	Remaining() time.Duration
	Result() (hrv.Snapshot, error)
}

var _ Session = (*session.Controller)(nil)

// tracer is implemented by pipelines that keep a waveform for display.
type tracer interface {
	Trace(dst []uint16, maxPoints int) []uint16
}

// TracePoints is the number of waveform points placed in a View.
const TracePoints = 128

// Menu is owned by the main loop.
type Menu struct {
	pipe    monitor.Pipeline
	session Session
	store   store.Store

	minHR, maxHR int

	page      Page
	selection int

	history      hrv.Snapshot
	historyFound bool
}

// New creates a menu on the main page. st may be nil, in which case History
// always shows no data.
func New(pipe monitor.Pipeline, sess Session, st store.Store) *Menu {
	def := rate.DefaultConfig()
	return &Menu{
		pipe:    pipe,
		session: sess,
		store:   st,
		minHR:   def.MinHR,
		maxHR:   def.MaxHR,
	}
}

// Page returns the current page.
func (m *Menu) Page() Page {
	return m.page
}

// Selection returns the highlighted main page entry.
func (m *Menu) Selection() int {
	return m.selection
}

// Rotate moves the main page selection by one step in the direction of
// delta. It is ignored on other pages.
func (m *Menu) Rotate(delta int) {
	if m.page != Main || delta == 0 {
		return
	}
	if delta > 0 {
		m.selection++
	} else {
		m.selection--
	}
	m.selection = max(0, min(m.selection, len(Options)-1))
}

// Confirm handles a button press.
func (m *Menu) Confirm(ctx context.Context) {
	switch m.page {
	case Main:
		m.enter(ctx, targets[m.selection])
	case HeartRate, History:
		m.page = Main
	case HRVIntro:
		m.session.Arm()
		m.page = HRVResult
	case HRVResult:
		m.session.Exit()
		m.page = Main
	}
}

func (m *Menu) enter(ctx context.Context, p Page) {
	switch p {
	case HeartRate:
		m.pipe.Reset()
	case History:
		m.loadHistory(ctx)
	}
	m.page = p
}

func (m *Menu) loadHistory(ctx context.Context) {
	m.history, m.historyFound = hrv.Snapshot{}, false
	if m.store == nil {
		return
	}
	snap, found, err := m.store.Load(ctx)
	if err != nil {
		log.Printf("Failed to load history: %v", err)
		return
	}
	m.history, m.historyFound = snap, found
}

// Tick advances the capture session.
func (m *Menu) Tick(ctx context.Context) {
	m.session.Tick(ctx)
}

// View describes what to show. It carries values only; layout is the
// display's business.
type View struct {
	Page      Page     `json:"page"`
	Options   []string `json:"options,omitempty"`
	Selection int      `json:"selection"`

	// HeartRate page.
	HeartRate int  `json:"heart_rate,omitempty"`
	Measuring bool `json:"measuring,omitempty"` // no valid HR yet

	// HRVResult page.
	Session   string        `json:"session,omitempty"`
	Remaining time.Duration `json:"remaining,omitempty"`
	Result    []hrv.Field   `json:"result,omitempty"`
	NoResult  bool          `json:"no_result,omitempty"` // session ended without enough beats

	// History page.
	History []hrv.Field `json:"history,omitempty"`
	NoData  bool        `json:"no_data,omitempty"`

	Trace []uint16 `json:"trace,omitempty"`
}

// View returns the current view.
func (m *Menu) View() View {
	v := View{
		Page:      m.page,
		Selection: m.selection,
	}

	if t, ok := m.pipe.(tracer); ok {
		v.Trace = t.Trace(nil, TracePoints)
	}

	switch m.page {
	case Main:
		v.Options = Options
	case HeartRate:
		hr := m.pipe.CurrentHR()
		if hr >= m.minHR && hr <= m.maxHR {
			v.HeartRate = hr
		} else {
			v.Measuring = true
		}
	case HRVResult:
		st := m.session.State()
		v.Session = st.String()
		v.Remaining = m.session.Remaining()
		if st == session.Complete {
			if snap, err := m.session.Result(); err == nil {
				v.Result = snap.Fields()
			} else {
				v.NoResult = true
			}
		}
	case History:
		if m.historyFound {
			v.History = m.history.Fields()
		} else {
			v.NoData = true
		}
	}

	return v
}

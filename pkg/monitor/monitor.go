// Package monitor is the analysis side of the pulse pipeline. It drains the
// sample queue, runs the peak detector and rate accumulator, and keeps a short
// waveform trace for display.
package monitor

import (
	"time"

	"github.com/itohio/gopulse/pkg/beat"
	"github.com/itohio/gopulse/pkg/config"
	"github.com/itohio/gopulse/pkg/queue"
	"github.com/itohio/gopulse/pkg/rate"
)

// DefaultTraceSize is two seconds of waveform at 250 Hz.
const DefaultTraceSize = 500

var _ Pipeline = (*Monitor)(nil)

// Beat is a confirmed heartbeat with a measurable interval.
type Beat struct {
	IBI       int  // ms
	HR        int  // instantaneous BPM, 0 for a zero interval
	Smoothed  int  // smoothed BPM published by this beat
	Published bool // this beat completed a smoothing window
}

// Pipeline is what the session controller and menu drive.
type Pipeline interface {
	Poll() int
	CurrentHR() int
	IBIs() []int
	Reset()
}

// Monitor owns every stage of the pipeline except the queue's producer side.
// Push is the only method that may be called from the acquisition context;
// everything else belongs to the main loop.
type Monitor struct {
	queue  *queue.Ring
	det    *beat.Detector
	acc    *rate.Accumulator
	period time.Duration

	trace    []uint16 // ring of recent samples
	tracePos int
	traceLen int

	processed uint64
	beats     uint64

	callbacks []func(Beat)
}

// New creates a monitor reading from q with parameters taken from cfg.
func New(q *queue.Ring, cfg *config.Config) *Monitor {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Monitor{
		queue: q,
		det: beat.New(beat.Config{
			ThresholdRatio: float32(cfg.Detector.ThresholdRatio),
			WindowSize:     cfg.Detector.WindowSamples,
		}),
		acc: rate.New(rate.Config{
			MinIBI:         cfg.Rate.MinIBI,
			MaxIBI:         cfg.Rate.MaxIBI,
			MinHR:          cfg.Rate.MinHR,
			MaxHR:          cfg.Rate.MaxHR,
			SmoothingBeats: cfg.Rate.SmoothingBeats,
		}),
		period: cfg.SamplePeriod(),
		trace:  make([]uint16, DefaultTraceSize),
	}
}

// Push hands a sample to the queue. Safe to call from the acquisition context.
func (m *Monitor) Push(v uint16) {
	m.queue.Push(v)
}

// Poll drains every sample currently in the queue and returns how many were
// processed.
func (m *Monitor) Poll() int {
	n := 0
	for {
		v, ok := m.queue.Pop()
		if !ok {
			return n
		}
		m.process(v)
		n++
	}
}

func (m *Monitor) process(v uint16) {
	m.processed++

	m.trace[m.tracePos] = v
	m.tracePos = (m.tracePos + 1) % len(m.trace)
	if m.traceLen < len(m.trace) {
		m.traceLen++
	}

	samples, ok := m.det.Process(v)
	if !ok {
		return
	}

	ibi := rate.FromSamples(samples, m.period)
	smoothed, published := m.acc.Add(ibi)
	m.beats++

	b := Beat{
		IBI:       ibi,
		HR:        rate.InstantHR(ibi),
		Smoothed:  smoothed,
		Published: published,
	}
	for _, cb := range m.callbacks {
		cb(b)
	}
}

// OnBeat registers a callback invoked from Poll for every measured beat.
func (m *Monitor) OnBeat(cb func(Beat)) {
	if cb != nil {
		m.callbacks = append(m.callbacks, cb)
	}
}

// CurrentHR returns the last smoothed heart rate, 0 when unset.
func (m *Monitor) CurrentHR() int {
	return m.acc.CurrentHR()
}

// IBIs returns a copy of the validated intervals since the last reset.
func (m *Monitor) IBIs() []int {
	return m.acc.IBIs()
}

// Threshold returns the detector threshold for the most recent sample.
func (m *Monitor) Threshold() float32 {
	return m.det.Threshold()
}

// Trace copies the recent waveform, oldest first, into dst downsampled to at
// most maxPoints values.
func (m *Monitor) Trace(dst []uint16, maxPoints int) []uint16 {
	ordered := make([]uint16, 0, m.traceLen)
	start := (m.tracePos - m.traceLen + len(m.trace)) % len(m.trace)
	for i := range m.traceLen {
		ordered = append(ordered, m.trace[(start+i)%len(m.trace)])
	}
	return Downsample(dst, ordered, maxPoints)
}

// Stats describes pipeline throughput since startup.
type Stats struct {
	Processed uint64 // samples analysed
	Beats     uint64 // intervals measured
	Dropped   uint64 // samples lost to queue overflow
	Queued    int    // samples waiting in the queue
}

// Stats returns throughput counters. Counters survive Reset.
func (m *Monitor) Stats() Stats {
	return Stats{
		Processed: m.processed,
		Beats:     m.beats,
		Dropped:   m.queue.Dropped(),
		Queued:    m.queue.Len(),
	}
}

// Reset discards queued samples and clears detector state, both histories
// and the trace. It is a hard reset: nothing measured before it leaks into
// the next session.
func (m *Monitor) Reset() {
	m.queue.Clear()
	m.det.Reset()
	m.acc.Reset()
	clear(m.trace)
	m.tracePos = 0
	m.traceLen = 0
}

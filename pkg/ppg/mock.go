package ppg

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/gopulse/pkg/config"
)

// Waveform synthesises a PPG-like signal one sample at a time: a systolic
// peak followed by a smaller dicrotic wave on top of a DC baseline.
// Beat boundaries are counted in whole samples, so with zero variability the
// peak-to-peak distance is exact.
type Waveform struct {
	cfg  config.MockConfig
	rate float64 // Hz
	rng  *rand.Rand

	pos    int // sample index within the current beat
	length int // current beat length in samples
}

// NewWaveform creates a generator for the given sampling rate. The seed makes
// noise and beat jitter reproducible.
func NewWaveform(cfg config.MockConfig, rateHz int, seed uint64) *Waveform {
	w := &Waveform{
		cfg:  cfg,
		rate: float64(rateHz),
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	w.length = w.nextLength()
	return w
}

// BeatSamples returns the nominal beat length in samples.
func (w *Waveform) BeatSamples() int {
	if w.cfg.HeartRate <= 0 {
		return int(w.rate)
	}
	return int(math.Round(w.rate * 60 / w.cfg.HeartRate))
}

// ReadU16 returns the next sample.
func (w *Waveform) ReadU16() uint16 {
	t := float64(w.pos) / float64(w.length)

	shape := gauss(t, 0.25, 0.07) + 0.35*gauss(t, 0.55, 0.08)
	v := w.cfg.Baseline + w.cfg.Amplitude*shape
	if w.cfg.NoiseLevel > 0 {
		v += w.cfg.NoiseLevel * (2*w.rng.Float64() - 1)
	}

	w.pos++
	if w.pos >= w.length {
		w.pos = 0
		w.length = w.nextLength()
	}

	return clampU16(v)
}

func (w *Waveform) nextLength() int {
	n := float64(w.BeatSamples())
	if w.cfg.Variability > 0 {
		n *= 1 + w.cfg.Variability*(2*w.rng.Float64()-1)
	}
	if n < 2 {
		n = 2
	}
	return int(math.Round(n))
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func clampU16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

// Timer reads an ADC once per period and pushes the value into a sink. It
// stands in for the hardware timer interrupt: each tick does one read and one
// push.
type Timer struct {
	adc    ADC
	period time.Duration
	ticks  atomic.Uint64
}

// NewTimer creates a periodic sampler.
func NewTimer(adc ADC, period time.Duration) *Timer {
	return &Timer{adc: adc, period: period}
}

// Run samples until ctx is cancelled.
func (t *Timer) Run(ctx context.Context, sink Sink) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sink.Push(t.adc.ReadU16())
			t.ticks.Add(1)
		}
	}
}

// Ticks returns the number of samples taken.
func (t *Timer) Ticks() uint64 {
	return t.ticks.Load()
}

// Mock simulates a pulse sensor for testing and development.
type Mock struct {
	timer *Timer

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
}

// NewMock creates a new mocked device sampling a synthetic waveform at rateHz.
func NewMock(cfg *config.MockConfig, rateHz int) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	if rateHz <= 0 {
		rateHz = 250
	}

	wave := NewWaveform(*cfg, rateHz, uint64(time.Now().UnixNano()))
	return &Mock{
		timer: NewTimer(wave, time.Second/time.Duration(rateHz)),
	}
}

// Connect starts generating samples into sink.
func (m *Mock) Connect(sink Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.connected = true

	go func(done chan<- struct{}) {
		defer close(done)
		m.timer.Run(ctx, sink)
	}(m.done)

	return nil
}

// Close stops the mocked device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	<-m.done
	m.connected = false

	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Samples returns the number of samples generated so far.
func (m *Mock) Samples() uint64 {
	return m.timer.Ticks()
}

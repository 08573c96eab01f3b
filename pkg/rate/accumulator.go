// Package rate converts inter-beat intervals into heart rate.
package rate

import (
	"time"

	"github.com/chewxy/math32"
)

const msPerMinute = 60000

// Config contains validation bounds and smoothing parameters.
type Config struct {
	MinIBI         int // ms, inclusive
	MaxIBI         int // ms, inclusive
	MinHR          int // BPM, inclusive
	MaxHR          int // BPM, inclusive
	SmoothingBeats int // HR values averaged into one published HR
}

// DefaultConfig returns the 30-240 BPM validation window with 5-beat smoothing.
func DefaultConfig() Config {
	return Config{
		MinIBI:         250,
		MaxIBI:         2000,
		MinHR:          30,
		MaxHR:          240,
		SmoothingBeats: 5,
	}
}

// Accumulator collects inter-beat intervals for HRV and publishes a smoothed
// heart rate every SmoothingBeats valid beats. Windows do not overlap: the HR
// history is cleared each time a value is published.
//
// Accumulator is owned by the analysis loop and is not safe for concurrent use.
type Accumulator struct {
	cfg Config

	ibis      []int // validated intervals for the current session
	hrs       []int // per-beat HR since the last published value
	currentHR int
}

// New creates an accumulator. Zero config fields take their defaults.
func New(cfg Config) *Accumulator {
	def := DefaultConfig()
	if cfg.MinIBI == 0 {
		cfg.MinIBI = def.MinIBI
	}
	if cfg.MaxIBI == 0 {
		cfg.MaxIBI = def.MaxIBI
	}
	if cfg.MinHR == 0 {
		cfg.MinHR = def.MinHR
	}
	if cfg.MaxHR == 0 {
		cfg.MaxHR = def.MaxHR
	}
	if cfg.SmoothingBeats <= 0 {
		cfg.SmoothingBeats = def.SmoothingBeats
	}
	return &Accumulator{
		cfg:  cfg,
		hrs:  make([]int, 0, cfg.SmoothingBeats),
		ibis: make([]int, 0, 64),
	}
}

// FromSamples converts a detector interval in samples to milliseconds.
func FromSamples(samples int, period time.Duration) int {
	return int(time.Duration(samples) * period / time.Millisecond)
}

// InstantHR returns round(60000/ibi), or 0 for a zero interval.
func InstantHR(ibiMS int) int {
	if ibiMS == 0 {
		return 0
	}
	return int(math32.Round(float32(msPerMinute) / float32(ibiMS)))
}

// Add records one interval. It returns the newly published smoothed HR and
// true when this beat completed a smoothing window.
//
// The IBI and HR checks are independent: an interval outside the IBI range
// is kept out of the HRV history but its HR may still count, and vice versa.
func (a *Accumulator) Add(ibiMS int) (int, bool) {
	if ibiMS >= a.cfg.MinIBI && ibiMS <= a.cfg.MaxIBI {
		a.ibis = append(a.ibis, ibiMS)
	}

	if ibiMS == 0 {
		return 0, false
	}

	hr := InstantHR(ibiMS)
	if hr < a.cfg.MinHR || hr > a.cfg.MaxHR {
		return 0, false
	}
	a.hrs = append(a.hrs, hr)

	if len(a.hrs) < a.cfg.SmoothingBeats {
		return 0, false
	}

	var sum int
	for _, v := range a.hrs {
		sum += v
	}
	a.currentHR = int(math32.Round(float32(sum) / float32(len(a.hrs))))
	a.hrs = a.hrs[:0]

	return a.currentHR, true
}

// CurrentHR returns the last published smoothed HR, 0 before the first window completes.
func (a *Accumulator) CurrentHR() int {
	return a.currentHR
}

// Pending returns the number of HR values waiting for the next smoothing window.
func (a *Accumulator) Pending() int {
	return len(a.hrs)
}

// IBIs returns a copy of the validated interval history.
func (a *Accumulator) IBIs() []int {
	out := make([]int, len(a.ibis))
	copy(out, a.ibis)
	return out
}

// Beats returns the number of validated intervals.
func (a *Accumulator) Beats() int {
	return len(a.ibis)
}

// Reset clears both histories and the published HR.
func (a *Accumulator) Reset() {
	a.ibis = a.ibis[:0]
	a.hrs = a.hrs[:0]
	a.currentHR = 0
}

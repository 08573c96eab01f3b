// Package beat turns a raw PPG sample stream into heartbeat events.
package beat

import (
	"github.com/chewxy/math32"
)

const (
	// DefaultThresholdRatio places the threshold 20% of the amplitude below the window maximum.
	DefaultThresholdRatio = 0.2
	// DefaultWindowSize is the number of recent samples the threshold is computed over.
	DefaultWindowSize = 500
)

// Config contains detector parameters.
type Config struct {
	ThresholdRatio float32
	WindowSize     int
}

// Detector is an adaptive-threshold, edge-triggered peak detector.
//
// The threshold is max - k*(max-min) over a sliding window of the most recent
// samples. A peak is confirmed on the first downward turn of each
// above-threshold excursion; the excursion must fall back to or below the
// threshold before another peak can be confirmed.
//
// Detector is not safe for concurrent use; it belongs to the analysis loop.
type Detector struct {
	ratio float32

	window []uint16 // ring of recent samples
	pos    int
	filled int

	threshold float32
	prev      uint16
	sinceLast int  // samples since the last confirmed peak (or since reset)
	above     bool // a peak was already confirmed in the current excursion
	baseline  bool // at least one peak confirmed since reset
}

// New creates a detector. Zero config fields take their defaults.
func New(cfg Config) *Detector {
	if cfg.ThresholdRatio <= 0 || cfg.ThresholdRatio >= 1 {
		cfg.ThresholdRatio = DefaultThresholdRatio
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	return &Detector{
		ratio:  cfg.ThresholdRatio,
		window: make([]uint16, cfg.WindowSize),
	}
}

// Process consumes one sample. When it confirms a peak that has a previous
// peak to measure against, it returns the distance between the two in
// samples and true. The first peak after Reset only establishes the baseline.
func (d *Detector) Process(v uint16) (int, bool) {
	d.push(v)
	d.threshold = d.computeThreshold()
	d.sinceLast++

	var (
		interval int
		ok       bool
	)

	if float32(v) > d.threshold {
		if d.prev > v && !d.above {
			d.above = true
			if d.baseline {
				interval, ok = d.sinceLast, true
			}
			d.baseline = true
			d.sinceLast = 0
		}
	} else {
		d.above = false
	}

	d.prev = v
	return interval, ok
}

// Threshold returns the threshold used for the most recent sample.
func (d *Detector) Threshold() float32 {
	return d.threshold
}

// Reset returns the detector to its initial state.
func (d *Detector) Reset() {
	clear(d.window)
	d.pos = 0
	d.filled = 0
	d.threshold = 0
	d.prev = 0
	d.sinceLast = 0
	d.above = false
	d.baseline = false
}

func (d *Detector) push(v uint16) {
	d.window[d.pos] = v
	d.pos = (d.pos + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}
}

// computeThreshold returns the adaptive threshold for the current window.
// A window with fewer than two samples or no amplitude yields max, which
// suppresses detection until the signal varies.
func (d *Detector) computeThreshold() float32 {
	lo, hi := math32.Inf(1), math32.Inf(-1)
	for _, s := range d.window[:d.filled] {
		f := float32(s)
		lo = math32.Min(lo, f)
		hi = math32.Max(hi, f)
	}
	if d.filled < 2 || lo == hi {
		return hi
	}
	return hi - d.ratio*(hi-lo)
}

package beat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBase = 20000
	testAmp  = 10000
)

// pulse returns one cycle of a triangular pulse peaking at sample 20 followed
// by a flat baseline.
func pulse(period int) []uint16 {
	out := make([]uint16, period)
	for i := range out {
		var shape float64
		switch {
		case i <= 20:
			shape = float64(i) / 20
		case i < 40:
			shape = float64(40-i) / 20
		}
		out[i] = uint16(testBase + shape*testAmp)
	}
	return out
}

func pulseTrain(period, cycles int) []uint16 {
	var out []uint16
	for range cycles {
		out = append(out, pulse(period)...)
	}
	return out
}

func run(d *Detector, samples []uint16) []int {
	var intervals []int
	for _, s := range samples {
		if n, ok := d.Process(s); ok {
			intervals = append(intervals, n)
		}
	}
	return intervals
}

func TestNew_Defaults(t *testing.T) {
	d := New(Config{})
	assert.Equal(t, float32(DefaultThresholdRatio), d.ratio)
	assert.Len(t, d.window, DefaultWindowSize)

	d = New(Config{ThresholdRatio: 2, WindowSize: 10})
	assert.Equal(t, float32(DefaultThresholdRatio), d.ratio)
	assert.Len(t, d.window, 10)
}

func TestProcess_FlatSignal(t *testing.T) {
	d := New(Config{})

	for range 2000 {
		_, ok := d.Process(30000)
		require.False(t, ok)
	}
	// Degenerate window: threshold equals max.
	assert.Equal(t, float32(30000), d.Threshold())
}

func TestProcess_Threshold(t *testing.T) {
	d := New(Config{ThresholdRatio: 0.2, WindowSize: 10})

	d.Process(0)
	assert.Equal(t, float32(0), d.Threshold())

	d.Process(100)
	assert.InDelta(t, 80.0, d.Threshold(), 1e-3)

	d.Process(50)
	assert.InDelta(t, 80.0, d.Threshold(), 1e-3)
}

func TestProcess_SlidingWindow(t *testing.T) {
	d := New(Config{ThresholdRatio: 0.5, WindowSize: 3})

	d.Process(0)
	d.Process(100)
	d.Process(100)
	assert.InDelta(t, 50.0, d.Threshold(), 1e-3)

	// 0 leaves the window
	d.Process(60)
	assert.InDelta(t, 80.0, d.Threshold(), 1e-3)
}

func TestProcess_RegularPulses(t *testing.T) {
	d := New(Config{})

	intervals := run(d, pulseTrain(200, 10))

	// First peak is the baseline, the other nine are measured.
	require.Len(t, intervals, 9)
	for _, n := range intervals {
		assert.Equal(t, 200, n)
	}
}

func TestProcess_VaryingPeriod(t *testing.T) {
	d := New(Config{})

	var samples []uint16
	periods := []int{200, 180, 220, 200, 250}
	for _, p := range periods {
		samples = append(samples, pulse(p)...)
	}
	samples = append(samples, pulse(200)...)

	intervals := run(d, samples)
	assert.Equal(t, periods, intervals)
}

func TestProcess_OnePeakPerExcursion(t *testing.T) {
	d := New(Config{})

	// A pulse with a notch near the top: up, small dip, up again, down.
	// The whole excursion stays above threshold so only one peak may fire.
	notched := func() []uint16 {
		out := make([]uint16, 200)
		for i := range out {
			out[i] = testBase
		}
		top := []uint16{24000, 28000, 29500, 30000, 29700, 29800, 30000, 29600, 29000, 28500, 24000}
		copy(out[10:], top)
		return out
	}

	var samples []uint16
	for range 6 {
		samples = append(samples, notched()...)
	}

	intervals := run(d, samples)
	require.Len(t, intervals, 5)
	for _, n := range intervals {
		assert.Equal(t, 200, n)
	}
}

func TestProcess_ExcursionCountProperty(t *testing.T) {
	// Whatever the shape, confirmations never exceed the number of
	// above-threshold excursions.
	d := New(Config{})
	samples := pulseTrain(150, 20)
	for i := range samples {
		if i%7 == 0 {
			samples[i] += 400
		}
	}

	excursions := 0
	peaks := 0
	wasAbove := false
	for _, s := range samples {
		_, ok := d.Process(s)
		above := float32(s) > d.Threshold()
		if above && !wasAbove {
			excursions++
		}
		wasAbove = above
		if ok {
			peaks++
		}
	}
	// +1 for the discarded baseline peak
	assert.LessOrEqual(t, peaks+1, excursions)
}

func TestProcess_FirstPeakDiscardedAfterReset(t *testing.T) {
	d := New(Config{})

	intervals := run(d, pulseTrain(200, 3))
	assert.Len(t, intervals, 2)

	d.Reset()
	assert.Equal(t, float32(0), d.Threshold())

	// A long quiet gap before the next pulse must not show up as an interval.
	var samples []uint16
	for range 1000 {
		samples = append(samples, testBase)
	}
	samples = append(samples, pulseTrain(200, 2)...)

	intervals = run(d, samples)
	assert.Equal(t, []int{200}, intervals)
}

func TestProcess_TinyWindowNeverFires(t *testing.T) {
	d := New(Config{WindowSize: 1})

	intervals := run(d, pulseTrain(200, 5))
	assert.Empty(t, intervals)
}

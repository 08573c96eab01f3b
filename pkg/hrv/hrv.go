// Package hrv computes time-domain heart rate variability statistics over a
// series of inter-beat intervals in milliseconds.
package hrv

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrInsufficientData is returned when fewer than two intervals are available.
var ErrInsufficientData = errors.New("hrv: insufficient data")

// Field labels of a stored snapshot.
const (
	LabelMeanHR  = "Mean HR"
	LabelMeanPPI = "Mean PPI"
	LabelRMSSD   = "RMSSD"
	LabelSDNN    = "SDNN"
)

// Snapshot is the result of one capture session.
type Snapshot struct {
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`
	Beats     int       `json:"beats"`

	MeanHR  int `json:"mean_hr"`  // BPM
	MeanPPI int `json:"mean_ppi"` // ms
	RMSSD   int `json:"rmssd"`    // ms
	SDNN    int `json:"sdnn"`     // ms
}

// Field is a labelled snapshot value.
type Field struct {
	Label string
	Value int
}

// Fields returns the four snapshot values in display order.
func (s Snapshot) Fields() []Field {
	return []Field{
		{LabelMeanHR, s.MeanHR},
		{LabelMeanPPI, s.MeanPPI},
		{LabelRMSSD, s.RMSSD},
		{LabelSDNN, s.SDNN},
	}
}

// String formats the snapshot as "Mean HR: 72, Mean PPI: 833, ...".
func (s Snapshot) String() string {
	var out []byte
	for i, f := range s.Fields() {
		if i > 0 {
			out = append(out, ", "...)
		}
		out = append(out, f.Label...)
		out = append(out, ": "...)
		out = strconv.AppendInt(out, int64(f.Value), 10)
	}
	return string(out)
}

// Compute builds a snapshot from the session's intervals and the last
// smoothed heart rate.
func Compute(meanHR int, ibis []int) (Snapshot, error) {
	meanPPI, err := MeanPPI(ibis)
	if err != nil {
		return Snapshot{}, err
	}
	rmssd, err := RMSSD(ibis)
	if err != nil {
		return Snapshot{}, err
	}
	sdnn, err := SDNN(ibis)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Beats:   len(ibis),
		MeanHR:  meanHR,
		MeanPPI: meanPPI,
		RMSSD:   rmssd,
		SDNN:    sdnn,
	}, nil
}

// MeanPPI returns the rounded arithmetic mean of the intervals.
func MeanPPI(ibis []int) (int, error) {
	if len(ibis) < 2 {
		return 0, fmt.Errorf("mean PPI of %d intervals: %w", len(ibis), ErrInsufficientData)
	}
	return round(mean(ibis)), nil
}

// SDNN returns the rounded population standard deviation of the intervals.
func SDNN(ibis []int) (int, error) {
	if len(ibis) < 2 {
		return 0, fmt.Errorf("SDNN of %d intervals: %w", len(ibis), ErrInsufficientData)
	}
	m := mean(ibis)
	var sum float64
	for _, v := range ibis {
		d := float64(v) - m
		sum += d * d
	}
	return round(math.Sqrt(sum / float64(len(ibis)))), nil
}

// RMSSD returns the rounded root mean square of successive differences.
// Unlike SDNN it depends on the order of the intervals.
func RMSSD(ibis []int) (int, error) {
	if len(ibis) < 2 {
		return 0, fmt.Errorf("RMSSD of %d intervals: %w", len(ibis), ErrInsufficientData)
	}
	var sum float64
	for i := 1; i < len(ibis); i++ {
		d := float64(ibis[i] - ibis[i-1])
		sum += d * d
	}
	return round(math.Sqrt(sum / float64(len(ibis)-1))), nil
}

func mean(v []int) float64 {
	var sum int
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}

func round(f float64) int {
	return int(math.Round(f))
}

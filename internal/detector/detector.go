package detector

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidSamplingRate is returned for a zero, negative or undefined
// sampling rate. No filtering is attempted.
var ErrInvalidSamplingRate = errors.New("invalid sampling rate")

// Config holds detector tuning.
type Config struct {
	Freq         float64
	Corners      int
	ShortWindow  time.Duration
	LongWindow   time.Duration
	OnThreshold  float64
	OffThreshold float64
}

// DefaultConfig returns a 2-pole 5 Hz highpass with 1s/10s windows and
// 8.0/0.5 thresholds.
func DefaultConfig() Config {
	return Config{
		Freq:         5,
		Corners:      2,
		ShortWindow:  time.Second,
		LongWindow:   10 * time.Second,
		OnThreshold:  8.0,
		OffThreshold: 0.5,
	}
}

// WindowSamples converts a window length to samples as round(seconds * rate).
func WindowSamples(window time.Duration, rate float64) int {
	return int(math.Round(window.Seconds() * rate))
}

// Detect highpass-filters samples in zero-phase mode, computes the classic
// STA/LTA function and scans it for trigger intervals. The input slice is
// not modified.
func Detect(samples []float64, rate float64, cfg Config) ([]Trigger, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSamplingRate, rate)
	}
	if len(samples) < 2 {
		return nil, nil
	}

	sections, err := ButterworthHighpass(cfg.Freq, rate, cfg.Corners)
	if err != nil {
		return nil, err
	}
	filtered := ZeroPhase(sections, samples)

	cf := ClassicSTALTA(filtered,
		WindowSamples(cfg.ShortWindow, rate),
		WindowSamples(cfg.LongWindow, rate))
	return Scan(cf, cfg.OnThreshold, cfg.OffThreshold), nil
}

// SampleTime returns the wall-clock time of sample index i.
func SampleTime(start time.Time, rate float64, i int) time.Time {
	return start.Add(time.Duration(math.Round(float64(i) / rate * float64(time.Second))))
}

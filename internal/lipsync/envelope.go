// Package lipsync turns a stream of audio sample blocks into a normalized
// mouth-openness ratio using a dual-EMA envelope with adaptive thresholding.
package lipsync

import (
	"math"
	"time"
)

// Envelope is the dual-EMA state: a slow baseline and a fast peak, both
// tracking RMS energy.
type Envelope struct {
	Mean float64 `json:"mean"`
	Peak float64 `json:"peak"`
}

// EnvelopeConfig controls the two decay constants and the frame cadence.
type EnvelopeConfig struct {
	MeanDecay  time.Duration `json:"mean_decay"`  // time for the baseline EMA to decay to ~36%
	PeakDecay  time.Duration `json:"peak_decay"`  // time for the peak EMA to decay to ~36%
	UpdateRate int           `json:"update_rate"` // frames per second, floor 1
}

// DefaultEnvelopeConfig returns the tuning that works for typical speech.
func DefaultEnvelopeConfig() EnvelopeConfig {
	return EnvelopeConfig{
		MeanDecay:  800 * time.Millisecond,
		PeakDecay:  150 * time.Millisecond,
		UpdateRate: 30,
	}
}

// Tracker maintains the envelope across frames. It is a pure numeric state
// machine: no errors, no locking. Each engine session owns exactly one
// tracker, freshly zeroed.
type Tracker struct {
	meanSmoothing float64
	peakSmoothing float64
	env           Envelope
}

// NewTracker precomputes the per-frame smoothing coefficients from the decay
// times: smoothing = exp(-1 / (decaySeconds * updateRate)).
func NewTracker(cfg EnvelopeConfig) *Tracker {
	rate := cfg.UpdateRate
	if rate < 1 {
		rate = 1
	}
	return &Tracker{
		meanSmoothing: math.Exp(-1 / (cfg.MeanDecay.Seconds() * float64(rate))),
		peakSmoothing: math.Exp(-1 / (cfg.PeakDecay.Seconds() * float64(rate))),
	}
}

// Update folds one frame's RMS into the envelope. The mean always drifts
// toward the current level; the peak jumps up instantaneously and decays
// exponentially otherwise.
func (t *Tracker) Update(rms float64) Envelope {
	t.env.Mean = t.env.Mean*t.meanSmoothing + rms*(1-t.meanSmoothing)
	t.env.Peak = math.Max(rms, t.env.Peak*t.peakSmoothing)
	return t.env
}

// DecaySilence handles a missing frame: the peak keeps decaying while the
// baseline estimate is left untouched.
func (t *Tracker) DecaySilence() Envelope {
	t.env.Peak *= t.peakSmoothing
	return t.env
}

// State returns the current envelope without mutating it.
func (t *Tracker) State() Envelope {
	return t.env
}

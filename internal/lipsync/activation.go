package lipsync

import "math"

// minDynamicRange guards against divide-by-near-zero jitter when the floor
// and ceiling have collapsed onto each other (silence).
const minDynamicRange = 0.001

// Mapper converts envelope state into a normalized activation ratio and
// applies the nonlinear reshape curve. It is stateless; the zero value is
// unusable, construct via NewMapper or fill all fields.
type Mapper struct {
	// ActivationRatio in [0,1] places the threshold between baseline (0)
	// and peak (1).
	ActivationRatio float64
	// Curve in (0,1] boosts small ratios so subtle mouth movement still
	// reads as open.
	Curve float64
	// Oversaturation >= 1 lets mid-range input clamp to fully open sooner.
	Oversaturation float64
}

// DefaultMapper returns the tuning used by the stock configuration.
func DefaultMapper() Mapper {
	return Mapper{
		ActivationRatio: 0.3,
		Curve:           0.35,
		Oversaturation:  1.1,
	}
}

// Threshold is the adaptive activation level for the given envelope:
// mean + ratio * (peak - mean).
func (m Mapper) Threshold(env Envelope) float64 {
	return env.Mean + m.ActivationRatio*(env.Peak-env.Mean)
}

// Activation returns how far the current frame sits between "just audible"
// and "loudest recently observed", in [0,1]. Self-calibrating: no absolute
// volume tuning needed.
func (m Mapper) Activation(rms float64, env Envelope) float64 {
	dynamicRange := env.Peak - env.Mean
	threshold := m.Threshold(env)
	if rms <= threshold || dynamicRange <= minDynamicRange {
		return 0
	}
	effectiveRange := env.Peak - threshold
	ratio := (rms - threshold) / (effectiveRange + 1e-6)
	return clamp01(ratio)
}

// Reshape applies the perceptual curve and oversaturation, clamped to [0,1].
func (m Mapper) Reshape(ratio float64) float64 {
	return clamp01(math.Pow(ratio, m.Curve) * m.Oversaturation)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Package psiema implements the Ψ-EMA three-dimensional price indicator:
// phase θ, robust anomaly z, and convergence R, read through a φ-threshold
// decision tree. The analyzer is pure; callers supply close-price series.
package psiema

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// MinDailyBars is the minimum close count for a daily analysis.
	MinDailyBars = 55
	// MinWeeklyBars is the minimum close count for a weekly analysis.
	MinWeeklyBars = 13

	// Phi thresholds drive the categorical reading.
	Phi    = 1.618
	PhiSq  = 2.618
	PhiInv = 0.618

	emaFastSpan = 8
	emaSlowSpan = 21
	zWindow     = 34
)

// ErrInsufficientBars is returned when the series is too short to analyze.
var ErrInsufficientBars = errors.New("insufficient bars for analysis")

// Reading is the categorical output of the φ decision tree.
type Reading string

const (
	ReadingBreakout      Reading = "BREAKOUT"
	ReadingOverextension Reading = "OVEREXTENSION"
	ReadingAccumulation  Reading = "ACCUMULATION"
	ReadingDistribution  Reading = "DISTRIBUTION"
	ReadingEquilibrium   Reading = "EQUILIBRIUM"
	ReadingCapitulation  Reading = "CAPITULATION"
)

// Analysis is one timeframe's indicator result.
type Analysis struct {
	Theta    float64 `json:"theta"`
	Z        float64 `json:"z"`
	R        float64 `json:"r"`
	Reading  Reading `json:"reading"`
	Fidelity string  `json:"fidelity"`
	BarCount int     `json:"barCount"`
}

// Analyze computes the three dimensions over a close series. minBars is
// MinDailyBars or MinWeeklyBars depending on the timeframe.
func Analyze(closes []float64, minBars int) (*Analysis, error) {
	if len(closes) < minBars {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBars, len(closes), minBars)
	}

	// stock is the accumulated displacement from the slow baseline, flow the
	// smoothed rate of change. Their atan2 is the phase angle.
	stock := closes[len(closes)-1] - ema(closes, emaSlowSpan)
	flow := ema(diffs(closes), emaFastSpan) * float64(emaFastSpan)

	thetaDeg := math.Atan2(flow, stock) * 180 / math.Pi

	z := robustZ(closes, zWindow)
	r := amplitudeRatio(closes)

	a := &Analysis{
		Theta:    round2(thetaDeg),
		Z:        round2(z),
		R:        round2(r),
		BarCount: len(closes),
	}
	a.Reading = classify(a.Theta, a.Z, a.R)
	a.Fidelity = fidelity(len(closes), minBars, a.Z)
	return a, nil
}

// classify walks the φ-threshold decision tree.
func classify(theta, z, r float64) Reading {
	switch {
	case z > PhiSq:
		return ReadingOverextension
	case z < -PhiSq:
		return ReadingCapitulation
	case z > Phi && theta > 0:
		return ReadingBreakout
	case z < -Phi && theta < 0:
		return ReadingDistribution
	case r > Phi && theta > 0:
		return ReadingAccumulation
	case math.Abs(z) < PhiInv && math.Abs(theta) < 45:
		return ReadingEquilibrium
	case theta >= 0:
		return ReadingAccumulation
	default:
		return ReadingDistribution
	}
}

// fidelity grades data quality: more bars above the minimum and a tamer z
// earn a higher grade.
func fidelity(bars, minBars int, z float64) string {
	surplus := float64(bars) / float64(minBars)
	switch {
	case surplus >= 2 && math.Abs(z) <= PhiSq:
		return "A"
	case surplus >= 1.5:
		return "B"
	case surplus >= 1.2:
		return "C"
	default:
		return "D"
	}
}

// ema returns the final value of an exponential moving average over values.
func ema(values []float64, span int) float64 {
	if len(values) == 0 {
		return 0
	}
	alpha := 2.0 / (float64(span) + 1)
	out := values[0]
	for _, v := range values[1:] {
		out = alpha*v + (1-alpha)*out
	}
	return out
}

func diffs(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out[i-1] = closes[i] - closes[i-1]
	}
	return out
}

// robustZ is the MAD-based z-score of the latest close against the trailing
// window. The 1.4826 factor makes MAD consistent with the standard deviation
// under normality.
func robustZ(closes []float64, window int) float64 {
	if window > len(closes) {
		window = len(closes)
	}
	tail := closes[len(closes)-window:]
	med := median(tail)

	devs := make([]float64, len(tail))
	for i, v := range tail {
		devs[i] = math.Abs(v - med)
	}
	mad := median(devs)
	if mad == 0 {
		return 0
	}
	return (closes[len(closes)-1] - med) / (mad * 1.4826)
}

// amplitudeRatio compares the range of the recent half-window against the
// prior half-window.
func amplitudeRatio(closes []float64) float64 {
	n := len(closes)
	half := n / 2
	prior := amplitude(closes[:half])
	recent := amplitude(closes[half:])
	if prior == 0 {
		return 1
	}
	return recent / prior
}

func amplitude(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

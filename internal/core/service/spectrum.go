package service

import (
	"math"
)

// fwhmFactor converts an rms width to full width at half maximum for a
// gaussian profile.
var fwhmFactor = 2 * math.Sqrt(2*math.Ln2)

// SpectrumStats are the derived signals of one camera frame.
type SpectrumStats struct {
	// Peak is the center of gravity of the background-subtracted
	// spectrum, in pixel columns.
	Peak float64
	// Width is the FWHM of the spectrum assuming a gaussian profile, in
	// pixel columns.
	Width float64
	// SatLevel is the highest column sum as a fraction of full scale,
	// 0..1 where >= 1 means the sensor clips.
	SatLevel float64
}

// ColumnSum collapses a frame into a spectrum by summing each pixel column.
// Rows may be ragged; short rows contribute to the leading columns only.
func ColumnSum(image [][]float64) []float64 {
	cols := 0
	for _, row := range image {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if cols == 0 {
		return nil
	}
	spectrum := make([]float64, cols)
	for _, row := range image {
		for c, v := range row {
			spectrum[c] += v
		}
	}
	return spectrum
}

// Analyze computes the derived signals of a spectrum. fullScale is the
// column sum at which the detector saturates (pixel full well times the
// number of rows). A flat or empty spectrum yields zero stats.
func Analyze(spectrum []float64, fullScale float64) SpectrumStats {
	if len(spectrum) == 0 {
		return SpectrumStats{}
	}

	background := spectrum[0]
	peakValue := spectrum[0]
	for _, v := range spectrum {
		if v < background {
			background = v
		}
		if v > peakValue {
			peakValue = v
		}
	}

	var stats SpectrumStats
	if fullScale > 0 {
		stats.SatLevel = peakValue / fullScale
	}

	var total, weighted float64
	for i, v := range spectrum {
		w := v - background
		total += w
		weighted += w * float64(i)
	}
	if total <= 0 {
		return stats
	}
	stats.Peak = weighted / total

	var variance float64
	for i, v := range spectrum {
		w := v - background
		d := float64(i) - stats.Peak
		variance += w * d * d
	}
	variance /= total
	stats.Width = math.Sqrt(variance) * fwhmFactor

	return stats
}

// AnalyzeImage is ColumnSum followed by Analyze. fullWell is the saturation
// value of a single pixel; full scale is derived from the row count.
func AnalyzeImage(image [][]float64, fullWell float64) ([]float64, SpectrumStats) {
	spectrum := ColumnSum(image)
	fullScale := fullWell * float64(len(image))
	return spectrum, Analyze(spectrum, fullScale)
}

package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnSum(t *testing.T) {
	image := [][]float64{
		{1, 2, 3},
		{4, 5, 6},
	}
	assert.Equal(t, []float64{5, 7, 9}, ColumnSum(image))
}

func TestColumnSumRaggedAndEmpty(t *testing.T) {
	image := [][]float64{
		{1, 2, 3},
		{4},
	}
	assert.Equal(t, []float64{5, 2, 3}, ColumnSum(image))
	assert.Nil(t, ColumnSum(nil))
	assert.Nil(t, ColumnSum([][]float64{{}}))
}

func TestAnalyzeSinglePeak(t *testing.T) {
	// flat background of 10 with a single hot column at index 8
	spectrum := make([]float64, 16)
	for i := range spectrum {
		spectrum[i] = 10
	}
	spectrum[8] = 100

	stats := Analyze(spectrum, 200)
	assert.InDelta(t, 8.0, stats.Peak, 1e-9)
	assert.InDelta(t, 0.0, stats.Width, 1e-9)
	assert.InDelta(t, 0.5, stats.SatLevel, 1e-9)
}

func TestAnalyzeGaussianWidth(t *testing.T) {
	// discrete gaussian centered at 32 with sigma 4
	const center, sigma = 32.0, 4.0
	spectrum := make([]float64, 64)
	for i := range spectrum {
		d := float64(i) - center
		spectrum[i] = 1000 * math.Exp(-d*d/(2*sigma*sigma))
	}

	stats := Analyze(spectrum, 0)
	assert.InDelta(t, center, stats.Peak, 0.01)
	assert.InDelta(t, sigma*2*math.Sqrt(2*math.Ln2), stats.Width, 0.1)
	assert.Equal(t, 0.0, stats.SatLevel)
}

func TestAnalyzeFlatSpectrum(t *testing.T) {
	spectrum := []float64{5, 5, 5, 5}
	stats := Analyze(spectrum, 10)
	assert.Equal(t, 0.0, stats.Peak)
	assert.Equal(t, 0.0, stats.Width)
	assert.InDelta(t, 0.5, stats.SatLevel, 1e-9)
}

func TestAnalyzeEmpty(t *testing.T) {
	assert.Equal(t, SpectrumStats{}, Analyze(nil, 100))
}

func TestAnalyzeImage(t *testing.T) {
	image := [][]float64{
		{0, 10, 0},
		{0, 10, 0},
	}
	spectrum, stats := AnalyzeImage(image, 10)
	assert.Equal(t, []float64{0, 20, 0}, spectrum)
	assert.InDelta(t, 1.0, stats.Peak, 1e-9)
	assert.InDelta(t, 1.0, stats.SatLevel, 1e-9)
}

package vectormath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite vectors", []float32{1, 0}, []float32{-1, 0}, -1},
		{"empty a", nil, []float32{1, 2}, 0},
		{"empty b", []float32{1, 2}, nil, 0},
		{"dimension mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineSymmetry(t *testing.T) {
	a := []float32{0.3, -0.7, 0.64, 0.12}
	b := []float32{0.1, 0.9, -0.2, 0.55}
	assert.InDelta(t, Cosine(a, b), Cosine(b, a), 1e-12)
}

func TestMean(t *testing.T) {
	got := Mean([][]float32{{1, 2}, {3, 4}})
	require.Len(t, got, 2)
	assert.InDelta(t, 2, got[0], 1e-6)
	assert.InDelta(t, 3, got[1], 1e-6)

	assert.Nil(t, Mean(nil))
	assert.Nil(t, Mean([][]float32{}))
}

func TestMeanSkipsMismatchedDimensions(t *testing.T) {
	got := Mean([][]float32{{1, 2}, {9, 9, 9}, {3, 4}})
	require.Len(t, got, 2)
	assert.InDelta(t, 2, got[0], 1e-6)
	assert.InDelta(t, 3, got[1], 1e-6)
}

func TestWeightedMeanZeroIncomingReturnsBase(t *testing.T) {
	base := []float32{0.5, -0.5, 1}

	got := WeightedMean(base, 4, nil)
	assert.Equal(t, base, got)

	// Mismatched incoming vectors count as zero incoming weight.
	got = WeightedMean(base, 4, [][]float32{{1, 2}})
	assert.Equal(t, base, got)
}

func TestWeightedMeanBlends(t *testing.T) {
	base := []float32{1, 1}
	got := WeightedMean(base, 3, [][]float32{{5, 9}})
	require.Len(t, got, 2)
	// (1*3 + 5) / 4 = 2, (1*3 + 9) / 4 = 3
	assert.InDelta(t, 2, got[0], 1e-6)
	assert.InDelta(t, 3, got[1], 1e-6)
}

func TestFormatParseRoundTrip(t *testing.T) {
	v := []float32{0.125, -1, 3.5, 0}
	s := Format(v)
	assert.Equal(t, "[0.125,-1,3.5,0]", s)

	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, v, parsed)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("0.1,0.2")
	assert.Error(t, err)

	_, err = Parse("[0.1,oops]")
	assert.Error(t, err)
}

func TestParseEmptyVector(t *testing.T) {
	parsed, err := Parse("[]")
	require.NoError(t, err)
	assert.Empty(t, parsed)
}

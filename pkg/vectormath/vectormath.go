// Package vectormath provides the small amount of vector arithmetic the
// clustering pipeline needs, plus pgvector literal encoding for the store.
package vectormath

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cosine returns the cosine similarity of a and b. Empty or mismatched
// inputs return 0 rather than an error: callers treat "no similarity
// computable" and "not similar" identically.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Mean returns the component-wise mean of the given vectors. Vectors whose
// length differs from the first are skipped. Returns nil for empty input.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}

	dims := len(vectors[0])
	sum := make([]float64, dims)
	count := 0
	for _, v := range vectors {
		if len(v) != dims {
			continue
		}
		for i := range v {
			sum[i] += float64(v[i])
		}
		count++
	}
	if count == 0 {
		return nil
	}

	out := make([]float32, dims)
	for i := range sum {
		out[i] = float32(sum[i] / float64(count))
	}
	return out
}

// WeightedMean blends a base vector carrying baseWeight with incoming
// vectors carrying weight 1 each. With no incoming vectors (or none of a
// matching dimension) the base vector is returned unchanged.
func WeightedMean(base []float32, baseWeight float64, incoming [][]float32) []float32 {
	if len(base) == 0 {
		return Mean(incoming)
	}

	dims := len(base)
	sum := make([]float64, dims)
	for i := range base {
		sum[i] = float64(base[i]) * baseWeight
	}

	total := baseWeight
	matched := 0
	for _, v := range incoming {
		if len(v) != dims {
			continue
		}
		for i := range v {
			sum[i] += float64(v[i])
		}
		total++
		matched++
	}

	if matched == 0 || total == 0 {
		out := make([]float32, dims)
		copy(out, base)
		return out
	}

	out := make([]float32, dims)
	for i := range sum {
		out[i] = float32(sum[i] / total)
	}
	return out
}

// Format renders v as a pgvector literal: "[0.1,0.2,...]".
func Format(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Parse decodes a pgvector literal produced by Format or by casting a
// vector column to text.
func Parse(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal: %q", truncateForError(s))
	}
	body := s[1 : len(s)-1]
	if strings.TrimSpace(body) == "" {
		return []float32{}, nil
	}

	parts := strings.Split(body, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func truncateForError(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}

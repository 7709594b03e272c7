package rag

import "math"

// RawLogit is an unbounded cross-encoder output.
type RawLogit float64

// NormalizedScore is a relevance in [0,1]. The only way to obtain one is Normalize,
// so a raw logit can never stand in for it.
type NormalizedScore struct {
	v float64
}

// Normalize maps a raw logit through the logistic function. NaN maps to 0.
func Normalize(raw RawLogit) NormalizedScore {
	x := float64(raw)
	if math.IsNaN(x) {
		return NormalizedScore{}
	}
	return NormalizedScore{v: 1 / (1 + math.Exp(-x))}
}

// Float64 returns the score in [0,1].
func (s NormalizedScore) Float64() float64 {
	return s.v
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// cosine is the cosine similarity of a and b, or 0 when either is empty,
// zero-length or of a different dimension.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

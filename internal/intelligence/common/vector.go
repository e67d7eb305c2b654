// Package common holds the numeric primitives shared by the intelligence
// packages: a float32 embedding vector and the cosine, mean and weighted
// accumulation operations the context model is built from.
package common

import "math"

// Vector is a dense float32 embedding.
type Vector []float32

// Clone returns an independent copy of v.  nil stays nil.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Norm returns the Euclidean length of v, accumulated in float64.
func (v Vector) Norm() float64 {
	var s float64
	for _, x := range v {
		f := float64(x)
		s += f * f
	}
	return math.Sqrt(s)
}

// Cosine returns the cosine similarity of a and b.  Mismatched lengths, empty
// inputs and zero-norm inputs all yield 0.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Accumulator sums weighted vectors of one dimension in float64 and reports
// their weighted mean.  The zero value is ready to use; the dimension is
// fixed by the first Add.
type Accumulator struct {
	sum   []float64
	count int
}

// Add folds w·v into the running sum.  Vectors whose dimension differs from
// the first one added are ignored and reported with false.
func (a *Accumulator) Add(v Vector, w float64) bool {
	if len(v) == 0 {
		return false
	}
	if a.sum == nil {
		a.sum = make([]float64, len(v))
	} else if len(v) != len(a.sum) {
		return false
	}
	for i, x := range v {
		a.sum[i] += float64(x) * w
	}
	a.count++
	return true
}

// Count is the number of vectors folded in.
func (a *Accumulator) Count() int { return a.count }

// Mean returns sum/count, or nil when nothing was added.
func (a *Accumulator) Mean() Vector {
	if a.count == 0 {
		return nil
	}
	out := make(Vector, len(a.sum))
	n := float64(a.count)
	for i, s := range a.sum {
		out[i] = float32(s / n)
	}
	return out
}

// Sum adds vectors of equal dimension element-wise.  nil entries are skipped;
// the result is nil when every entry is nil or dimensions disagree.
func Sum(vs ...Vector) Vector {
	var out Vector
	for _, v := range vs {
		if v == nil {
			continue
		}
		if out == nil {
			out = v.Clone()
			continue
		}
		if len(v) != len(out) {
			return nil
		}
		for i, x := range v {
			out[i] += x
		}
	}
	return out
}

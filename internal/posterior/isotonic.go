package posterior

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// IsotonicWeighted is the weighted least-squares projection of y onto the
// non-decreasing sequences (pool adjacent violators). A nil w means unit
// weights; non-positive or NaN weights count as 1.
func IsotonicWeighted(y, w []float64) []float64 {
	out := make([]float64, len(y))
	isotonicInto(out, y, w, make([]block, 0, len(y)))
	return out
}

type block struct {
	value  float64
	weight float64
	size   int
}

func isotonicInto(dst, y, w []float64, blocks []block) []block {
	blocks = blocks[:0]
	for i, v := range y {
		blocks = append(blocks, block{value: v, weight: weightAt(w, i), size: 1})
		for len(blocks) > 1 && blocks[len(blocks)-2].value > blocks[len(blocks)-1].value {
			k := len(blocks) - 1
			prev, last := blocks[k-1], blocks[k]
			total := prev.weight + last.weight
			blocks[k-1] = block{
				value:  (prev.value*prev.weight + last.value*last.weight) / total,
				weight: total,
				size:   prev.size + last.size,
			}
			blocks = blocks[:k]
		}
	}

	i := 0
	for _, b := range blocks {
		for j := 0; j < b.size; j++ {
			dst[i] = b.value
			i++
		}
	}
	return blocks
}

func weightAt(w []float64, i int) float64 {
	if w == nil || i >= len(w) {
		return 1
	}
	v := w[i]
	switch {
	case math.IsInf(v, 1):
		return 1e12
	case v > 0:
		return v
	default:
		return 1
	}
}

// IsNonDecreasing reports whether y never decreases
func IsNonDecreasing(y []float64) bool {
	for i := 1; i < len(y); i++ {
		if y[i] < y[i-1] {
			return false
		}
	}
	return true
}

// EnforceMonotoneUnivariate projects every row of a numSamples x J draw
// matrix onto non-decreasing order across doses.
func EnforceMonotoneUnivariate(samples *mat.Dense, weights []float64) *mat.Dense {
	rows, cols := samples.Dims()
	out := mat.NewDense(rows, cols, nil)
	blocks := make([]block, 0, cols)
	for i := 0; i < rows; i++ {
		src := samples.RawRowView(i)
		dst := out.RawRowView(i)
		if IsNonDecreasing(src) {
			copy(dst, src)
			continue
		}
		blocks = isotonicInto(dst, src, weights, blocks)
	}
	return out
}

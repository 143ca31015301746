package posterior

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	dykstraTolerance = 1e-10
	dykstraMaxIter   = 1000
)

// IsotonicBivariate is the weighted least-squares projection of y[dose][group]
// onto matrices that are non-decreasing along both axes.
//
// It runs Dykstra's alternating projections between the dose-monotone and
// group-monotone cones, each a weighted PAVA per line. Dykstra only converges
// in the limit, so a final sweep lifts each cell to the max of its lower
// neighbours; that moves cells by at most the residual tolerance and makes the
// output exactly monotone.
func IsotonicBivariate(y, w [][]float64) [][]float64 {
	b := newBivariateSolver(len(y), groupsOf(y))
	return b.solve(y, w)
}

// IsMonotone2D reports whether x is non-decreasing along both axes
func IsMonotone2D(x [][]float64) bool {
	for d := range x {
		for g := range x[d] {
			if d > 0 && x[d][g] < x[d-1][g] {
				return false
			}
			if g > 0 && x[d][g] < x[d][g-1] {
				return false
			}
		}
	}
	return true
}

func groupsOf(y [][]float64) int {
	if len(y) == 0 {
		return 0
	}
	return len(y[0])
}

// bivariateSolver holds the scratch space of one projection so that a batch
// of draws reuses its buffers.
type bivariateSolver struct {
	doses, groups int
	x, p, q, u, a []float64 // row-major doses x groups
	line, lineW   []float64
	lineOut       []float64
	blocks        []block
}

func newBivariateSolver(doses, groups int) *bivariateSolver {
	n := doses * groups
	longest := doses
	if groups > longest {
		longest = groups
	}
	return &bivariateSolver{
		doses:   doses,
		groups:  groups,
		x:       make([]float64, n),
		p:       make([]float64, n),
		q:       make([]float64, n),
		u:       make([]float64, n),
		a:       make([]float64, n),
		line:    make([]float64, longest),
		lineW:   make([]float64, longest),
		lineOut: make([]float64, longest),
		blocks:  make([]block, 0, longest),
	}
}

func (b *bivariateSolver) solve(y, w [][]float64) [][]float64 {
	out := make([][]float64, b.doses)
	for d := range out {
		out[d] = make([]float64, b.groups)
		copy(out[d], y[d])
	}
	if IsMonotone2D(out) {
		return out
	}

	for d := 0; d < b.doses; d++ {
		for g := 0; g < b.groups; g++ {
			b.x[d*b.groups+g] = y[d][g]
		}
	}
	for i := range b.p {
		b.p[i], b.q[i] = 0, 0
	}

	for iter := 0; iter < dykstraMaxIter; iter++ {
		for i := range b.a {
			b.a[i] = b.x[i] + b.p[i]
		}
		b.projectAlongDose(b.u, b.a, w)
		for i := range b.p {
			b.p[i] = b.a[i] - b.u[i]
		}

		for i := range b.a {
			b.a[i] = b.u[i] + b.q[i]
		}
		delta := 0.0
		b.projectAlongGroup(b.u, b.a, w)
		for i := range b.q {
			b.q[i] = b.a[i] - b.u[i]
			if diff := math.Abs(b.u[i] - b.x[i]); diff > delta {
				delta = diff
			}
			b.x[i] = b.u[i]
		}
		if delta < dykstraTolerance && b.doseViolation() < dykstraTolerance {
			break
		}
	}

	for d := 0; d < b.doses; d++ {
		for g := 0; g < b.groups; g++ {
			v := b.x[d*b.groups+g]
			if d > 0 && out[d-1][g] > v {
				v = out[d-1][g]
			}
			if g > 0 && out[d][g-1] > v {
				v = out[d][g-1]
			}
			out[d][g] = v
		}
	}
	return out
}

// doseViolation is the largest decrease along the dose axis of the current
// iterate, which is always group-monotone after the second projection.
func (b *bivariateSolver) doseViolation() float64 {
	worst := 0.0
	for d := 1; d < b.doses; d++ {
		for g := 0; g < b.groups; g++ {
			if v := b.x[(d-1)*b.groups+g] - b.x[d*b.groups+g]; v > worst {
				worst = v
			}
		}
	}
	return worst
}

// projectAlongDose runs PAVA down every group column
func (b *bivariateSolver) projectAlongDose(dst, src []float64, w [][]float64) {
	line, lineW, lineOut := b.line[:b.doses], b.lineW[:b.doses], b.lineOut[:b.doses]
	for g := 0; g < b.groups; g++ {
		for d := 0; d < b.doses; d++ {
			line[d] = src[d*b.groups+g]
			lineW[d] = cellWeight(w, d, g)
		}
		b.blocks = isotonicInto(lineOut, line, lineW, b.blocks)
		for d := 0; d < b.doses; d++ {
			dst[d*b.groups+g] = lineOut[d]
		}
	}
}

// projectAlongGroup runs PAVA across every dose row
func (b *bivariateSolver) projectAlongGroup(dst, src []float64, w [][]float64) {
	line, lineW, lineOut := b.line[:b.groups], b.lineW[:b.groups], b.lineOut[:b.groups]
	for d := 0; d < b.doses; d++ {
		for g := 0; g < b.groups; g++ {
			line[g] = src[d*b.groups+g]
			lineW[g] = cellWeight(w, d, g)
		}
		b.blocks = isotonicInto(lineOut, line, lineW, b.blocks)
		copy(dst[d*b.groups:(d+1)*b.groups], lineOut)
	}
}

func cellWeight(w [][]float64, d, g int) float64 {
	if w == nil || d >= len(w) || g >= len(w[d]) {
		return 1
	}
	return weightAt(w[d], g)
}

// EnforceMonotoneBivariate projects every draw. groups[g] is the
// numSamples x J draw matrix of immune group g; weights is [dose][group].
// Draw s is reshaped to a J x G matrix, projected, and written back.
func EnforceMonotoneBivariate(groups []*mat.Dense, weights [][]float64) []*mat.Dense {
	if len(groups) == 0 {
		return nil
	}
	rows, doses := groups[0].Dims()
	numGroups := len(groups)

	out := make([]*mat.Dense, numGroups)
	for g := range out {
		out[g] = mat.NewDense(rows, doses, nil)
	}

	solver := newBivariateSolver(doses, numGroups)
	draw := make([][]float64, doses)
	for d := range draw {
		draw[d] = make([]float64, numGroups)
	}

	for s := 0; s < rows; s++ {
		for g := 0; g < numGroups; g++ {
			row := groups[g].RawRowView(s)
			for d := 0; d < doses; d++ {
				draw[d][g] = row[d]
			}
		}
		adjusted := solver.solve(draw, weights)
		for g := 0; g < numGroups; g++ {
			row := out[g].RawRowView(s)
			for d := 0; d < doses; d++ {
				row[d] = adjusted[d][g]
			}
		}
	}
	return out
}

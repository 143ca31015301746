package posterior

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gotrial/domain/core"
	"gotrial/domain/trial"
)

// Marginalize mixes the per-group draws over the immune draws, pairing them
// draw by draw: (1-pI)*P(.|I=0) + pI*P(.|I=1). Every matrix is
// numSamples x J.
func Marginalize(groups []*mat.Dense, immune *mat.Dense) (*mat.Dense, error) {
	if len(groups) != trial.NumImmuneGroups {
		return nil, fmt.Errorf("%w: %d group matrices, want %d", core.ErrDimensionMismatch, len(groups), trial.NumImmuneGroups)
	}
	rows, cols := immune.Dims()
	for g, m := range groups {
		r, c := m.Dims()
		if r != rows || c != cols {
			return nil, fmt.Errorf("%w: group %d draws are %dx%d, immune draws are %dx%d", core.ErrDimensionMismatch, g, r, c, rows, cols)
		}
	}

	out := mat.NewDense(rows, cols, nil)
	for s := 0; s < rows; s++ {
		pI := immune.RawRowView(s)
		g0 := groups[trial.GroupNoImmune].RawRowView(s)
		g1 := groups[trial.GroupImmune].RawRowView(s)
		dst := out.RawRowView(s)
		for d := range dst {
			dst[d] = (1-pI[d])*g0[d] + pI[d]*g1[d]
		}
	}
	return out, nil
}

// Package decision holds the per-stage decision rules of the trial: dose
// screening, utilities, adaptive allocation, early termination and the
// probability-of-correct-selection gate.
package decision

import (
	"gonum.org/v1/gonum/mat"

	"gotrial/domain/trial"
	"gotrial/internal/posterior"
)

// Screening is the admissible set plus the per-dose probabilities behind it
type Screening struct {
	Admissible    trial.AdmissibleSet
	Probabilities []trial.DoseProbabilities
}

// Screen applies the three posterior-probability criteria to every dose.
// Probabilities are Monte Carlo fractions over the posterior draws:
//
//	safety:   Pr(toxMarginal(d) < phi_T) > c_T
//	efficacy: Pr(effMarginal(d) > phi_E) > c_E
//	activity: Pr(immuneAdjusted(d) > phi_I) > c_I
func Screen(post *posterior.Posterior, th trial.Thresholds) Screening {
	out := Screening{
		Admissible:    trial.AdmissibleSet{},
		Probabilities: make([]trial.DoseProbabilities, post.NumDoses),
	}
	for d := 0; d < post.NumDoses; d++ {
		p := trial.DoseProbabilities{
			Dose:     trial.DoseAt(d),
			Safety:   FractionBelow(post.ToxMarginal, d, th.Toxicity.Cutoff),
			Efficacy: FractionAbove(post.EffMarginal, d, th.Efficacy.Cutoff),
			Activity: FractionAbove(post.Immune, d, th.Immune.Cutoff),
		}
		p.Safe = p.Safety > th.Toxicity.Credibility
		p.Efficacious = p.Efficacy > th.Efficacy.Credibility
		p.Active = p.Activity > th.Immune.Credibility
		out.Probabilities[d] = p
		if p.Admissible() {
			out.Admissible = append(out.Admissible, p.Dose)
		}
	}
	return out
}

// FractionBelow is the share of draws in column d strictly below cutoff
func FractionBelow(draws *mat.Dense, d int, cutoff float64) float64 {
	rows, _ := draws.Dims()
	if rows == 0 {
		return 0
	}
	hits := 0
	for s := 0; s < rows; s++ {
		if draws.At(s, d) < cutoff {
			hits++
		}
	}
	return float64(hits) / float64(rows)
}

// FractionAbove is the share of draws in column d strictly above cutoff
func FractionAbove(draws *mat.Dense, d int, cutoff float64) float64 {
	rows, _ := draws.Dims()
	if rows == 0 {
		return 0
	}
	hits := 0
	for s := 0; s < rows; s++ {
		if draws.At(s, d) > cutoff {
			hits++
		}
	}
	return float64(hits) / float64(rows)
}

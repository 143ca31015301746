package decision

import (
	"gotrial/domain/trial"
	"gotrial/internal/posterior"
)

// GroupUtility is the expected utility inside one immune stratum.
// Terms[e][t] holds w(e,t,i) * Pe(e|I) * Pt(t|I).
type GroupUtility struct {
	Toxicity float64       `json:"toxicity"`
	Efficacy float64       `json:"efficacy"`
	Terms    [2][2]float64 `json:"terms"`
	Expected float64       `json:"expected"`
}

// UtilityBreakdown carries every intermediate term of U(d)
type UtilityBreakdown struct {
	Dose       trial.DoseLevel                     `json:"dose"`
	ImmuneMean float64                             `json:"immune_mean"`
	Groups     [trial.NumImmuneGroups]GroupUtility `json:"groups"`
	Utility    float64                             `json:"utility"`
}

// Utilities returns U(d) for every dose from the adjusted posterior means
func Utilities(post *posterior.Posterior, table trial.UtilityTable) []float64 {
	details := UtilityDetails(post, table)
	out := make([]float64, len(details))
	for d, b := range details {
		out[d] = b.Utility
	}
	return out
}

// UtilityDetails computes
//
//	U(d) = (1-pI) * sum_{e,t} w(e,t,0) Pe(e|0) Pt(t|0) + pI * sum_{e,t} w(e,t,1) Pe(e|1) Pt(t|1)
//
// with toxicity and efficacy conditionally independent given immune status.
func UtilityDetails(post *posterior.Posterior, table trial.UtilityTable) []UtilityBreakdown {
	out := make([]UtilityBreakdown, post.NumDoses)
	for d := 0; d < post.NumDoses; d++ {
		pI := post.ImmuneMean(d)
		b := UtilityBreakdown{Dose: trial.DoseAt(d), ImmuneMean: pI}
		for g := 0; g < trial.NumImmuneGroups; g++ {
			b.Groups[g] = groupUtility(post.ToxicityMean(d, g), post.EfficacyMean(d, g), g, table)
		}
		b.Utility = (1-pI)*b.Groups[trial.GroupNoImmune].Expected + pI*b.Groups[trial.GroupImmune].Expected
		out[d] = b
	}
	return out
}

func groupUtility(pT, pE float64, group int, table trial.UtilityTable) GroupUtility {
	gu := GroupUtility{Toxicity: pT, Efficacy: pE}
	pe := [2]float64{1 - pE, pE}
	pt := [2]float64{1 - pT, pT}
	for e := 0; e < 2; e++ {
		for t := 0; t < 2; t++ {
			term := table.At(e, t, group) * pe[e] * pt[t]
			gu.Terms[e][t] = term
			gu.Expected += term
		}
	}
	return gu
}

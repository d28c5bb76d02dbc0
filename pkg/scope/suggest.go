package scope

import "github.com/xrash/smetrics"

// SuggestName finds the closest match to name among candidates by edit
// distance, for use in an UndefinedIdentifier error's "did you mean"
// hint. Returns "" if candidates is empty or nothing is close enough to
// be a plausible typo.
func SuggestName(name string, candidates []string) string {
	const maxUsefulDistance = 3

	best := ""
	bestDist := maxUsefulDistance + 1
	for _, c := range candidates {
		d := smetrics.WagnerFischer(name, c, 1, 1, 1)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist > maxUsefulDistance {
		return ""
	}
	return best
}

package cluster

// pluralityVote returns the persistent cluster owning the most posts of the
// component, per the assignments map. Ties break toward the lower cluster
// id so the vote is deterministic. ok is false when no component post is
// assigned anywhere.
func pluralityVote(tweetIDs []string, assignments map[string]int64) (int64, bool) {
	counts := make(map[int64]int)
	for _, id := range tweetIDs {
		if clusterID, ok := assignments[id]; ok {
			counts[clusterID]++
		}
	}
	if len(counts) == 0 {
		return 0, false
	}

	var best int64
	bestCount := -1
	for clusterID, count := range counts {
		if count > bestCount || (count == bestCount && clusterID < best) {
			best = clusterID
			bestCount = count
		}
	}
	return best, true
}

// jaccard returns |a∩b| / |a∪b| and the intersection size for two id sets.
func jaccard(a, b []string) (float64, int) {
	if len(a) == 0 && len(b) == 0 {
		return 0, 0
	}
	setA := make(map[string]bool, len(a))
	for _, id := range a {
		setA[id] = true
	}
	intersection := 0
	setB := make(map[string]bool, len(b))
	for _, id := range b {
		if setB[id] {
			continue
		}
		setB[id] = true
		if setA[id] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0, 0
	}
	return float64(intersection) / float64(union), intersection
}

package scoring

// ComputeFrontier returns the candidates no other candidate dominates on
// close rate (higher is better), workload and response time (lower is better).
// O(n^2) dominance check, fine for a company's roster.
func ComputeFrontier(candidates []ScoringResult) []ScoringResult {
	if len(candidates) <= 1 {
		return candidates
	}

	var frontier []ScoringResult
	for i := range candidates {
		dominated := false
		for j := range candidates {
			if i == j {
				continue
			}
			if dominates(candidates[j], candidates[i]) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, candidates[i])
		}
	}
	return frontier
}

// dominates reports whether a is at least as good as b everywhere and strictly better somewhere.
func dominates(a, b ScoringResult) bool {
	if a.CloseRate < b.CloseRate || a.Workload > b.Workload || a.ResponseTimeSeconds > b.ResponseTimeSeconds {
		return false
	}
	return a.CloseRate > b.CloseRate || a.Workload < b.Workload || a.ResponseTimeSeconds < b.ResponseTimeSeconds
}

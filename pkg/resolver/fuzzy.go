package resolver

// anchoredDistance returns the smallest edit distance between query and a
// prefix of field, considering only prefixes whose length is within
// maxEdits of the query's. It returns -1 when no prefix is within maxEdits.
// Anchoring at the start means "ann" can match "annabelle" but "bell" cannot.
func anchoredDistance(query, field []rune, maxEdits int) int {
	lo := len(query) - maxEdits
	if lo < 1 {
		lo = 1
	}
	hi := len(query) + maxEdits
	if hi > len(field) {
		hi = len(field)
	}

	best := -1
	for k := lo; k <= hi; k++ {
		d := levenshteinWithThreshold(query, field[:k], maxEdits)
		if d <= maxEdits && (best < 0 || d < best) {
			best = d
			if best == 0 {
				break
			}
		}
	}
	return best
}

// levenshteinWithThreshold computes the edit distance between a and b with
// early exit. It returns threshold+1 as soon as the distance is known to
// exceed threshold.
func levenshteinWithThreshold(a, b []rune, threshold int) int {
	lenDiff := len(a) - len(b)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return threshold + 1
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Keep a as the shorter string; one row of len(a)+1 is enough.
	if len(a) > len(b) {
		a, b = b, a
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(b); i++ {
		curr[0] = i
		minInRow := curr[0]
		for j := 1; j <= len(a); j++ {
			cost := 1
			if b[i-1] == a[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < minInRow {
				minInRow = curr[j]
			}
		}
		if minInRow > threshold {
			return threshold + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

// lengthRatio is shorter/longer, in [0,1].
func lengthRatio(a, b int) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > b {
		a, b = b, a
	}
	return float64(a) / float64(b)
}

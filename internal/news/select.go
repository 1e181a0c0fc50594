package news

import "sort"

// Select picks up to n scored stories for publishing, in publish order.
//
// Candidates are ranked by score (ties keep their input order). The first
// pass takes the best story of every region not yet represented; the
// second pass fills what is left with the best remaining stories whatever
// their region. So if k <= n regions are present, the first k picks cover
// all of them before any region repeats.
func Select(candidates []Story, n int) []Story {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].ViralScore > candidates[order[b]].ViralScore
	})

	if n > len(candidates) {
		n = len(candidates)
	}

	taken := make([]bool, len(candidates))
	usedRegions := make(map[Region]bool, len(Regions))
	picked := make([]int, 0, n)

	for _, idx := range order {
		if len(picked) >= n {
			break
		}
		region := candidates[idx].Region
		if usedRegions[region] {
			continue
		}
		usedRegions[region] = true
		taken[idx] = true
		picked = append(picked, idx)
	}

	for _, idx := range order {
		if len(picked) >= n {
			break
		}
		if taken[idx] {
			continue
		}
		taken[idx] = true
		picked = append(picked, idx)
	}

	out := make([]Story, len(picked))
	for i, idx := range picked {
		out[i] = candidates[idx]
	}
	return out
}

package reports

import "sort"

// SortForTriage orders reports critical > high > medium > low, then oldest first.
func SortForTriage(rs []Report) {
	sort.SliceStable(rs, func(i, j int) bool {
		ri, rj := rs[i].Urgency.Rank(), rs[j].Urgency.Rank()
		if ri != rj {
			return ri > rj
		}
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

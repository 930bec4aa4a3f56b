// Package tiebreak groups equal totals and orders tied participants by how
// close their secondary guess came to the actual value.
package tiebreak

import "sort"

// Entry is one participant's total within a scope.
type Entry struct {
	ParticipantID string
	Total         int
}

// Group is a set of participants sharing the same total.
type Group struct {
	Total   int
	Members []string
}

// Tied reports whether the group needs resolving.
func (g Group) Tied() bool { return len(g.Members) > 1 }

// Rank sorts entries by total descending. Equal totals are ordered by id so
// repeated runs produce the same list.
func Rank(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out
}

// DetectTies partitions a ranked list into groups of identical totals, in
// ranking order. Input that is not sorted is ranked first.
func DetectTies(ranked []Entry) []Group {
	if !sort.SliceIsSorted(ranked, func(i, j int) bool { return ranked[i].Total > ranked[j].Total }) {
		ranked = Rank(ranked)
	}
	var groups []Group
	for _, e := range ranked {
		if n := len(groups); n > 0 && groups[n-1].Total == e.Total {
			groups[n-1].Members = append(groups[n-1].Members, e.ParticipantID)
			continue
		}
		groups = append(groups, Group{Total: e.Total, Members: []string{e.ParticipantID}})
	}
	return groups
}

package objective

import "vrpsolve/internal/solver/solution"

// Member pairs a solution with its evaluated criteria.
type Member struct {
	Solution *solution.Solution
	Criteria Criteria
}

// Front maintains a set of mutually non-dominated solutions.
type Front struct {
	Limit   int // 0 means unbounded
	members []Member
}

// Members returns the current front, best-first by the lexicographic order.
func (f *Front) Members() []Member {
	out := make([]Member, len(f.members))
	copy(out, f.members)
	return out
}

func (f *Front) Len() int { return len(f.members) }

// Add offers a candidate to the front. It returns true when the candidate
// joined; dominated members are evicted, and a dominated candidate is
// rejected without cloning anything.
func (f *Front) Add(s *solution.Solution, c Criteria) bool {
	for _, m := range f.members {
		if Dominates(m.Criteria, c) || m.Criteria == c {
			return false
		}
	}
	kept := f.members[:0]
	for _, m := range f.members {
		if !Dominates(c, m.Criteria) {
			kept = append(kept, m)
		}
	}
	f.members = append(kept, Member{Solution: s, Criteria: c})
	f.sort()
	if f.Limit > 0 && len(f.members) > f.Limit {
		f.members = f.members[:f.Limit]
	}
	return true
}

func (f *Front) sort() {
	for i := 1; i < len(f.members); i++ {
		for j := i; j > 0 && Less(f.members[j].Criteria, f.members[j-1].Criteria); j-- {
			f.members[j], f.members[j-1] = f.members[j-1], f.members[j]
		}
	}
}

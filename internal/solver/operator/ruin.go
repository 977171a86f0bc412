// Package operator implements the ruin-and-recreate neighborhood moves and
// the adaptive selection over them.
package operator

import (
	"math"
	"math/rand"
	"sort"

	"vrpsolve/internal/solver/constraint"
	"vrpsolve/internal/solver/model"
	"vrpsolve/internal/solver/solution"
)

// Ruin removes a fragment of the solution and returns the removed job IDs.
// Removed jobs are tracked by the caller until a Recreate reinserts or
// unassigns every one of them; no job is ever silently dropped.
type Ruin interface {
	Name() string
	Ruin(rng *rand.Rand, sol *solution.Solution) []string
}

// ruinSize picks how many jobs to remove, between 10% and 30% of the
// assigned jobs but at least one.
func ruinSize(rng *rand.Rand, assigned int) int {
	if assigned == 0 {
		return 0
	}
	lo := assigned / 10
	hi := assigned * 3 / 10
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// assignedJobs lists (route, position, job) triples in route order.
type assignedRef struct {
	route *solution.Route
	jobID string
}

func listAssigned(sol *solution.Solution) []assignedRef {
	var out []assignedRef
	for _, r := range sol.Routes {
		for _, a := range r.Activities {
			out = append(out, assignedRef{route: r, jobID: a.JobID})
		}
	}
	return out
}

func removeJob(sol *solution.Solution, jobID string) bool {
	r, pos := sol.RouteOf(jobID)
	if r == nil {
		return false
	}
	r.Remove(pos)
	return true
}

// RandomRuin removes a random selection of assigned jobs.
type RandomRuin struct{}

func (RandomRuin) Name() string { return "random" }

func (RandomRuin) Ruin(rng *rand.Rand, sol *solution.Solution) []string {
	assigned := listAssigned(sol)
	k := ruinSize(rng, len(assigned))
	var removed []string
	for i := 0; i < k && len(assigned) > 0; i++ {
		j := rng.Intn(len(assigned))
		ref := assigned[j]
		assigned = append(assigned[:j], assigned[j+1:]...)
		if removeJob(sol, ref.jobID) {
			removed = append(removed, ref.jobID)
		}
	}
	sol.DropEmptyRoutes()
	return removed
}

// WorstRuin removes the jobs whose removal saves the most travel, with a
// randomization exponent so the choice is biased rather than fixed.
type WorstRuin struct {
	Checker *constraint.Checker
	// Blur controls the selection bias; higher values pick closer to the
	// strict worst. Defaults to 3.
	Blur float64
}

func (WorstRuin) Name() string { return "worst" }

func (w WorstRuin) Ruin(rng *rand.Rand, sol *solution.Solution) []string {
	blur := w.Blur
	if blur <= 0 {
		blur = 3
	}
	k := ruinSize(rng, sol.AssignedCount())
	var removed []string
	for len(removed) < k {
		type scored struct {
			jobID string
			gain  float64
		}
		var ranked []scored
		for _, r := range sol.Routes {
			for pos := range r.Activities {
				ranked = append(ranked, scored{
					jobID: r.Activities[pos].JobID,
					gain:  w.Checker.RemovalGain(r, pos),
				})
			}
		}
		if len(ranked) == 0 {
			break
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].gain != ranked[j].gain {
				return ranked[i].gain > ranked[j].gain
			}
			return ranked[i].jobID < ranked[j].jobID
		})
		pick := int(math.Pow(rng.Float64(), blur) * float64(len(ranked)))
		if pick >= len(ranked) {
			pick = len(ranked) - 1
		}
		id := ranked[pick].jobID
		if removeJob(sol, id) {
			removed = append(removed, id)
		}
	}
	sol.DropEmptyRoutes()
	return removed
}

// NeighborhoodRuin removes a cluster of spatially and temporally related
// jobs around a random seed job, encouraging the recreate step to
// restructure a whole region.
type NeighborhoodRuin struct {
	Registry *model.Registry
}

func (NeighborhoodRuin) Name() string { return "neighborhood" }

func (n NeighborhoodRuin) Ruin(rng *rand.Rand, sol *solution.Solution) []string {
	assigned := listAssigned(sol)
	if len(assigned) == 0 {
		return nil
	}
	k := ruinSize(rng, len(assigned))
	seed := assigned[rng.Intn(len(assigned))].jobID

	var removed []string
	if removeJob(sol, seed) {
		removed = append(removed, seed)
	}
	for _, id := range n.Registry.Neighbors(seed) {
		if len(removed) >= k {
			break
		}
		if removeJob(sol, id) {
			removed = append(removed, id)
		}
	}
	sol.DropEmptyRoutes()
	return removed
}

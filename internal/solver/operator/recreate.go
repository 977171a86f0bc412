package operator

import (
	"math/rand"

	"vrpsolve/internal/solver/constraint"
	"vrpsolve/internal/solver/construct"
	"vrpsolve/internal/solver/model"
	"vrpsolve/internal/solver/solution"
)

// Recreate reinserts removed jobs into a partial solution. Every removed
// job ends up scheduled or unassigned with a reason; the pair of a Ruin and
// a Recreate preserves job conservation.
type Recreate interface {
	Name() string
	Recreate(rng *rand.Rand, sol *solution.Solution, removed []string)
}

// RegretRecreate reinserts by regret insertion, the same machinery the
// construction heuristic uses.
type RegretRecreate struct {
	Inserter *construct.Inserter
}

func (RegretRecreate) Name() string { return "regret" }

func (r RegretRecreate) Recreate(rng *rand.Rand, sol *solution.Solution, removed []string) {
	r.Inserter.InsertJobs(rng, sol, removed)
}

// RandomRecreate reinserts each job at a random feasible position, trading
// quality for diversification.
type RandomRecreate struct {
	Registry *model.Registry
	Checker  *constraint.Checker
	Inserter *construct.Inserter // fallback for the unassigned-reason probe
}

func (RandomRecreate) Name() string { return "random" }

func (rc RandomRecreate) Recreate(rng *rand.Rand, sol *solution.Solution, removed []string) {
	order := append([]string(nil), removed...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for _, id := range order {
		job := rc.Registry.Problem().Job(id)
		type slot struct {
			actor int
			route *solution.Route
			pos   int
			place int
		}
		var feasible []slot
		for _, ai := range rc.Registry.Candidates(id) {
			route := sol.RouteForActor(ai)
			probe := route
			if probe == nil {
				probe = &solution.Route{Actor: ai}
			}
			for place := range job.Places {
				for pos := 0; pos <= len(probe.Activities); pos++ {
					if _, code := rc.Checker.EvaluateInsertion(sol, probe, job, place, pos); code == constraint.OK {
						feasible = append(feasible, slot{actor: ai, route: route, pos: pos, place: place})
					}
				}
			}
			if route == nil {
				rc.Checker.Forget(probe)
			}
		}
		if len(feasible) == 0 {
			rc.Inserter.InsertJobs(rng, sol, []string{id})
			continue
		}
		pick := feasible[rng.Intn(len(feasible))]
		route := pick.route
		if route == nil {
			route = &solution.Route{Actor: pick.actor}
			sol.AddRoute(route)
		}
		route.Insert(pick.pos, solution.Activity{JobID: id, Place: pick.place})
	}
}

// Package construct builds feasible solutions by regret insertion: among
// the best pending jobs it schedules the one that would pay the highest
// price for being deferred.
package construct

import (
	"math"
	"math/rand"

	"vrpsolve/internal/solver/constraint"
	"vrpsolve/internal/solver/model"
	"vrpsolve/internal/solver/solution"
)

// Inserter performs regret-k insertion over all routes and vehicles.
type Inserter struct {
	reg     *model.Registry
	checker *constraint.Checker

	// K is the regret depth; 2 compares best against second best.
	K int
	// Noise randomizes insertion costs by up to the given fraction to
	// diversify otherwise identical constructions. Zero disables it.
	Noise float64
}

func NewInserter(reg *model.Registry, checker *constraint.Checker) *Inserter {
	return &Inserter{reg: reg, checker: checker, K: 2}
}

type candidate struct {
	actor int
	route *solution.Route // nil when the actor has no route yet
	pos   int
	place int
	cost  float64
}

// Construct schedules every job of the problem that the partial solution
// has not placed yet, including previously unassigned ones. A nil partial
// starts from scratch. Jobs with no feasible insertion anywhere remain
// unassigned with a reason.
func (ins *Inserter) Construct(rng *rand.Rand, partial *solution.Solution) *solution.Solution {
	sol := partial
	if sol == nil {
		sol = solution.New()
	}
	var pending []string
	for i := range ins.reg.Problem().Jobs {
		id := ins.reg.Problem().Jobs[i].ID
		if r, _ := sol.RouteOf(id); r == nil {
			delete(sol.Unassigned, id)
			pending = append(pending, id)
		}
	}
	ins.InsertJobs(rng, sol, pending)
	return sol
}

// InsertJobs schedules the given jobs into the solution by regret-k
// insertion. Each step is bounded by jobs x routes x route length; a job
// either lands in its cheapest feasible position or is recorded unassigned,
// so the loop always terminates.
func (ins *Inserter) InsertJobs(rng *rand.Rand, sol *solution.Solution, jobIDs []string) {
	pending := append([]string(nil), jobIDs...)
	for len(pending) > 0 {
		bestIdx := -1
		var bestCand candidate
		bestRegret := math.Inf(-1)
		bestCost := math.Inf(1)

		for i, id := range pending {
			job := ins.reg.Problem().Job(id)
			cands := ins.collect(rng, sol, job)
			if len(cands) == 0 {
				sol.Unassigned[id] = ins.unassignReason(sol, job)
				pending = append(pending[:i], pending[i+1:]...)
				bestIdx = -1
				break
			}
			regret := regretOf(cands, ins.K)
			if regret > bestRegret || (regret == bestRegret && cands[0].cost < bestCost) {
				bestRegret = regret
				bestCost = cands[0].cost
				bestIdx = i
				bestCand = cands[0]
			}
		}
		if bestIdx < 0 {
			continue // a job went unassigned this pass; rescan the rest
		}

		id := pending[bestIdx]
		pending = append(pending[:bestIdx], pending[bestIdx+1:]...)
		route := bestCand.route
		if route == nil {
			route = &solution.Route{Actor: bestCand.actor}
			sol.AddRoute(route)
		}
		route.Insert(bestCand.pos, solution.Activity{JobID: id, Place: bestCand.place})
	}
}

// collect gathers feasible insertions for the job, cheapest first. Only the
// two best are kept beyond what regret needs.
func (ins *Inserter) collect(rng *rand.Rand, sol *solution.Solution, job *model.Job) []candidate {
	var cands []candidate
	for _, ai := range ins.reg.Candidates(job.ID) {
		route := sol.RouteForActor(ai)
		probe := route
		if probe == nil {
			probe = &solution.Route{Actor: ai}
		}
		for place := range job.Places {
			for pos := 0; pos <= len(probe.Activities); pos++ {
				delta, code := ins.checker.EvaluateInsertion(sol, probe, job, place, pos)
				if code != constraint.OK {
					continue
				}
				cost := delta.Cost
				if ins.Noise > 0 && rng != nil {
					cost *= 1 + ins.Noise*(rng.Float64()*2-1)
				}
				cands = insertSorted(cands, candidate{
					actor: ai, route: route, pos: pos, place: place, cost: cost,
				}, ins.regretDepth())
			}
		}
		if route == nil {
			ins.checker.Forget(probe)
		}
	}
	return cands
}

func (ins *Inserter) regretDepth() int {
	if ins.K < 2 {
		return 2
	}
	return ins.K
}

func insertSorted(cands []candidate, c candidate, keep int) []candidate {
	pos := len(cands)
	for i, existing := range cands {
		if c.cost < existing.cost {
			pos = i
			break
		}
	}
	cands = append(cands, candidate{})
	copy(cands[pos+1:], cands[pos:])
	cands[pos] = c
	if len(cands) > keep {
		cands = cands[:keep]
	}
	return cands
}

// regretOf is the cost gap between the best insertion and the k-th best;
// jobs with fewer than k options get an infinite regret so they are placed
// while options remain.
func regretOf(cands []candidate, k int) float64 {
	if k < 2 {
		k = 2
	}
	if len(cands) < k {
		return math.Inf(1)
	}
	return cands[k-1].cost - cands[0].cost
}

// unassignReason explains why no feasible insertion exists for the job by
// probing what the candidate screen and the checker rejected.
func (ins *Inserter) unassignReason(sol *solution.Solution, job *model.Job) solution.Reason {
	cands := ins.reg.Candidates(job.ID)
	if len(cands) == 0 {
		skillFail, capFail := false, false
		for _, a := range ins.reg.Actors() {
			if !a.Vehicle.HasSkills(job.Skills) {
				skillFail = true
				continue
			}
			if len(a.Vehicle.Capacity) > 0 && !job.Demand.Fits(a.Vehicle.Capacity) {
				capFail = true
			}
		}
		switch {
		case capFail:
			return solution.ReasonNoCapacity
		case skillFail:
			return solution.ReasonSkillMismatch
		}
		return solution.ReasonNoReachableVehicle
	}
	var sawTW, sawCap bool
	for _, ai := range cands {
		probe := sol.RouteForActor(ai)
		temp := false
		if probe == nil {
			probe = &solution.Route{Actor: ai}
			temp = true
		}
		for place := range job.Places {
			for pos := 0; pos <= len(probe.Activities); pos++ {
				_, code := ins.checker.EvaluateInsertion(sol, probe, job, place, pos)
				switch code {
				case constraint.TimeWindowViolation, constraint.MaxDurationExceeded:
					sawTW = true
				case constraint.CapacityExceeded:
					sawCap = true
				}
			}
		}
		if temp {
			ins.checker.Forget(probe)
		}
	}
	switch {
	case sawTW:
		return solution.ReasonNoTimeWindowFit
	case sawCap:
		return solution.ReasonNoCapacity
	}
	return solution.ReasonNoReachableVehicle
}

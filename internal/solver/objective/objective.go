// Package objective computes multi-criteria fitness for solutions and
// defines the orders the search engine ranks them by.
package objective

import (
	"vrpsolve/internal/solver/constraint"
	"vrpsolve/internal/solver/model"
	"vrpsolve/internal/solver/solution"
)

// Criteria is the criterion vector of a solution, in lexicographic priority
// order: unassigned jobs first, then transport cost, tardiness, and route
// count as the tie breaker.
type Criteria struct {
	Unassigned int
	Cost       float64
	Tardiness  float64
	Routes     int
}

const costEps = 1e-6

// Less is the total lexicographic order used in single-objective mode.
func Less(a, b Criteria) bool {
	if a.Unassigned != b.Unassigned {
		return a.Unassigned < b.Unassigned
	}
	if diff := a.Cost - b.Cost; diff < -costEps || diff > costEps {
		return a.Cost < b.Cost
	}
	if diff := a.Tardiness - b.Tardiness; diff < -costEps || diff > costEps {
		return a.Tardiness < b.Tardiness
	}
	return a.Routes < b.Routes
}

// Dominates reports Pareto dominance: a is no worse than b on every
// criterion and strictly better on at least one.
func Dominates(a, b Criteria) bool {
	noWorse := a.Unassigned <= b.Unassigned &&
		a.Cost <= b.Cost+costEps &&
		a.Tardiness <= b.Tardiness+costEps &&
		a.Routes <= b.Routes
	better := a.Unassigned < b.Unassigned ||
		a.Cost < b.Cost-costEps ||
		a.Tardiness < b.Tardiness-costEps ||
		a.Routes < b.Routes
	return noWorse && better
}

// Evaluator derives criteria from route schedules. It mutates nothing and
// returns identical vectors for identical solution content.
type Evaluator struct {
	prob    *model.Problem
	reg     *model.Registry
	checker *constraint.Checker
}

func NewEvaluator(reg *model.Registry, checker *constraint.Checker) *Evaluator {
	return &Evaluator{prob: reg.Problem(), reg: reg, checker: checker}
}

// Evaluate computes the solution's criterion vector.
func (e *Evaluator) Evaluate(s *solution.Solution) Criteria {
	c := Criteria{Unassigned: len(s.Unassigned)}
	for _, r := range s.Routes {
		if len(r.Activities) == 0 {
			continue
		}
		st := e.checker.State(r)
		costs := e.vehicleOf(r).Costs
		c.Cost += costs.Fixed + costs.PerDistance*st.Distance + costs.PerDuration*st.Duration()
		c.Tardiness += st.Tardiness
		c.Routes++
	}
	return c
}

// Breakdown splits the solution cost per criterion for reporting.
func (e *Evaluator) Breakdown(s *solution.Solution) map[string]float64 {
	out := map[string]float64{
		"fixed":     0,
		"distance":  0,
		"duration":  0,
		"waiting":   0,
		"tardiness": 0,
	}
	for _, r := range s.Routes {
		if len(r.Activities) == 0 {
			continue
		}
		st := e.checker.State(r)
		costs := e.vehicleOf(r).Costs
		out["fixed"] += costs.Fixed
		out["distance"] += costs.PerDistance * st.Distance
		out["duration"] += costs.PerDuration * st.Duration()
		out["waiting"] += st.Waiting
		out["tardiness"] += st.Tardiness
	}
	return out
}

func (e *Evaluator) vehicleOf(r *solution.Route) *model.Vehicle {
	return e.reg.Actors()[r.Actor].Vehicle
}

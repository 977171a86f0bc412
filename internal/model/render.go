package model

import (
	"sort"
	"time"

	"vrpsolve/internal/solver/constraint"
	"vrpsolve/internal/solver/engine"
	solver "vrpsolve/internal/solver/model"
)

// RenderSolution turns an engine result into the solution read model,
// re-deriving route schedules so timestamps and loads are authoritative.
func RenderSolution(runID string, horizon time.Time, reg *solver.Registry, res *engine.Result) Solution {
	ck := constraint.New(reg, false)
	out := Solution{
		RunID:     runID,
		Cost:      res.Criteria.Cost,
		Breakdown: res.Breakdown,
		Routes:    []Route{},
		Statistic: Statistic{
			Generations:  res.Stats.Generations,
			Improvements: res.Stats.Improvements,
			WallTimeMs:   res.Stats.WallTime.Milliseconds(),
		},
	}
	for _, pt := range res.Stats.Curve {
		out.Statistic.Curve = append(out.Statistic.Curve, CurvePoint{
			Generation: pt.Generation, Cost: pt.Cost, Unassigned: pt.Unassigned,
		})
	}

	for _, r := range res.Best.Routes {
		if len(r.Activities) == 0 {
			continue
		}
		actor := reg.Actors()[r.Actor]
		st := ck.State(r)
		route := Route{
			VehicleID: actor.Vehicle.ID,
			Shift:     actor.Shift,
			Distance:  st.Distance,
			Duration:  st.Duration(),
		}
		for i, a := range r.Activities {
			route.Stops = append(route.Stops, Stop{
				JobID:     a.JobID,
				Arrival:   FormatTime(horizon, st.Arrival[i]),
				Departure: FormatTime(horizon, st.Departure[i]),
				Waiting:   a.Waiting,
				Tardiness: a.Tardiness,
				Load:      a.Load,
			})
		}
		out.Routes = append(out.Routes, route)
	}
	sort.Slice(out.Routes, func(i, j int) bool {
		if out.Routes[i].VehicleID != out.Routes[j].VehicleID {
			return out.Routes[i].VehicleID < out.Routes[j].VehicleID
		}
		return out.Routes[i].Shift < out.Routes[j].Shift
	})

	for id, reason := range res.Best.Unassigned {
		out.Unassigned = append(out.Unassigned, UnassignedJob{JobID: id, Reason: reason.String()})
	}
	sort.Slice(out.Unassigned, func(i, j int) bool {
		return out.Unassigned[i].JobID < out.Unassigned[j].JobID
	})

	for _, m := range res.Front {
		out.Front = append(out.Front, FrontPoint{
			Cost:       m.Criteria.Cost,
			Unassigned: m.Criteria.Unassigned,
			Tardiness:  m.Criteria.Tardiness,
			Routes:     m.Criteria.Routes,
		})
	}
	return out
}

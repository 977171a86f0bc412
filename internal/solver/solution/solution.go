// Package solution holds the mutable search-state representation: routes of
// scheduled activities plus the set of unassigned jobs. A solution is owned
// by exactly one goroutine while it is being mutated.
package solution

import (
	"fmt"

	"vrpsolve/internal/solver/model"
)

// Reason explains why a job ended up unassigned. This is normal solver
// output, not an error.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNoReachableVehicle
	ReasonNoCapacity
	ReasonNoTimeWindowFit
	ReasonSkillMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonNoReachableVehicle:
		return "NoReachableVehicle"
	case ReasonNoCapacity:
		return "NoCapacity"
	case ReasonNoTimeWindowFit:
		return "NoTimeWindowFit"
	case ReasonSkillMismatch:
		return "SkillMismatch"
	}
	return "None"
}

// Activity is one scheduled visit within a route. The timing and load fields
// are derived data maintained by the constraint checker; route order is the
// only authoritative state.
type Activity struct {
	JobID string
	Place int // index into the job's Places

	Arrival   float64
	Start     float64 // service start, Arrival plus Waiting
	Departure float64
	Waiting   float64
	Tardiness float64
	Load      model.Demand // load when leaving this activity
}

// Route is one actor's ordered tour. Actor indexes into Registry.Actors.
type Route struct {
	Actor      int
	Activities []Activity

	stamp uint64
}

// Stamp identifies the route's structural version. Any mutation bumps it,
// which invalidates cached schedule state held by constraint checkers.
func (r *Route) Stamp() uint64 { return r.stamp }

// Insert places an activity at the given position.
func (r *Route) Insert(pos int, a Activity) {
	if pos < 0 || pos > len(r.Activities) {
		pos = len(r.Activities)
	}
	r.Activities = append(r.Activities, Activity{})
	copy(r.Activities[pos+1:], r.Activities[pos:])
	r.Activities[pos] = a
	r.stamp++
}

// Remove deletes and returns the activity at pos.
func (r *Route) Remove(pos int) Activity {
	a := r.Activities[pos]
	r.Activities = append(r.Activities[:pos], r.Activities[pos+1:]...)
	r.stamp++
	return a
}

// Touch invalidates cached schedule state without changing the order.
func (r *Route) Touch() { r.stamp++ }

// IndexOf returns the position of a job in the route, or -1.
func (r *Route) IndexOf(jobID string) int {
	for i := range r.Activities {
		if r.Activities[i].JobID == jobID {
			return i
		}
	}
	return -1
}

func (r *Route) Clone() *Route {
	out := &Route{Actor: r.Actor, stamp: r.stamp}
	out.Activities = make([]Activity, len(r.Activities))
	copy(out.Activities, r.Activities)
	for i := range out.Activities {
		out.Activities[i].Load = out.Activities[i].Load.Clone()
	}
	return out
}

// Solution maps actors to at most one route each and records unassigned
// jobs with reasons. Every job of the problem is either scheduled in exactly
// one route or present in Unassigned.
type Solution struct {
	Routes     []*Route
	Unassigned map[string]Reason
}

func New() *Solution {
	return &Solution{Unassigned: map[string]Reason{}}
}

// Clone returns a deep copy sharing nothing mutable with the receiver.
func (s *Solution) Clone() *Solution {
	out := &Solution{
		Routes:     make([]*Route, len(s.Routes)),
		Unassigned: make(map[string]Reason, len(s.Unassigned)),
	}
	for i, r := range s.Routes {
		out.Routes[i] = r.Clone()
	}
	for id, reason := range s.Unassigned {
		out.Unassigned[id] = reason
	}
	return out
}

// RouteForActor returns the route bound to the actor index, or nil.
func (s *Solution) RouteForActor(actor int) *Route {
	for _, r := range s.Routes {
		if r.Actor == actor {
			return r
		}
	}
	return nil
}

// RouteOf returns the route containing the job and the activity position,
// or (nil, -1).
func (s *Solution) RouteOf(jobID string) (*Route, int) {
	for _, r := range s.Routes {
		if pos := r.IndexOf(jobID); pos >= 0 {
			return r, pos
		}
	}
	return nil, -1
}

// AddRoute opens a route for an actor. The caller must ensure the actor has
// no route yet.
func (s *Solution) AddRoute(r *Route) { s.Routes = append(s.Routes, r) }

// DropEmptyRoutes removes routes with no activities.
func (s *Solution) DropEmptyRoutes() {
	out := s.Routes[:0]
	for _, r := range s.Routes {
		if len(r.Activities) > 0 {
			out = append(out, r)
		}
	}
	s.Routes = out
}

// AssignedCount returns the number of scheduled activities.
func (s *Solution) AssignedCount() int {
	n := 0
	for _, r := range s.Routes {
		n += len(r.Activities)
	}
	return n
}

// CheckConservation verifies the job-conservation invariant against the
// problem's job set: every job exactly once, in a route or unassigned.
func (s *Solution) CheckConservation(p *model.Problem) error {
	seen := map[string]int{}
	for _, r := range s.Routes {
		for _, a := range r.Activities {
			seen[a.JobID]++
		}
	}
	for id := range s.Unassigned {
		seen[id]++
	}
	for _, j := range p.Jobs {
		switch seen[j.ID] {
		case 1:
		case 0:
			return fmt.Errorf("job %s missing from solution", j.ID)
		default:
			return fmt.Errorf("job %s appears %d times", j.ID, seen[j.ID])
		}
	}
	if len(seen) != len(p.Jobs) {
		for id := range seen {
			if p.Job(id) == nil {
				return fmt.Errorf("solution contains unknown job %s", id)
			}
		}
	}
	return nil
}

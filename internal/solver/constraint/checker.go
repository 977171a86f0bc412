// Package constraint validates insertions against vehicle capacity, time
// windows, skills, route duration limits and job relations, and maintains
// per-route schedule state incrementally.
package constraint

import (
	"math"

	"vrpsolve/internal/solver/model"
	"vrpsolve/internal/solver/solution"
)

// Code is a feasibility verdict for a candidate move.
type Code int

const (
	OK Code = iota
	TimeWindowViolation
	CapacityExceeded
	SkillMismatch
	MaxDurationExceeded
	RelationOrderViolation
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case TimeWindowViolation:
		return "TimeWindowViolation"
	case CapacityExceeded:
		return "CapacityExceeded"
	case SkillMismatch:
		return "SkillMismatch"
	case MaxDurationExceeded:
		return "MaxDurationExceeded"
	case RelationOrderViolation:
		return "RelationOrderViolation"
	}
	return "Unknown"
}

// Reason maps a violation to the unassigned-reason reported to callers.
func (c Code) Reason() solution.Reason {
	switch c {
	case TimeWindowViolation, MaxDurationExceeded:
		return solution.ReasonNoTimeWindowFit
	case CapacityExceeded:
		return solution.ReasonNoCapacity
	case SkillMismatch:
		return solution.ReasonSkillMismatch
	}
	return solution.ReasonNoReachableVehicle
}

// Delta carries the schedule changes a feasible insertion would cause. The
// candidate route is never mutated; the caller applies the move explicitly.
type Delta struct {
	Distance  float64 // added travel distance
	Duration  float64 // change in total route duration
	Waiting   float64 // change in accumulated waiting
	Tardiness float64 // change in accumulated tardiness (soft windows)
	TimeShift float64 // delay pushed onto the first successor activity
	Cost      float64 // vehicle-cost-weighted delta, including fixed cost on an empty route
}

// State is the derived schedule of a route: arrival/departure prefixes,
// load profile and aggregate totals. It is a cache keyed by the route's
// mutation stamp and must never be trusted across structural changes.
type State struct {
	stamp uint64

	Arrival   []float64
	Start     []float64
	Departure []float64
	Loads     []model.Demand // load when leaving each activity

	StartLoad model.Demand
	MaxLoad   model.Demand

	Begin     float64 // departure from the shift start location
	End       float64 // arrival at the shift end (or last departure)
	Distance  float64
	Waiting   float64
	Serving   float64
	Tardiness float64
}

// Duration is the route's total elapsed time.
func (st *State) Duration() float64 { return st.End - st.Begin }

// Checker evaluates feasibility for one goroutine. The problem and registry
// it wraps are shared read-only; the schedule cache is not synchronized, so
// each worker owns its own Checker.
type Checker struct {
	prob *model.Problem
	reg  *model.Registry
	soft bool

	cache map[*solution.Route]*State
}

// New builds a checker. When softTimeWindows is set, late arrival at a job
// place accrues tardiness instead of rejecting the move; shift windows stay
// hard either way.
func New(reg *model.Registry, softTimeWindows bool) *Checker {
	return &Checker{
		prob:  reg.Problem(),
		reg:   reg,
		soft:  softTimeWindows,
		cache: map[*solution.Route]*State{},
	}
}

func (c *Checker) Soft() bool { return c.soft }

// State returns the schedule for the route, recomputing it only when the
// route's stamp moved since the last computation. It also refreshes the
// derived timing fields on the route's activities.
func (c *Checker) State(r *solution.Route) *State {
	if st, ok := c.cache[r]; ok && st.stamp == r.Stamp() {
		return st
	}
	st := c.compute(r)
	c.cache[r] = st
	return st
}

// Forget drops cached state for routes no longer reachable, keeping the
// cache from growing across generations.
func (c *Checker) Forget(r *solution.Route) { delete(c.cache, r) }

// Reset drops all cached state. Called between offspring tasks: every clone
// carries fresh route pointers, so entries from a finished task are dead
// weight that would otherwise pin discarded solutions for the whole run.
func (c *Checker) Reset() { c.cache = map[*solution.Route]*State{} }

func (c *Checker) actor(r *solution.Route) model.Actor { return c.reg.Actors()[r.Actor] }

func (c *Checker) compute(r *solution.Route) *State {
	actor := c.actor(r)
	shift := actor.ShiftSpec()
	profile := actor.Vehicle.Profile

	n := len(r.Activities)
	st := &State{
		stamp:     r.Stamp(),
		Arrival:   make([]float64, n),
		Start:     make([]float64, n),
		Departure: make([]float64, n),
		Loads:     make([]model.Demand, n),
	}

	// Deliveries are loaded at the route start.
	var startLoad model.Demand
	for i := range r.Activities {
		job := c.prob.Job(r.Activities[i].JobID)
		if job != nil && job.Kind == model.KindDelivery {
			startLoad = startLoad.Add(job.Demand)
		}
	}
	st.StartLoad = startLoad
	st.MaxLoad = startLoad.Clone()

	t := shift.Window.Start
	st.Begin = t
	cur := shift.Start
	load := startLoad.Clone()

	for i := range r.Activities {
		a := &r.Activities[i]
		job := c.prob.Job(a.JobID)
		place := job.Places[a.Place]

		st.Distance += c.prob.Transport.Distance(profile, cur, place.Location, t)
		t += c.prob.Transport.Duration(profile, cur, place.Location, t)
		arrival := t
		start, waiting, tardiness := fitWindow(place.Windows, arrival)
		t = start + place.Duration

		switch job.Kind {
		case model.KindDelivery:
			load = load.Sub(job.Demand)
		case model.KindPickup:
			load = load.Add(job.Demand)
		}

		st.Arrival[i] = arrival
		st.Start[i] = start
		st.Departure[i] = t
		st.Loads[i] = load.Clone()
		st.MaxLoad = st.MaxLoad.Max(load)
		st.Waiting += waiting
		st.Serving += place.Duration
		st.Tardiness += tardiness

		a.Arrival = arrival
		a.Start = start
		a.Departure = t
		a.Waiting = waiting
		a.Tardiness = tardiness
		a.Load = load.Clone()

		cur = place.Location
	}

	if shift.End != nil && n > 0 {
		st.Distance += c.prob.Transport.Distance(profile, cur, *shift.End, t)
		t += c.prob.Transport.Duration(profile, cur, *shift.End, t)
	}
	st.End = t
	return st
}

// fitWindow picks the first window the arrival can be served in, returning
// the service start, incurred waiting and tardiness. With no windows the
// service starts on arrival. Arrival past every window is served against the
// last window with tardiness.
func fitWindow(windows []model.TimeWindow, arrival float64) (start, waiting, tardiness float64) {
	if len(windows) == 0 {
		return arrival, 0, 0
	}
	for _, w := range windows {
		if arrival <= w.End {
			if arrival < w.Start {
				return w.Start, w.Start - arrival, 0
			}
			return arrival, 0, 0
		}
	}
	last := windows[len(windows)-1]
	return arrival, 0, arrival - last.End
}

func (c *Checker) maxDuration(shift model.Shift) float64 {
	if shift.MaxDuration > 0 {
		return shift.MaxDuration
	}
	return c.prob.MaxRouteDuration
}

// ValidateRoute re-derives the schedule from route order and checks every
// hard constraint at every prefix. Used on accepted solutions and in tests.
func (c *Checker) ValidateRoute(r *solution.Route) Code {
	actor := c.actor(r)
	shift := actor.ShiftSpec()
	st := c.State(r)

	if len(actor.Vehicle.Capacity) > 0 {
		if !st.StartLoad.Fits(actor.Vehicle.Capacity) || !st.MaxLoad.Fits(actor.Vehicle.Capacity) {
			return CapacityExceeded
		}
	}
	for i := range r.Activities {
		job := c.prob.Job(r.Activities[i].JobID)
		if !actor.Vehicle.HasSkills(job.Skills) {
			return SkillMismatch
		}
	}
	if !c.soft && st.Tardiness > 0 {
		return TimeWindowViolation
	}
	if st.End > shift.Window.End {
		return TimeWindowViolation
	}
	if limit := c.maxDuration(shift); limit > 0 && st.Duration() > limit {
		return MaxDurationExceeded
	}
	return OK
}

// EvaluateInsertion judges placing job (using one of its places) at position
// pos of the route. On success the returned delta describes the schedule
// change; on failure the route is untouched and a violation code names the
// binding constraint. Cost is O(route length): only the suffix from the
// insertion point is re-simulated.
func (c *Checker) EvaluateInsertion(sol *solution.Solution, r *solution.Route, job *model.Job, place, pos int) (Delta, Code) {
	actor := c.actor(r)
	shift := actor.ShiftSpec()
	profile := actor.Vehicle.Profile

	if !actor.Vehicle.HasSkills(job.Skills) {
		return Delta{}, SkillMismatch
	}
	if code := c.checkRelations(sol, r, job, pos); code != OK {
		return Delta{}, code
	}
	if code := c.checkCapacity(r, job, pos); code != OK {
		return Delta{}, code
	}

	st := c.State(r)
	pl := job.Places[place]

	// Timing from the predecessor up to the new activity.
	var prevLoc model.Location
	var depart float64
	if pos == 0 {
		prevLoc = shift.Start
		depart = shift.Window.Start
	} else {
		prevLoc = c.placeOf(r.Activities[pos-1]).Location
		depart = st.Departure[pos-1]
	}

	addedDist := c.prob.Transport.Distance(profile, prevLoc, pl.Location, depart)
	arrival := depart + c.prob.Transport.Duration(profile, prevLoc, pl.Location, depart)
	start, waiting, tardiness := fitWindow(pl.Windows, arrival)
	if !c.soft && tardiness > 0 {
		return Delta{}, TimeWindowViolation
	}
	t := start + pl.Duration
	cur := pl.Location

	// Re-simulate the displaced suffix.
	sufWaiting, sufTardiness := 0.0, 0.0
	sufDist := 0.0
	for i := pos; i < len(r.Activities); i++ {
		p := c.placeOf(r.Activities[i])
		sufDist += c.prob.Transport.Distance(profile, cur, p.Location, t)
		t += c.prob.Transport.Duration(profile, cur, p.Location, t)
		sStart, sWait, sTard := fitWindow(p.Windows, t)
		if !c.soft && sTard > 0 {
			return Delta{}, TimeWindowViolation
		}
		sufWaiting += sWait
		sufTardiness += sTard
		t = sStart + p.Duration
		cur = p.Location
	}
	if shift.End != nil {
		sufDist += c.prob.Transport.Distance(profile, cur, *shift.End, t)
		t += c.prob.Transport.Duration(profile, cur, *shift.End, t)
	}
	if t > shift.Window.End {
		return Delta{}, TimeWindowViolation
	}
	newDuration := t - shift.Window.Start
	if limit := c.maxDuration(shift); limit > 0 && newDuration > limit {
		return Delta{}, MaxDurationExceeded
	}

	// Old totals for the suffix (distance of legs from pos-1 onward plus
	// waiting/tardiness of the displaced activities).
	oldSufDist, oldSufWaiting, oldSufTardiness := c.suffixTotals(r, st, pos, prevLoc, profile)

	d := Delta{
		Distance:  addedDist + sufDist - oldSufDist,
		Duration:  newDuration - st.Duration(),
		Waiting:   waiting + sufWaiting - oldSufWaiting,
		Tardiness: tardiness + sufTardiness - oldSufTardiness,
	}
	if pos < len(r.Activities) {
		next := c.placeOf(r.Activities[pos])
		nextArrival := (start + pl.Duration) +
			c.prob.Transport.Duration(profile, pl.Location, next.Location, start+pl.Duration)
		d.TimeShift = math.Max(0, nextArrival-st.Arrival[pos])
	}
	costs := actor.Vehicle.Costs
	d.Cost = costs.PerDistance*d.Distance + costs.PerDuration*d.Duration
	if len(r.Activities) == 0 {
		d.Cost += costs.Fixed
	}
	return d, OK
}

func (c *Checker) placeOf(a solution.Activity) model.Place {
	job := c.prob.Job(a.JobID)
	return job.Places[a.Place]
}

// suffixTotals returns the pre-insertion distance, waiting and tardiness of
// the route from position pos to the route end, including the leg leaving
// prevLoc.
func (c *Checker) suffixTotals(r *solution.Route, st *State, pos int, prevLoc model.Location, profile string) (dist, waiting, tardiness float64) {
	cur := prevLoc
	depart := st.Begin
	if pos > 0 {
		depart = st.Departure[pos-1]
	}
	for i := pos; i < len(r.Activities); i++ {
		p := c.placeOf(r.Activities[i])
		dist += c.prob.Transport.Distance(profile, cur, p.Location, depart)
		waiting += r.Activities[i].Waiting
		tardiness += r.Activities[i].Tardiness
		depart = st.Departure[i]
		cur = p.Location
	}
	shift := c.actor(r).ShiftSpec()
	if shift.End != nil && len(r.Activities) > 0 {
		dist += c.prob.Transport.Distance(profile, cur, *shift.End, depart)
	}
	return dist, waiting, tardiness
}

// checkCapacity walks the load profile with the candidate included and
// verifies every prefix fits the vehicle.
func (c *Checker) checkCapacity(r *solution.Route, job *model.Job, pos int) Code {
	capac := c.actor(r).Vehicle.Capacity
	if len(capac) == 0 {
		return OK
	}
	st := c.State(r)
	startLoad := st.StartLoad
	if job.Kind == model.KindDelivery {
		startLoad = startLoad.Add(job.Demand)
	}
	if !startLoad.Fits(capac) {
		return CapacityExceeded
	}
	load := startLoad.Clone()
	apply := func(j *model.Job) bool {
		switch j.Kind {
		case model.KindDelivery:
			load = load.Sub(j.Demand)
		case model.KindPickup:
			load = load.Add(j.Demand)
		}
		return load.Fits(capac)
	}
	for i := 0; i <= len(r.Activities); i++ {
		if i == pos {
			if !apply(job) {
				return CapacityExceeded
			}
		}
		if i < len(r.Activities) {
			if !apply(c.prob.Job(r.Activities[i].JobID)) {
				return CapacityExceeded
			}
		}
	}
	return OK
}

// checkRelations enforces same-route and sequence relations for the
// candidate insertion against the rest of the solution.
func (c *Checker) checkRelations(sol *solution.Solution, r *solution.Route, job *model.Job, pos int) Code {
	if sol == nil {
		return OK
	}
	for _, rel := range c.prob.Relations {
		idx := -1
		for i, id := range rel.Jobs {
			if id == job.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		for i, id := range rel.Jobs {
			if id == job.ID {
				continue
			}
			other, otherPos := sol.RouteOf(id)
			if other == nil {
				continue // unassigned members do not constrain
			}
			if other != r {
				return RelationOrderViolation
			}
			if rel.Type != model.RelationSequence {
				continue
			}
			// Members earlier in the relation must sit before pos.
			if i < idx && otherPos >= pos {
				return RelationOrderViolation
			}
			if i > idx && otherPos < pos {
				return RelationOrderViolation
			}
		}
	}
	return OK
}

// RemovalGain estimates the travel distance saved by removing the activity
// at pos, used by worst-job ruin to rank candidates.
func (c *Checker) RemovalGain(r *solution.Route, pos int) float64 {
	actor := c.actor(r)
	shift := actor.ShiftSpec()
	profile := actor.Vehicle.Profile
	st := c.State(r)

	cur := c.placeOf(r.Activities[pos]).Location
	prevLoc := shift.Start
	depart := st.Begin
	if pos > 0 {
		prevLoc = c.placeOf(r.Activities[pos-1]).Location
		depart = st.Departure[pos-1]
	}
	var nextLoc *model.Location
	if pos+1 < len(r.Activities) {
		l := c.placeOf(r.Activities[pos+1]).Location
		nextLoc = &l
	} else if shift.End != nil {
		nextLoc = shift.End
	}
	in := c.prob.Transport.Distance(profile, prevLoc, cur, depart)
	if nextLoc == nil {
		return in
	}
	out := c.prob.Transport.Distance(profile, cur, *nextLoc, st.Departure[pos])
	direct := c.prob.Transport.Distance(profile, prevLoc, *nextLoc, depart)
	return in + out - direct
}

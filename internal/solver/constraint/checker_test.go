package constraint

import (
	"math"
	"testing"

	"vrpsolve/internal/solver/model"
	"vrpsolve/internal/solver/solution"
)

// planeTransport routes on a flat plane with Lat/Lng in meters and a speed
// of one meter per second, so durations equal distances.
type planeTransport struct{}

func (planeTransport) Distance(_ string, a, b model.Location, _ float64) float64 {
	dx := a.Lat - b.Lat
	dy := a.Lng - b.Lng
	return math.Sqrt(dx*dx + dy*dy)
}

func (p planeTransport) Duration(profile string, a, b model.Location, t float64) float64 {
	return p.Distance(profile, a, b, t)
}

func at(x float64) model.Location { return model.Location{Lat: x, Index: -1} }

func job(id string, x, service float64, opts ...func(*model.Job)) model.Job {
	j := model.Job{
		ID:     id,
		Kind:   model.KindService,
		Places: []model.Place{{Location: at(x), Duration: service}},
	}
	for _, opt := range opts {
		opt(&j)
	}
	return j
}

func withWindow(start, end float64) func(*model.Job) {
	return func(j *model.Job) { j.Places[0].Windows = []model.TimeWindow{{Start: start, End: end}} }
}

func withPickup(demand float64) func(*model.Job) {
	return func(j *model.Job) { j.Kind = model.KindPickup; j.Demand = model.Demand{demand} }
}

func withDelivery(demand float64) func(*model.Job) {
	return func(j *model.Job) { j.Kind = model.KindDelivery; j.Demand = model.Demand{demand} }
}

func planeProblem(jobs []model.Job, tweak ...func(*model.Problem)) *model.Problem {
	end := at(0)
	p := &model.Problem{
		Fleet: model.Fleet{Vehicles: []model.Vehicle{{
			ID: "v1", Profile: "car", Capacity: model.Demand{10},
			Costs: model.Costs{PerDistance: 1},
			Shifts: []model.Shift{{
				Start:  at(0),
				End:    &end,
				Window: model.TimeWindow{Start: 0, End: 10000},
			}},
		}}},
		Jobs:      jobs,
		Transport: planeTransport{},
	}
	for _, fn := range tweak {
		fn(p)
	}
	return p
}

func newChecker(t *testing.T, p *model.Problem, soft bool) *Checker {
	t.Helper()
	if err := model.Validate(p); err != nil {
		t.Fatalf("fixture problem invalid: %v", err)
	}
	return New(model.NewRegistry(p), soft)
}

func routeWith(jobIDs ...string) *solution.Route {
	r := &solution.Route{}
	for _, id := range jobIDs {
		r.Insert(len(r.Activities), solution.Activity{JobID: id})
	}
	return r
}

func TestScheduleTotals(t *testing.T) {
	p := planeProblem([]model.Job{job("a", 100, 10), job("b", 200, 10)})
	c := newChecker(t, p, false)
	r := routeWith("a", "b")

	st := c.State(r)
	if st.Arrival[0] != 100 || st.Departure[0] != 110 {
		t.Fatalf("first activity schedule: arrival %v departure %v", st.Arrival[0], st.Departure[0])
	}
	if st.Arrival[1] != 210 || st.Departure[1] != 220 {
		t.Fatalf("second activity schedule: arrival %v departure %v", st.Arrival[1], st.Departure[1])
	}
	if st.End != 420 {
		t.Fatalf("route end: got %v, want 420", st.End)
	}
	if st.Distance != 400 {
		t.Fatalf("route distance: got %v, want 400", st.Distance)
	}
	// derived fields land on the activities too
	if r.Activities[1].Arrival != 210 {
		t.Fatalf("activity cache not refreshed: %v", r.Activities[1].Arrival)
	}
}

func TestScheduleWaiting(t *testing.T) {
	p := planeProblem([]model.Job{job("a", 100, 10, withWindow(200, 400))})
	c := newChecker(t, p, false)
	st := c.State(routeWith("a"))
	if st.Waiting != 100 {
		t.Fatalf("waiting: got %v, want 100", st.Waiting)
	}
	if st.Start[0] != 200 || st.Departure[0] != 210 {
		t.Fatalf("window fit: start %v departure %v", st.Start[0], st.Departure[0])
	}
}

func TestStateCachedByStamp(t *testing.T) {
	p := planeProblem([]model.Job{job("a", 100, 0), job("b", 200, 0)})
	c := newChecker(t, p, false)
	r := routeWith("a")
	st1 := c.State(r)
	if c.State(r) != st1 {
		t.Fatal("unchanged route should hit the cache")
	}
	r.Insert(1, solution.Activity{JobID: "b"})
	st2 := c.State(r)
	if st2 == st1 {
		t.Fatal("mutation must invalidate cached state")
	}
	if st2.End == st1.End {
		t.Fatal("recomputed state should reflect the new activity")
	}
}

func TestResetClearsCache(t *testing.T) {
	p := planeProblem([]model.Job{job("a", 100, 0), job("b", 200, 0)})
	c := newChecker(t, p, false)
	ra := routeWith("a")
	rb := routeWith("b")
	st1 := c.State(ra)
	c.State(rb)
	if len(c.cache) != 2 {
		t.Fatalf("cache size: %d", len(c.cache))
	}
	c.Reset()
	if len(c.cache) != 0 {
		t.Fatalf("cache not cleared: %d entries", len(c.cache))
	}
	st2 := c.State(ra)
	if st2 == st1 {
		t.Fatal("state after reset should be recomputed")
	}
	if st2.End != st1.End {
		t.Fatal("recomputed state must match the original schedule")
	}
}

func TestInsertionTimeWindowViolation(t *testing.T) {
	p := planeProblem([]model.Job{job("far", 100, 0, withWindow(0, 50))})
	c := newChecker(t, p, false)
	sol := solution.New()
	r := &solution.Route{}
	sol.AddRoute(r)

	_, code := c.EvaluateInsertion(sol, r, p.Job("far"), 0, 0)
	if code != TimeWindowViolation {
		t.Fatalf("got %v, want TimeWindowViolation", code)
	}
}

func TestInsertionSoftTimeWindowAccrues(t *testing.T) {
	p := planeProblem([]model.Job{job("far", 100, 0, withWindow(0, 50))})
	c := newChecker(t, p, true)
	sol := solution.New()
	r := &solution.Route{}
	sol.AddRoute(r)

	d, code := c.EvaluateInsertion(sol, r, p.Job("far"), 0, 0)
	if code != OK {
		t.Fatalf("soft mode should accept: got %v", code)
	}
	if d.Tardiness != 50 {
		t.Fatalf("tardiness delta: got %v, want 50", d.Tardiness)
	}
}

func TestInsertionCapacityDeliveries(t *testing.T) {
	p := planeProblem([]model.Job{
		job("d1", 10, 0, withDelivery(6)),
		job("d2", 20, 0, withDelivery(6)),
	})
	c := newChecker(t, p, false)
	sol := solution.New()
	r := routeWith("d1")
	sol.AddRoute(r)

	// second delivery would push the start load to 12 on a capacity of 10
	_, code := c.EvaluateInsertion(sol, r, p.Job("d2"), 0, 1)
	if code != CapacityExceeded {
		t.Fatalf("got %v, want CapacityExceeded", code)
	}
}

func TestInsertionCapacityPickupSuffix(t *testing.T) {
	p := planeProblem([]model.Job{
		job("p1", 10, 0, withPickup(6)),
		job("p2", 20, 0, withPickup(6)),
	})
	c := newChecker(t, p, false)
	sol := solution.New()
	r := routeWith("p1")
	sol.AddRoute(r)

	_, code := c.EvaluateInsertion(sol, r, p.Job("p2"), 0, 0)
	if code != CapacityExceeded {
		t.Fatalf("pickups that jointly exceed capacity must be rejected: %v", code)
	}
}

func TestInsertionMixedPickupDeliveryFits(t *testing.T) {
	p := planeProblem([]model.Job{
		job("d1", 10, 0, withDelivery(8)),
		job("p1", 20, 0, withPickup(8)),
	})
	c := newChecker(t, p, false)
	sol := solution.New()
	r := routeWith("d1")
	sol.AddRoute(r)

	// pickup after the delivery keeps the peak at 8 the whole way
	if _, code := c.EvaluateInsertion(sol, r, p.Job("p1"), 0, 1); code != OK {
		t.Fatalf("delivery-then-pickup should fit: %v", code)
	}
	// pickup before the delivery would carry 16 at once
	if _, code := c.EvaluateInsertion(sol, r, p.Job("p1"), 0, 0); code != CapacityExceeded {
		t.Fatal("pickup-before-delivery must exceed capacity")
	}
}

func TestInsertionSkillMismatch(t *testing.T) {
	p := planeProblem([]model.Job{job("a", 10, 0)})
	p.Jobs[0].Skills = []string{"crane"}
	c := newChecker(t, p, false)
	sol := solution.New()
	r := &solution.Route{}
	sol.AddRoute(r)

	if _, code := c.EvaluateInsertion(sol, r, p.Job("a"), 0, 0); code != SkillMismatch {
		t.Fatalf("got %v, want SkillMismatch", code)
	}
}

func TestInsertionMaxDuration(t *testing.T) {
	p := planeProblem([]model.Job{job("far", 600, 0)})
	p.Fleet.Vehicles[0].Shifts[0].MaxDuration = 300
	c := newChecker(t, p, false)
	sol := solution.New()
	r := &solution.Route{}
	sol.AddRoute(r)

	if _, code := c.EvaluateInsertion(sol, r, p.Job("far"), 0, 0); code != MaxDurationExceeded {
		t.Fatal("round trip of 1200s must exceed the 300s limit")
	}
}

func TestInsertionShiftWindowHardEvenWhenSoft(t *testing.T) {
	p := planeProblem([]model.Job{job("far", 600, 0)})
	p.Fleet.Vehicles[0].Shifts[0].Window.End = 1000
	c := newChecker(t, p, true)
	sol := solution.New()
	r := &solution.Route{}
	sol.AddRoute(r)

	if _, code := c.EvaluateInsertion(sol, r, p.Job("far"), 0, 0); code != TimeWindowViolation {
		t.Fatal("returning after shift end must stay infeasible in soft mode")
	}
}

func TestInsertionDeltaMatchesRecompute(t *testing.T) {
	p := planeProblem([]model.Job{
		job("a", 100, 10),
		job("b", 200, 10),
		job("c", 150, 5),
	})
	c := newChecker(t, p, false)
	sol := solution.New()
	r := routeWith("a", "b")
	sol.AddRoute(r)

	before := c.State(r)
	d, code := c.EvaluateInsertion(sol, r, p.Job("c"), 0, 1)
	if code != OK {
		t.Fatalf("insertion rejected: %v", code)
	}
	beforeDist := before.Distance
	beforeDur := before.Duration()

	r.Insert(1, solution.Activity{JobID: "c"})
	after := c.State(r)
	if diff := after.Distance - beforeDist - d.Distance; math.Abs(diff) > 1e-9 {
		t.Fatalf("distance delta off by %v", diff)
	}
	if diff := after.Duration() - beforeDur - d.Duration; math.Abs(diff) > 1e-9 {
		t.Fatalf("duration delta off by %v", diff)
	}
}

func TestRelationSameRoute(t *testing.T) {
	p := planeProblem([]model.Job{job("x", 10, 0), job("y", 20, 0)},
		func(p *model.Problem) {
			p.Relations = []model.Relation{{Type: model.RelationSameRoute, Jobs: []string{"x", "y"}}}
			v := p.Fleet.Vehicles[0]
			v.ID = "v2"
			p.Fleet.Vehicles = append(p.Fleet.Vehicles, v)
		})
	c := newChecker(t, p, false)
	sol := solution.New()
	r1 := routeWith("x")
	r1.Actor = 0
	r2 := &solution.Route{Actor: 1}
	sol.AddRoute(r1)
	sol.AddRoute(r2)

	if _, code := c.EvaluateInsertion(sol, r2, p.Job("y"), 0, 0); code != RelationOrderViolation {
		t.Fatal("related job on another route must be rejected")
	}
	if _, code := c.EvaluateInsertion(sol, r1, p.Job("y"), 0, 1); code != OK {
		t.Fatal("related job on the same route should be accepted")
	}
}

func TestRelationSequenceOrder(t *testing.T) {
	p := planeProblem([]model.Job{job("pick", 10, 0), job("drop", 20, 0)},
		func(p *model.Problem) {
			p.Relations = []model.Relation{{Type: model.RelationSequence, Jobs: []string{"pick", "drop"}}}
		})
	c := newChecker(t, p, false)
	sol := solution.New()
	r := routeWith("pick")
	sol.AddRoute(r)

	if _, code := c.EvaluateInsertion(sol, r, p.Job("drop"), 0, 0); code != RelationOrderViolation {
		t.Fatal("drop before pick must be rejected")
	}
	if _, code := c.EvaluateInsertion(sol, r, p.Job("drop"), 0, 1); code != OK {
		t.Fatal("drop after pick should be accepted")
	}
}

func TestValidateRoute(t *testing.T) {
	p := planeProblem([]model.Job{
		job("a", 100, 0, withWindow(0, 500)),
		job("late", 400, 0, withWindow(0, 100)),
	})
	c := newChecker(t, p, false)

	if code := c.ValidateRoute(routeWith("a")); code != OK {
		t.Fatalf("feasible route flagged: %v", code)
	}
	if code := c.ValidateRoute(routeWith("late")); code != TimeWindowViolation {
		t.Fatalf("got %v, want TimeWindowViolation", code)
	}
}

func TestRemovalGain(t *testing.T) {
	p := planeProblem([]model.Job{job("near", 10, 0), job("detour", 500, 0)})
	c := newChecker(t, p, false)
	r := routeWith("near", "detour")

	if gain := c.RemovalGain(r, 1); gain <= c.RemovalGain(r, 0) {
		t.Fatalf("the long detour should have the larger removal gain (got %v vs %v)",
			gain, c.RemovalGain(r, 0))
	}
}

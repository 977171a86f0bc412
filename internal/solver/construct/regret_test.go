package construct

import (
	"math"
	"math/rand"
	"testing"

	"vrpsolve/internal/solver/constraint"
	"vrpsolve/internal/solver/model"
	"vrpsolve/internal/solver/solution"
)

type planeTransport struct{}

func (planeTransport) Distance(_ string, a, b model.Location, _ float64) float64 {
	dx := a.Lat - b.Lat
	dy := a.Lng - b.Lng
	return math.Sqrt(dx*dx + dy*dy)
}

func (p planeTransport) Duration(profile string, a, b model.Location, t float64) float64 {
	return p.Distance(profile, a, b, t)
}

func delivery(id string, x, demand float64) model.Job {
	return model.Job{
		ID:     id,
		Kind:   model.KindDelivery,
		Demand: model.Demand{demand},
		Places: []model.Place{{Location: model.Location{Lat: x, Index: -1}, Duration: 5}},
	}
}

func fleetOf(n int, capacity, fixed float64) model.Fleet {
	depot := model.Location{Index: -1}
	vehicles := make([]model.Vehicle, n)
	for i := range vehicles {
		vehicles[i] = model.Vehicle{
			ID:       "v" + string(rune('1'+i)),
			Profile:  "car",
			Capacity: model.Demand{capacity},
			Costs:    model.Costs{Fixed: fixed, PerDistance: 1},
			Shifts: []model.Shift{{
				Start:  depot,
				End:    &depot,
				Window: model.TimeWindow{End: 100000},
			}},
		}
	}
	return model.Fleet{Vehicles: vehicles}
}

func newInserter(t *testing.T, p *model.Problem) *Inserter {
	t.Helper()
	if err := model.Validate(p); err != nil {
		t.Fatalf("fixture problem invalid: %v", err)
	}
	reg := model.NewRegistry(p)
	return NewInserter(reg, constraint.New(reg, false))
}

func TestConstructAssignsEverything(t *testing.T) {
	p := &model.Problem{
		Fleet: fleetOf(2, 10, 0),
		Jobs: []model.Job{
			delivery("a", 10, 3), delivery("b", 20, 3),
			delivery("c", 30, 3), delivery("d", 40, 3),
		},
		Transport: planeTransport{},
	}
	ins := newInserter(t, p)
	sol := ins.Construct(rand.New(rand.NewSource(1)), nil)

	if len(sol.Unassigned) != 0 {
		t.Fatalf("all jobs fit, yet unassigned: %v", sol.Unassigned)
	}
	if err := sol.CheckConservation(p); err != nil {
		t.Fatalf("conservation: %v", err)
	}
}

func TestConstructConsolidatesWhenFixedCostHigh(t *testing.T) {
	// Two jobs that fit one vehicle; the second vehicle's fixed cost makes
	// route opening strictly worse than inserting into the existing route.
	p := &model.Problem{
		Fleet: fleetOf(2, 10, 1000),
		Jobs: []model.Job{
			delivery("near", 10, 4),
			delivery("next", 12, 4),
		},
		Transport: planeTransport{},
	}
	ins := newInserter(t, p)
	sol := ins.Construct(rand.New(rand.NewSource(1)), nil)

	used := 0
	for _, r := range sol.Routes {
		if len(r.Activities) > 0 {
			used++
		}
	}
	if used != 1 {
		t.Fatalf("expected one consolidated route, got %d", used)
	}
	if len(sol.Unassigned) != 0 {
		t.Fatalf("unexpected unassigned: %v", sol.Unassigned)
	}
}

func TestConstructOversizedJobReason(t *testing.T) {
	p := &model.Problem{
		Fleet: fleetOf(1, 10, 0),
		Jobs: []model.Job{
			delivery("ok", 10, 5),
			delivery("huge", 20, 50),
		},
		Transport: planeTransport{},
	}
	ins := newInserter(t, p)
	sol := ins.Construct(rand.New(rand.NewSource(1)), nil)

	if got := sol.Unassigned["huge"]; got != solution.ReasonNoCapacity {
		t.Fatalf("oversized job reason: got %v, want NoCapacity", got)
	}
	if r, _ := sol.RouteOf("ok"); r == nil {
		t.Fatal("feasible job must still be scheduled")
	}
}

func TestConstructSkillReason(t *testing.T) {
	p := &model.Problem{
		Fleet:     fleetOf(1, 10, 0),
		Jobs:      []model.Job{delivery("fragile", 10, 1)},
		Transport: planeTransport{},
	}
	p.Jobs[0].Skills = []string{"hazmat"}
	ins := newInserter(t, p)
	sol := ins.Construct(rand.New(rand.NewSource(1)), nil)

	if got := sol.Unassigned["fragile"]; got != solution.ReasonSkillMismatch {
		t.Fatalf("got %v, want SkillMismatch", got)
	}
}

func TestConstructTimeWindowReason(t *testing.T) {
	p := &model.Problem{
		Fleet:     fleetOf(1, 10, 0),
		Jobs:      []model.Job{delivery("early", 500, 1)},
		Transport: planeTransport{},
	}
	// 500s of travel, but service must end by t=100
	p.Jobs[0].Places[0].Windows = []model.TimeWindow{{Start: 0, End: 100}}
	ins := newInserter(t, p)
	sol := ins.Construct(rand.New(rand.NewSource(1)), nil)

	if got := sol.Unassigned["early"]; got != solution.ReasonNoTimeWindowFit {
		t.Fatalf("got %v, want NoTimeWindowFit", got)
	}
}

func TestConstructExtendsPartial(t *testing.T) {
	p := &model.Problem{
		Fleet: fleetOf(1, 20, 0),
		Jobs: []model.Job{
			delivery("a", 10, 2), delivery("b", 20, 2), delivery("c", 30, 2),
		},
		Transport: planeTransport{},
	}
	ins := newInserter(t, p)

	partial := solution.New()
	r := &solution.Route{}
	r.Insert(0, solution.Activity{JobID: "b"})
	partial.AddRoute(r)
	partial.Unassigned["c"] = solution.ReasonNoReachableVehicle // stale, must be retried

	sol := ins.Construct(rand.New(rand.NewSource(1)), partial)
	if len(sol.Unassigned) != 0 {
		t.Fatalf("construction should clear retryable unassigned: %v", sol.Unassigned)
	}
	if err := sol.CheckConservation(p); err != nil {
		t.Fatalf("conservation: %v", err)
	}
	if rb, _ := sol.RouteOf("b"); rb != r {
		t.Fatal("pre-placed job must stay on its route")
	}
}

func TestConstructDeterministicUnderSeed(t *testing.T) {
	p := &model.Problem{
		Fleet: fleetOf(3, 12, 50),
		Jobs: []model.Job{
			delivery("a", 10, 4), delivery("b", 25, 4), delivery("c", 40, 4),
			delivery("d", 55, 4), delivery("e", 70, 4), delivery("f", 85, 4),
		},
		Transport: planeTransport{},
	}
	ins := newInserter(t, p)
	ins.Noise = 0.2

	sig := func(s *solution.Solution) map[string][2]int {
		out := map[string][2]int{}
		for _, r := range s.Routes {
			for i, a := range r.Activities {
				out[a.JobID] = [2]int{r.Actor, i}
			}
		}
		return out
	}

	first := sig(ins.Construct(rand.New(rand.NewSource(7)), nil))
	second := sig(ins.Construct(rand.New(rand.NewSource(7)), nil))
	if len(first) != len(second) {
		t.Fatalf("different assignment counts: %d vs %d", len(first), len(second))
	}
	for id, pos := range first {
		if second[id] != pos {
			t.Fatalf("job %s placed at %v then %v under the same seed", id, pos, second[id])
		}
	}
}

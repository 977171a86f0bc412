package objective

import (
	"math"
	"testing"

	"vrpsolve/internal/solver/constraint"
	"vrpsolve/internal/solver/model"
	"vrpsolve/internal/solver/solution"
)

type lineTransport struct{}

func (lineTransport) Distance(_ string, a, b model.Location, _ float64) float64 {
	return math.Abs(a.Lat - b.Lat)
}

func (l lineTransport) Duration(profile string, a, b model.Location, t float64) float64 {
	return l.Distance(profile, a, b, t)
}

func evalFixture(t *testing.T) (*model.Problem, *Evaluator) {
	t.Helper()
	end := model.Location{Index: -1}
	p := &model.Problem{
		Fleet: model.Fleet{Vehicles: []model.Vehicle{{
			ID: "v1", Profile: "car",
			Costs: model.Costs{Fixed: 100, PerDistance: 2, PerDuration: 1},
			Shifts: []model.Shift{{
				Start:  end,
				End:    &end,
				Window: model.TimeWindow{End: 10000},
			}},
		}}},
		Jobs: []model.Job{
			{ID: "a", Kind: model.KindService, Places: []model.Place{{Location: model.Location{Lat: 50, Index: -1}, Duration: 10}}},
			{ID: "b", Kind: model.KindService, Places: []model.Place{{Location: model.Location{Lat: 80, Index: -1}, Duration: 10}}},
		},
		Transport: lineTransport{},
	}
	if err := model.Validate(p); err != nil {
		t.Fatalf("fixture problem invalid: %v", err)
	}
	reg := model.NewRegistry(p)
	return p, NewEvaluator(reg, constraint.New(reg, false))
}

func TestEvaluateSingleRoute(t *testing.T) {
	_, ev := evalFixture(t)
	sol := solution.New()
	r := &solution.Route{}
	r.Insert(0, solution.Activity{JobID: "a"})
	r.Insert(1, solution.Activity{JobID: "b"})
	sol.AddRoute(r)
	sol.Unassigned["ghost"] = solution.ReasonNoReachableVehicle

	c := ev.Evaluate(sol)
	// out 80, back 80; duration 160 travel + 20 service
	wantCost := 100.0 + 2*160 + 1*180
	if c.Cost != wantCost {
		t.Fatalf("cost: got %v, want %v", c.Cost, wantCost)
	}
	if c.Unassigned != 1 || c.Routes != 1 {
		t.Fatalf("unassigned=%d routes=%d", c.Unassigned, c.Routes)
	}
	if again := ev.Evaluate(sol); again != c {
		t.Fatalf("evaluation not idempotent: %+v vs %+v", again, c)
	}
}

func TestEvaluateSkipsEmptyRoutes(t *testing.T) {
	_, ev := evalFixture(t)
	sol := solution.New()
	sol.AddRoute(&solution.Route{})
	c := ev.Evaluate(sol)
	if c.Cost != 0 || c.Routes != 0 {
		t.Fatalf("empty route must not contribute: %+v", c)
	}
}

func TestBreakdownSumsToCost(t *testing.T) {
	_, ev := evalFixture(t)
	sol := solution.New()
	r := &solution.Route{}
	r.Insert(0, solution.Activity{JobID: "a"})
	sol.AddRoute(r)

	c := ev.Evaluate(sol)
	b := ev.Breakdown(sol)
	got := b["fixed"] + b["distance"] + b["duration"]
	if math.Abs(got-c.Cost) > 1e-9 {
		t.Fatalf("breakdown sums to %v, cost is %v", got, c.Cost)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	p, ev := evalFixture(t)
	sol := solution.New()
	r := &solution.Route{}
	r.Insert(0, solution.Activity{JobID: "a"})
	r.Insert(1, solution.Activity{JobID: "b"})
	sol.AddRoute(r)
	sol.Unassigned["ghost"] = solution.ReasonNoCapacity

	c1 := ev.Evaluate(sol)
	if c2 := ev.Evaluate(sol); c2 != c1 {
		t.Fatalf("warm re-evaluation differs: %+v vs %+v", c2, c1)
	}
	// A fresh checker recomputes every schedule from scratch; identical
	// solution content must yield the identical criterion vector.
	reg := model.NewRegistry(p)
	fresh := NewEvaluator(reg, constraint.New(reg, false))
	if c3 := fresh.Evaluate(sol); c3 != c1 {
		t.Fatalf("fresh evaluation differs: %+v vs %+v", c3, c1)
	}
}

func TestLessLexicographic(t *testing.T) {
	base := Criteria{Unassigned: 1, Cost: 100, Tardiness: 5, Routes: 2}
	cases := []struct {
		name string
		a, b Criteria
		want bool
	}{
		{"fewer unassigned beats cheaper", Criteria{Unassigned: 0, Cost: 999}, base, true},
		{"cheaper wins at equal unassigned", Criteria{Unassigned: 1, Cost: 99, Tardiness: 99}, base, true},
		{"cost within epsilon falls through to tardiness", Criteria{Unassigned: 1, Cost: 100 + 1e-9, Tardiness: 4, Routes: 2}, base, true},
		{"routes break the final tie", Criteria{Unassigned: 1, Cost: 100, Tardiness: 5, Routes: 1}, base, true},
		{"equal is not less", base, base, false},
	}
	for _, tc := range cases {
		if got := Less(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: Less=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDominates(t *testing.T) {
	a := Criteria{Unassigned: 0, Cost: 100, Tardiness: 0, Routes: 2}
	b := Criteria{Unassigned: 0, Cost: 120, Tardiness: 0, Routes: 2}
	if !Dominates(a, b) {
		t.Fatal("strictly cheaper at equal everything else should dominate")
	}
	if Dominates(b, a) || Dominates(a, a) {
		t.Fatal("dominance must be strict and irreflexive")
	}
	// a cheaper, c fewer routes: a genuine tradeoff
	c := Criteria{Unassigned: 0, Cost: 150, Tardiness: 0, Routes: 1}
	if Dominates(a, c) || Dominates(c, a) {
		t.Fatal("tradeoff pair must be mutually non-dominated")
	}
}

func TestFrontKeepsNonDominated(t *testing.T) {
	f := &Front{Limit: 4}
	s := solution.New()

	if !f.Add(s, Criteria{Cost: 100, Routes: 2}) {
		t.Fatal("first candidate must join")
	}
	if !f.Add(s, Criteria{Cost: 150, Routes: 1}) {
		t.Fatal("tradeoff candidate must join")
	}
	if f.Add(s, Criteria{Cost: 160, Routes: 2}) {
		t.Fatal("dominated candidate must be rejected")
	}
	if f.Add(s, Criteria{Cost: 100, Routes: 2}) {
		t.Fatal("duplicate criteria must be rejected")
	}
	// dominates the first member and evicts it
	if !f.Add(s, Criteria{Cost: 90, Routes: 2}) {
		t.Fatal("dominating candidate must join")
	}
	if f.Len() != 2 {
		t.Fatalf("front size: got %d, want 2", f.Len())
	}
	ms := f.Members()
	if ms[0].Criteria.Cost != 90 {
		t.Fatalf("front must be best-first, got %+v", ms[0].Criteria)
	}
}

func TestFrontLimit(t *testing.T) {
	f := &Front{Limit: 2}
	s := solution.New()
	f.Add(s, Criteria{Cost: 100, Routes: 3})
	f.Add(s, Criteria{Cost: 150, Routes: 2})
	f.Add(s, Criteria{Cost: 200, Routes: 1})
	if f.Len() != 2 {
		t.Fatalf("front size: got %d, want limit 2", f.Len())
	}
	if worst := f.Members()[f.Len()-1].Criteria; worst.Cost > 150 {
		t.Fatalf("truncation should drop the lexicographically worst, kept %+v", worst)
	}
}

package solution

import (
	"testing"

	"vrpsolve/internal/solver/model"
)

func twoJobProblem() *model.Problem {
	return &model.Problem{
		Fleet: model.Fleet{Vehicles: []model.Vehicle{{
			ID: "v1", Shifts: []model.Shift{{Window: model.TimeWindow{End: 3600}}},
		}}},
		Jobs: []model.Job{
			{ID: "a", Places: []model.Place{{}}},
			{ID: "b", Places: []model.Place{{}}},
		},
		Transport: &model.HaversineTransport{},
	}
}

func TestRouteInsertRemoveBumpsStamp(t *testing.T) {
	r := &Route{}
	s0 := r.Stamp()
	r.Insert(0, Activity{JobID: "a"})
	if r.Stamp() == s0 {
		t.Fatal("insert must bump the stamp")
	}
	s1 := r.Stamp()
	r.Insert(0, Activity{JobID: "b"})
	if got := r.Activities[0].JobID; got != "b" {
		t.Fatalf("insert at head: got %s", got)
	}
	removed := r.Remove(1)
	if removed.JobID != "a" {
		t.Fatalf("remove: got %s, want a", removed.JobID)
	}
	if r.Stamp() == s1 {
		t.Fatal("remove must bump the stamp")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	r := &Route{}
	r.Insert(0, Activity{JobID: "a", Load: model.Demand{1}})
	s.AddRoute(r)
	s.Unassigned["b"] = ReasonNoCapacity

	c := s.Clone()
	c.Routes[0].Insert(1, Activity{JobID: "x"})
	c.Routes[0].Activities[0].Load[0] = 99
	delete(c.Unassigned, "b")

	if len(s.Routes[0].Activities) != 1 {
		t.Fatal("mutating the clone changed the original route")
	}
	if s.Routes[0].Activities[0].Load[0] != 1 {
		t.Fatal("clone shares load vectors with the original")
	}
	if s.Unassigned["b"] != ReasonNoCapacity {
		t.Fatal("mutating the clone changed the original unassigned set")
	}
}

func TestCheckConservation(t *testing.T) {
	p := twoJobProblem()
	s := New()
	r := &Route{}
	r.Insert(0, Activity{JobID: "a"})
	s.AddRoute(r)

	if err := s.CheckConservation(p); err == nil {
		t.Fatal("job b is missing, conservation should fail")
	}
	s.Unassigned["b"] = ReasonNoTimeWindowFit
	if err := s.CheckConservation(p); err != nil {
		t.Fatalf("conservation should hold: %v", err)
	}
	// duplicate: scheduled and unassigned at once
	s.Unassigned["a"] = ReasonNoCapacity
	if err := s.CheckConservation(p); err == nil {
		t.Fatal("job a is duplicated, conservation should fail")
	}
}

func TestRouteOfAndDropEmpty(t *testing.T) {
	s := New()
	r1 := &Route{Actor: 0}
	r1.Insert(0, Activity{JobID: "a"})
	r2 := &Route{Actor: 1}
	s.AddRoute(r1)
	s.AddRoute(r2)

	route, pos := s.RouteOf("a")
	if route != r1 || pos != 0 {
		t.Fatalf("RouteOf: got %v at %d", route, pos)
	}
	if r, _ := s.RouteOf("ghost"); r != nil {
		t.Fatal("unknown job should have no route")
	}
	s.DropEmptyRoutes()
	if len(s.Routes) != 1 || s.Routes[0] != r1 {
		t.Fatal("empty route should be dropped")
	}
}

func TestReasonStrings(t *testing.T) {
	cases := map[Reason]string{
		ReasonNoReachableVehicle: "NoReachableVehicle",
		ReasonNoCapacity:         "NoCapacity",
		ReasonNoTimeWindowFit:    "NoTimeWindowFit",
		ReasonSkillMismatch:      "SkillMismatch",
	}
	for r, want := range cases {
		if r.String() != want {
			t.Fatalf("reason %d: got %s, want %s", r, r.String(), want)
		}
	}
}

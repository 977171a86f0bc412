package model

import (
	"fmt"
	"math"
	"time"

	solver "vrpsolve/internal/solver/model"
)

// defaultSpeedKph is the fallback travel speed when a profile has neither a
// matrix nor a declared speed.
const defaultSpeedKph = 50

// Compile turns the wire problem into a solver problem. All RFC3339 times
// become seconds relative to the returned horizon, the earliest shift start
// of the fleet. Failures are structural errors with the format's E0xxx codes;
// solver-level checks (duplicate IDs, empty fleet) stay with the solver's
// own validator.
func (p *Problem) Compile() (*solver.Problem, time.Time, error) {
	horizon, err := p.horizon()
	if err != nil {
		return nil, time.Time{}, err
	}

	transport, err := p.transport()
	if err != nil {
		return nil, time.Time{}, err
	}
	matrixMode := len(p.Matrices) > 0

	out := &solver.Problem{Transport: transport}

	for _, j := range p.Plan.Jobs {
		kind, err := jobKind(j.Type)
		if err != nil {
			return nil, time.Time{}, err
		}
		job := solver.Job{
			ID:     j.ID,
			Kind:   kind,
			Demand: solver.Demand(j.Demand),
			Skills: j.Skills,
		}
		for _, pl := range j.Places {
			loc, err := location(pl.Location, matrixMode, "job "+j.ID)
			if err != nil {
				return nil, time.Time{}, err
			}
			place := solver.Place{Location: loc, Duration: pl.Duration}
			for _, tw := range pl.Times {
				w, err := window(horizon, tw, "job "+j.ID)
				if err != nil {
					return nil, time.Time{}, err
				}
				place.Windows = append(place.Windows, w)
			}
			job.Places = append(job.Places, place)
		}
		out.Jobs = append(out.Jobs, job)
	}

	for i, rel := range p.Plan.Relations {
		t, err := relationType(rel.Type, i)
		if err != nil {
			return nil, time.Time{}, err
		}
		out.Relations = append(out.Relations, solver.Relation{Type: t, Jobs: rel.Jobs})
	}

	for _, v := range p.Fleet.Vehicles {
		vehicle := solver.Vehicle{
			ID:       v.ID,
			Profile:  v.Profile,
			Capacity: solver.Demand(v.Capacity),
			Skills:   v.Skills,
			Costs:    costs(v.Costs),
		}
		for _, sh := range v.Shifts {
			shift, err := p.shift(horizon, sh, matrixMode, v.ID)
			if err != nil {
				return nil, time.Time{}, err
			}
			vehicle.Shifts = append(vehicle.Shifts, shift)
		}
		out.Fleet.Vehicles = append(out.Fleet.Vehicles, vehicle)
	}

	return out, horizon, nil
}

// horizon scans shift start times for the earliest one. A fleet with no
// parseable shift time anchors at the zero time; the solver validator will
// reject such problems before anything depends on it.
func (p *Problem) horizon() (time.Time, error) {
	var earliest time.Time
	for _, v := range p.Fleet.Vehicles {
		for _, sh := range v.Shifts {
			t, err := parseTime(sh.Start.Time, "vehicle "+v.ID+" shift start")
			if err != nil {
				return time.Time{}, err
			}
			if earliest.IsZero() || t.Before(earliest) {
				earliest = t
			}
		}
	}
	return earliest, nil
}

func (p *Problem) transport() (solver.Transport, error) {
	if len(p.Matrices) == 0 {
		speeds := map[string]float64{}
		for _, prof := range p.Fleet.Profiles {
			if prof.SpeedKph > 0 {
				speeds[prof.Name] = prof.SpeedKph
			}
		}
		return solver.NewMemoTransport(&solver.HaversineTransport{
			SpeedKph:        speeds,
			DefaultSpeedKph: defaultSpeedKph,
		}), nil
	}

	mt := &solver.MatrixTransport{
		Distances: map[string][][]float64{},
		Durations: map[string][][]float64{},
	}
	for _, m := range p.Matrices {
		n := int(math.Sqrt(float64(len(m.Distances))))
		if n*n != len(m.Distances) || len(m.Durations) != len(m.Distances) {
			return nil, structural("E0002",
				fmt.Sprintf("matrix for profile %q is not square or distances/durations differ in size", m.Profile),
				"provide row-major n*n distances and durations of equal length")
		}
		mt.Distances[m.Profile] = rows(m.Distances, n)
		mt.Durations[m.Profile] = rows(m.Durations, n)
	}
	return mt, nil
}

func rows(flat []float64, n int) [][]float64 {
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = flat[i*n : (i+1)*n]
	}
	return out
}

func location(g GeoPoint, matrixMode bool, where string) (solver.Location, error) {
	loc := solver.Location{Lat: g.Lat, Lng: g.Lng, Index: -1}
	if g.Index != nil {
		loc.Index = *g.Index
	} else if matrixMode {
		return loc, structural("E0003",
			"location of "+where+" has no matrix index",
			"give every location an index when supplying matrices")
	}
	return loc, nil
}

func jobKind(t string) (solver.JobKind, error) {
	switch t {
	case "", "delivery":
		return solver.KindDelivery, nil
	case "pickup":
		return solver.KindPickup, nil
	case "service":
		return solver.KindService, nil
	}
	return 0, structural("E0004",
		fmt.Sprintf("unknown job type %q", t),
		"use delivery, pickup or service")
}

func relationType(t string, i int) (solver.RelationType, error) {
	switch t {
	case "same_route":
		return solver.RelationSameRoute, nil
	case "sequence":
		return solver.RelationSequence, nil
	}
	return 0, structural("E0005",
		fmt.Sprintf("relation %d has unknown type %q", i, t),
		"use same_route or sequence")
}

func costs(c *VehicleCosts) solver.Costs {
	if c == nil {
		return solver.Costs{PerDistance: 1}
	}
	return solver.Costs{Fixed: c.Fixed, PerDistance: c.Distance, PerDuration: c.Time}
}

func (p *Problem) shift(horizon time.Time, sh VehicleShift, matrixMode bool, vehicleID string) (solver.Shift, error) {
	start, err := parseTime(sh.Start.Time, "vehicle "+vehicleID+" shift start")
	if err != nil {
		return solver.Shift{}, err
	}
	startLoc, err := location(sh.Start.Location, matrixMode, "vehicle "+vehicleID+" shift start")
	if err != nil {
		return solver.Shift{}, err
	}
	out := solver.Shift{
		Start:       startLoc,
		Window:      solver.TimeWindow{Start: seconds(horizon, start), End: math.Inf(1)},
		MaxDuration: sh.MaxDuration,
	}
	if sh.End != nil {
		end, err := parseTime(sh.End.Time, "vehicle "+vehicleID+" shift end")
		if err != nil {
			return solver.Shift{}, err
		}
		endLoc, err := location(sh.End.Location, matrixMode, "vehicle "+vehicleID+" shift end")
		if err != nil {
			return solver.Shift{}, err
		}
		out.End = &endLoc
		out.Window.End = seconds(horizon, end)
	}
	return out, nil
}

func window(horizon time.Time, tw TimeWindow, where string) (solver.TimeWindow, error) {
	start, err := parseTime(tw.Start, where+" window start")
	if err != nil {
		return solver.TimeWindow{}, err
	}
	end, err := parseTime(tw.End, where+" window end")
	if err != nil {
		return solver.TimeWindow{}, err
	}
	return solver.TimeWindow{Start: seconds(horizon, start), End: seconds(horizon, end)}, nil
}

func parseTime(s, where string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, structural("E0001",
			fmt.Sprintf("invalid time %q in %s", s, where),
			"use RFC3339 timestamps")
	}
	return t, nil
}

func seconds(horizon, t time.Time) float64 { return t.Sub(horizon).Seconds() }

// FormatTime renders a solver-relative time back to RFC3339.
func FormatTime(horizon time.Time, sec float64) string {
	return horizon.Add(time.Duration(sec * float64(time.Second))).UTC().Format(time.RFC3339)
}

func structural(code, message, action string) *solver.StructuralError {
	return &solver.StructuralError{Code: code, Message: message, Action: action}
}

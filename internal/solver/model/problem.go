// Package model holds the immutable problem description handed to the
// solver: fleet, jobs, relations and the transport oracle. Everything here
// is constructed once per solve invocation and never mutated by the search.
package model

import "math"

// Location is a point the transport oracle can route between. Index is the
// row/column of the location in a matrix-backed oracle and is negative when
// the problem uses a geometric oracle instead.
type Location struct {
	Lat   float64
	Lng   float64
	Index int
}

// TimeWindow is a closed interval in seconds from the planning-horizon start.
type TimeWindow struct {
	Start float64
	End   float64
}

func (tw TimeWindow) Valid() bool { return tw.End >= tw.Start }

func (tw TimeWindow) Contains(t float64) bool { return t >= tw.Start && t <= tw.End }

// Overlap returns the length in seconds of the intersection of two windows.
func (tw TimeWindow) Overlap(other TimeWindow) float64 {
	start := math.Max(tw.Start, other.Start)
	end := math.Min(tw.End, other.End)
	if end < start {
		return 0
	}
	return end - start
}

// Demand is a multi-dimensional capacity consumption vector. A nil demand
// consumes nothing in any dimension.
type Demand []float64

func (d Demand) Clone() Demand {
	if d == nil {
		return nil
	}
	out := make(Demand, len(d))
	copy(out, d)
	return out
}

// Fits reports whether d is component-wise within cap. Dimensions missing
// from cap are treated as unconstrained.
func (d Demand) Fits(cap Demand) bool {
	for i, v := range d {
		if i >= len(cap) {
			break
		}
		if v > cap[i] {
			return false
		}
	}
	return true
}

// Add returns d + other, extending dimensions as needed.
func (d Demand) Add(other Demand) Demand {
	n := len(d)
	if len(other) > n {
		n = len(other)
	}
	out := make(Demand, n)
	copy(out, d)
	for i, v := range other {
		out[i] += v
	}
	return out
}

// Sub returns d - other, extending dimensions as needed.
func (d Demand) Sub(other Demand) Demand {
	n := len(d)
	if len(other) > n {
		n = len(other)
	}
	out := make(Demand, n)
	copy(out, d)
	for i, v := range other {
		out[i] -= v
	}
	return out
}

// Max returns the component-wise maximum of d and other.
func (d Demand) Max(other Demand) Demand {
	n := len(d)
	if len(other) > n {
		n = len(other)
	}
	out := make(Demand, n)
	copy(out, d)
	for i, v := range other {
		if v > out[i] {
			out[i] = v
		}
	}
	return out
}

func (d Demand) IsZero() bool {
	for _, v := range d {
		if v != 0 {
			return false
		}
	}
	return true
}

// Place is one alternative spot where a job can be served.
type Place struct {
	Location Location
	Duration float64 // service seconds
	Windows  []TimeWindow
}

// JobKind drives how a job's demand moves through a route.
type JobKind int

const (
	// KindDelivery demand is loaded at the route start and released at the
	// activity. Jobs with demand default to this.
	KindDelivery JobKind = iota
	// KindPickup demand is collected at the activity and carried to the
	// route end.
	KindPickup
	// KindService consumes no capacity.
	KindService
)

func (k JobKind) String() string {
	switch k {
	case KindDelivery:
		return "delivery"
	case KindPickup:
		return "pickup"
	case KindService:
		return "service"
	}
	return "unknown"
}

// Job is a unit of work with one or more alternative places.
type Job struct {
	ID     string
	Kind   JobKind
	Places []Place
	Demand Demand
	Skills []string
}

// RelationType constrains how a set of jobs is scheduled together.
type RelationType int

const (
	// RelationSameRoute keeps all assigned member jobs on one route.
	RelationSameRoute RelationType = iota
	// RelationSequence additionally fixes the relative order of the member
	// jobs on that route (a pickup-delivery pair is a two-job sequence).
	RelationSequence
)

// Relation groups jobs that must travel together.
type Relation struct {
	Type RelationType
	Jobs []string
}

// Costs is a vehicle's cost structure.
type Costs struct {
	Fixed       float64
	PerDistance float64
	PerDuration float64
}

// Shift is one working interval of a vehicle. A vehicle runs at most one
// route per shift.
type Shift struct {
	Start       Location
	End         *Location // nil for open-ended routes
	Window      TimeWindow
	MaxDuration float64 // 0 means use the problem-wide limit
}

// Vehicle describes one unit of the fleet.
type Vehicle struct {
	ID       string
	Profile  string
	Capacity Demand
	Skills   []string
	Shifts   []Shift
	Costs    Costs
}

// HasSkills reports whether the vehicle covers every required skill.
func (v Vehicle) HasSkills(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, need := range required {
		found := false
		for _, have := range v.Skills {
			if have == need {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Fleet is the set of vehicles, with profile grouping derived on demand.
type Fleet struct {
	Vehicles []Vehicle
}

// Profiles returns the distinct routing profiles used by the fleet.
func (f Fleet) Profiles() []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range f.Vehicles {
		if !seen[v.Profile] {
			seen[v.Profile] = true
			out = append(out, v.Profile)
		}
	}
	return out
}

// Problem is the fully resolved solver input. Immutable after Validate.
type Problem struct {
	Fleet     Fleet
	Jobs      []Job
	Relations []Relation
	Transport Transport

	// MaxRouteDuration bounds every route when > 0; a shift's own
	// MaxDuration takes precedence.
	MaxRouteDuration float64
}

// Job returns the job with the given ID, or nil.
func (p *Problem) Job(id string) *Job {
	for i := range p.Jobs {
		if p.Jobs[i].ID == id {
			return &p.Jobs[i]
		}
	}
	return nil
}

// Vehicle returns the vehicle with the given ID, or nil.
func (p *Problem) Vehicle(id string) *Vehicle {
	for i := range p.Fleet.Vehicles {
		if p.Fleet.Vehicles[i].ID == id {
			return &p.Fleet.Vehicles[i]
		}
	}
	return nil
}

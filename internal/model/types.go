// Package model defines the wire types of the solve API: the problem JSON
// accepted by POST /v1/solve and the run/solution read models it returns.
package model

// SolveRequest is the body of POST /v1/solve.
type SolveRequest struct {
	TenantID string        `json:"tenantId,omitempty"`
	Problem  Problem       `json:"problem"`
	Options  *SolveOptions `json:"options,omitempty"`
}

// Problem is the routing problem: a plan of jobs, a fleet, and optionally
// precomputed travel matrices. Times are RFC3339; durations are seconds.
type Problem struct {
	Plan     Plan     `json:"plan"`
	Fleet    Fleet    `json:"fleet"`
	Matrices []Matrix `json:"matrices,omitempty"`
}

type Plan struct {
	Jobs      []Job      `json:"jobs"`
	Relations []Relation `json:"relations,omitempty"`
}

// Job is one unit of work. Type is delivery (default), pickup, or service;
// alternative places let the solver choose where it is served.
type Job struct {
	ID     string     `json:"id"`
	Type   string     `json:"type,omitempty"`
	Places []JobPlace `json:"places"`
	Demand []float64  `json:"demand,omitempty"`
	Skills []string   `json:"skills,omitempty"`
}

type JobPlace struct {
	Location GeoPoint     `json:"location"`
	Duration float64      `json:"duration,omitempty"`
	Times    []TimeWindow `json:"times,omitempty"`
}

// GeoPoint is a coordinate; Index references a row/column of the request
// matrices and is required when matrices are supplied.
type GeoPoint struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Index *int    `json:"index,omitempty"`
}

type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Relation constrains how jobs may be scheduled relative to each other.
// Types: same_route, sequence.
type Relation struct {
	Type string   `json:"type"`
	Jobs []string `json:"jobs"`
}

type Fleet struct {
	Vehicles []Vehicle `json:"vehicles"`
	Profiles []Profile `json:"profiles,omitempty"`
}

type Vehicle struct {
	ID       string         `json:"id"`
	Profile  string         `json:"profile,omitempty"`
	Capacity []float64      `json:"capacity,omitempty"`
	Skills   []string       `json:"skills,omitempty"`
	Costs    *VehicleCosts  `json:"costs,omitempty"`
	Shifts   []VehicleShift `json:"shifts"`
}

// VehicleCosts weight the objective: fixed per used route, plus per meter
// and per second.
type VehicleCosts struct {
	Fixed    float64 `json:"fixed,omitempty"`
	Distance float64 `json:"distance,omitempty"`
	Time     float64 `json:"time,omitempty"`
}

type VehicleShift struct {
	Start       ShiftPoint  `json:"start"`
	End         *ShiftPoint `json:"end,omitempty"`
	MaxDuration float64     `json:"maxDuration,omitempty"`
}

type ShiftPoint struct {
	Time     string   `json:"time"`
	Location GeoPoint `json:"location"`
}

// Profile names a travel profile and its fallback speed when no matrix is
// given for it.
type Profile struct {
	Name     string  `json:"name"`
	SpeedKph float64 `json:"speedKph,omitempty"`
}

// Matrix holds row-major travel costs between indexed locations.
type Matrix struct {
	Profile   string    `json:"profile"`
	Distances []float64 `json:"distances"`
	Durations []float64 `json:"durations"`
}

// SolveOptions tune the search; zero values fall back to server defaults.
type SolveOptions struct {
	MaxGenerations    *int     `json:"maxGenerations,omitempty"`
	MaxDurationMs     int      `json:"maxDurationMs,omitempty"`
	ConvergenceWindow int      `json:"convergenceWindow,omitempty"`
	PopulationSize    int      `json:"populationSize,omitempty"`
	Offspring         int      `json:"offspring,omitempty"`
	Workers           int      `json:"workers,omitempty"`
	Seed              int64    `json:"seed,omitempty"`
	RegretK           int      `json:"regretK,omitempty"`
	NoiseFraction     *float64 `json:"noiseFraction,omitempty"`
	SoftTimeWindows   *bool    `json:"softTimeWindows,omitempty"`
	Pareto            bool     `json:"pareto,omitempty"`
	FrontLimit        int      `json:"frontLimit,omitempty"`
}

// Run lifecycle states.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Run is the read model of one solve run.
type Run struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenantId"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"createdAt"`
	StartedAt   string  `json:"startedAt,omitempty"`
	FinishedAt  string  `json:"finishedAt,omitempty"`
	Generations int     `json:"generations"`
	BestCost    float64 `json:"bestCost"`
	Unassigned  int     `json:"unassigned"`
	Error       string  `json:"error,omitempty"`
}

// Solution is the read model of a finished run's best solution.
type Solution struct {
	RunID      string             `json:"runId"`
	Cost       float64            `json:"cost"`
	Breakdown  map[string]float64 `json:"breakdown,omitempty"`
	Routes     []Route            `json:"routes"`
	Unassigned []UnassignedJob    `json:"unassigned,omitempty"`
	Statistic  Statistic          `json:"statistic"`
	Front      []FrontPoint       `json:"front,omitempty"`
}

type Route struct {
	VehicleID string  `json:"vehicleId"`
	Shift     int     `json:"shift"`
	Distance  float64 `json:"distance"`
	Duration  float64 `json:"duration"`
	Stops     []Stop  `json:"stops"`
}

type Stop struct {
	JobID     string    `json:"jobId"`
	Arrival   string    `json:"arrival"`
	Departure string    `json:"departure"`
	Waiting   float64   `json:"waitingSec,omitempty"`
	Tardiness float64   `json:"tardinessSec,omitempty"`
	Load      []float64 `json:"load,omitempty"`
}

type UnassignedJob struct {
	JobID  string `json:"jobId"`
	Reason string `json:"reason"`
}

// Statistic summarizes the search that produced the solution.
type Statistic struct {
	Generations  int          `json:"generations"`
	Improvements int          `json:"improvements"`
	WallTimeMs   int64        `json:"wallTimeMs"`
	Curve        []CurvePoint `json:"curve,omitempty"`
}

type CurvePoint struct {
	Generation int     `json:"generation"`
	Cost       float64 `json:"cost"`
	Unassigned int     `json:"unassigned"`
}

// FrontPoint is one member of the Pareto front in multi-objective mode.
type FrontPoint struct {
	Cost       float64 `json:"cost"`
	Unassigned int     `json:"unassigned"`
	Tardiness  float64 `json:"tardiness"`
	Routes     int     `json:"routes"`
}

// Webhook subscriptions.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

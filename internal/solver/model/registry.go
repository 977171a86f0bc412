package model

import "sort"

// Actor is one (vehicle, shift) pair, the unit a route is bound to.
type Actor struct {
	Vehicle *Vehicle
	Shift   int
}

// ShiftSpec returns the actor's shift.
func (a Actor) ShiftSpec() Shift { return a.Vehicle.Shifts[a.Shift] }

// Registry holds reusable read-only indices derived from a problem: the
// job-to-candidate-actor lookup and precomputed spatial job neighborhoods.
// It is built once per problem and shared across all solutions and workers
// without locking.
type Registry struct {
	problem *Problem

	actors     []Actor
	jobIndex   map[string]int
	candidates map[string][]int // job ID -> actor indices, cheap static screen
	neighbors  map[string][]string
}

// NewRegistry builds the indices for a validated problem.
func NewRegistry(p *Problem) *Registry {
	r := &Registry{
		problem:    p,
		jobIndex:   make(map[string]int, len(p.Jobs)),
		candidates: make(map[string][]int, len(p.Jobs)),
		neighbors:  make(map[string][]string, len(p.Jobs)),
	}
	for vi := range p.Fleet.Vehicles {
		v := &p.Fleet.Vehicles[vi]
		for si := range v.Shifts {
			r.actors = append(r.actors, Actor{Vehicle: v, Shift: si})
		}
	}
	for i := range p.Jobs {
		job := &p.Jobs[i]
		r.jobIndex[job.ID] = i
		for ai, actor := range r.actors {
			if actorCanServe(actor, job) {
				r.candidates[job.ID] = append(r.candidates[job.ID], ai)
			}
		}
	}
	r.buildNeighbors()
	return r
}

// actorCanServe applies the static screens: skill coverage and that the
// job's demand alone fits the vehicle. Time windows are route-dependent and
// left to the constraint checker.
func actorCanServe(a Actor, job *Job) bool {
	if !a.Vehicle.HasSkills(job.Skills) {
		return false
	}
	if len(a.Vehicle.Capacity) > 0 && !Demand(job.Demand).Fits(a.Vehicle.Capacity) {
		return false
	}
	return true
}

func (r *Registry) Problem() *Problem { return r.problem }

// Actors returns every (vehicle, shift) pair of the fleet.
func (r *Registry) Actors() []Actor { return r.actors }

// Candidates returns the actor indices that could serve the job. An empty
// result means the job is permanently unassignable.
func (r *Registry) Candidates(jobID string) []int { return r.candidates[jobID] }

// JobIndex returns the position of a job in Problem.Jobs, or -1.
func (r *Registry) JobIndex(jobID string) int {
	if i, ok := r.jobIndex[jobID]; ok {
		return i
	}
	return -1
}

// Neighbors returns job IDs ordered by relatedness to the given job, the
// closest first. Relatedness mixes spatial distance with time-window overlap
// so that temporally compatible near neighbors rank first.
func (r *Registry) Neighbors(jobID string) []string { return r.neighbors[jobID] }

const neighborTWWeight = 0.2 // seconds of overlap discounted per meter

func (r *Registry) buildNeighbors() {
	type scored struct {
		id    string
		score float64
	}
	for i := range r.problem.Jobs {
		a := &r.problem.Jobs[i]
		if len(a.Places) == 0 {
			continue
		}
		rel := make([]scored, 0, len(r.problem.Jobs)-1)
		for j := range r.problem.Jobs {
			if i == j {
				continue
			}
			b := &r.problem.Jobs[j]
			if len(b.Places) == 0 {
				continue
			}
			geo := Haversine(a.Places[0].Location.Lat, a.Places[0].Location.Lng,
				b.Places[0].Location.Lat, b.Places[0].Location.Lng)
			rel = append(rel, scored{id: b.ID, score: geo - neighborTWWeight*windowOverlap(a, b)})
		}
		sort.Slice(rel, func(x, y int) bool {
			if rel[x].score != rel[y].score {
				return rel[x].score < rel[y].score
			}
			return rel[x].id < rel[y].id
		})
		ids := make([]string, len(rel))
		for k, s := range rel {
			ids[k] = s.id
		}
		r.neighbors[a.ID] = ids
	}
}

func windowOverlap(a, b *Job) float64 {
	best := 0.0
	for _, wa := range a.Places[0].Windows {
		for _, wb := range b.Places[0].Windows {
			if o := wa.Overlap(wb); o > best {
				best = o
			}
		}
	}
	return best
}

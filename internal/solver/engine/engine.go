// Package engine drives the population-based ruin-and-recreate search under
// a termination budget.
package engine

import (
	"context"
	"math/rand"
	"time"

	"vrpsolve/internal/solver/construct"
	"vrpsolve/internal/solver/constraint"
	"vrpsolve/internal/solver/model"
	"vrpsolve/internal/solver/objective"
	"vrpsolve/internal/solver/operator"
	"vrpsolve/internal/solver/solution"
)

// Config tunes one search run.
type Config struct {
	PopulationSize int
	Offspring      int // offspring produced per generation
	Workers        int
	MaxGenerations int // 0 runs no generations; negative means unlimited
	MaxDuration    time.Duration
	// ConvergenceWindow stops the run after this many generations without a
	// new global best. Zero disables the signal.
	ConvergenceWindow int
	Seed              int64
	RegretK           int
	NoiseFraction     float64
	SoftTimeWindows   bool
	Pareto            bool
	FrontLimit        int
	TournamentSize    int
}

// DefaultConfig returns the tuning used when the caller has no opinion.
func DefaultConfig() Config {
	return Config{
		PopulationSize:    6,
		Offspring:         4,
		Workers:           1,
		MaxGenerations:    2000,
		ConvergenceWindow: 500,
		RegretK:           2,
		NoiseFraction:     0.1,
		TournamentSize:    3,
		FrontLimit:        8,
	}
}

func (c Config) normalized() Config {
	if c.PopulationSize < 1 {
		c.PopulationSize = 1
	}
	if c.Offspring < 1 {
		c.Offspring = 1
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.RegretK < 2 {
		c.RegretK = 2
	}
	if c.TournamentSize < 2 {
		c.TournamentSize = 2
	}
	return c
}

// ImprovementPoint is one step of the best-cost curve.
type ImprovementPoint struct {
	Generation int     `json:"generation"`
	Cost       float64 `json:"cost"`
	Unassigned int     `json:"unassigned"`
}

// Stats aggregates what happened during a run.
type Stats struct {
	Generations     int                `json:"generations"`
	Improvements    int                `json:"improvements"`
	Accepted        int                `json:"accepted"`
	Discarded       int                `json:"discarded"`
	WallTime        time.Duration      `json:"wallTimeNs"`
	Curve           []ImprovementPoint `json:"curve"`
	RuinWeights     map[string]float64 `json:"ruinWeights"`
	RecreateWeights map[string]float64 `json:"recreateWeights"`
	RuinUses        map[string]int     `json:"ruinUses"`
	RecreateUses    map[string]int     `json:"recreateUses"`
}

// Result is what a finished run hands back: the best solution by the
// evaluator's order, the Pareto front when enabled, and run statistics.
type Result struct {
	Best      *solution.Solution
	Criteria  objective.Criteria
	Front     []objective.Member
	Breakdown map[string]float64
	Stats     Stats
}

// Progress is delivered to the progress callback on each improvement.
type Progress struct {
	Generation int
	Best       objective.Criteria
}

type member struct {
	sol      *solution.Solution
	criteria objective.Criteria
	sig      map[string]string
}

// Engine owns one search over one problem. Problem and registry are shared
// read-only with the workers; every in-flight solution is exclusively owned
// by the goroutine mutating it.
type Engine struct {
	prob *model.Problem
	reg  *model.Registry
	cfg  Config

	progress func(Progress)
}

// New validates the problem and prepares an engine. A structural error here
// is the only failure mode; everything after Run starts resolves into
// solution content or statistics.
func New(prob *model.Problem, cfg Config) (*Engine, error) {
	if err := model.Validate(prob); err != nil {
		return nil, err
	}
	return &Engine{prob: prob, reg: model.NewRegistry(prob), cfg: cfg.normalized()}, nil
}

// Registry exposes the shared indices, mainly for callers that translate
// solutions back into their own read models.
func (e *Engine) Registry() *model.Registry { return e.reg }

// OnProgress registers a callback invoked on every new global best and once
// at termination. It runs on the coordinating goroutine; keep it cheap.
func (e *Engine) OnProgress(fn func(Progress)) { e.progress = fn }

type workerKit struct {
	checker   *constraint.Checker
	evaluator *objective.Evaluator
	inserter  *construct.Inserter
	ruins     []operator.Ruin
	recreates []operator.Recreate
}

func (e *Engine) newKit() *workerKit {
	checker := constraint.New(e.reg, e.cfg.SoftTimeWindows)
	inserter := construct.NewInserter(e.reg, checker)
	inserter.K = e.cfg.RegretK
	inserter.Noise = e.cfg.NoiseFraction
	return &workerKit{
		checker:   checker,
		evaluator: objective.NewEvaluator(e.reg, checker),
		inserter:  inserter,
		ruins: []operator.Ruin{
			operator.RandomRuin{},
			operator.WorstRuin{Checker: checker},
			operator.NeighborhoodRuin{Registry: e.reg},
		},
		recreates: []operator.Recreate{
			operator.RegretRecreate{Inserter: inserter},
			operator.RandomRecreate{Registry: e.reg, Checker: checker, Inserter: inserter},
		},
	}
}

// Run executes the search until the budget is exhausted or the context is
// cancelled. Cancellation is cooperative: the running generation completes,
// no torn solution is ever returned.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	seed := e.cfg.Seed
	if seed == 0 {
		seed = started.UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	coord := e.newKit()
	pop := e.seedPopulation(rng, coord)
	bestIdx := 0
	for i := range pop {
		if objective.Less(pop[i].criteria, pop[bestIdx].criteria) {
			bestIdx = i
		}
	}
	best := pop[bestIdx].sol.Clone()
	bestCriteria := pop[bestIdx].criteria

	var front *objective.Front
	if e.cfg.Pareto {
		front = &objective.Front{Limit: e.cfg.FrontLimit}
		for _, m := range pop {
			front.Add(m.sol.Clone(), m.criteria)
		}
	}

	ruinSel := operator.NewAdaptiveSelector(names(coord.ruins))
	recSel := operator.NewAdaptiveSelector(recreateNames(coord.recreates))

	stats := Stats{Curve: []ImprovementPoint{{
		Generation: 0, Cost: bestCriteria.Cost, Unassigned: bestCriteria.Unassigned,
	}}}

	kits := make([]*workerKit, e.cfg.Workers)
	for i := range kits {
		kits[i] = e.newKit()
	}
	sinceImprovement := 0

	for gen := 1; ; gen++ {
		if ctx.Err() != nil {
			break
		}
		if e.cfg.MaxGenerations >= 0 && gen > e.cfg.MaxGenerations {
			break
		}
		if e.cfg.MaxDuration > 0 && time.Since(started) >= e.cfg.MaxDuration {
			break
		}
		if e.cfg.ConvergenceWindow > 0 && sinceImprovement >= e.cfg.ConvergenceWindow {
			break
		}

		// The coordinator draws every random decision for the generation so
		// the outcome does not depend on worker count or scheduling.
		tasks := make([]offspringTask, e.cfg.Offspring)
		for i := range tasks {
			tasks[i] = offspringTask{
				parent: e.tournament(rng, pop, best),
				ruin:   ruinSel.Pick(rng),
				rec:    recSel.Pick(rng),
				seed:   rng.Int63(),
			}
		}
		results := e.produceOffspring(pop, tasks, kits)

		// Population update happens only here, at the generation boundary.
		for i, res := range results {
			task := tasks[i]
			parentCriteria := pop[task.parent].criteria
			improvedBest := objective.Less(res.criteria, bestCriteria)

			accepted := e.accept(pop, res, improvedBest)
			if accepted {
				stats.Accepted++
				switch {
				case improvedBest:
					ruinSel.Reward(task.ruin, operator.RewardGlobalBest)
					recSel.Reward(task.rec, operator.RewardGlobalBest)
				case objective.Less(res.criteria, parentCriteria):
					ruinSel.Reward(task.ruin, operator.RewardImproved)
					recSel.Reward(task.rec, operator.RewardImproved)
				default:
					ruinSel.Reward(task.ruin, operator.RewardAccepted)
					recSel.Reward(task.rec, operator.RewardAccepted)
				}
			} else {
				stats.Discarded++
				ruinSel.Decay(task.ruin)
				recSel.Decay(task.rec)
			}

			if improvedBest {
				best = res.sol.Clone()
				bestCriteria = res.criteria
				stats.Improvements++
				sinceImprovement = -1 // reset below after the generation
				stats.Curve = append(stats.Curve, ImprovementPoint{
					Generation: gen, Cost: bestCriteria.Cost, Unassigned: bestCriteria.Unassigned,
				})
				if e.progress != nil {
					e.progress(Progress{Generation: gen, Best: bestCriteria})
				}
			}
			if front != nil {
				front.Add(res.sol.Clone(), res.criteria)
			}
		}

		stats.Generations = gen
		if sinceImprovement < 0 {
			sinceImprovement = 0
		} else {
			sinceImprovement++
		}
	}

	stats.WallTime = time.Since(started)
	stats.RuinWeights = ruinSel.Weights()
	stats.RecreateWeights = recSel.Weights()
	stats.RuinUses = ruinSel.Uses()
	stats.RecreateUses = recSel.Uses()

	result := &Result{
		Best:      best,
		Criteria:  bestCriteria,
		Breakdown: coord.evaluator.Breakdown(best),
		Stats:     stats,
	}
	if front != nil {
		result.Front = front.Members()
	}
	if e.progress != nil {
		e.progress(Progress{Generation: stats.Generations, Best: bestCriteria})
	}
	// Budget exhaustion and cancellation are expected terminations, not
	// errors; the best-known solution is always returned.
	return result, nil
}

// seedPopulation builds the initial members. The first member is the plain
// regret construction; the rest add cost noise for diversity. Partial or
// even fully unassigned constructions stay in the population.
func (e *Engine) seedPopulation(rng *rand.Rand, kit *workerKit) []member {
	pop := make([]member, e.cfg.PopulationSize)
	for i := range pop {
		ins := kit.inserter
		var memberRng *rand.Rand
		if i > 0 {
			memberRng = rand.New(rand.NewSource(rng.Int63()))
		}
		noise := ins.Noise
		if i == 0 {
			ins.Noise = 0
		}
		sol := ins.Construct(memberRng, nil)
		ins.Noise = noise
		pop[i] = member{sol: sol, criteria: kit.evaluator.Evaluate(sol), sig: signature(sol, e.reg)}
	}
	return pop
}

type offspringTask struct {
	parent int
	ruin   int
	rec    int
	seed   int64
}

type offspringResult struct {
	sol      *solution.Solution
	criteria objective.Criteria
	sig      map[string]string
}

// produceOffspring evaluates all tasks of a generation, fanning out to the
// worker pool. Each worker owns a clone of the parent; results are indexed
// by task order so acceptance is reproducible.
func (e *Engine) produceOffspring(pop []member, tasks []offspringTask, kits []*workerKit) []offspringResult {
	results := make([]offspringResult, len(tasks))
	if len(kits) == 1 {
		for i, t := range tasks {
			results[i] = e.runTask(pop, t, kits[0])
		}
		return results
	}
	type indexed struct{ i int }
	work := make(chan indexed)
	done := make(chan struct{})
	for w := 0; w < len(kits); w++ {
		kit := kits[w]
		go func() {
			for item := range work {
				results[item.i] = e.runTask(pop, tasks[item.i], kit)
			}
			done <- struct{}{}
		}()
	}
	for i := range tasks {
		work <- indexed{i}
	}
	close(work)
	for w := 0; w < len(kits); w++ {
		<-done
	}
	return results
}

func (e *Engine) runTask(pop []member, t offspringTask, kit *workerKit) offspringResult {
	rng := rand.New(rand.NewSource(t.seed))
	child := pop[t.parent].sol.Clone()
	removed := kit.ruins[t.ruin].Ruin(rng, child)
	kit.recreates[t.rec].Recreate(rng, child, removed)
	res := offspringResult{
		sol:      child,
		criteria: kit.evaluator.Evaluate(child),
		sig:      signature(child, e.reg),
	}
	kit.checker.Reset()
	return res
}

// tournament samples members and returns the fittest, penalizing near
// duplicates of the global best to keep selection pressure on diversity.
func (e *Engine) tournament(rng *rand.Rand, pop []member, best *solution.Solution) int {
	bestSig := signature(best, e.reg)
	winner := rng.Intn(len(pop))
	for i := 1; i < e.cfg.TournamentSize; i++ {
		challenger := rng.Intn(len(pop))
		if e.fitter(pop, challenger, winner, bestSig) {
			winner = challenger
		}
	}
	return winner
}

func (e *Engine) fitter(pop []member, a, b int, bestSig map[string]string) bool {
	aDup := distance(pop[a].sig, bestSig) < duplicateThreshold
	bDup := distance(pop[b].sig, bestSig) < duplicateThreshold
	if aDup != bDup {
		return !aDup
	}
	return objective.Less(pop[a].criteria, pop[b].criteria)
}

const duplicateThreshold = 0.02

// accept decides whether the offspring replaces the current worst member:
// yes when it dominates the worst, or when it is not dominated and adds
// diversity (no near duplicate already present). New global bests always
// enter.
func (e *Engine) accept(pop []member, res offspringResult, improvedBest bool) bool {
	worst := 0
	for i := range pop {
		if objective.Less(pop[worst].criteria, pop[i].criteria) {
			worst = i
		}
	}
	replace := improvedBest || objective.Dominates(res.criteria, pop[worst].criteria)
	if !replace && !objective.Dominates(pop[worst].criteria, res.criteria) {
		diverse := true
		for i := range pop {
			if distance(pop[i].sig, res.sig) < duplicateThreshold {
				diverse = false
				break
			}
		}
		replace = diverse
	}
	if replace {
		pop[worst] = member{sol: res.sol, criteria: res.criteria, sig: res.sig}
	}
	return replace
}

// signature maps each job to the vehicle serving it (empty for unassigned),
// the basis of the solution-distance measure.
func signature(s *solution.Solution, reg *model.Registry) map[string]string {
	sig := map[string]string{}
	for _, r := range s.Routes {
		vehicle := reg.Actors()[r.Actor].Vehicle.ID
		for _, a := range r.Activities {
			sig[a.JobID] = vehicle
		}
	}
	for id := range s.Unassigned {
		sig[id] = ""
	}
	return sig
}

// distance is the fraction of jobs assigned differently between two
// solutions.
func distance(a, b map[string]string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	total, differ := 0, 0
	for id, va := range a {
		total++
		if vb, ok := b[id]; !ok || vb != va {
			differ++
		}
	}
	for id := range b {
		if _, ok := a[id]; !ok {
			total++
			differ++
		}
	}
	return float64(differ) / float64(total)
}

func names(ops []operator.Ruin) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Name()
	}
	return out
}

func recreateNames(ops []operator.Recreate) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Name()
	}
	return out
}

package api

import (
	"context"
	"time"

	"vrpsolve/internal/metrics"
	"vrpsolve/internal/model"
	"vrpsolve/internal/solver/engine"
	solver "vrpsolve/internal/solver/model"
	"vrpsolve/internal/webhooks"
)

// startSolve launches the background search for a queued run. The run
// context is registered for DELETE-based cancellation; storage writes
// use a fresh context so cancelling the search never loses the result.
func (s *Server) startSolve(runID, tenant string, prob *solver.Problem, horizon time.Time, opts model.SolveOptions) {
	ctx, cancel := context.WithCancel(context.Background())
	s.registerRun(runID, cancel)
	go func() {
		defer s.unregisterRun(runID)
		defer cancel()

		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-ctx.Done():
			s.finishRun(runID, tenant, model.RunCancelled, "", nil)
			return
		}

		bg := context.Background()
		if _, err := s.Store.SetRunStatus(bg, tenant, runID, model.RunRunning, ""); err != nil {
			// Cancelled (or lost) between enqueue and start.
			s.Log.Debug().Str("run", runID).Err(err).Msg("run not started")
			return
		}
		metrics.RunsActive.Inc()
		defer metrics.RunsActive.Dec()
		s.Broker.Publish(runID, SSEEvent{Type: "run.started", Data: map[string]any{"runId": runID}})

		eng, err := engine.New(prob, s.engineConfig(opts))
		if err != nil {
			s.finishRun(runID, tenant, model.RunFailed, err.Error(), nil)
			return
		}
		eng.OnProgress(func(p engine.Progress) {
			_ = s.Store.RecordRunProgress(bg, tenant, runID, p.Generation, p.Best.Cost, p.Best.Unassigned)
			s.Broker.Publish(runID, SSEEvent{Type: "run.progress", Data: map[string]any{
				"runId":      runID,
				"generation": p.Generation,
				"cost":       p.Best.Cost,
				"unassigned": p.Best.Unassigned,
				"ts":         time.Now().UTC().Format(time.RFC3339),
			}})
		})

		res, _ := eng.Run(ctx)
		sol := model.RenderSolution(runID, horizon, eng.Registry(), res)
		if err := s.Store.SaveSolution(bg, tenant, sol); err != nil {
			s.finishRun(runID, tenant, model.RunFailed, err.Error(), &res.Stats)
			return
		}
		_ = s.Store.RecordRunProgress(bg, tenant, runID, res.Stats.Generations, res.Criteria.Cost, res.Criteria.Unassigned)

		status := model.RunCompleted
		if ctx.Err() != nil {
			status = model.RunCancelled
		}
		s.finishRun(runID, tenant, status, "", &res.Stats)
	}()
}

// finishRun records the terminal status and fans out events, webhooks
// and metrics.
func (s *Server) finishRun(runID, tenant, status, errMsg string, stats *engine.Stats) {
	bg := context.Background()
	run, err := s.Store.SetRunStatus(bg, tenant, runID, status, errMsg)
	if err != nil {
		// A concurrent cancel won; keep the stored status.
		run, err = s.Store.GetRun(bg, tenant, runID)
		if err != nil {
			s.Log.Error().Str("run", runID).Err(err).Msg("finish run lookup failed")
			return
		}
		status = run.Status
	}
	metrics.RunsTotal.WithLabelValues(status).Inc()
	if stats != nil {
		metrics.RunDuration.WithLabelValues(status).Observe(stats.WallTime.Seconds())
		metrics.RunGenerations.Observe(float64(stats.Generations))
	}
	data := map[string]any{
		"runId":       runID,
		"status":      status,
		"generations": run.Generations,
		"bestCost":    run.BestCost,
		"unassigned":  run.Unassigned,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	s.Broker.Publish(runID, SSEEvent{Type: "run." + status, Data: data})
	switch status {
	case model.RunCompleted:
		s.Pub.Emit(bg, tenant, webhooks.EventRunCompleted, data)
	case model.RunFailed:
		s.Pub.Emit(bg, tenant, webhooks.EventRunFailed, data)
	}
	s.Log.Info().Str("run", runID).Str("status", status).Int("generations", run.Generations).Float64("bestCost", run.BestCost).Msg("run finished")
}

// engineConfig maps request options over the configured defaults.
func (s *Server) engineConfig(opts model.SolveOptions) engine.Config {
	cfg := engine.Config{
		PopulationSize:    opts.PopulationSize,
		Offspring:         opts.Offspring,
		Workers:           opts.Workers,
		ConvergenceWindow: opts.ConvergenceWindow,
		Seed:              opts.Seed,
		RegretK:           opts.RegretK,
		NoiseFraction:     0.1,
		SoftTimeWindows:   s.Cfg.Solver.SoftTimeWindows,
		Pareto:            opts.Pareto,
		FrontLimit:        opts.FrontLimit,
	}
	if cfg.Workers <= 0 {
		cfg.Workers = s.Cfg.Solver.DefaultWorkers
	}
	if opts.MaxGenerations != nil {
		cfg.MaxGenerations = *opts.MaxGenerations
	} else {
		cfg.MaxGenerations = -1 // bounded by duration instead
	}
	if opts.MaxDurationMs > 0 {
		cfg.MaxDuration = time.Duration(opts.MaxDurationMs) * time.Millisecond
	} else {
		cfg.MaxDuration = s.Cfg.Solver.DefaultMaxDuration
	}
	if opts.NoiseFraction != nil {
		cfg.NoiseFraction = *opts.NoiseFraction
	}
	if opts.SoftTimeWindows != nil {
		cfg.SoftTimeWindows = *opts.SoftTimeWindows
	}
	return cfg
}

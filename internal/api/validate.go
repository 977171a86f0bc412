package api

import (
	"fmt"

	"vrpsolve/internal/model"
)

func validateSolveOptions(o *model.SolveOptions) error {
	if o.MaxDurationMs < 0 {
		return fmt.Errorf("maxDurationMs must be >= 0")
	}
	if o.ConvergenceWindow < 0 {
		return fmt.Errorf("convergenceWindow must be >= 0")
	}
	if o.PopulationSize < 0 {
		return fmt.Errorf("populationSize must be >= 0")
	}
	if o.Offspring < 0 {
		return fmt.Errorf("offspring must be >= 0")
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if o.RegretK < 0 {
		return fmt.Errorf("regretK must be >= 0")
	}
	if o.NoiseFraction != nil && (*o.NoiseFraction < 0 || *o.NoiseFraction > 1) {
		return fmt.Errorf("noiseFraction must be in [0,1]")
	}
	if o.FrontLimit < 0 {
		return fmt.Errorf("frontLimit must be >= 0")
	}
	return nil
}

package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"backtest-orchestrator/internal/apperrors"
	"backtest-orchestrator/internal/optimizer"
	"backtest-orchestrator/internal/variable"
)

// Runner is the shape both optimizer implementations share: run a bounded
// search budget against an opaque evaluate function and return whatever
// solutions survive. NSGA2.Run and MultiObjectiveDescent.Run both already
// satisfy this signature.
type Runner interface {
	Run(ctx context.Context, budget int, evaluate optimizer.EvaluateFunc) ([]optimizer.Solution, error)
}

type nsga2Params struct {
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	MutationRate   float64 `json:"mutation_rate"`
	CrossoverRate  float64 `json:"crossover_rate"`
	NumObjectives  int     `json:"num_objectives"`
}

type descentParams struct {
	StepSize                        float64 `json:"step_size"`
	MaxIterations                   int     `json:"max_iterations"`
	MaxIterationsWithoutImprovement int     `json:"max_iterations_without_improvement"`
	ArchiveSize                     int     `json:"archive_size"`
	NumObjectives                   int     `json:"num_objectives"`
}

// BuildRunner decodes mh_object's algorithm name and JSON parameters into
// a ready-to-run optimizer, the iteration budget to pass to Run, and the
// objective-vector width it produces.
func BuildRunner(mhAlgorithmName string, rawParams []byte, defs []variable.Definition) (Runner, int, int, error) {
	const op = "scheduler.BuildRunner"
	switch mhAlgorithmName {
	case "nsga2", "NSGA2", "NSGA-II":
		var p nsga2Params
		if err := json.Unmarshal(rawParams, &p); err != nil {
			return nil, 0, 0, apperrors.New(op, apperrors.VariableTypeMismatch, err)
		}
		if p.PopulationSize <= 0 || p.Generations <= 0 || p.NumObjectives <= 0 {
			return nil, 0, 0, apperrors.New(op, apperrors.VariableTypeMismatch,
				fmt.Errorf("mh_object: nsga2 requires population_size, generations and num_objectives > 0"))
		}
		runner := optimizer.NewNSGA2(p.PopulationSize, defs, p.NumObjectives, p.MutationRate, p.CrossoverRate)
		return runner, p.Generations, p.NumObjectives, nil

	case "descent", "MultiObjectiveDescent":
		var p descentParams
		if err := json.Unmarshal(rawParams, &p); err != nil {
			return nil, 0, 0, apperrors.New(op, apperrors.VariableTypeMismatch, err)
		}
		if p.MaxIterations <= 0 || p.ArchiveSize <= 0 || p.NumObjectives <= 0 {
			return nil, 0, 0, apperrors.New(op, apperrors.VariableTypeMismatch,
				fmt.Errorf("mh_object: descent requires max_iterations, archive_size and num_objectives > 0"))
		}
		if p.MaxIterationsWithoutImprovement <= 0 {
			p.MaxIterationsWithoutImprovement = p.MaxIterations
		}
		runner := optimizer.NewMultiObjectiveDescent(p.StepSize, defs, p.MaxIterationsWithoutImprovement, p.ArchiveSize, p.NumObjectives)
		return runner, p.MaxIterations, p.NumObjectives, nil

	default:
		return nil, 0, 0, apperrors.New(op, apperrors.VariableTypeMismatch,
			fmt.Errorf("mh_object: unknown mh_algorithm_name %q", mhAlgorithmName))
	}
}

package optimizer

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"backtest-orchestrator/internal/variable"
)

// MultiObjectiveDescent is a single-trajectory local-search metaheuristic:
// it perturbs one variable of the current solution at a time, keeps the
// move whenever the neighbor isn't dominated by the current solution, and
// maintains a bounded Pareto archive of every non-dominated solution seen.
type MultiObjectiveDescent struct {
	StepSize                      float64
	VariableDefinitions           []variable.Definition
	MaxIterationsWithoutImprovement int
	ArchiveSize                   int
	NumObjectives                 int

	rng *rand.Rand
}

// NewMultiObjectiveDescent builds a descent runner with its own random
// source.
func NewMultiObjectiveDescent(stepSize float64, defs []variable.Definition, maxStagnantIterations, archiveSize, numObjectives int) *MultiObjectiveDescent {
	return &MultiObjectiveDescent{
		StepSize:                        stepSize,
		VariableDefinitions:             defs,
		MaxIterationsWithoutImprovement: maxStagnantIterations,
		ArchiveSize:                     archiveSize,
		NumObjectives:                   numObjectives,
		rng:                             rand.New(rand.NewSource(rand.Int63())),
	}
}

func (d *MultiObjectiveDescent) initializeSolution() Solution {
	return NewSolution(sampleVariables(d.VariableDefinitions, d.rng), d.NumObjectives)
}

// generateNeighbor perturbs exactly one randomly chosen variable.
func (d *MultiObjectiveDescent) generateNeighbor(current Solution) Solution {
	neighbor := current.clone()
	idx := d.rng.Intn(len(d.VariableDefinitions))
	def := d.VariableDefinitions[idx]

	switch def.Kind {
	case variable.Float:
		perturbation := (d.rng.Float64()*2.0 - 1.0) * d.StepSize
		v := clampFloat(current.Variables[idx].F+perturbation, def.FloatMin, def.FloatMax)
		neighbor.Variables[idx] = variable.NewFloat(v)
	case variable.Integer:
		step := int64(math.Round(d.StepSize))
		if step < 1 {
			step = 1
		}
		perturbation := d.rng.Int63n(2*step+1) - step
		v := clampInt(current.Variables[idx].I+perturbation, def.IntMin, def.IntMax)
		neighbor.Variables[idx] = variable.NewInteger(v)
	case variable.Boolean:
		neighbor.Variables[idx] = variable.NewBoolean(!current.Variables[idx].B)
	}
	return neighbor
}

func (d *MultiObjectiveDescent) updateArchive(archive []Solution, candidate Solution) []Solution {
	for _, member := range archive {
		if Dominates(member, candidate) {
			return archive
		}
	}
	kept := archive[:0:0]
	for _, member := range archive {
		if !Dominates(candidate, member) {
			kept = append(kept, member)
		}
	}
	kept = append(kept, candidate)
	if len(kept) > d.ArchiveSize {
		kept = d.trimArchive(kept)
	}
	return kept
}

func (d *MultiObjectiveDescent) calculateCrowdingDistance(solutions []Solution) {
	n := len(solutions)
	if n <= 2 {
		for i := range solutions {
			solutions[i].CrowdingDistance = math.Inf(1)
		}
		return
	}
	for i := range solutions {
		solutions[i].CrowdingDistance = 0
	}
	for m := 0; m < d.NumObjectives; m++ {
		sort.Slice(solutions, func(a, b int) bool {
			return solutions[a].Objectives[m] < solutions[b].Objectives[m]
		})
		solutions[0].CrowdingDistance = math.Inf(1)
		solutions[n-1].CrowdingDistance = math.Inf(1)
		objRange := solutions[n-1].Objectives[m] - solutions[0].Objectives[m]
		if objRange <= 0 {
			continue
		}
		for i := 1; i < n-1; i++ {
			solutions[i].CrowdingDistance += (solutions[i+1].Objectives[m] - solutions[i-1].Objectives[m]) / objRange
		}
	}
}

func (d *MultiObjectiveDescent) trimArchive(archive []Solution) []Solution {
	d.calculateCrowdingDistance(archive)
	sort.SliceStable(archive, func(a, b int) bool {
		return archive[a].CrowdingDistance > archive[b].CrowdingDistance
	})
	return archive[:d.ArchiveSize]
}

// Run walks at most maxIterations neighbor moves (stopping early after
// MaxIterationsWithoutImprovement stagnant steps) and returns the final
// Pareto archive.
func (d *MultiObjectiveDescent) Run(ctx context.Context, maxIterations int, evaluate EvaluateFunc) ([]Solution, error) {
	var archive []Solution

	current := d.initializeSolution()
	current.Objectives = evaluate(current.Variables)
	archive = d.updateArchive(archive, current.clone())

	stagnant := 0
	for iter := 0; iter < maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		neighbor := d.generateNeighbor(current)
		neighbor.Objectives = evaluate(neighbor.Variables)

		sizeBefore := len(archive)
		archive = d.updateArchive(archive, neighbor.clone())

		if !Dominates(current, neighbor) {
			current = neighbor
			if len(archive) > sizeBefore {
				stagnant = 0
			} else {
				stagnant++
			}
		} else {
			stagnant++
		}

		if stagnant >= d.MaxIterationsWithoutImprovement {
			break
		}
	}

	return archive, nil
}

package optimizer

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"backtest-orchestrator/internal/variable"
)

// NSGA2 is the Non-dominated Sorting Genetic Algorithm II, parameterized by
// population size, the variable space, the objective count, and the
// mutation/crossover probabilities.
type NSGA2 struct {
	PopulationSize       int
	VariableDefinitions  []variable.Definition
	NumObjectives        int
	MutationRate         float64
	CrossoverRate        float64
	MaxConcurrentEvals   int

	rng *rand.Rand
}

const (
	distributionIndexCrossover = 20.0
	distributionIndexMutation  = 20.0
)

// NewNSGA2 builds an NSGA2 runner with its own random source.
func NewNSGA2(populationSize int, defs []variable.Definition, numObjectives int, mutationRate, crossoverRate float64) *NSGA2 {
	return &NSGA2{
		PopulationSize:      populationSize,
		VariableDefinitions: defs,
		NumObjectives:       numObjectives,
		MutationRate:        mutationRate,
		CrossoverRate:       crossoverRate,
		rng:                 rand.New(rand.NewSource(rand.Int63())),
	}
}

func (n *NSGA2) initializePopulation() []Solution {
	population := make([]Solution, n.PopulationSize)
	for i := range population {
		population[i] = NewSolution(sampleVariables(n.VariableDefinitions, n.rng), n.NumObjectives)
	}
	return population
}

// evaluateAll scores every solution's objectives concurrently, bounded by
// MaxConcurrentEvals (0 means unbounded).
func (n *NSGA2) evaluateAll(ctx context.Context, population []Solution, evaluate EvaluateFunc) error {
	g, ctx := errgroup.WithContext(ctx)
	if n.MaxConcurrentEvals > 0 {
		g.SetLimit(n.MaxConcurrentEvals)
	}
	for i := range population {
		i := i
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			population[i].Objectives = evaluate(population[i].Variables)
			return nil
		})
	}
	return g.Wait()
}

// nonDominatedSort assigns population[i].Rank and returns the fronts in
// rank order.
func (n *NSGA2) nonDominatedSort(population []Solution) [][]int {
	size := len(population)
	dominationCount := make([]int, size)
	dominatedBy := make([][]int, size)
	fronts := [][]int{{}}

	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			if i == j {
				continue
			}
			switch {
			case Dominates(population[i], population[j]):
				dominatedBy[i] = append(dominatedBy[i], j)
			case Dominates(population[j], population[i]):
				dominationCount[i]++
			}
		}
		if dominationCount[i] == 0 {
			population[i].Rank = 0
			fronts[0] = append(fronts[0], i)
		}
	}

	current := 0
	for current < len(fronts) && len(fronts[current]) > 0 {
		var next []int
		for _, i := range fronts[current] {
			for _, j := range dominatedBy[i] {
				dominationCount[j]--
				if dominationCount[j] == 0 {
					population[j].Rank = current + 1
					next = append(next, j)
				}
			}
		}
		current++
		if len(next) > 0 {
			fronts = append(fronts, next)
		}
	}
	return fronts
}

// calculateCrowdingDistance assigns population[i].CrowdingDistance for
// every i in front.
func (n *NSGA2) calculateCrowdingDistance(population []Solution, front []int) {
	size := len(front)
	if size <= 2 {
		for _, i := range front {
			population[i].CrowdingDistance = math.Inf(1)
		}
		return
	}
	for _, i := range front {
		population[i].CrowdingDistance = 0
	}

	for m := 0; m < n.NumObjectives; m++ {
		sorted := append([]int(nil), front...)
		sort.Slice(sorted, func(a, b int) bool {
			return population[sorted[a]].Objectives[m] < population[sorted[b]].Objectives[m]
		})
		population[sorted[0]].CrowdingDistance = math.Inf(1)
		population[sorted[size-1]].CrowdingDistance = math.Inf(1)

		min := population[sorted[0]].Objectives[m]
		max := population[sorted[size-1]].Objectives[m]
		scale := max - min
		if scale <= 0 {
			continue
		}
		for i := 1; i < size-1; i++ {
			population[sorted[i]].CrowdingDistance +=
				(population[sorted[i+1]].Objectives[m] - population[sorted[i-1]].Objectives[m]) / scale
		}
	}
}

func (n *NSGA2) tournamentSelection(population []Solution) int {
	a := n.rng.Intn(len(population))
	b := n.rng.Intn(len(population))
	switch {
	case population[a].Rank < population[b].Rank:
		return a
	case population[b].Rank < population[a].Rank:
		return b
	case population[a].CrowdingDistance > population[b].CrowdingDistance:
		return a
	default:
		return b
	}
}

// crossover applies SBX to Float/Integer variables and a coin-flip swap to
// Boolean variables, gated on CrossoverRate for the whole pair.
func (n *NSGA2) crossover(parent1, parent2 Solution) (Solution, Solution) {
	child1, child2 := parent1.clone(), parent2.clone()
	if n.rng.Float64() >= n.CrossoverRate {
		return child1, child2
	}

	for i, def := range n.VariableDefinitions {
		if n.rng.Float64() >= 0.5 {
			continue
		}
		switch def.Kind {
		case variable.Float:
			y1, y2 := parent1.Variables[i].F, parent2.Variables[i].F
			c1, c2 := sbx(y1, y2, def.FloatMin, def.FloatMax, n.rng)
			child1.Variables[i] = variable.NewFloat(c1)
			child2.Variables[i] = variable.NewFloat(c2)
		case variable.Integer:
			y1, y2 := float64(parent1.Variables[i].I), float64(parent2.Variables[i].I)
			c1, c2 := sbx(y1, y2, float64(def.IntMin), float64(def.IntMax), n.rng)
			child1.Variables[i] = variable.NewInteger(clampInt(int64(math.Round(c1)), def.IntMin, def.IntMax))
			child2.Variables[i] = variable.NewInteger(clampInt(int64(math.Round(c2)), def.IntMin, def.IntMax))
		case variable.Boolean:
			child1.Variables[i], child2.Variables[i] = child2.Variables[i], child1.Variables[i]
		}
	}
	return child1, child2
}

// sbx performs simulated binary crossover between y1 and y2 bounded by
// [min,max], returning the two children clamped to [min,max]; the caller
// rounds and clamps Integer results again itself.
func sbx(y1, y2, min, max float64, rng *rand.Rand) (float64, float64) {
	const eta = distributionIndexCrossover
	var beta float64
	if y1 < y2 {
		beta = 1.0 + 2.0*(y1-min)/(y2-y1)
	} else {
		beta = 1.0 + 2.0*(max-y1)/(y1-y2)
	}
	alpha := 2.0 - math.Pow(beta, -eta-1.0)
	u := rng.Float64()
	var betaq float64
	if u <= 1.0/alpha {
		betaq = math.Pow(u*alpha, 1.0/(eta+1.0))
	} else {
		betaq = math.Pow(1.0/(2.0-u*alpha), 1.0/(eta+1.0))
	}
	c1 := 0.5 * ((y1 + y2) - betaq*(y2-y1))
	c2 := 0.5 * ((y1 + y2) + betaq*(y2-y1))
	return clampFloat(c1, min, max), clampFloat(c2, min, max)
}

// mutate applies polynomial mutation per Float/Integer variable and a bit
// flip per Boolean variable, each gated independently on MutationRate.
func (n *NSGA2) mutate(s *Solution) {
	const eta = distributionIndexMutation
	for i, def := range n.VariableDefinitions {
		if n.rng.Float64() >= n.MutationRate {
			continue
		}
		switch def.Kind {
		case variable.Float:
			y := s.Variables[i].F
			mutated := polynomialMutation(y, def.FloatMin, def.FloatMax, eta, n.rng)
			s.Variables[i] = variable.NewFloat(clampFloat(mutated, def.FloatMin, def.FloatMax))
		case variable.Integer:
			y := float64(s.Variables[i].I)
			mutated := polynomialMutation(y, float64(def.IntMin), float64(def.IntMax), eta, n.rng)
			s.Variables[i] = variable.NewInteger(clampInt(int64(math.Round(mutated)), def.IntMin, def.IntMax))
		case variable.Boolean:
			s.Variables[i] = variable.NewBoolean(!s.Variables[i].B)
		}
	}
}

func polynomialMutation(y, min, max, eta float64, rng *rand.Rand) float64 {
	delta1 := (y - min) / (max - min)
	delta2 := (max - y) / (max - min)
	rnd := rng.Float64()
	var deltaq float64
	if rnd <= 0.5 {
		xy := 1.0 - delta1
		val := 2.0*rnd + (1.0-2.0*rnd)*math.Pow(xy, eta+1.0)
		deltaq = math.Pow(val, 1.0/(eta+1.0)) - 1.0
	} else {
		xy := 1.0 - delta2
		val := 2.0*(1.0-rnd) + 2.0*(rnd-0.5)*math.Pow(xy, eta+1.0)
		deltaq = 1.0 - math.Pow(val, 1.0/(eta+1.0))
	}
	return y + deltaq*(max-min)
}

// Run executes the NSGA-II main loop for the given number of generations,
// returning a population of exactly PopulationSize solutions.
func (n *NSGA2) Run(ctx context.Context, generations int, evaluate EvaluateFunc) ([]Solution, error) {
	population := n.initializePopulation()
	if err := n.evaluateAll(ctx, population, evaluate); err != nil {
		return nil, err
	}

	for g := 0; g < generations; g++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		offspring := make([]Solution, 0, n.PopulationSize)
		for len(offspring) < n.PopulationSize {
			p1 := n.tournamentSelection(population)
			p2 := n.tournamentSelection(population)
			child1, child2 := n.crossover(population[p1], population[p2])
			n.mutate(&child1)
			n.mutate(&child2)
			offspring = append(offspring, child1)
			if len(offspring) < n.PopulationSize {
				offspring = append(offspring, child2)
			}
		}

		if err := n.evaluateAll(ctx, offspring, evaluate); err != nil {
			return nil, err
		}

		population = append(population, offspring...)
		fronts := n.nonDominatedSort(population)
		for _, front := range fronts {
			if len(front) > 0 {
				n.calculateCrowdingDistance(population, front)
			}
		}

		sort.SliceStable(population, func(a, b int) bool {
			if population[a].Rank != population[b].Rank {
				return population[a].Rank < population[b].Rank
			}
			return population[a].CrowdingDistance > population[b].CrowdingDistance
		})
		if len(population) > n.PopulationSize {
			population = population[:n.PopulationSize]
		}
	}

	return population, nil
}

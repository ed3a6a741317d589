package allocation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"rescuecore/internal/types"
)

// NSGA-II operator parameters.
const (
	crossoverProb = 0.9
	sbxEta        = 15.0
	mutationEta   = 20.0

	// selectionThreshold decodes a gene into team membership.
	selectionThreshold = 0.5
)

// Penalty objective vector for infeasible individuals.
var infeasibleObjectives = [3]float64{1000, 0, 1000}

// individual is one candidate-selection genome with its evaluation.
type individual struct {
	genome   []float64
	objs     [3]float64 // max eta, -coverage, teams count; all minimized
	feasible bool
	rank     int
	crowding float64
}

// nsga2 runs the seeded multi-objective search over the candidate selection
// space and returns the decoded feasible Pareto-front selections. The error
// covers the degenerate outcomes the greedy fallback must absorb.
func nsga2(candidates []types.ResourceCandidate, required []string, population, generations int, minCoverage float64, seed int64) ([][]types.ResourceCandidate, error) {
	n := len(candidates)
	if n == 0 {
		return nil, fmt.Errorf("no candidates to optimize")
	}
	rng := rand.New(rand.NewSource(seed))

	eval := newEvaluator(candidates, required, minCoverage)

	pop := make([]*individual, population)
	for i := range pop {
		genome := make([]float64, n)
		for g := range genome {
			genome[g] = rng.Float64()
		}
		pop[i] = eval.evaluate(genome)
	}
	assignRanks(pop)

	for gen := 0; gen < generations; gen++ {
		offspring := make([]*individual, 0, population)
		for len(offspring) < population {
			p1 := tournament(rng, pop)
			p2 := tournament(rng, pop)
			c1, c2 := sbxCrossover(rng, p1.genome, p2.genome)
			polynomialMutation(rng, c1)
			polynomialMutation(rng, c2)
			offspring = append(offspring, eval.evaluate(c1))
			if len(offspring) < population {
				offspring = append(offspring, eval.evaluate(c2))
			}
		}
		pop = environmentalSelection(append(pop, offspring...), population)
	}

	var selections [][]types.ResourceCandidate
	for _, ind := range pop {
		if ind.rank != 0 || !ind.feasible {
			continue
		}
		selections = append(selections, eval.decode(ind.genome))
	}
	if len(selections) == 0 {
		return nil, fmt.Errorf("no feasible individual after %d generations", generations)
	}
	return selections, nil
}

// evaluator caches the per-candidate required-capability sets for genome
// scoring.
type evaluator struct {
	candidates  []types.ResourceCandidate
	caps        []map[string]bool // required capabilities per candidate
	nRequired   int
	minCoverage float64
}

func newEvaluator(candidates []types.ResourceCandidate, required []string, minCoverage float64) *evaluator {
	requiredSet := make(map[string]bool, len(required))
	for _, code := range required {
		requiredSet[code] = true
	}
	caps := make([]map[string]bool, len(candidates))
	for i, c := range candidates {
		caps[i] = make(map[string]bool)
		for _, cap := range c.Capabilities {
			if requiredSet[cap] {
				caps[i][cap] = true
			}
		}
	}
	return &evaluator{
		candidates:  candidates,
		caps:        caps,
		nRequired:   len(requiredSet),
		minCoverage: minCoverage,
	}
}

// decode maps a genome onto the selected candidate subset.
func (e *evaluator) decode(genome []float64) []types.ResourceCandidate {
	var selected []types.ResourceCandidate
	for i, gene := range genome {
		if gene >= selectionThreshold {
			selected = append(selected, e.candidates[i])
		}
	}
	return selected
}

// evaluate scores a genome. Selections below the coverage constraint take the
// fixed penalty objectives.
func (e *evaluator) evaluate(genome []float64) *individual {
	ind := &individual{genome: genome}

	covered := make(map[string]bool)
	var maxEta float64
	teams := 0
	for i, gene := range genome {
		if gene < selectionThreshold {
			continue
		}
		teams++
		if e.candidates[i].ETAMinutes > maxEta {
			maxEta = e.candidates[i].ETAMinutes
		}
		for cap := range e.caps[i] {
			covered[cap] = true
		}
	}

	coverage := 1.0
	if e.nRequired > 0 {
		coverage = float64(len(covered)) / float64(e.nRequired)
	}
	if teams == 0 || coverage < e.minCoverage {
		ind.objs = infeasibleObjectives
		return ind
	}

	ind.feasible = true
	ind.objs = [3]float64{maxEta, -coverage, float64(teams)}
	return ind
}

// dominates reports Pareto dominance over the minimized objective vector.
func dominates(a, b *individual) bool {
	better := false
	for i := 0; i < 3; i++ {
		if a.objs[i] > b.objs[i] {
			return false
		}
		if a.objs[i] < b.objs[i] {
			better = true
		}
	}
	return better
}

// assignRanks runs the fast non-dominated sort and crowding assignment over
// the whole population in place.
func assignRanks(pop []*individual) [][]*individual {
	dominated := make([][]int, len(pop))
	counts := make([]int, len(pop))
	var current []int
	for i := range pop {
		for j := range pop {
			if i == j {
				continue
			}
			if dominates(pop[i], pop[j]) {
				dominated[i] = append(dominated[i], j)
			} else if dominates(pop[j], pop[i]) {
				counts[i]++
			}
		}
		if counts[i] == 0 {
			pop[i].rank = 0
			current = append(current, i)
		}
	}

	var fronts [][]*individual
	rank := 0
	for len(current) > 0 {
		front := make([]*individual, 0, len(current))
		var next []int
		for _, i := range current {
			front = append(front, pop[i])
			for _, j := range dominated[i] {
				counts[j]--
				if counts[j] == 0 {
					pop[j].rank = rank + 1
					next = append(next, j)
				}
			}
		}
		crowdingAssign(front)
		fronts = append(fronts, front)
		current = next
		rank++
	}
	return fronts
}

// crowdingAssign computes the crowding distance within one front.
func crowdingAssign(front []*individual) {
	for _, ind := range front {
		ind.crowding = 0
	}
	if len(front) <= 2 {
		for _, ind := range front {
			ind.crowding = math.Inf(1)
		}
		return
	}
	for obj := 0; obj < 3; obj++ {
		sort.SliceStable(front, func(i, j int) bool {
			return front[i].objs[obj] < front[j].objs[obj]
		})
		lo, hi := front[0].objs[obj], front[len(front)-1].objs[obj]
		front[0].crowding = math.Inf(1)
		front[len(front)-1].crowding = math.Inf(1)
		span := hi - lo
		if span == 0 {
			continue
		}
		for i := 1; i < len(front)-1; i++ {
			front[i].crowding += (front[i+1].objs[obj] - front[i-1].objs[obj]) / span
		}
	}
}

// tournament picks the better of two random individuals by rank then
// crowding.
func tournament(rng *rand.Rand, pop []*individual) *individual {
	a := pop[rng.Intn(len(pop))]
	b := pop[rng.Intn(len(pop))]
	if a.rank != b.rank {
		if a.rank < b.rank {
			return a
		}
		return b
	}
	if a.crowding > b.crowding {
		return a
	}
	return b
}

// environmentalSelection keeps the best `size` individuals from the combined
// parent and offspring populations, filling whole fronts first and breaking
// the last front by crowding distance.
func environmentalSelection(combined []*individual, size int) []*individual {
	fronts := assignRanks(combined)
	next := make([]*individual, 0, size)
	for _, front := range fronts {
		if len(next)+len(front) <= size {
			next = append(next, front...)
			continue
		}
		sort.SliceStable(front, func(i, j int) bool {
			return front[i].crowding > front[j].crowding
		})
		next = append(next, front[:size-len(next)]...)
		break
	}
	return next
}

// sbxCrossover applies simulated binary crossover gene-wise, clamping the
// children to [0,1].
func sbxCrossover(rng *rand.Rand, p1, p2 []float64) ([]float64, []float64) {
	c1 := append([]float64(nil), p1...)
	c2 := append([]float64(nil), p2...)
	if rng.Float64() > crossoverProb {
		return c1, c2
	}
	for i := range c1 {
		if rng.Float64() > 0.5 {
			continue
		}
		u := rng.Float64()
		var beta float64
		if u <= 0.5 {
			beta = math.Pow(2*u, 1/(sbxEta+1))
		} else {
			beta = math.Pow(1/(2*(1-u)), 1/(sbxEta+1))
		}
		x1, x2 := c1[i], c2[i]
		c1[i] = clamp01(0.5 * ((1+beta)*x1 + (1-beta)*x2))
		c2[i] = clamp01(0.5 * ((1-beta)*x1 + (1+beta)*x2))
	}
	return c1, c2
}

// polynomialMutation perturbs each gene with probability 1/len.
func polynomialMutation(rng *rand.Rand, genome []float64) {
	pm := 1.0 / float64(len(genome))
	for i := range genome {
		if rng.Float64() > pm {
			continue
		}
		u := rng.Float64()
		var delta float64
		if u < 0.5 {
			delta = math.Pow(2*u, 1/(mutationEta+1)) - 1
		} else {
			delta = 1 - math.Pow(2*(1-u), 1/(mutationEta+1))
		}
		genome[i] = clamp01(genome[i] + delta)
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

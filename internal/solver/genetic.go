package solver

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
)

const (
	geneticCPUMethod = "genetic algorithm (multi-core fitness)"
	geneticGPUMethod = "genetic algorithm (vectorized fitness)"

	// Random construction is only worth dispatching to the pool for larger
	// populations.
	parallelInitThreshold = 100
)

// geneticSolver runs the population search. An individual is the pinned
// genes (verbatim, immutable) followed by one gene per requirement period;
// every individual shares the same gene layout because all derive from the
// identical requirement expansion, which is what makes uniform crossover
// index-aligned. Infeasibility is never declared: the best individual ever
// seen is returned and its conflicts are the caller's to inspect.
type geneticSolver struct {
	snap       *domain.Snapshot
	reqs       []domain.Requirement
	pinned     []domain.ScheduledSlot
	classrooms []domain.Room
	labs       []domain.Room
	eval       evaluator
	pool       *evalPool
	rng        *rand.Rand
	opts       Options
	method     string
	geneCount  int
	logger     *zap.Logger
}

func newGeneticSolver(snap *domain.Snapshot, reqs []domain.Requirement, pinned []domain.ScheduledSlot, opts Options) *geneticSolver {
	g := &geneticSolver{
		snap:       snap,
		reqs:       reqs,
		pinned:     pinned,
		classrooms: snap.Classrooms(),
		labs:       snap.Labs(),
		pool:       newEvalPool(opts.Workers, opts.Sequential, opts.Seed, opts.Logger),
		rng:        rand.New(rand.NewSource(opts.Seed)),
		opts:       opts,
		logger:     opts.Logger,
	}

	if opts.Choice == ChoiceGeneticGPU {
		g.eval = newArrayEvaluator(snap)
		g.method = geneticGPUMethod
	} else {
		g.eval = newFitnessEvaluator(snap)
		g.method = geneticCPUMethod
	}

	periods := len(snap.Calendar.Periods)
	for _, req := range reqs {
		n := req.Duration
		if n > periods {
			n = periods
		}
		g.geneCount += n
	}
	return g
}

func (g *geneticSolver) Run(ctx context.Context, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	popSize := g.opts.PopulationSize

	pop := g.initPopulation()
	fits := make([]float64, popSize)
	trace := make([]TraceRecord, 0, g.opts.MaxGenerations)

	bestFitness := 0.0
	var bestSlots []domain.ScheduledSlot

	for gen := 0; gen < g.opts.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g.evaluate(pop, fits)
		best, avg, bestIdx := summarize(fits)
		trace = append(trace, TraceRecord{Generation: gen, Best: best, Average: avg})

		if best > bestFitness {
			bestFitness = best
			bestSlots = domain.CloneSlots(pop[bestIdx])
		}
		if onProgress != nil {
			onProgress(Progress{Stage: StageGeneration, Completed: gen + 1, Total: g.opts.MaxGenerations, Best: best, Average: avg})
		}
		if best >= earlyStopFitness {
			g.logger.Debug("early stop on near-perfect fitness",
				zap.Int("generation", gen),
				zap.Float64("best", best))
			break
		}

		order := fitnessOrder(fits)
		next := make([][]domain.ScheduledSlot, 0, popSize)
		for _, idx := range order[:g.opts.EliteSize] {
			next = append(next, domain.CloneSlots(pop[idx]))
		}

		var pairs [][2][]domain.ScheduledSlot
		for len(next)+len(pairs)*2 < popSize {
			pairs = append(pairs, [2][]domain.ScheduledSlot{
				g.tournament(pop, fits),
				g.tournament(pop, fits),
			})
		}
		for _, pair := range pairs {
			c1, c2 := g.crossover(pair[0], pair[1])
			g.mutate(c1)
			g.mutate(c2)
			next = append(next, c1)
			if len(next) < popSize {
				next = append(next, c2)
			}
		}
		pop = next
	}

	return &Result{
		Slots:       bestSlots,
		Trace:       trace,
		Method:      g.method,
		Elapsed:     time.Since(start),
		BestFitness: bestFitness,
	}, nil
}

func (g *geneticSolver) initPopulation() [][]domain.ScheduledSlot {
	pop := make([][]domain.ScheduledSlot, g.opts.PopulationSize)
	if !g.opts.Sequential && g.opts.PopulationSize > parallelInitThreshold {
		g.pool.mapRange(len(pop), func(start, end int, rng *rand.Rand) {
			for i := start; i < end; i++ {
				pop[i] = g.randomIndividual(rng)
			}
		})
		return pop
	}
	for i := range pop {
		pop[i] = g.randomIndividual(g.rng)
	}
	return pop
}

// randomIndividual places every requirement uniformly at random: theory gets
// a random day, period and classroom; a lab block gets a random day, a
// contiguous start period clamped so the block fits, and a lab room (or a
// classroom when no labs exist). No feasibility checking happens here;
// conflicts are resolved by fitness pressure alone.
func (g *geneticSolver) randomIndividual(rng *rand.Rand) []domain.ScheduledSlot {
	days := len(g.snap.Calendar.Days)
	periods := len(g.snap.Calendar.Periods)

	ind := make([]domain.ScheduledSlot, len(g.pinned), len(g.pinned)+g.geneCount)
	copy(ind, g.pinned)

	for _, req := range g.reqs {
		switch req.Kind {
		case domain.SessionLab:
			day := rng.Intn(days)
			maxStart := periods - req.Duration
			if maxStart < 0 {
				maxStart = 0
			}
			startPeriod := rng.Intn(maxStart + 1)

			var room domain.Room
			kind := domain.RoomClassroom
			if len(g.labs) > 0 {
				room = g.labs[rng.Intn(len(g.labs))]
				kind = domain.RoomLab
			} else {
				room = g.classrooms[rng.Intn(len(g.classrooms))]
			}

			for i := 0; i < req.Duration && startPeriod+i < periods; i++ {
				ind = append(ind, domain.ScheduledSlot{
					BatchID:     req.BatchID,
					DayIndex:    day,
					PeriodIndex: startPeriod + i,
					SubjectID:   req.SubjectID,
					FacultyID:   req.FacultyID,
					RoomID:      room.ID,
					RoomKind:    kind,
				})
			}
		default:
			room := g.classrooms[rng.Intn(len(g.classrooms))]
			ind = append(ind, domain.ScheduledSlot{
				BatchID:     req.BatchID,
				DayIndex:    rng.Intn(days),
				PeriodIndex: rng.Intn(periods),
				SubjectID:   req.SubjectID,
				FacultyID:   req.FacultyID,
				RoomID:      room.ID,
				RoomKind:    domain.RoomClassroom,
			})
		}
	}
	return ind
}

func (g *geneticSolver) evaluate(pop [][]domain.ScheduledSlot, fits []float64) {
	g.pool.mapRange(len(pop), func(start, end int, _ *rand.Rand) {
		for i := start; i < end; i++ {
			fits[i] = g.eval.fitness(pop[i])
		}
	})
}

// tournament samples tournamentSize distinct individuals and returns an
// independent copy of the fittest.
func (g *geneticSolver) tournament(pop [][]domain.ScheduledSlot, fits []float64) []domain.ScheduledSlot {
	entrants := g.rng.Perm(len(pop))[:g.opts.TournamentSize]
	winner := entrants[0]
	for _, idx := range entrants[1:] {
		if fits[idx] > fits[winner] {
			winner = idx
		}
	}
	return domain.CloneSlots(pop[winner])
}

// crossover performs uniform, pinned-gene-preserving recombination: pinned
// genes are copied from parent 1 into both children, then a fair coin decides
// per non-fixed index which parent feeds which child. Skipped entirely with
// probability 1 − crossoverRate, in which case the children are plain copies.
func (g *geneticSolver) crossover(p1, p2 []domain.ScheduledSlot) ([]domain.ScheduledSlot, []domain.ScheduledSlot) {
	if g.rng.Float64() > g.opts.CrossoverRate {
		return domain.CloneSlots(p1), domain.CloneSlots(p2)
	}

	fc := len(g.pinned)
	c1 := make([]domain.ScheduledSlot, len(p1))
	c2 := make([]domain.ScheduledSlot, len(p2))
	copy(c1[:fc], p1[:fc])
	copy(c2[:fc], p1[:fc])

	n1, n2 := p1[fc:], p2[fc:]
	minLen := len(n1)
	if len(n2) < minLen {
		minLen = len(n2)
	}
	for i := 0; i < minLen; i++ {
		if g.rng.Float64() < 0.5 {
			c1[fc+i], c2[fc+i] = n1[i], n2[i]
		} else {
			c1[fc+i], c2[fc+i] = n2[i], n1[i]
		}
	}
	copy(c1[fc+minLen:], n1[minLen:])
	copy(c2[fc+minLen:], n2[minLen:])
	return c1, c2
}

// mutate swaps the (day, period) pair of two distinct non-fixed genes;
// subject, faculty and room stay attached to their gene index so a gene
// always represents the same requirement.
func (g *geneticSolver) mutate(ind []domain.ScheduledSlot) {
	fc := len(g.pinned)
	n := len(ind) - fc
	if n < 2 {
		return
	}

	attempts := int(float64(n)*g.opts.MutationRate) + 1
	for a := 0; a < attempts; a++ {
		if g.rng.Float64() >= g.opts.MutationRate {
			continue
		}
		ri := g.rng.Intn(n)
		rj := g.rng.Intn(n - 1)
		if rj >= ri {
			rj++
		}
		i, j := fc+ri, fc+rj
		ind[i].DayIndex, ind[j].DayIndex = ind[j].DayIndex, ind[i].DayIndex
		ind[i].PeriodIndex, ind[j].PeriodIndex = ind[j].PeriodIndex, ind[i].PeriodIndex
	}
}

func summarize(fits []float64) (best, avg float64, bestIdx int) {
	sum := 0.0
	best = fits[0]
	for i, f := range fits {
		sum += f
		if f > best {
			best = f
			bestIdx = i
		}
	}
	return best, sum / float64(len(fits)), bestIdx
}

// fitnessOrder returns population indices sorted by descending fitness,
// stable on index for deterministic elitism under ties.
func fitnessOrder(fits []float64) []int {
	order := make([]int, len(fits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fits[order[a]] > fits[order[b]]
	})
	return order
}

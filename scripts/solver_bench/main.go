// Command solver_bench benchmarks the scheduling algorithms against a
// synthetic catalogue. It reports elapsed time, fitness and hard-constraint
// conflicts per run and exits non-zero when any run produced conflicts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/solver"
)

type benchResult struct {
	Algorithm string
	Run       int
	Elapsed   time.Duration
	Fitness   float64
	Slots     int
	Conflicts int
	Err       error
}

func main() {
	var (
		algorithms      string
		batches         int
		subjectsPerBtch int
		facultyCount    int
		roomCount       int
		days            int
		periods         int
		runs            int
		population      int
		generations     int
		seed            int64
		timeout         time.Duration
	)

	flag.StringVar(&algorithms, "algorithms", "csp,genetic_cpu", "comma-separated algorithms to benchmark")
	flag.IntVar(&batches, "batches", 4, "number of batches")
	flag.IntVar(&subjectsPerBtch, "subjects", 6, "subjects per batch")
	flag.IntVar(&facultyCount, "faculty", 12, "number of faculty members")
	flag.IntVar(&roomCount, "rooms", 8, "number of rooms (every fourth is a lab)")
	flag.IntVar(&days, "days", 5, "working days per week")
	flag.IntVar(&periods, "periods", 7, "periods per day")
	flag.IntVar(&runs, "runs", 3, "repetitions per algorithm")
	flag.IntVar(&population, "population", 100, "genetic population size")
	flag.IntVar(&generations, "generations", 100, "genetic generation budget")
	flag.Int64Var(&seed, "seed", 42, "random seed for the genetic solver")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "per-run timeout")
	flag.Parse()

	snap := syntheticSnapshot(batches, subjectsPerBtch, facultyCount, roomCount, days, periods)
	batchIDs := make([]string, 0, len(snap.Batches))
	for _, b := range snap.Batches {
		batchIDs = append(batchIDs, b.ID)
	}

	var results []benchResult
	failed := false
	for _, raw := range strings.Split(algorithms, ",") {
		choice, err := solver.ParseChoice(strings.TrimSpace(raw))
		if err != nil {
			log.Fatalf("invalid algorithm: %v", err)
		}
		for run := 1; run <= runs; run++ {
			res := benchOnce(snap, batchIDs, choice, run, population, generations, seed+int64(run), timeout)
			if res.Err != nil || res.Conflicts > 0 {
				failed = true
			}
			results = append(results, res)
		}
	}

	printReport(results, snap)
	if failed {
		os.Exit(1)
	}
}

func benchOnce(snap *domain.Snapshot, batchIDs []string, choice solver.Choice, run, population, generations int, seed int64, timeout time.Duration) benchResult {
	res := benchResult{Algorithm: string(choice), Run: run}

	sol, err := solver.New(snap, batchIDs, solver.Options{
		Choice:         choice,
		PopulationSize: population,
		MaxGenerations: generations,
		Seed:           seed,
	})
	if err != nil {
		res.Err = err
		return res
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	outcome, err := sol.Run(ctx, nil)
	if err != nil {
		res.Err = err
		return res
	}

	res.Elapsed = outcome.Elapsed
	res.Fitness = outcome.BestFitness
	res.Slots = len(outcome.Slots)
	res.Conflicts = len(solver.ValidateSchedule(snap, outcome.Slots))
	return res
}

// syntheticSnapshot builds a catalogue of the requested size. Every fourth
// subject is a two-period lab, every fourth room a lab room; faculty rotate
// round-robin over the allocations.
func syntheticSnapshot(batchCount, subjectsPerBatch, facultyCount, roomCount, dayCount, periodCount int) *domain.Snapshot {
	weekdays := []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
	days := make([]string, dayCount)
	for i := range days {
		if i < len(weekdays) {
			days[i] = weekdays[i]
		} else {
			days[i] = fmt.Sprintf("day%d", i+1)
		}
	}
	periods := make([]string, periodCount)
	for i := range periods {
		periods[i] = fmt.Sprintf("%02d:00-%02d:00", 8+i, 9+i)
	}

	batches := make([]domain.Batch, batchCount)
	for i := range batches {
		batches[i] = domain.Batch{
			ID:        fmt.Sprintf("b%d", i+1),
			Name:      fmt.Sprintf("Batch-%d", i+1),
			Headcount: 50,
		}
	}

	faculty := make([]domain.Faculty, facultyCount)
	for i := range faculty {
		faculty[i] = domain.Faculty{
			ID:   fmt.Sprintf("f%d", i+1),
			Name: fmt.Sprintf("Faculty %d", i+1),
		}
	}

	rooms := make([]domain.Room, roomCount)
	for i := range rooms {
		kind := domain.RoomClassroom
		if (i+1)%4 == 0 {
			kind = domain.RoomLab
		}
		rooms[i] = domain.Room{
			ID:       fmt.Sprintf("r%d", i+1),
			Name:     fmt.Sprintf("Room-%d", i+1),
			Kind:     kind,
			Capacity: 60,
		}
	}

	var subjects []domain.Subject
	var allocations []domain.Allocation
	next := 0
	for b := 0; b < batchCount; b++ {
		for s := 0; s < subjectsPerBatch; s++ {
			subject := domain.Subject{
				ID:          fmt.Sprintf("s%d-%d", b+1, s+1),
				Code:        fmt.Sprintf("SUB%d%02d", b+1, s+1),
				Name:        fmt.Sprintf("Subject %d.%d", b+1, s+1),
				Type:        domain.SubjectTheory,
				Credits:     3,
				TheoryHours: 3,
			}
			if (s+1)%4 == 0 {
				subject.Type = domain.SubjectPractical
				subject.Credits = 2
				subject.TheoryHours = 0
				subject.LabHours = 2
			}
			subjects = append(subjects, subject)
			allocations = append(allocations, domain.Allocation{
				BatchID:   batches[b].ID,
				SubjectID: subject.ID,
				FacultyID: faculty[next%facultyCount].ID,
			})
			next++
		}
	}

	return domain.NewSnapshot(
		domain.NewCalendar(days, periods),
		batches,
		subjects,
		faculty,
		rooms,
		allocations,
		nil,
		domain.NewConstraintSet(domain.DefaultConstraints()),
	)
}

func printReport(results []benchResult, snap *domain.Snapshot) {
	fmt.Println("Solver Benchmark Report")
	fmt.Println("=======================")
	fmt.Printf("Catalogue: %d batches, %d subjects, %d faculty, %d rooms, %d days x %d periods\n\n",
		len(snap.Batches), len(snap.Subjects), len(snap.Faculty), len(snap.Rooms),
		len(snap.Calendar.Days), len(snap.Calendar.Periods))

	perAlgo := make(map[string][]benchResult)
	var order []string
	for _, res := range results {
		if _, seen := perAlgo[res.Algorithm]; !seen {
			order = append(order, res.Algorithm)
		}
		perAlgo[res.Algorithm] = append(perAlgo[res.Algorithm], res)

		status := "OK"
		if res.Err != nil {
			status = "ERROR"
		} else if res.Conflicts > 0 {
			status = "CONFLICTS"
		}
		fmt.Printf("[%s] %s run %d\n", status, res.Algorithm, res.Run)
		if res.Err != nil {
			fmt.Printf("  Error: %v\n", res.Err)
			continue
		}
		fmt.Printf("  Elapsed: %s | Fitness: %.4f | Slots: %d | Conflicts: %d\n",
			res.Elapsed.Round(time.Millisecond), res.Fitness, res.Slots, res.Conflicts)
	}

	fmt.Println()
	for _, algo := range order {
		runs := perAlgo[algo]
		var total time.Duration
		var best float64
		ok := 0
		for _, res := range runs {
			if res.Err != nil {
				continue
			}
			total += res.Elapsed
			if res.Fitness > best {
				best = res.Fitness
			}
			ok++
		}
		if ok == 0 {
			fmt.Printf("%s: all runs failed\n", algo)
			continue
		}
		fmt.Printf("%s: avg %s over %d runs, best fitness %.4f\n",
			algo, (total / time.Duration(ok)).Round(time.Millisecond), ok, best)
	}
}

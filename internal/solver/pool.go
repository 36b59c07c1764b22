package solver

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// evalPool dispatches independent, index-addressed units of work across a
// fixed set of workers. Work is split into contiguous chunks sized
// n / (workers * 4) to balance dispatch overhead against granularity; each
// chunk writes only its own index range, so input order is preserved without
// coordination. Chunk-local rand streams are derived from the base seed and
// the chunk's start index, which keeps seeded runs reproducible regardless of
// which worker picks up which chunk.
type evalPool struct {
	workers    int
	sequential bool
	seed       int64
	logger     *zap.Logger
}

func newEvalPool(workers int, sequential bool, seed int64, logger *zap.Logger) *evalPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &evalPool{workers: workers, sequential: sequential, seed: seed, logger: logger}
}

func (p *evalPool) chunkSize(n int) int {
	size := n / (p.workers * 4)
	if size < 1 {
		return 1
	}
	return size
}

func (p *evalPool) rng(chunkStart int) *rand.Rand {
	return rand.New(rand.NewSource(p.seed + int64(chunkStart) + 1))
}

// mapRange runs fn over [0, n) in chunks. fn must only touch indices inside
// its [start, end) range. If any worker panics the whole pass is redone
// sequentially with identical semantics; the failure is logged as a warning
// and never surfaces to the caller.
func (p *evalPool) mapRange(n int, fn func(start, end int, rng *rand.Rand)) {
	if n <= 0 {
		return
	}
	if p.sequential || p.workers <= 1 || n <= 1 {
		p.runSequential(n, fn)
		return
	}

	chunk := p.chunkSize(n)
	ranges := make(chan [2]int, (n+chunk-1)/chunk)
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		ranges <- [2]int{start, end}
	}
	close(ranges)

	var failed atomic.Bool
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range ranges {
				p.runChunk(r[0], r[1], fn, &failed)
			}
		}()
	}
	wg.Wait()

	if failed.Load() {
		p.logger.Warn("parallel evaluation failed, falling back to sequential pass")
		p.runSequential(n, fn)
	}
}

func (p *evalPool) runChunk(start, end int, fn func(start, end int, rng *rand.Rand), failed *atomic.Bool) {
	defer func() {
		if r := recover(); r != nil {
			failed.Store(true)
			p.logger.Warn("evaluation worker panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(start, end, p.rng(start))
}

func (p *evalPool) runSequential(n int, fn func(start, end int, rng *rand.Rand)) {
	chunk := p.chunkSize(n)
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		fn(start, end, p.rng(start))
	}
}

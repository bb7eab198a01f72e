package life

import (
	"runtime"
	"sync"
)

// minRowsPerWorker keeps tiny grids on the calling goroutine.
const minRowsPerWorker = 32

// parallelRows runs fn over [0, n) split into contiguous chunks, one per
// worker, and waits for all of them.
func parallelRows(n, workers int, fn func(start, end int)) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if n/minRowsPerWorker < workers {
		workers = n / minRowsPerWorker
	}
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, n)
		go func(s, e int) {
			defer wg.Done()
			if s < e {
				fn(s, e)
			}
		}(start, end)
	}
	wg.Wait()
}

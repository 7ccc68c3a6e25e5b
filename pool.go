package pyrowave

import "github.com/ajroetker/go-highway/hwy/contrib/workerpool"

// parallelRunner fans index ranges out over the owning codec's persistent
// worker pool. Small trip counts run inline; fork-join stays inside a
// single pipeline step, so the public API remains synchronous.
type parallelRunner struct {
	pool *workerpool.Pool
}

func (r parallelRunner) run(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if r.pool == nil || n < 8 {
		fn(0, n)
		return
	}
	r.pool.ParallelFor(n, fn)
}

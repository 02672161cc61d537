// pool.go - Datenparalleler Fan-Out fuer CPU-Kernel
//
// Heads, matmul-Zeilen und elementweise Kernel sind rein datenparallel
// ohne Abhaengigkeiten zwischen den Aufrufen innerhalb eines Kernels;
// ein Thread-Pool fan-outet ohne Ordnungsgarantie unter den Workern.
// Gegenueber den Arbeits-Lambdas ueber Koepfe/Zeilen, wie sie anderswo
// ueber CGo an ggml delegiert werden, nutzt dieser Kern
// golang.org/x/sync/errgroup direkt, im selben Stil wie das
// workerpool.Executor/ParallelForAtomic-Muster aus den anderen
// Beispiel-Repos (hwy-contrib/nn).
package kernel

import "golang.org/x/sync/errgroup"

// ParallelFor calls fn(i) for every i in [0, n) using up to maxWorkers
// goroutines, with no ordering guarantee between calls. Each call must
// write only to output regions disjoint from every other call's: the
// pool makes no attempt to serialize or synchronize access beyond that
// disjointness. fn must not return an error from work that is expected
// to always succeed; ParallelFor is not used for operations that can
// fail.
func ParallelFor(n, maxWorkers int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if maxWorkers <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			fn(i)
			return nil
		})
	}

	_ = g.Wait()
}

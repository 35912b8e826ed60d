package export

import "sync"

// mapOrdered applies fn to every item using a fixed-size worker pool and
// returns the results in input order.
//
// Serialization and encoding work is CPU-bound with no shared mutable
// state once a record is fully resolved, so it parallelizes freely, but
// output files are record-ordered, so results are reassembled by input
// index before the caller writes them out. The first error wins and is
// returned after all workers drain.
func mapOrdered[T, R any](items []T, workers int, fn func(T) (R, error)) ([]R, error) {
	if workers < 1 {
		workers = 1
	}
	if len(items) == 0 {
		return nil, nil
	}
	if workers > len(items) {
		workers = len(items)
	}

	results := make([]R, len(items))
	jobs := make(chan int)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r, err := fn(items[i])
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					continue
				}
				results[i] = r
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

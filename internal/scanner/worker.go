package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/maxvaer/w3ccheck/internal/crawl"
)

// WorkerConfig holds options for the worker pool.
type WorkerConfig struct {
	Threads   int
	Throttler *Throttler
	Pauser    *Pauser // nil = no pause support
}

// RunWorkerPool fetches work items across workers and returns a channel of
// results. The channel is closed when all items have been processed or ctx
// is done.
func RunWorkerPool(
	ctx context.Context,
	req *Requester,
	items []WorkItem,
	cfg WorkerConfig,
) <-chan crawl.Result {
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}
	throttler := cfg.Throttler
	if throttler == nil {
		throttler = NewThrottler(0, false, nil)
	}

	itemsCh := make(chan WorkItem, threads*2)
	resultsCh := make(chan crawl.Result, threads*2)

	var wg sync.WaitGroup

	// Producer: feed items into channel.
	go func() {
		defer close(itemsCh)
		for _, item := range items {
			select {
			case itemsCh <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Workers: consume items, produce results.
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemsCh {
				if cfg.Pauser != nil {
					if err := cfg.Pauser.Wait(ctx); err != nil {
						return
					}
				}

				if delay := throttler.Delay(); delay > 0 {
					select {
					case <-time.After(delay):
					case <-ctx.Done():
						return
					}
				}

				result := crawl.Result{
					URL:      item.URL,
					Referrer: item.Referrer,
					Depth:    item.Depth,
				}

				resp, err := req.Fetch(ctx, item.URL)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					throttler.RecordError()
					result.Error = err
				} else {
					throttler.RecordStatus(resp.StatusCode)
					result.Response = resp
				}

				select {
				case resultsCh <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Closer: when all workers finish, close the results channel.
	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	return resultsCh
}

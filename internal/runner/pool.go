package runner

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/engine"
	"github.com/orblab/orbiter/internal/market"
	"github.com/orblab/orbiter/internal/observ"
)

// Job is one independent backtest: a validated config replayed over the
// shared bar slice. Jobs share nothing else; runs only read the bars.
type Job struct {
	Name string
	Cfg  config.Config
}

// Result pairs a job with its run output. Err carries either a fatal engine
// error or the context's cancellation error.
type Result struct {
	Name string
	Run  *engine.RunResult
	Err  error
}

// Pool executes independent runs concurrently. Cancellation is at run
// granularity: a cancelled context stops dispatch and aborts in-flight runs
// between bars; partially processed runs report the cancellation error.
type Pool struct {
	workers int
	limiter *rate.Limiter
}

// New sizes the pool. startsPerSec throttles run dispatch (0 disables the
// throttle) so a large grid ramps up gradually instead of thundering.
func New(workers int, startsPerSec float64) *Pool {
	if workers < 1 {
		workers = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if startsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(startsPerSec), 1)
	}
	return &Pool{workers: workers, limiter: limiter}
}

// Run executes all jobs and returns results in job order.
func (p *Pool) Run(ctx context.Context, jobs []Job, bars []market.Bar) []Result {
	results := make([]Result, len(jobs))
	idxCh := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				results[i] = p.runOne(ctx, jobs[i], bars)
			}
		}()
	}

dispatch:
	for i := range jobs {
		select {
		case <-ctx.Done():
			break dispatch
		case idxCh <- i:
		}
	}
	close(idxCh)
	wg.Wait()

	for i := range results {
		if results[i].Name == "" && results[i].Run == nil && results[i].Err == nil {
			results[i] = Result{Name: jobs[i].Name, Err: ctx.Err()}
		}
	}
	return results
}

func (p *Pool) runOne(ctx context.Context, job Job, bars []market.Bar) Result {
	if err := p.limiter.Wait(ctx); err != nil {
		return Result{Name: job.Name, Err: err}
	}
	eng, err := engine.New(job.Cfg)
	if err != nil {
		return Result{Name: job.Name, Err: err}
	}
	log := observ.Logger()
	log.Debug().Str("job", job.Name).Msg("run starting")
	run, err := eng.Run(ctx, bars)
	return Result{Name: job.Name, Run: run, Err: err}
}

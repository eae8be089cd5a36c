package harvest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bronze-harvest/internal/opendata"

	"golang.org/x/sync/errgroup"
)

// Job is one dataset of a harvest plan. When RecentDays is positive the run
// is restricted to recent records through a recency filter built from a
// sample record.
type Job struct {
	Spec       DatasetSpec
	Extra      opendata.Params
	RecentDays int
}

// ticker is an interface so we can swap out time.Ticker in tests.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type tickerFactory func(d time.Duration) ticker

// timeTicker is the real implementation backed by time.Ticker.
type timeTicker struct {
	*time.Ticker
}

func (t *timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func (t *timeTicker) Stop() {
	t.Ticker.Stop()
}

// RunJob builds the job's recency filter when needed and harvests it.
func (s *Service) RunJob(ctx context.Context, job Job) (Result, error) {
	extra := job.Extra

	if job.RecentDays > 0 {
		if s.filters == nil {
			return Result{}, fmt.Errorf("harvest %s: recent window requested without a filter builder", job.Spec.label())
		}

		s.logger.Printf("[INFO] %s: building filter for the last %d days", job.Spec.label(), job.RecentDays)
		f, err := s.filters.Build(ctx, job.Spec.Dataset, job.RecentDays)
		if err != nil {
			return Result{}, fmt.Errorf("harvest %s: recency filter: %w", job.Spec.label(), err)
		}
		if f.Fallback {
			s.logger.Printf("[WARN] %s: no date field found, the page limit is the only protection against over-fetching", job.Spec.label())
		}
		extra = f.Params().Merge(job.Extra)
	}

	return s.FetchAll(ctx, job.Spec, extra)
}

// RunPlan harvests every job, one after the other or concurrently. The first
// failure cancels the remaining jobs. Results keep the order of jobs.
func (s *Service) RunPlan(ctx context.Context, jobs []Job, parallel bool) ([]Result, error) {
	started := time.Now()
	results := make([]Result, len(jobs))

	if parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, job := range jobs {
			i, job := i, job
			g.Go(func() error {
				res, err := s.RunJob(gctx, job)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, job := range jobs {
			res, err := s.RunJob(ctx, job)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
	}

	s.logger.Printf("[SUMMARY] %s | duration: %.2fs", summary(results), time.Since(started).Seconds())
	return results, nil
}

func summary(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s pages: %d (%s)", r.Spec.label(), len(r.Pages), r.Reason))
	}
	return strings.Join(parts, " | ")
}

// StartPolling runs the plan on every tick until ctx is cancelled or maxPolls
// runs have been made. A maxPolls of zero or less means no limit. Each run is
// bounded by runTimeout.
func (s *Service) StartPolling(ctx context.Context, interval, runTimeout time.Duration, maxPolls int, jobs []Job) {
	t := s.newTicker(interval)
	defer t.Stop()

	pollCount := 0

	s.logger.Printf("polling every %v...", interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Println("poller stopping, context cancelled")
			return

		case <-t.C():
			pollCount++
			s.logger.Printf("poll #%d starting harvest...", pollCount)

			runCtx, cancel := context.WithTimeout(ctx, runTimeout)
			if _, err := s.RunPlan(runCtx, jobs, false); err != nil {
				s.logger.Printf("poll error: %v", err)
			}
			cancel()

			if maxPolls > 0 && pollCount >= maxPolls {
				s.logger.Printf("poller stopping after %d polls (max reached)", pollCount)
				return
			}
		}
	}
}

package harvest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"bronze-harvest/internal/catalog"
	"bronze-harvest/internal/metrics"
	"bronze-harvest/internal/opendata"
	"bronze-harvest/internal/recency"
	"bronze-harvest/internal/snapshot"

	"github.com/google/uuid"
)

// Notifier is told about every finished run.
type Notifier interface {
	PublishHarvestCompleted(ctx context.Context, r *catalog.Run) error
}

type FilterBuilder interface {
	Build(ctx context.Context, dataset string, days int) (recency.Filter, error)
}

type Service struct {
	client   opendata.Client
	writer   snapshot.Writer
	catalog  catalog.Repository
	notifier Notifier
	filters  FilterBuilder
	logger   *log.Logger

	now       func() time.Time
	newRunID  func() string
	newTicker tickerFactory
}

type Option func(*Service)

func WithCatalog(repo catalog.Repository) Option {
	return func(s *Service) { s.catalog = repo }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithFilterBuilder(b FilterBuilder) Option {
	return func(s *Service) { s.filters = b }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(client opendata.Client, writer snapshot.Writer, logger *log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.Default()
	}

	s := &Service{
		client:   client,
		writer:   writer,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
		newTicker: func(d time.Duration) ticker {
			return &timeTicker{time.NewTicker(d)}
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchAll walks the result set of spec page by page, persisting every page,
// until a page is empty, the reported hit count is reached or the page limit
// is hit. Keys in extra are applied after dataset, rows and start and may
// replace them.
//
// Any fetch or write failure aborts the run; no partial result is returned.
func (s *Service) FetchAll(ctx context.Context, spec DatasetSpec, extra opendata.Params) (Result, error) {
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{
		RunID:     s.newRunID(),
		Spec:      spec,
		StartedAt: s.now(),
	}

	offset := 0
	pageNo := 1

	for res.Reason == "" {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		params := opendata.Params{
			"dataset": spec.Dataset,
			"rows":    spec.PageSize,
			"start":   offset,
		}.Merge(extra)

		started := time.Now()
		page, err := s.client.Search(ctx, params)
		if err != nil {
			metrics.RecordError(spec.Dataset, "fetch")
			return Result{}, fmt.Errorf("harvest %s: page %d: %w", spec.label(), pageNo, err)
		}

		current := pageNo
		ref, err := s.writer.Write(ctx, page.Raw, spec.prefix(), &current)
		if err != nil {
			metrics.RecordError(spec.Dataset, "write")
			return Result{}, fmt.Errorf("harvest %s: page %d: %w", spec.label(), pageNo, err)
		}

		nrecords := len(page.Records)
		res.Pages = append(res.Pages, ref)
		res.Records += nrecords
		res.NHits = page.NHits

		metrics.RecordPage(spec.Dataset, nrecords, time.Since(started).Seconds())
		s.logger.Printf("[INFO] %s: page %d | start=%d | records=%d | nhits=%d | saved=%s",
			spec.label(), pageNo, offset, nrecords, page.NHits, ref.Name)
		s.recordSnapshot(ctx, res.RunID, spec, offset, nrecords, page.NHits, ref)

		res.Reason = s.next(spec, &offset, &pageNo, nrecords, page.NHits)
	}

	res.FinishedAt = s.now()
	s.finish(ctx, res, extra)
	return res, nil
}

// next advances the loop state and returns a non-empty Reason once the run is
// done.
func (s *Service) next(spec DatasetSpec, offset, pageNo *int, nrecords, nhits int) Reason {
	// nhits may be stale; an empty page always ends the run
	if nrecords == 0 {
		return ReasonEmpty
	}

	*offset += spec.PageSize
	*pageNo++

	if *offset >= nhits {
		return ReasonExhausted
	}

	if spec.PageLimit > 0 && *pageNo > spec.PageLimit {
		s.logger.Printf("[WARN] %s: max_pages reached (%d). Stopping early.", spec.label(), spec.PageLimit)
		return ReasonTruncated
	}

	return ""
}

func (s *Service) recordSnapshot(ctx context.Context, runID string, spec DatasetSpec, start, nrecords, nhits int, ref snapshot.Ref) {
	if s.catalog == nil {
		return
	}

	err := s.catalog.RecordSnapshot(ctx, &catalog.Entry{
		RunID:     runID,
		Name:      spec.label(),
		Dataset:   spec.Dataset,
		Prefix:    ref.Prefix,
		Page:      ref.Page,
		Start:     start,
		Records:   nrecords,
		NHits:     nhits,
		Artifact:  ref.Name,
		Location:  ref.Location,
		Size:      ref.Size,
		WrittenAt: ref.WrittenAt,
	})
	if err != nil {
		metrics.RecordError(spec.Dataset, "catalog")
		s.logger.Printf("catalog: failed to record %s: %v", ref.Name, err)
	}
}

func (s *Service) finish(ctx context.Context, res Result, extra opendata.Params) {
	metrics.RecordRun(res.Spec.Dataset, string(res.Reason))

	if res.Truncated() {
		s.logger.Printf("[WARN] %s: harvest incomplete, %d of %d hits fetched", res.Spec.label(), res.Records, res.NHits)
	}

	if s.catalog == nil && s.notifier == nil {
		return
	}

	run := &catalog.Run{
		RunID:      res.RunID,
		Name:       res.Spec.label(),
		Dataset:    res.Spec.Dataset,
		Reason:     string(res.Reason),
		Pages:      len(res.Pages),
		Records:    res.Records,
		NHits:      res.NHits,
		Filter:     filterSummary(extra),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}

	if s.catalog != nil {
		if err := s.catalog.RecordRun(ctx, run); err != nil {
			metrics.RecordError(res.Spec.Dataset, "catalog")
			s.logger.Printf("catalog: failed to record run %s: %v", res.RunID, err)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.PublishHarvestCompleted(ctx, run); err != nil {
			metrics.RecordError(res.Spec.Dataset, "notify")
			s.logger.Printf("events: failed to publish run %s: %v", res.RunID, err)
		}
	}
}

func filterSummary(extra opendata.Params) map[string]string {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(extra))
	for k, vs := range extra.Values() {
		out[k] = strings.Join(vs, ",")
	}
	return out
}

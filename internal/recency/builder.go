package recency

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bronze-harvest/internal/opendata"
	"bronze-harvest/internal/schema"
)

// DefaultFallbackSortField is the platform metadata field used to order
// records when no date field can be detected.
const DefaultFallbackSortField = "record_timestamp"

// ErrEmptySample is returned by the sampling step when the dataset has no
// record to inspect. Build handles it by falling back.
var ErrEmptySample = errors.New("recency: no record available to sample")

// Filter is the query fragment restricting a harvest to recent records.
//
// A fallback filter only sorts: without a usable date field the page limit of
// the harvest is the only protection against over-fetching.
type Filter struct {
	Where    string
	Sort     string
	Field    string
	Since    string
	Fallback bool
}

func (f Filter) Params() opendata.Params {
	p := opendata.Params{"sort": f.Sort}
	if f.Where != "" {
		p["where"] = f.Where
	}
	return p
}

type Builder struct {
	client            opendata.Client
	fallbackSortField string
	now               func() time.Time
	logger            *log.Logger
}

type Option func(*Builder)

func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

func WithFallbackSortField(field string) Option {
	return func(b *Builder) {
		if field != "" {
			b.fallbackSortField = field
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func NewBuilder(client opendata.Client, opts ...Option) *Builder {
	b := &Builder{
		client:            client,
		fallbackSortField: DefaultFallbackSortField,
		now:               time.Now,
		logger:            log.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build samples one record of dataset and returns a filter for records of the
// last days days. Only transport and parse failures are returned as errors.
func (b *Builder) Build(ctx context.Context, dataset string, days int) (Filter, error) {
	if days <= 0 {
		return Filter{}, fmt.Errorf("recency: days must be positive, got %d", days)
	}

	fields, err := b.sample(ctx, dataset)
	if errors.Is(err, ErrEmptySample) {
		b.logger.Printf("recency: %s has no record to sample, sorting by %s only", dataset, b.fallbackSortField)
		return b.Fallback(), nil
	}
	if err != nil {
		return Filter{}, err
	}

	field, ok := schema.DetectDateField(fields)
	if !ok {
		b.logger.Printf("recency: no date field detected in %s, sorting by %s only", dataset, b.fallbackSortField)
		return b.Fallback(), nil
	}

	since := SinceDate(b.now(), days)
	b.logger.Printf("recency: %s filtered on %s >= %s", dataset, field, since)

	return Filter{
		Where: fmt.Sprintf("%s >= '%s'", field, since),
		Sort:  "-" + field,
		Field: field,
		Since: since,
	}, nil
}

// Fallback is the sort-only filter used when no date field is known.
func (b *Builder) Fallback() Filter {
	return Filter{
		Sort:     "-" + b.fallbackSortField,
		Fallback: true,
	}
}

func (b *Builder) sample(ctx context.Context, dataset string) (opendata.Fields, error) {
	page, err := b.client.Search(ctx, opendata.Params{"dataset": dataset, "rows": 1})
	if err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, ErrEmptySample
	}
	return page.Records[0].Fields, nil
}

// SinceDate is the UTC calendar date days days before now, as YYYY-MM-DD.
func SinceDate(now time.Time, days int) string {
	return now.UTC().AddDate(0, 0, -days).Format(time.DateOnly)
}

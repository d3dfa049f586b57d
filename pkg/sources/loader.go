// Package sources fetches point datasets and hands them to a sink as each
// one completes.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sudorandom/latlng-cloud/pkg/metrics"
	"github.com/sudorandom/latlng-cloud/pkg/pointstore"
	"github.com/sudorandom/latlng-cloud/pkg/utils"
)

// Sink receives one batch per dataset.
type Sink interface {
	Ingest(records []pointstore.Record) error
}

type Option func(*Loader)

func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithCache keeps remote dataset bodies in c between runs.
func WithCache(c *utils.DiskCache) Option {
	return func(l *Loader) { l.cache = c }
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

type Loader struct {
	client  *http.Client
	cache   *utils.DiskCache
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     zerolog.Nop(),
		metrics: metrics.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches every location concurrently and calls sink.Ingest once per
// location, in completion order. A location that fails is logged and
// ingested as an empty batch so the sink still sees every completion. Load
// returns after all locations complete, with the joined errors.
func (l *Loader) Load(ctx context.Context, locations []string, sink Sink) error {
	errs := make([]error, len(locations))
	var wg sync.WaitGroup
	for i, loc := range locations {
		wg.Add(1)
		go func(i int, loc string) {
			defer wg.Done()
			records, err := l.Fetch(ctx, loc)
			if err != nil {
				l.log.Error().Err(err).Str("dataset", loc).Msg("dataset load failed")
				l.metrics.DatasetsLoaded.WithLabelValues("failed").Inc()
				errs[i] = fmt.Errorf("%s: %w", loc, err)
				records = nil
			} else {
				l.metrics.DatasetsLoaded.WithLabelValues("ok").Inc()
			}
			if err := sink.Ingest(records); err != nil {
				errs[i] = errors.Join(errs[i], fmt.Errorf("%s: ingest: %w", loc, err))
			}
		}(i, loc)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Fetch reads and decodes a single location.
func (l *Loader) Fetch(ctx context.Context, location string) ([]pointstore.Record, error) {
	start := time.Now()
	rc, err := utils.GetCachedReader(ctx, l.client, location, l.cache, l.log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rc.Close(); err != nil {
			l.log.Warn().Err(err).Str("dataset", location).Msg("closing dataset")
		}
	}()

	decoded, err := Decode(rc)
	if err != nil {
		return nil, err
	}
	if decoded.Rejected > 0 {
		l.metrics.RecordsRejected.Add(float64(decoded.Rejected))
		l.log.Warn().Str("dataset", location).Int("rejected", decoded.Rejected).Msg("dropped malformed records")
	}
	l.log.Info().
		Str("dataset", location).
		Int("records", len(decoded.Records)).
		Dur("took", time.Since(start)).
		Msg("dataset loaded")
	return decoded.Records, nil
}

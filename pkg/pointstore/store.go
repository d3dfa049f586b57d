// Package pointstore accumulates geocoded records from several datasets and
// tracks the per-point highlight colors driven by prefix search.
package pointstore

import (
	"errors"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix/v2"
	"github.com/rs/zerolog"

	"github.com/sudorandom/latlng-cloud/pkg/metrics"
	"github.com/sudorandom/latlng-cloud/pkg/utils"
)

// ErrSealed is returned by Ingest once every expected dataset has arrived.
var ErrSealed = errors.New("pointstore: all datasets already received")

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store owns the merged record sequence and its color buffer. It is safe for
// concurrent use; Ingest is expected to be called from independent loader
// goroutines.
type Store struct {
	mu sync.Mutex

	expected int
	received int
	state    State

	records     []Record
	colors      []float32
	highlighted int

	byDisplay *iradix.Tree[[]int]
	bySearch  *iradix.Tree[int]

	ready   chan struct{}
	onReady []func(count int)

	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewStore creates a store that finalizes after expected calls to Ingest.
// A store expecting no datasets is ready immediately.
func NewStore(expected int, opts ...Option) *Store {
	if expected < 0 {
		expected = 0
	}
	s := &Store{
		expected:  expected,
		byDisplay: iradix.New[[]int](),
		bySearch:  iradix.New[int](),
		ready:     make(chan struct{}),
		log:       zerolog.Nop(),
		metrics:   metrics.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if expected == 0 {
		s.mu.Lock()
		s.finalizeLocked()
		s.mu.Unlock()
	}
	return s
}

// Ingest appends one dataset's records. The call that brings the completion
// count to exactly the expected number finalizes the store.
func (s *Store) Ingest(records []Record) error {
	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		return ErrSealed
	}
	s.state = StateLoading
	s.records = append(s.records, records...)
	s.received++
	s.log.Debug().Int("records", len(records)).Int("received", s.received).Int("expected", s.expected).Msg("dataset ingested")

	var hooks []func(int)
	var count int
	if s.received == s.expected {
		s.finalizeLocked()
		hooks = append(hooks, s.onReady...)
		count = len(s.records)
	}
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(count)
	}
	return nil
}

// finalizeLocked drops sentinel records, builds the search indexes and
// flips the store to ready. Filtering copies into a fresh slice; removing by
// index while walking forward would skip the element after each removal.
func (s *Store) finalizeLocked() {
	kept := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if r.IsSentinel() {
			continue
		}
		kept = append(kept, r)
	}
	dropped := len(s.records) - len(kept)
	s.records = kept

	s.colors = utils.NewTripleBuffer(len(kept))
	utils.FillTriples(s.colors, BaseColor[0], BaseColor[1], BaseColor[2])

	display := iradix.New[[]int]().Txn()
	search := iradix.New[int]().Txn()
	for i, r := range kept {
		key := []byte(r.DisplayID)
		idx, _ := display.Get(key)
		display.Insert(key, append(idx, i))
		// search ids are unique by contract; first in load order wins
		if _, ok := search.Get([]byte(r.SearchID)); !ok {
			search.Insert([]byte(r.SearchID), i)
		}
	}
	s.byDisplay = display.Commit()
	s.bySearch = search.Commit()

	s.state = StateReady
	close(s.ready)
	s.metrics.PointsReady.Set(float64(len(kept)))
	s.log.Info().Int("points", len(kept)).Int("sentinels", dropped).Int("datasets", s.received).Msg("point store ready")
}

// OnReady registers fn to run once the store is finalized. If it already is,
// fn runs immediately.
func (s *Store) OnReady(fn func(count int)) {
	s.mu.Lock()
	if s.state == StateReady {
		n := len(s.records)
		s.mu.Unlock()
		fn(n)
		return
	}
	s.onReady = append(s.onReady, fn)
	s.mu.Unlock()
}

// Ready is closed when the store is finalized.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

func (s *Store) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the received and expected dataset counts.
func (s *Store) Progress() (received, expected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.expected
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) Record(i int) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[i]
}

// Coordinates calls fn for every record in store order.
func (s *Store) Coordinates(fn func(i int, lat, lng float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		fn(i, r.Lat, r.Lng)
	}
}

// Colors returns a copy of the color buffer.
func (s *Store) Colors() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return utils.CloneBuffer(s.colors)
}

// Highlighted is the number of records highlighted by the last search.
func (s *Store) Highlighted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlighted
}

// Search recolors every record: highlight when its display id starts with
// query, base otherwise. The place of the record whose search id equals
// query is returned. An empty query, or a store that is not ready yet, is a
// no-op.
func (s *Store) Search(query string) (Place, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if query == "" || s.state != StateReady {
		s.metrics.Searches.WithLabelValues("ignored").Inc()
		return Place{}, false
	}

	utils.FillTriples(s.colors, BaseColor[0], BaseColor[1], BaseColor[2])
	n := 0
	s.byDisplay.Root().WalkPrefix([]byte(query), func(_ []byte, idx []int) bool {
		for _, i := range idx {
			utils.PutTriple(s.colors, i, HighlightColor[0], HighlightColor[1], HighlightColor[2])
		}
		n += len(idx)
		return false
	})
	s.highlighted = n

	i, ok := s.bySearch.Get([]byte(query))
	if !ok {
		s.metrics.Searches.WithLabelValues("miss").Inc()
		return Place{}, false
	}
	s.metrics.Searches.WithLabelValues("hit").Inc()
	return s.records[i].Place, true
}

// ClearHighlight resets every record to the base color.
func (s *Store) ClearHighlight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return
	}
	utils.FillTriples(s.colors, BaseColor[0], BaseColor[1], BaseColor[2])
	s.highlighted = 0
}

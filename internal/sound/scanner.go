package sound

import (
	"context"
	"time"

	"github.com/MrWong99/pascal/internal/observe"
	"golang.org/x/sync/singleflight"
)

// Scanner rescans one directory on every call to [Scanner.Scan]. Concurrent
// callers share a single in-flight directory read.
type Scanner struct {
	dir     string
	opts    []Option
	metrics *observe.Metrics
	group   singleflight.Group
}

// NewScanner creates a [Scanner] for dir.
func NewScanner(dir string, opts ...Option) *Scanner {
	return &Scanner{dir: dir, opts: opts}
}

// WithMetrics records scan latency on m.
func (s *Scanner) WithMetrics(m *observe.Metrics) *Scanner {
	s.metrics = m
	return s
}

// Dir returns the scanned directory.
func (s *Scanner) Dir() string { return s.dir }

// Scan returns a fresh catalog snapshot.
func (s *Scanner) Scan(ctx context.Context) (*Catalog, error) {
	ch := s.group.DoChan(s.dir, func() (any, error) {
		start := time.Now()
		cat, err := Scan(s.dir, s.opts...)
		if s.metrics != nil {
			s.metrics.CatalogScanDuration.Record(ctx, time.Since(start).Seconds())
		}
		return cat, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Catalog), nil
	}
}

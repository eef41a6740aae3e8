package resolver

import "time"

// Options configures the resolution engine.
//
// Defaults:
// - WorkerLimit: 8 concurrent fetches
// - CacheTTL:    5m (the wall-clock bucket of the execution cache key)
//
// WorkerLimit is an engine-wide bound, not a per-rule setting.
type Options struct {
	WorkerLimit int
	CacheTTL    time.Duration

	now func() time.Time
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		WorkerLimit: 8,
		CacheTTL:    5 * time.Minute,
		now:         time.Now,
	}
}

// WithWorkerLimit bounds the number of concurrent data-service fetches.
func WithWorkerLimit(n int) Option { return func(o *Options) { o.WorkerLimit = n } }

// WithCacheTTL sets the lifetime of cached field values and the width of
// the time bucket in derived cache keys.
func WithCacheTTL(d time.Duration) Option { return func(o *Options) { o.CacheTTL = d } }

// withClock overrides the cache clock in tests.
func withClock(now func() time.Time) Option { return func(o *Options) { o.now = now } }

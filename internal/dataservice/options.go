package dataservice

import (
	"net/http"
	"time"
)

// Options configures the client.
//
// Defaults:
// - HTTPClient:      http.DefaultClient
// - InitialBackoff:  1s
// - MaxBackoff:      30s
//
// Retry counts and per-attempt timeouts come from each ServiceConfig, not
// from the client; the client is shared across all data services.
type Options struct {
	HTTPClient     *http.Client
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		HTTPClient:     http.DefaultClient,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.HTTPClient = c } }

// WithInitialBackoff sets the first retry delay.
func WithInitialBackoff(d time.Duration) Option { return func(o *Options) { o.InitialBackoff = d } }

// WithMaxBackoff caps the retry delay.
func WithMaxBackoff(d time.Duration) Option { return func(o *Options) { o.MaxBackoff = d } }

// Package host implements the host-side CFU protocol engine: the image
// feeder, the offer/content driving loop, the response correlator, and
// version enumeration (spec §4.6-4.7, H1-H4).
package host

import "time"

// BusyRetry bounds how the engine retries an offer that came back Busy
// (spec §4.6: "send_offer on Busy retries with bounded backoff;
// configurable count").
type BusyRetry struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultBusyRetry matches the spec's informal guidance of a handful of
// retries with a short, fixed backoff.
var DefaultBusyRetry = BusyRetry{MaxAttempts: 5, Backoff: 200 * time.Millisecond}

// Config is the host engine's configuration surface (spec §6 "Host
// configuration surface").
type Config struct {
	SupportResumeOnConnect         bool
	SupportProtocolSkipOptimization bool
	PendedReads                    uint32

	BusyRetry BusyRetry

	// OfferTimeout/ContentTimeout bound how long the engine waits for a
	// matching response before declaring a transport fault (spec §4.7,
	// §5 "per-request timeouts").
	OfferTimeout   time.Duration
	ContentTimeout time.Duration
}

// Option configures a Config via functional options, matching the
// teacher's option style for device construction.
type Option func(*Config)

// WithResumeOnConnect enables resume-on-connect behavior.
func WithResumeOnConnect(enabled bool) Option {
	return func(c *Config) { c.SupportResumeOnConnect = enabled }
}

// WithSkipOptimization enables skip-optimization behavior.
func WithSkipOptimization(enabled bool) Option {
	return func(c *Config) { c.SupportProtocolSkipOptimization = enabled }
}

// WithBusyRetry overrides the default busy-retry policy.
func WithBusyRetry(r BusyRetry) Option {
	return func(c *Config) { c.BusyRetry = r }
}

// WithOfferTimeout overrides the default offer response timeout.
func WithOfferTimeout(d time.Duration) Option {
	return func(c *Config) { c.OfferTimeout = d }
}

// WithContentTimeout overrides the default content response timeout.
func WithContentTimeout(d time.Duration) Option {
	return func(c *Config) { c.ContentTimeout = d }
}

// NewConfig builds a Config with spec defaults, then applies opts.
func NewConfig(opts ...Option) Config {
	c := Config{
		PendedReads:    2,
		BusyRetry:      DefaultBusyRetry,
		OfferTimeout:   2 * time.Second,
		ContentTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

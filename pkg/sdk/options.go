package surveysearch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type sourceConfig struct {
	url        string
	searchable []string
	baseline   string
}

type clientConfig struct {
	sources map[Dataset]*sourceConfig

	addrs       []string
	password    string
	snapshotTTL time.Duration

	httpClient *http.Client
	ratePerSec float64
	burst      int

	searchAll  bool
	thresholds map[Mode]float64
	sink       RenderSink

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

func (c *clientConfig) source(ds Dataset) *sourceConfig {
	if c.sources == nil {
		c.sources = make(map[Dataset]*sourceConfig)
	}
	s, ok := c.sources[ds]
	if !ok {
		s = &sourceConfig{}
		c.sources[ds] = s
	}
	return s
}

// WithSource sets the layer URL of a dataset, e.g. .../MapServer/0.
// All three datasets are required.
func WithSource(ds Dataset, url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.source(ds).url = url
	})
}

// WithSearchableFields restricts fuzzy matching on ds to the given fields.
func WithSearchableFields(ds Dataset, fields ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.source(ds).searchable = fields
	})
}

// WithBaseline replaces the baseline filter expression of ds.
func WithBaseline(ds Dataset, where string) Option {
	return optionFunc(func(c *clientConfig) {
		c.source(ds).baseline = where
	})
}

// WithRedis persists attribute snapshots in Redis so that a restarted
// client can search before the first prefetch completes.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithSnapshotTTL expires persisted snapshots. Default: no expiry.
func WithSnapshotTTL(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.snapshotTTL = ttl
	})
}

// WithHTTPClient sets the HTTP client used for Feature Source requests.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithRateLimit caps Feature Source requests per dataset.
func WithRateLimit(perSec float64, burst int) Option {
	return optionFunc(func(c *clientConfig) {
		c.ratePerSec = perSec
		c.burst = burst
	})
}

// WithSearchAllDatasets fuzzy-matches every dataset instead of only the
// mode's primary one.
func WithSearchAllDatasets() Option {
	return optionFunc(func(c *clientConfig) {
		c.searchAll = true
	})
}

// WithThreshold sets the minimum match score of a mode.
func WithThreshold(m Mode, threshold float64) Option {
	return optionFunc(func(c *clientConfig) {
		if c.thresholds == nil {
			c.thresholds = make(map[Mode]float64)
		}
		c.thresholds[m] = threshold
	})
}

// WithRenderSink forwards every clear and draw to s.
func WithRenderSink(s RenderSink) Option {
	return optionFunc(func(c *clientConfig) {
		c.sink = s
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

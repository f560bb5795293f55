package civicscreen

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultImageThreshold is the maximum Hamming distance between two pHash
	// values at which report photos are considered the same picture.
	DefaultImageThreshold = 5

	// DefaultLocationThresholdMeters is the radius within which two reports with
	// the same description and category are considered the same incident.
	DefaultLocationThresholdMeters = 20.0

	// DefaultFetchTimeout bounds a single image download.
	DefaultFetchTimeout = 5 * time.Second

	defaultUserAgent = "Mozilla/5.0 (compatible; go-civicscreen/1.0)"
)

// Cache abstracts key-value caching (Redis, sync.Map, etc.)
type Cache interface {
	Key(prefix, value string) string
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
}

// Sink receives one record per decided report. Implementations must be
// append-only and safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// Config holds all dependencies injected by the consumer.
type Config struct {
	HTTPClient    *http.Client  // optional: image download client (nil = http.DefaultClient)
	UserAgent     string        // default: "Mozilla/5.0 (compatible; go-civicscreen/1.0)"
	FetchTimeout  time.Duration // default: DefaultFetchTimeout (5s)
	FetchLimiter  *rate.Limiter // optional: throttles image downloads
	MaxImageBytes int64         // default: 10MB

	// Fingerprinter overrides how report photos are fetched and hashed.
	// nil = the Config itself (HTTP download + pHash).
	Fingerprinter Fingerprinter

	TextClassifier  TextClassifier  // nil = KeywordClassifier over DefaultCategoryKeywords
	ImageClassifier ImageClassifier // nil = UnavailableImage
	Priorities      *PriorityTable  // nil = DefaultPriorityTable()
	Sink            Sink            // optional: dataset log (nil = not persisted)
	Logger          *slog.Logger    // nil = slog.Default()

	// ImageThreshold is the pHash Hamming distance limit. Zero means
	// DefaultImageThreshold; pass a negative value to only match identical hashes.
	ImageThreshold int

	// LocationThresholdMeters is the geo duplicate radius. Zero means
	// DefaultLocationThresholdMeters.
	LocationThresholdMeters float64

	// Optional callbacks for metrics/logging.
	OnSuppressed func(stage string, err error)          // fail-open errors from duplicate checks and classification
	OnVerdict    func(Verdict)                          // every decided report
	OnStage      func(stage string, took time.Duration) // per-stage timings
	OnSinkError  func(err error)                        // dataset append failures
}

// defaults fills zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = defaultMaxImageBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) imageThreshold() int {
	switch {
	case c.ImageThreshold == 0:
		return DefaultImageThreshold
	case c.ImageThreshold < 0:
		return 0
	default:
		return c.ImageThreshold
	}
}

func (c *Config) locationThreshold() float64 {
	if c.LocationThresholdMeters <= 0 {
		return DefaultLocationThresholdMeters
	}
	return c.LocationThresholdMeters
}

package civicscreen

import (
	"context"
	"log/slog"
	"time"
)

const probeTimeout = 5 * time.Second

// ModelOpts configures best-effort classifier loading at startup.
type ModelOpts struct {
	URL        string   // model server base URL ("" = no remote models)
	RPS        float64  // request rate limit for the model server (<= 0 = unlimited)
	Categories []string // candidate labels (nil = keyword table categories)
	Cache      Cache    // optional: memoizes image classifications
	Logger     *slog.Logger
}

// LoadClassifiers resolves the classifiers once at startup. A reachable model
// server backs both modalities; otherwise text falls back to the keyword
// classifier and image classification is unavailable. It never fails.
func LoadClassifiers(ctx context.Context, opts ModelOpts) (TextClassifier, ImageClassifier) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	keyword := &KeywordClassifier{}
	categories := opts.Categories
	if categories == nil {
		categories = keyword.Categories()
	}

	if opts.URL == "" {
		logger.Info("civicscreen: no model server configured, using keyword text classifier")
		return keyword, UnavailableImage{}
	}

	remote := NewRemoteClassifier(opts.URL, categories, opts.RPS)

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := remote.Probe(probeCtx); err != nil {
		logger.Warn("civicscreen: model server unavailable, using keyword text classifier",
			"url", opts.URL, "error", err.Error())
		return keyword, UnavailableImage{}
	}

	logger.Info("civicscreen: model server loaded", "url", opts.URL)
	var image ImageClassifier = remote
	if opts.Cache != nil {
		image = &CachedImageClassifier{Next: remote, Cache: opts.Cache}
	}
	return remote, image
}

package civicscreen

import (
	"context"
	"errors"
	"strings"
)

// Classification is a model's category guess for one modality.
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// TextClassifier labels a report description.
type TextClassifier interface {
	ClassifyText(ctx context.Context, description string) (Classification, error)
}

// ImageClassifier labels an encoded report photo.
type ImageClassifier interface {
	ClassifyImage(ctx context.Context, data []byte, mimeType string) (Classification, error)
}

// UnavailableText is the text classifier used when no model could be loaded.
type UnavailableText struct{}

func (UnavailableText) ClassifyText(context.Context, string) (Classification, error) {
	return Classification{}, ErrClassificationUnavailable
}

// UnavailableImage is the image classifier used when no model could be loaded.
type UnavailableImage struct{}

func (UnavailableImage) ClassifyImage(context.Context, []byte, string) (Classification, error) {
	return Classification{}, ErrClassificationUnavailable
}

// ImageAvailable reports whether c can produce image categories at all.
func ImageAvailable(c ImageClassifier) bool {
	if c == nil {
		return false
	}
	_, unavailable := c.(UnavailableImage)
	return !unavailable
}

// TextAvailable reports whether c can produce text categories at all.
func TextAvailable(c TextClassifier) bool {
	if c == nil {
		return false
	}
	_, unavailable := c.(UnavailableText)
	return !unavailable
}

// CachedImageClassifier memoizes image classifications by perceptual hash,
// so resubmitted copies of a photo skip the model.
type CachedImageClassifier struct {
	Next  ImageClassifier
	Cache Cache
}

// ClassifyImage hashes data and consults the cache before calling Next.
// Errors are never cached.
func (c *CachedImageClassifier) ClassifyImage(ctx context.Context, data []byte, mimeType string) (Classification, error) {
	if c.Cache == nil {
		return c.Next.ClassifyImage(ctx, data, mimeType)
	}

	fp, err := FingerprintBytes(data)
	if err != nil {
		return c.Next.ClassifyImage(ctx, data, mimeType)
	}

	cacheKey := c.Cache.Key("image_cls", fp.String())
	var cached Classification
	if c.Cache.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	result, err := c.Next.ClassifyImage(ctx, data, mimeType)
	if err != nil {
		return Classification{}, err
	}
	c.Cache.Set(ctx, cacheKey, result)
	return result, nil
}

// NormalizeLabel maps a free-form model label onto one of known, matching
// case- and whitespace-insensitively, then by prefix. Unknown labels are
// returned trimmed.
func NormalizeLabel(label string, known []string) string {
	word := strings.Join(strings.Fields(label), " ")
	if word == "" {
		return ""
	}
	lower := strings.ToLower(word)
	for _, k := range known {
		if strings.ToLower(k) == lower {
			return k
		}
	}
	for _, k := range known {
		if strings.HasPrefix(lower, strings.ToLower(k)) {
			return k
		}
	}
	return word
}

// isUnavailable reports whether err means the modality has no model.
func isUnavailable(err error) bool {
	return errors.Is(err, ErrClassificationUnavailable)
}

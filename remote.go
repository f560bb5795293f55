package civicscreen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const remoteTimeout = 20 * time.Second

// RemoteClassifier calls a model server that exposes
// POST /classify/text, POST /classify/image and GET /health.
// It implements both TextClassifier and ImageClassifier.
type RemoteClassifier struct {
	baseURL    string
	client     *http.Client
	limiter    *rate.Limiter
	categories []string
}

// remoteRequest is the body sent to the model server.
type remoteRequest struct {
	Text       string   `json:"text,omitempty"`
	Image      string   `json:"image,omitempty"` // data: URI
	Categories []string `json:"categories,omitempty"`
}

// remoteResponse is the model server's answer.
type remoteResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// NewRemoteClassifier creates a client for the model server at baseURL.
// categories are sent as candidate labels and used to normalize answers;
// rps <= 0 disables throttling.
func NewRemoteClassifier(baseURL string, categories []string, rps float64) *RemoteClassifier {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &RemoteClassifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: remoteTimeout},
		limiter:    rate.NewLimiter(limit, 1),
		categories: categories,
	}
}

// Probe checks that the model server answers GET /health with 2xx.
func (r *RemoteClassifier) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health status %d", ErrClassificationUnavailable, resp.StatusCode)
	}
	return nil
}

// ClassifyText sends description to /classify/text.
func (r *RemoteClassifier) ClassifyText(ctx context.Context, description string) (Classification, error) {
	return r.call(ctx, "/classify/text", remoteRequest{Text: description, Categories: r.categories})
}

// ClassifyImage sends the photo as a data URI to /classify/image.
func (r *RemoteClassifier) ClassifyImage(ctx context.Context, data []byte, mimeType string) (Classification, error) {
	return r.call(ctx, "/classify/image", remoteRequest{Image: EncodeDataURL(data, mimeType), Categories: r.categories})
}

func (r *RemoteClassifier) call(ctx context.Context, path string, in remoteRequest) (Classification, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Classification{}, fmt.Errorf("rate limit: %w", err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return Classification{}, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Classification{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Classification{}, fmt.Errorf("classifier call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Classification{}, fmt.Errorf("read classifier response: %w", err)
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return Classification{}, fmt.Errorf("%w: model not loaded", ErrClassificationUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Classification{}, fmt.Errorf("classifier non-2xx: %s, body: %s", resp.Status, string(data))
	}

	var out remoteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Classification{}, fmt.Errorf("decode classifier response: %w", err)
	}

	label := NormalizeLabel(out.Label, r.categories)
	if label == "" {
		return Classification{}, fmt.Errorf("classifier returned empty label")
	}
	return Classification{Category: label, Confidence: out.Confidence}, nil
}

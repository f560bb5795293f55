package civicscreen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// blockImage draws an 8x8 grid of random gray blocks scaled to 64x64.
// Different seeds give perceptually unrelated pictures.
func blockImage(seed int64) image.Image {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for by := 0; by < 8; by++ {
		for bx := 0; bx < 8; bx++ {
			v := uint8(rng.Intn(256))
			c := color.NRGBA{R: v, G: v, B: v, A: 0xff}
			for y := by * 8; y < by*8+8; y++ {
				for x := bx * 8; x < bx*8+8; x++ {
					img.SetNRGBA(x, y, c)
				}
			}
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// newImageServer serves body with content type image/png on every path.
// The server is closed automatically via t.Cleanup.
func newImageServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeFingerprinter returns canned fingerprints or errors per URL.
type fakeFingerprinter struct {
	mu    sync.Mutex
	bits  map[string]uint64
	errs  map[string]error
	calls int
}

func (f *fakeFingerprinter) Fingerprint(_ context.Context, url string) (*ImageSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	b, ok := f.bits[url]
	if !ok {
		return nil, &FetchError{URL: url, StatusCode: http.StatusNotFound}
	}
	return &ImageSample{
		URL:         url,
		Data:        []byte(fmt.Sprintf("image:%s", url)),
		MIMEType:    "image/jpeg",
		Fingerprint: NewFingerprint(b),
	}, nil
}

// mockTextClassifier is a test double for the TextClassifier interface.
type mockTextClassifier struct {
	result Classification
	err    error
	calls  int
}

func (m *mockTextClassifier) ClassifyText(context.Context, string) (Classification, error) {
	m.calls++
	return m.result, m.err
}

// mockImageClassifier is a test double for the ImageClassifier interface.
type mockImageClassifier struct {
	mu     sync.Mutex
	result Classification
	err    error
	calls  int
}

func (m *mockImageClassifier) ClassifyImage(context.Context, []byte, string) (Classification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result, m.err
}

// mockCache is a test double for the Cache interface.
type mockCache struct {
	store map[string]Classification
}

func (m *mockCache) Key(prefix, value string) string { return prefix + ":" + value }
func (m *mockCache) Get(_ context.Context, key string, dest any) bool {
	v, ok := m.store[key]
	if !ok {
		return false
	}
	if p, ok := dest.(*Classification); ok {
		*p = v
	}
	return true
}
func (m *mockCache) Set(_ context.Context, key string, value any) {
	if c, ok := value.(Classification); ok {
		m.store[key] = c
	}
}

// memorySink collects records; fail makes Append return an error.
type memorySink struct {
	mu      sync.Mutex
	records []Record
	fail    error
}

func (s *memorySink) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, rec)
	return nil
}

// metersToDegrees converts an east-west distance on the equator to degrees of longitude.
func metersToDegrees(m float64) float64 {
	return m / EarthRadiusMeters * 180 / math.Pi
}

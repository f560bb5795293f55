package civicscreen

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/golang/geo/s2"
)

// anonUser is the text-key user component for reports without user_id.
const anonUser = "anon"

// Outcome is the result of a single duplicate check.
type Outcome int

const (
	NotDuplicate Outcome = iota
	Duplicate
)

func (o Outcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "not_duplicate"
}

// Check is the result of a duplicate check. Err carries an error that was
// suppressed by the fail-open policy; Outcome is always NotDuplicate then.
type Check struct {
	Outcome Outcome
	Err     error
}

// IsDuplicate reports whether the check matched an earlier report.
func (c Check) IsDuplicate() bool { return c.Outcome == Duplicate }

// ImageCheck is a Check that also carries the photo it fetched, so later
// stages can classify it without downloading it again.
type ImageCheck struct {
	Check
	Sample *ImageSample // nil when the fetch or decode failed
}

// TextKey identifies a report for exact duplicate detection.
type TextKey struct {
	UserID      string
	Description string
	Category    string
}

// NewTextKey builds the normalized key; a nil or blank userID becomes "anon".
func NewTextKey(userID *string, description, category string) TextKey {
	uid := anonUser
	if userID != nil {
		if u := normalize(*userID); u != "" {
			uid = u
		}
	}
	return TextKey{
		UserID:      uid,
		Description: normalize(description),
		Category:    normalize(category),
	}
}

// LocationRecord is a geo-tagged report kept for proximity checks.
type LocationRecord struct {
	Lat, Lon    float64
	Description string
	Category    string
}

type locationKey struct {
	description string
	category    string
}

// RegistryStats reports the size of each duplicate registry.
type RegistryStats struct {
	TextKeys     int
	Fingerprints int
	Locations    int
}

// DuplicateStore holds the insert-only duplicate registries for one process.
// Each registry has its own lock; every check-then-insert is atomic with
// respect to concurrent reports. It is safe for concurrent use.
type DuplicateStore struct {
	fingerprinter Fingerprinter

	textMu sync.Mutex
	texts  map[TextKey]struct{}

	imageMu sync.Mutex
	images  []Fingerprint

	locMu     sync.Mutex
	locations map[locationKey][]s2.LatLng
	locCount  int
}

// NewDuplicateStore returns an empty store that hashes photos with fp.
func NewDuplicateStore(fp Fingerprinter) *DuplicateStore {
	return &DuplicateStore{
		fingerprinter: fp,
		texts:         make(map[TextKey]struct{}),
		locations:     make(map[locationKey][]s2.LatLng),
	}
}

// CheckText reports whether the normalized (user, description, category)
// key was seen before, recording it otherwise.
func (s *DuplicateStore) CheckText(userID *string, description, category string) Check {
	key := NewTextKey(userID, description, category)

	s.textMu.Lock()
	defer s.textMu.Unlock()

	if _, ok := s.texts[key]; ok {
		return Check{Outcome: Duplicate}
	}
	s.texts[key] = struct{}{}
	return Check{Outcome: NotDuplicate}
}

// CheckImage fetches and hashes imageURL, then compares it against every
// stored fingerprint. Fetch or decode failures degrade to NotDuplicate and
// store nothing.
func (s *DuplicateStore) CheckImage(ctx context.Context, imageURL string, threshold int) ImageCheck {
	if s.fingerprinter == nil {
		return ImageCheck{Check: Check{Err: fmt.Errorf("%w: no fingerprinter", ErrFetch)}}
	}

	sample, err := s.fingerprinter.Fingerprint(ctx, imageURL)
	if err != nil {
		return ImageCheck{Check: Check{Err: err}}
	}
	if sample == nil {
		return ImageCheck{Check: Check{Err: &DecodeError{URL: imageURL, Err: fmt.Errorf("empty sample")}}}
	}

	if s.CheckImageFingerprint(sample.Fingerprint, threshold) {
		return ImageCheck{Check: Check{Outcome: Duplicate}, Sample: sample}
	}
	return ImageCheck{Check: Check{Outcome: NotDuplicate}, Sample: sample}
}

// CheckImageFingerprint returns true if fp is within threshold bits of a
// stored fingerprint. Otherwise fp is stored and false is returned.
func (s *DuplicateStore) CheckImageFingerprint(fp Fingerprint, threshold int) bool {
	s.imageMu.Lock()
	defer s.imageMu.Unlock()

	for _, h := range s.images {
		if d := HammingDistance(fp, h); d >= 0 && d <= threshold {
			return true
		}
	}

	s.images = append(s.images, fp)
	return false
}

// CheckLocation reports whether a report with the same normalized description
// and category was recorded within thresholdMeters. Otherwise the location is
// recorded. Non-finite coordinates degrade to NotDuplicate and store nothing.
func (s *DuplicateStore) CheckLocation(lat, lon float64, description, category string, thresholdMeters float64) Check {
	if !finite(lat) || !finite(lon) {
		return Check{Err: fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinates, lat, lon)}
	}

	key := locationKey{description: normalize(description), category: normalize(category)}
	p := s2.LatLngFromDegrees(lat, lon)

	s.locMu.Lock()
	defer s.locMu.Unlock()

	// Records are partitioned by text, so only same-text reports are scanned.
	for _, q := range s.locations[key] {
		if p.Distance(q).Radians()*EarthRadiusMeters <= thresholdMeters {
			return Check{Outcome: Duplicate}
		}
	}

	s.locations[key] = append(s.locations[key], p)
	s.locCount++
	return Check{Outcome: NotDuplicate}
}

// Locations returns a snapshot of the recorded locations.
func (s *DuplicateStore) Locations() []LocationRecord {
	s.locMu.Lock()
	defer s.locMu.Unlock()

	out := make([]LocationRecord, 0, s.locCount)
	for k, pts := range s.locations {
		for _, p := range pts {
			out = append(out, LocationRecord{
				Lat:         p.Lat.Degrees(),
				Lon:         p.Lng.Degrees(),
				Description: k.description,
				Category:    k.category,
			})
		}
	}
	return out
}

// Stats returns the current registry sizes.
func (s *DuplicateStore) Stats() RegistryStats {
	var st RegistryStats

	s.textMu.Lock()
	st.TextKeys = len(s.texts)
	s.textMu.Unlock()

	s.imageMu.Lock()
	st.Fingerprints = len(s.images)
	s.imageMu.Unlock()

	s.locMu.Lock()
	st.Locations = s.locCount
	s.locMu.Unlock()

	return st
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

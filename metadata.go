package civicscreen

import (
	"bytes"
	"time"

	"github.com/bep/imagemeta"
)

// ImageMetadata holds the EXIF provenance of a report photo. It is stored in
// the dataset alongside the report and never influences the verdict.
type ImageMetadata struct {
	CameraMake  string     `json:"camera_make,omitempty"`
	CameraModel string     `json:"camera_model,omitempty"`
	TakenAt     *time.Time `json:"taken_at,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
}

// ExtractImageMetadata parses EXIF from raw image bytes.
// Returns nil if the data is empty, cannot be parsed or holds none of the wanted fields.
func ExtractImageMetadata(data []byte) *ImageMetadata {
	if len(data) == 0 {
		return nil
	}

	format, ok := sniffImageFormat(data)
	if !ok {
		return nil
	}

	var tags imagemeta.Tags
	_, err := imagemeta.Decode(imagemeta.Options{
		R:           bytes.NewReader(data),
		ImageFormat: format,
		Sources:     imagemeta.EXIF,
		HandleTag: func(ti imagemeta.TagInfo) error {
			tags.Add(ti)
			return nil
		},
	})
	if err != nil {
		return nil
	}

	meta := &ImageMetadata{}
	found := false

	exif := tags.EXIF()
	if s := tagValueString(exif["Make"].Value); s != "" {
		meta.CameraMake = s
		found = true
	}
	if s := tagValueString(exif["Model"].Value); s != "" {
		meta.CameraModel = s
		found = true
	}
	if t, err := tags.GetDateTime(); err == nil && !t.IsZero() {
		meta.TakenAt = &t
		found = true
	}
	if lat, lon, err := tags.GetLatLong(); err == nil && (lat != 0 || lon != 0) {
		meta.Latitude = &lat
		meta.Longitude = &lon
		found = true
	}

	if !found {
		return nil
	}
	return meta
}

// sniffImageFormat maps magic bytes to the formats imagemeta can read.
func sniffImageFormat(data []byte) (imagemeta.ImageFormat, bool) {
	switch {
	case bytes.HasPrefix(data, []byte{0xff, 0xd8}):
		return imagemeta.JPEG, true
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return imagemeta.PNG, true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return imagemeta.WebP, true
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return imagemeta.TIFF, true
	default:
		return 0, false
	}
}

// tagValueString extracts a string from a tag value.
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}

package civicscreen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Fingerprint is a 64-bit perceptual hash of a report photo.
type Fingerprint struct {
	hash *goimagehash.ImageHash
}

// NewFingerprint wraps raw pHash bits.
func NewFingerprint(bits uint64) Fingerprint {
	return Fingerprint{hash: goimagehash.NewImageHash(bits, goimagehash.PHash)}
}

// Bits returns the raw hash value.
func (f Fingerprint) Bits() uint64 {
	if f.hash == nil {
		return 0
	}
	return f.hash.GetHash()
}

// String renders the hash as "p:<hex>", the goimagehash text form.
func (f Fingerprint) String() string {
	if f.hash == nil {
		return ""
	}
	return f.hash.ToString()
}

// HammingDistance counts the differing bits of two fingerprints.
func HammingDistance(a, b Fingerprint) int {
	if a.hash == nil || b.hash == nil {
		return -1
	}
	d, err := a.hash.Distance(b.hash)
	if err != nil {
		return -1
	}
	return d
}

// ImageSample is a fetched, decoded and hashed report photo.
type ImageSample struct {
	URL         string
	Data        []byte
	MIMEType    string
	Fingerprint Fingerprint
	Metadata    *ImageMetadata // nil when the photo carries no EXIF
}

// Fingerprinter fetches a photo and computes its perceptual hash.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, imageURL string) (*ImageSample, error)
}

// Fingerprint downloads imageURL and hashes it. Fails with *FetchError or *DecodeError.
func (cfg *Config) Fingerprint(ctx context.Context, imageURL string) (*ImageSample, error) {
	res, err := cfg.Download(ctx, imageURL, DownloadOpts{})
	if err != nil {
		return nil, err
	}

	fp, err := FingerprintBytes(res.Data)
	if err != nil {
		return nil, &DecodeError{URL: imageURL, Err: err}
	}

	return &ImageSample{
		URL:         imageURL,
		Data:        res.Data,
		MIMEType:    res.MIMEType,
		Fingerprint: fp,
		Metadata:    ExtractImageMetadata(res.Data),
	}, nil
}

// FingerprintBytes decodes an encoded image and returns its pHash.
func FingerprintBytes(data []byte) (Fingerprint, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Fingerprint{}, err
	}
	return FingerprintImage(img)
}

// FingerprintImage hashes an already decoded image after dropping its alpha channel.
func FingerprintImage(img image.Image) (Fingerprint, error) {
	hash, err := goimagehash.PerceptionHash(toRGB(img))
	if err != nil {
		return Fingerprint{}, fmt.Errorf("perception hash: %w", err)
	}
	return Fingerprint{hash: hash}, nil
}

// toRGB converts img to opaque 8-bit RGB. Alpha is discarded rather than
// composited, so a transparent pixel keeps its stored color.
func toRGB(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			dst.SetNRGBA(x, y, c)
		}
	}
	return dst
}

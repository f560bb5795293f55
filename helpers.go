package civicscreen

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// EncodeDataURL creates a data: URI from bytes and MIME type.
// An empty MIME type is sniffed from the bytes.
func EncodeDataURL(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// ptr returns a pointer to a copy of v.
func ptr[T any](v T) *T {
	return &v
}

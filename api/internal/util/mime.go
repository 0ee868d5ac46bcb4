package util

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrNotImage = errors.New("payload is not an image")

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeImagePayload decodes an image sent as bare base64 or as a data: URI, which is
// what the browser's FileReader.readAsDataURL produces. A data: URI must declare an
// image/* type and base64 encoding. The declared type is returned alongside the bytes.
func DecodeImagePayload(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var declared string
	if strings.HasPrefix(strings.ToLower(s), "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("data URI without payload")
		}
		meta := strings.Split(s[len("data:"):comma], ";")
		declared = strings.ToLower(strings.TrimSpace(meta[0]))
		if !strings.HasPrefix(declared, "image/") {
			return nil, "", fmt.Errorf("%w: declared %q", ErrNotImage, declared)
		}
		if meta[len(meta)-1] != "base64" {
			return nil, "", fmt.Errorf("data URI is not base64 encoded")
		}
		s = s[comma+1:]
	}
	// line-wrapped base64 from clipboard or mail
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, "", fmt.Errorf("empty image payload")
	}

	var firstErr error
	for _, enc := range base64Encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, declared, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, "", firstErr
}

// ImageMIME names the type sent to the model. format is the decoder's name for the
// image ("png", "jpeg", "gif") and wins over any client-declared type; declared
// types are only used when they name an image.
func ImageMIME(format string, declared ...string) string {
	if f := strings.ToLower(strings.TrimSpace(format)); f != "" {
		return "image/" + f
	}
	for _, d := range declared {
		if d = strings.ToLower(strings.TrimSpace(d)); strings.HasPrefix(d, "image/") {
			return d
		}
	}
	return ""
}

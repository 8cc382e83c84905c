package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ErrDecode marks a frame payload that is not valid image data. Callers
// skip the vision path on this error rather than failing the turn.
var ErrDecode = errors.New("frame decode failed")

// Image is a decoded camera frame ready for a vision model call.
type Image struct {
	Bytes []byte
	MIME  string
}

// Decode strips an optional data-URL prefix, base64-decodes the payload,
// and validates that the bytes are a parseable image.
func Decode(payload string) (*Image, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if idx := strings.Index(payload, ";base64,"); idx >= 0 && strings.HasPrefix(payload, "data:image/") {
		payload = payload[idx+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &Image{Bytes: data, MIME: "image/" + format}, nil
}

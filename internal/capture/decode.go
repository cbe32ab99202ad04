// Package capture decodes still images sent by clients into OpenCV matrices.
package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// ErrInvalidImage is returned for payloads that do not hold a decodable image.
var ErrInvalidImage = errors.New("invalid image")

// MaxImageBytes bounds a decoded image payload.
const MaxImageBytes = 10 << 20

// DecodeDataURL decodes a "data:<mime>;base64,<payload>" string into a BGR
// image. The caller owns the returned Mat and must Close it.
func DecodeDataURL(s string) (*gocv.Mat, error) {
	data, err := ParseDataURL(s)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(data)
}

// ParseDataURL returns the base64 payload of an image data URL.
func ParseDataURL(s string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing data URL separator", ErrInvalidImage)
	}

	header = strings.ToLower(header)
	if !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: unsupported data URL header %q", ErrInvalidImage, header)
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrInvalidImage, MaxImageBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	return data, nil
}

// DecodeBytes decodes encoded image bytes (PNG, JPEG, ...) into a BGR image.
func DecodeBytes(data []byte) (*gocv.Mat, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("%w: undecodable image data", ErrInvalidImage)
	}
	return &img, nil
}

// ReadFile loads an image file from disk.
func ReadFile(path string) (*gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("%w: cannot read %s", ErrInvalidImage, path)
	}
	return &img, nil
}

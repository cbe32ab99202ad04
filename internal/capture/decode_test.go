package capture

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngDataURL(t *testing.T, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestParseDataURL(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("abc"))

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"jpeg", "data:image/jpeg;base64," + payload, false},
		{"upper case header", "DATA:IMAGE/PNG;BASE64," + payload, false},
		{"no separator", "data:image/png;base64", true},
		{"not an image", "data:text/plain;base64," + payload, true},
		{"not base64", "data:image/png," + payload, true},
		{"bad base64", "data:image/png;base64,@@@", true},
		{"empty payload", "data:image/png;base64,", true},
		{"empty string", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ParseDataURL(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidImage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []byte("abc"), data)
		})
	}
}

func TestDecodeDataURL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV decode in short mode")
	}

	img, err := DecodeDataURL(pngDataURL(t, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)
	defer img.Close()

	assert.Equal(t, 8, img.Cols())
	assert.Equal(t, 6, img.Rows())
	assert.Equal(t, 3, img.Channels())

	_, err = DecodeDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not a png")))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestReadFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV decode in short mode")
	}

	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, ErrInvalidImage)

	data, err := ParseDataURL(pngDataURL(t, color.White))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "white.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	img, err := ReadFile(path)
	require.NoError(t, err)
	defer img.Close()
	assert.False(t, img.Empty())
}

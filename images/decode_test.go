package images

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	src := createGradientImage(40, 30)

	tests := []struct {
		name   string
		data   []byte
		format ImageFormat
	}{
		{"png", encodePNG(t, src), FormatPNG},
		{"jpeg", encodeJPEG(t, src), FormatJPEG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, meta, err := Decode(tt.data)
			require.NoError(t, err)
			require.NotNil(t, img)
			assert.Equal(t, tt.format, meta.Format)
			assert.Equal(t, 40, meta.Width)
			assert.Equal(t, 30, meta.Height)
		})
	}
}

func TestDecodeRejectsNonImages(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("this is definitely not an image")},
		{"truncated png", encodePNG(t, createSolidImage(8, 8, color.White))[:20]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data)
			require.Error(t, err)

			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr), "expected *DecodeError, got %T", err)
		})
	}
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	data := pngHeader(40000, 40000)

	_, _, err := Decode(data)
	require.Error(t, err)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr), "expected *DecodeError, got %T", err)
	assert.Contains(t, err.Error(), "40000x40000")
}

func TestDecodeLimited(t *testing.T) {
	data := encodePNG(t, createGradientImage(40, 30))

	_, _, err := DecodeLimited(data, 40*30-1)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr), "expected *DecodeError, got %T", err)
	assert.Contains(t, err.Error(), "pixel limit")

	_, meta, err := DecodeLimited(data, 40*30)
	require.NoError(t, err)
	assert.Equal(t, 40, meta.Width)

	_, _, err = DecodeLimited(data, 0)
	require.NoError(t, err)
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "leaf.png")
	require.NoError(t, os.WriteFile(good, encodePNG(t, createSolidImage(5, 7, color.Black)), 0o644))
	_, meta, err := DecodeFile(good)
	require.NoError(t, err)
	assert.Equal(t, 5, meta.Width)
	assert.Equal(t, 7, meta.Height)

	bad := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(bad, []byte("plain text"), 0o644))
	_, _, err = DecodeFile(bad)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, bad, decodeErr.Source)
	assert.True(t, strings.Contains(err.Error(), "notes.txt"))

	_, _, err = DecodeFile(filepath.Join(dir, "missing.png"))
	require.Error(t, err)
	assert.False(t, errors.As(err, &decodeErr))
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJPEG, ParseFormat(".JPG"))
	assert.Equal(t, FormatJPEG, ParseFormat("jpeg"))
	assert.Equal(t, FormatTIFF, ParseFormat("tif"))
	assert.Equal(t, FormatWebP, ParseFormat("webp"))
	assert.Equal(t, FormatUnknown, ParseFormat("heic"))
}

func TestImageString(t *testing.T) {
	assert.Equal(t, "png 640x480", Image{Format: FormatPNG, Width: 640, Height: 480}.String())
}

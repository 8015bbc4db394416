package images

import (
	"bytes"
	"image"
	"os"

	"github.com/pkg/errors"

	// Extra containers accepted for uploads and dataset files.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeError reports bytes that could not be turned into a raster image.
type DecodeError struct {
	// Source names the file or upload that failed, when known.
	Source string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Source != "" {
		return "cannot decode image " + e.Source + ": " + e.Err.Error()
	}
	return "cannot decode image: " + e.Err.Error()
}

// Unwrap returns the underlying decoder error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DefaultMaxPixels caps the declared width times height of a decoded image.
const DefaultMaxPixels = 40_000_000

// Decode decodes raw image bytes into a raster plus its metadata, rejecting
// images larger than DefaultMaxPixels.
//
// Arguments:
//   - data: The encoded image.
//
// Returns:
//   - image.Image: The decoded raster.
//   - *Image: Format and original dimensions.
//   - error: A *DecodeError if the bytes are empty, too large or not a supported image.
func Decode(data []byte) (image.Image, *Image, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited is Decode with an explicit pixel cap. The header is read first
// so an oversized image is rejected before its raster is allocated. A cap of
// zero or less disables the check.
func DecodeLimited(data []byte, maxPixels int) (image.Image, *Image, error) {
	if len(data) == 0 {
		return nil, nil, &DecodeError{Err: errors.New("image data is empty")}
	}

	if maxPixels > 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			if cfg.Width <= 0 || cfg.Height <= 0 {
				return nil, nil, &DecodeError{Err: errors.Errorf("invalid image dimensions: %dx%d", cfg.Width, cfg.Height)}
			}
			if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
				return nil, nil, &DecodeError{Err: errors.Errorf("image is %dx%d, above the %d pixel limit",
					cfg.Width, cfg.Height, maxPixels)}
			}
		}
	}

	img, err := decodeRaster(data)
	if err != nil {
		return nil, nil, &DecodeError{Err: err}
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, nil, &DecodeError{Err: errors.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())}
	}
	if maxPixels > 0 && int64(bounds.Dx())*int64(bounds.Dy()) > int64(maxPixels) {
		return nil, nil, &DecodeError{Err: errors.Errorf("image is %dx%d, above the %d pixel limit",
			bounds.Dx(), bounds.Dy(), maxPixels)}
	}

	return img, &Image{
		Format: sniffFormat(data),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// DecodeFile reads and decodes an image from disk. Read failures are returned
// as-is; undecodable contents are reported as a *DecodeError naming the file.
func DecodeFile(path string) (image.Image, *Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read %s", path)
	}

	img, meta, err := Decode(data)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			decodeErr.Source = path
		}
		return nil, nil, err
	}
	return img, meta, nil
}

func sniffFormat(data []byte) ImageFormat {
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return FormatUnknown
	}
	return ParseFormat(name)
}

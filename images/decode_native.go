//go:build !gocv

package images

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
)

// decodeRaster uses the registered Go decoders and applies EXIF orientation.
func decodeRaster(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

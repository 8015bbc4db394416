//go:build gocv

package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// decodeRaster decodes through OpenCV so pixel values match cv2.imread for
// models trained on OpenCV-decoded arrays.
func decodeRaster(data []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.New("opencv could not decode image")
	}

	return mat.ToImage()
}

package images

import (
	"bytes"
	"encoding/base64"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Preview renders img as a JPEG data URL no larger than maxEdge on either side.
func Preview(img image.Image, maxEdge int) (string, error) {
	if maxEdge <= 0 {
		return "", errors.Errorf("invalid preview edge: %d", maxEdge)
	}

	thumb := imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", errors.Wrap(err, "failed to encode preview")
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Package images - Decoding and tensor preparation for leaf photographs.
package images

import "strconv"

// Image is the metadata of a decoded upload or dataset file.
type Image struct {
	Format ImageFormat `json:"format" yaml:"format"`
	// Width and Height are in pixels after EXIF orientation is applied.
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// String renders the metadata as "png 640x480".
func (i Image) String() string {
	return string(i.Format) + " " + strconv.Itoa(i.Width) + "x" + strconv.Itoa(i.Height)
}

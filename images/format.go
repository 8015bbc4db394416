package images

import "strings"

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatGIF is the GIF image format.
	FormatGIF ImageFormat = "gif"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
	// FormatTIFF is the TIFF image format.
	FormatTIFF ImageFormat = "tiff"
	// FormatUnknown is reported when the decoder does not name the container.
	FormatUnknown ImageFormat = "unknown"
)

// ParseFormat maps a decoder or file extension name onto an ImageFormat.
func ParseFormat(name string) ImageFormat {
	switch strings.TrimPrefix(strings.ToLower(name), ".") {
	case "jpeg", "jpg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "gif":
		return FormatGIF
	case "webp":
		return FormatWebP
	case "bmp":
		return FormatBMP
	case "tiff", "tif":
		return FormatTIFF
	default:
		return FormatUnknown
	}
}

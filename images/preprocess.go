package images

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Channels is the number of color channels in every model input.
const Channels = 3

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderCHW is Channel-Height-Width ordering (gorgonia convolutions).
	ChannelOrderCHW ChannelOrder = iota
	// ChannelOrderHWC is Height-Width-Channel ordering (Keras exports).
	ChannelOrderHWC
)

func (o ChannelOrder) String() string {
	if o == ChannelOrderHWC {
		return "HWC"
	}
	return "CHW"
}

// ColorMode defines the color space of the image.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (models trained on OpenCV arrays).
	ColorModeBGR
)

func (m ColorMode) String() string {
	if m == ColorModeBGR {
		return "BGR"
	}
	return "RGB"
}

// Config defines how an image becomes a model input.
type Config struct {
	// Size is the square edge the image is resized to.
	Size int
	// ChannelOrder defines the tensor layout.
	ChannelOrder ChannelOrder
	// ColorMode defines the channel order within a pixel.
	ColorMode ColorMode
}

// Preprocessor turns decoded images into normalized float32 tensors.
// It holds no mutable state and is safe for concurrent use.
type Preprocessor struct {
	config Config
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//
// Returns:
//   - *Preprocessor: A configured Preprocessor instance.
//   - error: An error if the size is not positive.
func NewPreprocessor(config Config) (*Preprocessor, error) {
	if config.Size <= 0 {
		return nil, errors.Errorf("invalid preprocess size: %d", config.Size)
	}
	return &Preprocessor{config: config}, nil
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() Config {
	return p.config
}

// Len is the number of values in one preprocessed sample.
func (p *Preprocessor) Len() int {
	return p.config.Size * p.config.Size * Channels
}

// Shape returns the per-sample tensor shape, [C, H, W] or [H, W, C].
func (p *Preprocessor) Shape() []int {
	if p.config.ChannelOrder == ChannelOrderCHW {
		return []int{Channels, p.config.Size, p.config.Size}
	}
	return []int{p.config.Size, p.config.Size, Channels}
}

// Preprocess decodes raw bytes and converts them into a model input.
//
// Arguments:
//   - data: The encoded image.
//
// Returns:
//   - []float32: Len() values in [0, 1].
//   - *Image: Metadata of the decoded original.
//   - error: A *DecodeError if the bytes are not an image.
func (p *Preprocessor) Preprocess(data []byte) ([]float32, *Image, error) {
	img, meta, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}

	tensor := make([]float32, p.Len())
	p.Fill(img, tensor)
	return tensor, meta, nil
}

// Tensor resizes img and returns it as a normalized tensor.
func (p *Preprocessor) Tensor(img image.Image) []float32 {
	tensor := make([]float32, p.Len())
	p.Fill(img, tensor)
	return tensor
}

// Fill resizes img to the configured square size with bilinear interpolation,
// ignoring aspect ratio, and writes pixel/255 into dst in the configured
// layout. dst must hold at least Len() values.
func (p *Preprocessor) Fill(img image.Image, dst []float32) {
	size := p.config.Size
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)

	// Non-premultiplied pixels drop alpha the same way a three-channel read does.
	pixels := imaging.Clone(resized)
	plane := size * size

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := pixels.PixOffset(x, y)
			r := float32(pixels.Pix[off]) / 255.0
			g := float32(pixels.Pix[off+1]) / 255.0
			b := float32(pixels.Pix[off+2]) / 255.0

			ch0, ch1, ch2 := r, g, b
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch2 = b, r
			}

			i := y*size + x
			if p.config.ChannelOrder == ChannelOrderCHW {
				dst[i] = ch0
				dst[plane+i] = ch1
				dst[2*plane+i] = ch2
			} else {
				dst[3*i] = ch0
				dst[3*i+1] = ch1
				dst[3*i+2] = ch2
			}
		}
	}
}

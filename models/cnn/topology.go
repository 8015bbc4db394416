// Package cnn - The three-block convolutional leaf classifier.
//
// Layer stack, for an input of H x W x 3:
//
//	conv 3x3 same + ReLU -> max-pool 3 -> dropout 0.25
//	conv 3x3 same + ReLU -> max-pool 2 -> dropout 0.25
//	conv 3x3 same + ReLU -> max-pool 2 -> dropout 0.25
//	flatten -> dense + ReLU -> dropout -> dense -> softmax
package cnn

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/leaf-ml/config"
)

const (
	// KernelSize is the edge of every convolution kernel.
	KernelSize = 3
	// BlockDropout is the dropout probability after every pooling layer.
	BlockDropout = 0.25
	// Blocks is the number of convolution blocks.
	Blocks = 3
)

// PoolSizes holds the pool size, and stride, of each block.
var PoolSizes = [Blocks]int{3, 2, 2}

// ErrInvalidTopology is returned for a topology that cannot be built.
var ErrInvalidTopology = errors.New("invalid topology")

// Topology is the hyper-parameter set that fixes every layer and parameter shape.
type Topology struct {
	// InputShape is [height, width, channels].
	InputShape []int `json:"input_shape"`
	// ConvFilters holds the output channels of each convolution block.
	ConvFilters []int `json:"conv_filters"`
	// DenseUnits is the width of the hidden dense layer.
	DenseUnits int `json:"dense_units"`
	// DropoutRate applies after the hidden dense layer.
	DropoutRate float64 `json:"dropout_rate"`
	// NumClasses is the width of the output layer.
	NumClasses int `json:"num_classes"`
}

// TopologyFromParams builds a topology from the model section of the params file.
func TopologyFromParams(params config.ModelParams, numClasses int) Topology {
	return Topology{
		InputShape:  append([]int(nil), params.InputShape...),
		ConvFilters: append([]int(nil), params.ConvFilters...),
		DenseUnits:  params.DenseUnits,
		DropoutRate: params.DropoutRate,
		NumClasses:  numClasses,
	}
}

// Validate reports whether the topology can be built.
func (t Topology) Validate() error {
	if len(t.InputShape) != 3 {
		return errors.Wrapf(ErrInvalidTopology, "input shape must be [height, width, channels], got %v", t.InputShape)
	}
	for _, d := range t.InputShape {
		if d <= 0 {
			return errors.Wrapf(ErrInvalidTopology, "input shape %v has a non-positive dimension", t.InputShape)
		}
	}
	if len(t.ConvFilters) != Blocks {
		return errors.Wrapf(ErrInvalidTopology, "expected %d conv filter counts, got %v", Blocks, t.ConvFilters)
	}
	for _, f := range t.ConvFilters {
		if f <= 0 {
			return errors.Wrapf(ErrInvalidTopology, "conv filters %v has a non-positive count", t.ConvFilters)
		}
	}
	if t.DenseUnits <= 0 {
		return errors.Wrapf(ErrInvalidTopology, "dense units must be positive, got %d", t.DenseUnits)
	}
	if t.DropoutRate < 0 || t.DropoutRate >= 1 {
		return errors.Wrapf(ErrInvalidTopology, "dropout rate must be in [0,1), got %v", t.DropoutRate)
	}
	if t.NumClasses <= 0 {
		return errors.Wrapf(ErrInvalidTopology, "class count must be positive, got %d", t.NumClasses)
	}
	h, w := t.featureSize()
	if h <= 0 || w <= 0 {
		return errors.Wrapf(ErrInvalidTopology, "input %v is too small for the pooling stack", t.InputShape)
	}
	return nil
}

// Height, Width and Channels unpack InputShape.
func (t Topology) Height() int   { return t.InputShape[0] }
func (t Topology) Width() int    { return t.InputShape[1] }
func (t Topology) Channels() int { return t.InputShape[2] }

// SampleLen is the number of values in one input sample.
func (t Topology) SampleLen() int {
	return t.Height() * t.Width() * t.Channels()
}

// FlatSize is the width of the flattened feature map fed to the dense layer.
func (t Topology) FlatSize() int {
	h, w := t.featureSize()
	return h * w * t.ConvFilters[Blocks-1]
}

// featureSize follows the spatial size through the valid pooling layers.
// Same-padded convolutions keep the size unchanged.
func (t Topology) featureSize() (int, int) {
	h, w := t.InputShape[0], t.InputShape[1]
	for _, pool := range PoolSizes {
		h = poolOut(h, pool)
		w = poolOut(w, pool)
	}
	return h, w
}

func poolOut(size, pool int) int {
	if size < pool {
		return 0
	}
	return (size-pool)/pool + 1
}

// Equal reports whether two topologies describe the same network.
func (t Topology) Equal(o Topology) bool {
	return intsEqual(t.InputShape, o.InputShape) &&
		intsEqual(t.ConvFilters, o.ConvFilters) &&
		t.DenseUnits == o.DenseUnits &&
		t.DropoutRate == o.DropoutRate &&
		t.NumClasses == o.NumClasses
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

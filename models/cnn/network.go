package cnn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Param is one learnable tensor.
type Param struct {
	Name  string
	Shape []int
	Data  []float32
}

// Len is the number of values the shape holds.
func (p Param) Len() int {
	return shapeLen(p.Shape)
}

// Network is a topology plus its parameter values. Params are ordered as
// block kernels and biases, then the hidden and output dense layers.
// A Network is not modified after construction; training produces new ones.
type Network struct {
	Topology Topology
	Params   []Param
}

// paramSpec is the expected name, shape and fan of a parameter.
type paramSpec struct {
	name   string
	shape  []int
	fanIn  int
	fanOut int
	kernel bool
}

// paramSpecs returns the parameter layout of a topology. Kernels are
// [out, in, k, k]; convolution biases are [1, out, 1, 1] and dense biases [1, units].
func paramSpecs(t Topology) []paramSpec {
	specs := make([]paramSpec, 0, 2*Blocks+4)

	in := t.Channels()
	for b, out := range t.ConvFilters {
		k2 := KernelSize * KernelSize
		specs = append(specs,
			paramSpec{
				name:   fmt.Sprintf("conv%d_w", b+1),
				shape:  []int{out, in, KernelSize, KernelSize},
				fanIn:  k2 * in,
				fanOut: k2 * out,
				kernel: true,
			},
			paramSpec{name: fmt.Sprintf("conv%d_b", b+1), shape: []int{1, out, 1, 1}},
		)
		in = out
	}

	flat := t.FlatSize()
	specs = append(specs,
		paramSpec{name: "dense_w", shape: []int{flat, t.DenseUnits}, fanIn: flat, fanOut: t.DenseUnits, kernel: true},
		paramSpec{name: "dense_b", shape: []int{1, t.DenseUnits}},
		paramSpec{name: "output_w", shape: []int{t.DenseUnits, t.NumClasses}, fanIn: t.DenseUnits, fanOut: t.NumClasses, kernel: true},
		paramSpec{name: "output_b", shape: []int{1, t.NumClasses}},
	)
	return specs
}

// New builds a network with Glorot-uniform kernels and zero biases.
//
// Arguments:
//   - t: The topology to build.
//   - seed: Seeds the weight initialization. Equal seeds give equal networks.
//
// Returns:
//   - *Network: The initialized network.
//   - error: An error if the topology is invalid.
func New(t Topology, seed int64) (*Network, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	specs := paramSpecs(t)
	params := make([]Param, len(specs))
	for i, spec := range specs {
		data := make([]float32, shapeLen(spec.shape))
		if spec.kernel {
			limit := math.Sqrt(6.0 / float64(spec.fanIn+spec.fanOut))
			for j := range data {
				data[j] = float32((rng.Float64()*2 - 1) * limit)
			}
		}
		params[i] = Param{Name: spec.name, Shape: append([]int(nil), spec.shape...), Data: data}
	}

	return &Network{Topology: t, Params: params}, nil
}

// Assemble builds a network from stored parameters, checking that every
// parameter matches the topology's layout.
func Assemble(t Topology, params []Param) (*Network, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	specs := paramSpecs(t)
	if len(params) != len(specs) {
		return nil, errors.Errorf("expected %d parameters, got %d", len(specs), len(params))
	}
	for i, spec := range specs {
		p := params[i]
		if p.Name != spec.name {
			return nil, errors.Errorf("parameter %d is %q, expected %q", i, p.Name, spec.name)
		}
		if !intsEqual(p.Shape, spec.shape) {
			return nil, errors.Errorf("parameter %q has shape %v, expected %v", p.Name, p.Shape, spec.shape)
		}
		if len(p.Data) != p.Len() {
			return nil, errors.Errorf("parameter %q holds %d values, shape %v needs %d", p.Name, len(p.Data), p.Shape, p.Len())
		}
	}

	return &Network{Topology: t, Params: params}, nil
}

// ParamCount is the total number of learnable values.
func (n *Network) ParamCount() int {
	total := 0
	for _, p := range n.Params {
		total += len(p.Data)
	}
	return total
}

// InputShape is the per-sample input, [height, width, channels].
func (n *Network) InputShape() []int {
	return append([]int(nil), n.Topology.InputShape...)
}

// OutputShape is the per-sample output, [classes].
func (n *Network) OutputShape() []int {
	return []int{n.Topology.NumClasses}
}

func shapeLen(shape []int) int {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return total
}

package cnn

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Graph is the expression graph of a network for a fixed batch size.
type Graph struct {
	// Expr is the underlying expression graph.
	Expr *G.ExprGraph
	// Input is the [batch, channels, height, width] input node.
	Input *G.Node
	// Output is the [batch, classes] probability node.
	Output *G.Node
	// Learnables holds one node per network parameter, in network order.
	Learnables G.Nodes

	topology Topology
	batch    int
	outVal   G.Value
}

// NewGraph assembles the forward pass of net for batches of the given size.
// Dropout layers are only added when training is set.
//
// Arguments:
//   - net: Supplies the topology and the initial parameter values.
//   - batch: The fixed batch size.
//   - training: Adds the dropout layers.
//
// Returns:
//   - *Graph: The assembled graph.
//   - error: An error if a graph operation cannot be built.
func NewGraph(net *Network, batch int, training bool) (*Graph, error) {
	if batch <= 0 {
		return nil, errors.Errorf("invalid batch size: %d", batch)
	}
	t := net.Topology
	if err := t.Validate(); err != nil {
		return nil, err
	}

	g := G.NewGraph()
	input := G.NewTensor(g, tensor.Float32, 4,
		G.WithShape(batch, t.Channels(), t.Height(), t.Width()),
		G.WithName("input"),
		G.WithValue(tensor.New(tensor.WithShape(batch, t.Channels(), t.Height(), t.Width()), tensor.Of(tensor.Float32))),
	)

	learnables := make(G.Nodes, len(net.Params))
	for i, p := range net.Params {
		learnables[i] = G.NewTensor(g, tensor.Float32, len(p.Shape),
			G.WithShape(p.Shape...),
			G.WithName(p.Name),
			G.WithValue(paramTensor(p)),
		)
	}

	x := input
	var err error
	for b := 0; b < Blocks; b++ {
		kernel, bias := learnables[2*b], learnables[2*b+1]
		if x, err = G.Conv2d(x, kernel, tensor.Shape{KernelSize, KernelSize}, []int{1, 1}, []int{1, 1}, []int{1, 1}); err != nil {
			return nil, errors.Wrapf(err, "block %d convolution", b+1)
		}
		if x, err = G.BroadcastAdd(x, bias, nil, []byte{0, 2, 3}); err != nil {
			return nil, errors.Wrapf(err, "block %d bias", b+1)
		}
		if x, err = G.Rectify(x); err != nil {
			return nil, errors.Wrapf(err, "block %d activation", b+1)
		}
		pool := PoolSizes[b]
		if x, err = G.MaxPool2D(x, tensor.Shape{pool, pool}, []int{0, 0}, []int{pool, pool}); err != nil {
			return nil, errors.Wrapf(err, "block %d pooling", b+1)
		}
		if training {
			if x, err = G.Dropout(x, BlockDropout); err != nil {
				return nil, errors.Wrapf(err, "block %d dropout", b+1)
			}
		}
	}

	if x, err = G.Reshape(x, tensor.Shape{batch, t.FlatSize()}); err != nil {
		return nil, errors.Wrap(err, "flatten")
	}

	denseW, denseB := learnables[2*Blocks], learnables[2*Blocks+1]
	if x, err = G.Mul(x, denseW); err != nil {
		return nil, errors.Wrap(err, "dense")
	}
	if x, err = G.BroadcastAdd(x, denseB, nil, []byte{0}); err != nil {
		return nil, errors.Wrap(err, "dense bias")
	}
	if x, err = G.Rectify(x); err != nil {
		return nil, errors.Wrap(err, "dense activation")
	}
	if training && t.DropoutRate > 0 {
		if x, err = G.Dropout(x, t.DropoutRate); err != nil {
			return nil, errors.Wrap(err, "dense dropout")
		}
	}

	outW, outB := learnables[2*Blocks+2], learnables[2*Blocks+3]
	if x, err = G.Mul(x, outW); err != nil {
		return nil, errors.Wrap(err, "output")
	}
	if x, err = G.BroadcastAdd(x, outB, nil, []byte{0}); err != nil {
		return nil, errors.Wrap(err, "output bias")
	}
	output, err := G.SoftMax(x)
	if err != nil {
		return nil, errors.Wrap(err, "softmax")
	}

	graph := &Graph{
		Expr:       g,
		Input:      input,
		Output:     output,
		Learnables: learnables,
		topology:   t,
		batch:      batch,
	}
	G.Read(output, &graph.outVal)
	return graph, nil
}

// Batch is the fixed batch size of the graph.
func (g *Graph) Batch() int {
	return g.batch
}

// SetInput binds a [batch * sample] slice to the input node without copying.
func (g *Graph) SetInput(data []float32) error {
	t := g.topology
	if want := g.batch * t.SampleLen(); len(data) != want {
		return errors.Errorf("input holds %d values, expected %d", len(data), want)
	}
	value := tensor.New(tensor.WithShape(g.batch, t.Channels(), t.Height(), t.Width()), tensor.WithBacking(data))
	return G.Let(g.Input, value)
}

// Probabilities returns a copy of the [batch * classes] output of the last run.
func (g *Graph) Probabilities() ([]float32, error) {
	if g.outVal == nil {
		return nil, errors.New("graph has not been run")
	}
	data, ok := g.outVal.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("unexpected output type %T", g.outVal.Data())
	}
	return append([]float32(nil), data...), nil
}

// SetWeights rebinds every learnable node to a copy of net's parameters.
func (g *Graph) SetWeights(net *Network) error {
	if !g.topology.Equal(net.Topology) {
		return errors.New("network topology does not match the graph")
	}
	for i, p := range net.Params {
		if err := G.Let(g.Learnables[i], paramTensor(p)); err != nil {
			return errors.Wrapf(err, "failed to set %s", p.Name)
		}
	}
	return nil
}

// Snapshot copies the current learnable values into a new Network.
func (g *Graph) Snapshot() (*Network, error) {
	params := make([]Param, len(g.Learnables))
	for i, node := range g.Learnables {
		data, ok := node.Value().Data().([]float32)
		if !ok {
			return nil, errors.Errorf("parameter %s is not float32", node.Name())
		}
		params[i] = Param{
			Name:  node.Name(),
			Shape: append([]int(nil), node.Shape()...),
			Data:  append([]float32(nil), data...),
		}
	}
	return Assemble(g.topology, params)
}

func paramTensor(p Param) *tensor.Dense {
	backing := append([]float32(nil), p.Data...)
	return tensor.New(tensor.WithShape(p.Shape...), tensor.WithBacking(backing))
}

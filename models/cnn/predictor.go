package cnn

import (
	"sync"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Predictor runs the dropout-free forward pass of a network.
// Forward calls are serialized because the tape machine reuses its buffers.
type Predictor struct {
	mu    sync.Mutex
	graph *Graph
	vm    G.VM
	net   *Network
}

// NewPredictor compiles an inference graph of net for the given batch size.
func NewPredictor(net *Network, batch int) (*Predictor, error) {
	graph, err := NewGraph(net, batch, false)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build inference graph")
	}
	return &Predictor{
		graph: graph,
		vm:    G.NewTapeMachine(graph.Expr),
		net:   net,
	}, nil
}

// Network returns the network whose weights are currently bound.
func (p *Predictor) Network() *Network {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.net
}

// Batch is the number of samples every Forward call takes.
func (p *Predictor) Batch() int {
	return p.graph.Batch()
}

// SetWeights binds the parameters of another network with the same topology.
func (p *Predictor) SetWeights(net *Network) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.graph.SetWeights(net); err != nil {
		return err
	}
	p.net = net
	return nil
}

// Forward runs one batch.
//
// Arguments:
//   - input: Batch() samples in CHW layout, concatenated.
//
// Returns:
//   - []float32: Batch() rows of class probabilities, concatenated.
//   - error: An error if the input has the wrong length or the run fails.
func (p *Predictor) Forward(input []float32) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.vm.Reset()

	if err := p.graph.SetInput(input); err != nil {
		return nil, err
	}
	if err := p.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "forward pass failed")
	}
	return p.graph.Probabilities()
}

// Close releases the tape machine.
func (p *Predictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vm.Close()
}

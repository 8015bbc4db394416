package inference

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/leaf-ml/config"
	"github.com/nvr-ai/leaf-ml/images"
	"github.com/nvr-ai/leaf-ml/models/cnn"
)

// GorgoniaBackend serves an artifact written by the trainer.
type GorgoniaBackend struct {
	artifact  *cnn.Artifact
	predictor *cnn.Predictor
}

// LoadGorgonia reads an artifact and compiles its inference graph.
func LoadGorgonia(path string) (*GorgoniaBackend, error) {
	artifact, err := cnn.Load(path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Backend: config.BackendGorgonia, Err: err}
	}
	return NewGorgoniaBackend(artifact)
}

// NewGorgoniaBackend wraps an already decoded artifact.
func NewGorgoniaBackend(artifact *cnn.Artifact) (*GorgoniaBackend, error) {
	topology := artifact.Network.Topology
	if topology.Height() != topology.Width() {
		return nil, errors.Errorf("non-square model input %v is not supported", topology.InputShape)
	}
	if topology.Channels() != images.Channels {
		return nil, errors.Errorf("model expects %d channels, images have %d", topology.Channels(), images.Channels)
	}

	predictor, err := cnn.NewPredictor(artifact.Network, 1)
	if err != nil {
		return nil, err
	}
	return &GorgoniaBackend{artifact: artifact, predictor: predictor}, nil
}

// Spec implements Backend.
func (b *GorgoniaBackend) Spec() Spec {
	topology := b.artifact.Network.Topology
	return Spec{
		Preprocess: images.Config{
			Size:         topology.Height(),
			ChannelOrder: images.ChannelOrderCHW,
			ColorMode:    images.ColorModeRGB,
		},
		Outputs: topology.NumClasses,
		Classes: append([]string(nil), b.artifact.Header.Classes...),
	}
}

// Forward implements Backend.
func (b *GorgoniaBackend) Forward(input []float32) ([]float32, error) {
	return b.predictor.Forward(input)
}

// Network exposes the loaded weights.
func (b *GorgoniaBackend) Network() *cnn.Network {
	return b.artifact.Network
}

// Close implements Backend.
func (b *GorgoniaBackend) Close() error {
	return b.predictor.Close()
}

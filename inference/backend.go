// Package inference - Load-once model handle and per-request prediction.
package inference

import (
	"context"

	"github.com/nvr-ai/leaf-ml/config"
	"github.com/nvr-ai/leaf-ml/images"
)

// Spec describes the input a backend expects and the output it produces.
type Spec struct {
	// Preprocess is the decode-to-tensor configuration for one sample.
	Preprocess images.Config
	// Outputs is the width of the output vector.
	Outputs int
	// Classes is the class order stored with the model, when the format has one.
	Classes []string
}

// Backend runs a single-sample forward pass.
type Backend interface {
	// Spec returns the input and output contract.
	Spec() Spec
	// Forward runs one sample laid out as Spec().Preprocess describes.
	Forward(input []float32) ([]float32, error)
	// Close releases native or graph resources.
	Close() error
}

// Loader produces the backend. The Service calls it at most once.
type Loader func(ctx context.Context) (Backend, error)

// NewLoader returns the loader selected by the inference section of params.
func NewLoader(params *config.Params) Loader {
	path := params.ModelPath()
	switch params.Inference.Backend {
	case config.BackendONNX:
		return func(ctx context.Context) (Backend, error) {
			backend, err := LoadONNX(ONNXOptions{
				ModelPath:      path,
				SharedLibrary:  params.Inference.ONNX.SharedLibrary,
				InputName:      params.Inference.ONNX.InputName,
				OutputName:     params.Inference.ONNX.OutputName,
				IntraOpThreads: params.Inference.ONNX.IntraOpThreads,
				Provider:       ExecutionProvider(params.Inference.ONNX.Provider),
				DeviceID:       params.Inference.ONNX.DeviceID,
				ImageSize:      params.Data.ImageSize,
				NumClasses:     len(params.Data.Classes),
			})
			if err != nil {
				return nil, err
			}
			return backend, nil
		}
	default:
		return func(ctx context.Context) (Backend, error) {
			backend, err := LoadGorgonia(path)
			if err != nil {
				return nil, err
			}
			return backend, nil
		}
	}
}

package inference

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/leaf-ml/config"
	"github.com/nvr-ai/leaf-ml/images"
)

// ONNXOptions configures an onnxruntime session for an exported Keras model.
type ONNXOptions struct {
	// ModelPath is the .onnx file.
	ModelPath string
	// SharedLibrary is the onnxruntime shared library.
	SharedLibrary string
	// InputName and OutputName are the graph tensor names.
	InputName  string
	OutputName string
	// IntraOpThreads bounds threads used inside graph nodes. Zero uses the runtime default.
	IntraOpThreads int
	// Provider selects the execution provider, CPU when empty.
	Provider ExecutionProvider
	// DeviceID picks the accelerator for CUDA and OpenVINO.
	DeviceID int
	// ImageSize is the square input edge.
	ImageSize int
	// NumClasses is the output width.
	NumClasses int
}

// ortEnvMu guards the process-wide runtime environment.
var ortEnvMu sync.Mutex

// ONNXBackend runs an NHWC, BGR model through onnxruntime. The model was
// trained on OpenCV arrays, so pixels keep OpenCV's channel order.
type ONNXBackend struct {
	mu      sync.Mutex
	opts    ONNXOptions
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// LoadONNX creates a session with preallocated input and output tensors.
//
// Order of operations:
//  1. Model and library path checks.
//  2. Environment setup, once per process.
//  3. Tensor allocation for [1, size, size, 3] in and [1, classes] out.
//  4. Session options: threads, graph optimization, execution provider.
//  5. Session creation binding the tensors.
//
// Arguments:
//   - opts: Paths, tensor names and shapes.
//
// Returns:
//   - *ONNXBackend: The ready backend.
//   - error: A *ModelLoadError if any step fails.
func LoadONNX(opts ONNXOptions) (*ONNXBackend, error) {
	fail := func(err error) (*ONNXBackend, error) {
		return nil, &ModelLoadError{Path: opts.ModelPath, Backend: config.BackendONNX, Err: err}
	}

	if opts.ImageSize <= 0 || opts.NumClasses <= 0 {
		return fail(errors.Errorf("invalid model shape: size=%d classes=%d", opts.ImageSize, opts.NumClasses))
	}
	if _, err := ParseExecutionProvider(string(opts.Provider)); err != nil {
		return fail(err)
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return fail(errors.Wrap(err, "model file not accessible"))
	}
	if _, err := os.Stat(opts.SharedLibrary); err != nil {
		return fail(errors.Wrapf(err, "ONNX Runtime library not found at %q", opts.SharedLibrary))
	}

	if err := initEnvironment(opts.SharedLibrary); err != nil {
		return fail(err)
	}

	size := int64(opts.ImageSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, size, size, int64(images.Channels)))
	if err != nil {
		return fail(errors.Wrap(err, "error creating input tensor"))
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.NumClasses)))
	if err != nil {
		input.Destroy()
		return fail(errors.Wrap(err, "error creating output tensor"))
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return fail(errors.Wrap(err, "error creating session options"))
	}
	defer options.Destroy()
	if err := configureSession(options, opts); err != nil {
		input.Destroy()
		output.Destroy()
		return fail(err)
	}

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return fail(errors.Wrap(err, "error creating ORT session"))
	}

	return &ONNXBackend{opts: opts, session: session, input: input, output: output}, nil
}

func initEnvironment(library string) error {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	ort.SetSharedLibraryPath(library)
	return errors.Wrap(ort.InitializeEnvironment(), "error initializing ORT environment")
}

// Spec implements Backend.
func (b *ONNXBackend) Spec() Spec {
	return Spec{
		Preprocess: images.Config{
			Size:         b.opts.ImageSize,
			ChannelOrder: images.ChannelOrderHWC,
			ColorMode:    images.ColorModeBGR,
		},
		Outputs: b.opts.NumClasses,
	}
}

// Forward implements Backend.
func (b *ONNXBackend) Forward(input []float32) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil, errors.New("session is closed")
	}
	dst := b.input.GetData()
	if len(input) != len(dst) {
		return nil, errors.Errorf("input holds %d values, expected %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := b.session.Run(); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}
	return append([]float32(nil), b.output.GetData()...), nil
}

// Close implements Backend. The runtime environment stays initialized for
// other sessions in the process.
func (b *ONNXBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.input != nil {
		b.input.Destroy()
		b.input = nil
	}
	if b.output != nil {
		b.output.Destroy()
		b.output = nil
	}
	if b.session != nil {
		err := b.session.Destroy()
		b.session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
	}
	return nil
}

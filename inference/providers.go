package inference

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ExecutionProvider names the onnxruntime execution provider.
type ExecutionProvider string

const (
	// ProviderCPU runs on the default CPU provider.
	ProviderCPU ExecutionProvider = "cpu"
	// ProviderCUDA runs on an NVIDIA GPU.
	ProviderCUDA ExecutionProvider = "cuda"
	// ProviderCoreML runs on Apple hardware.
	ProviderCoreML ExecutionProvider = "coreml"
	// ProviderOpenVINO runs on Intel CPUs and GPUs.
	ProviderOpenVINO ExecutionProvider = "openvino"
)

// ErrUnknownProvider is returned for an execution provider name that is not supported.
var ErrUnknownProvider = errors.New("unknown execution provider")

// ParseExecutionProvider maps a config value onto an ExecutionProvider.
// The empty string selects the CPU.
func ParseExecutionProvider(name string) (ExecutionProvider, error) {
	switch p := ExecutionProvider(name); p {
	case "":
		return ProviderCPU, nil
	case ProviderCPU, ProviderCUDA, ProviderCoreML, ProviderOpenVINO:
		return p, nil
	default:
		return "", errors.Wrapf(ErrUnknownProvider, "%q", name)
	}
}

// configureSession applies threading, graph optimization and the execution
// provider to options.
func configureSession(options *ort.SessionOptions, opts ONNXOptions) error {
	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}

	provider, err := ParseExecutionProvider(string(opts.Provider))
	if err != nil {
		return err
	}
	device := strconv.Itoa(opts.DeviceID)

	switch provider {
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": device}); err != nil {
			return errors.Wrap(err, "error configuring CUDA")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case ProviderOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{"device_id": device}); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	}
	return nil
}

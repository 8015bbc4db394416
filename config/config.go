// Package config - Run parameters for training and serving, read from params.yaml.
package config

import (
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Backend names accepted in the inference section.
const (
	BackendGorgonia = "gorgonia"
	BackendONNX     = "onnx"
)

// Params is the full parameter file.
type Params struct {
	Data      DataParams      `yaml:"data"`
	Model     ModelParams     `yaml:"model"`
	Training  TrainingParams  `yaml:"training"`
	Paths     PathParams      `yaml:"paths"`
	Inference InferenceParams `yaml:"inference"`
	Server    ServerParams    `yaml:"server"`

	// present holds the "section.key" names found in the parsed file. It is nil
	// for parameters built in code.
	present map[string]bool
}

// DataParams describes the dataset and how it is partitioned.
type DataParams struct {
	// DatasetPath is the root directory holding one subdirectory per class.
	DatasetPath string `yaml:"dataset_path"`
	// Classes is the class order. It defines the meaning of every label and output index.
	Classes []string `yaml:"classes"`
	// ImageSize is the square edge every image is resized to.
	ImageSize int `yaml:"image_size"`
	// TestSplit is the fraction held out for the final evaluation.
	TestSplit float64 `yaml:"test_split"`
	// ValidationSplit is the fraction of the remainder used for per-epoch validation.
	ValidationSplit float64 `yaml:"validation_split"`
	// RandomSeed drives the split, the per-epoch shuffle and weight initialization.
	RandomSeed int64 `yaml:"random_seed"`
	// Workers bounds concurrent image decoding while loading the dataset.
	Workers int `yaml:"workers"`
}

// ModelParams describes the network topology.
type ModelParams struct {
	InputShape  []int   `yaml:"input_shape"`
	ConvFilters []int   `yaml:"conv_filters"`
	DenseUnits  int     `yaml:"dense_units"`
	DropoutRate float64 `yaml:"dropout_rate"`
}

// TrainingParams describes the optimization run.
type TrainingParams struct {
	LearningRate float64  `yaml:"learning_rate"`
	Loss         string   `yaml:"loss"`
	Metrics      []string `yaml:"metrics"`
	Epochs       int      `yaml:"epochs"`
	BatchSize    int      `yaml:"batch_size"`
}

// PathParams lists the training outputs.
type PathParams struct {
	ModelOutput   string `yaml:"model_output"`
	MetricsOutput string `yaml:"metrics_output"`
	PlotsOutput   string `yaml:"plots_output"`
}

// InferenceParams selects the artifact and backend used when serving.
type InferenceParams struct {
	// Backend is "gorgonia" for artifacts written by the trainer or "onnx" for an
	// ONNX export of a Keras model.
	Backend string `yaml:"backend"`
	// ModelPath defaults to paths.model_output when empty.
	ModelPath string `yaml:"model_path"`
	// MaxImagePixels caps width times height of an upload. Zero disables the cap.
	MaxImagePixels int        `yaml:"max_image_pixels"`
	ONNX           ONNXParams `yaml:"onnx"`
}

// ONNXParams configures the onnxruntime backend.
type ONNXParams struct {
	SharedLibrary  string `yaml:"shared_library"`
	InputName      string `yaml:"input_name"`
	OutputName     string `yaml:"output_name"`
	IntraOpThreads int    `yaml:"intra_op_threads"`
	// Provider is the execution provider: cpu, cuda, coreml or openvino.
	Provider string `yaml:"provider"`
	DeviceID int    `yaml:"device_id"`
}

// ServerParams configures the interactive HTTP surface.
type ServerParams struct {
	Addr            string        `yaml:"addr"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the parameters of the reference potato leaf run.
func Default() *Params {
	return &Params{
		Data: DataParams{
			DatasetPath:     "PlantVillage",
			Classes:         []string{"Potato___Early_blight", "Potato___Late_blight", "Potato___healthy"},
			ImageSize:       256,
			TestSplit:       0.2,
			ValidationSplit: 0.1,
			RandomSeed:      42,
			Workers:         runtime.NumCPU(),
		},
		Model: ModelParams{
			InputShape:  []int{256, 256, 3},
			ConvFilters: []int{32, 64, 64},
			DenseUnits:  128,
			DropoutRate: 0.5,
		},
		Training: TrainingParams{
			LearningRate: 0.001,
			Loss:         "categorical_crossentropy",
			Metrics:      []string{"accuracy"},
			Epochs:       25,
			BatchSize:    32,
		},
		Paths: PathParams{
			ModelOutput:   "plant_disease_model.leaf",
			MetricsOutput: "metrics.json",
			PlotsOutput:   "plots",
		},
		Inference: InferenceParams{
			Backend:        BackendGorgonia,
			MaxImagePixels: 40_000_000,
			ONNX: ONNXParams{
				InputName:      "input",
				OutputName:     "output",
				IntraOpThreads: 4,
				Provider:       "cpu",
			},
		},
		Server: ServerParams{
			Addr:            ":8501",
			MaxUploadBytes:  10 << 20,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

// Load reads a params file. Keys absent from the file keep their Default() value.
//
// Arguments:
//   - path: Location of the YAML file.
//
// Returns:
//   - *Params: The parsed parameters.
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read params file")
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of Default() and records which keys the
// document set, so training can reject files that rely on defaults.
func Parse(data []byte) (*Params, error) {
	params := Default()
	if err := yaml.Unmarshal(data, params); err != nil {
		return nil, errors.Wrap(err, "failed to parse params file")
	}
	present, err := presentKeys(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse params file")
	}
	params.present = present
	return params, nil
}

func presentKeys(data []byte) (map[string]bool, error) {
	var sections map[string]map[string]yaml.Node
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, err
	}
	present := make(map[string]bool)
	for section, keys := range sections {
		for key := range keys {
			present[section+"."+key] = true
		}
	}
	return present, nil
}

// ModelPath returns the artifact used by the serving and utility commands.
func (p *Params) ModelPath() string {
	if p.Inference.ModelPath != "" {
		return p.Inference.ModelPath
	}
	return p.Paths.ModelOutput
}

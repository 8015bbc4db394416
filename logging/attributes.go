package logging

// Keys used across training and inference log lines. They follow a dotted
// hierarchy so that the phase, the data shape and the model can be filtered on.
const (
	// OperationKey names the operation being performed ("dataset.load", "inference.predict").
	OperationKey = "operation"
	// RequestIDKey carries the per-request identifier on the serving path.
	RequestIDKey = "request_id"
	// StageKey is the step of an operation that failed ("preprocess", "forward").
	StageKey = "operation.stage"

	// PhaseKey is the lifecycle phase: "training", "validation", "test", "inference".
	PhaseKey = "ml.phase"
	// ModelPathKey is the artifact location on disk.
	ModelPathKey = "model.path"
	// BackendKey is the inference backend ("gorgonia", "onnx").
	BackendKey = "model.backend"

	// SamplesKey is the number of samples in a dataset or partition.
	SamplesKey = "data.samples"
	// SkippedKey is the number of files that could not be decoded.
	SkippedKey = "data.skipped"
	// ClassKey is a class name.
	ClassKey = "data.class"

	// EpochKey is the 1-based epoch number.
	EpochKey = "train.epoch"
	// LossKey and AccuracyKey carry scalar results.
	LossKey     = "metric.loss"
	AccuracyKey = "metric.accuracy"
)

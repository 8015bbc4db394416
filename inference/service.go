package inference

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/leaf-ml/images"
	"github.com/nvr-ai/leaf-ml/logging"
	"github.com/nvr-ai/leaf-ml/models"
	"github.com/nvr-ai/leaf-ml/profiler"
)

// normalizedTolerance is how far a probability vector may sum from one.
const normalizedTolerance = 1e-3

// ClassProbability is one entry of the per-class breakdown.
type ClassProbability struct {
	Class       string  `json:"class"`
	Probability float64 `json:"probability"`
}

// Prediction is the outcome of one request.
type Prediction struct {
	RequestID string `json:"request_id"`
	// ClassIndex is the arg-max position in class order.
	ClassIndex int          `json:"class_index"`
	Label      models.Label `json:"label"`
	// Confidence is the winning probability as a percentage.
	Confidence float64 `json:"confidence"`
	// Probabilities lists every class in class order.
	Probabilities []ClassProbability `json:"probabilities"`
	// Image describes the decoded upload.
	Image images.Image `json:"image"`
	// Raster is the decoded upload, kept for previews.
	Raster image.Image `json:"-"`
}

// Service owns the model for the lifetime of the process. The model is
// loaded at most once; a failed load is remembered and never retried.
type Service struct {
	loader  Loader
	classes *models.ClassSet
	logger  *zap.Logger
	timings *profiler.Timings
	// maxPixels caps decoded uploads.
	maxPixels int

	once    sync.Once
	mu      sync.RWMutex
	loaded  bool
	backend Backend
	pre     *images.Preprocessor
	spec    Spec
	loadErr error
}

// ServiceOption adjusts a Service built by NewService.
type ServiceOption func(*Service)

// WithMaxPixels caps the width times height of accepted uploads. Zero or less
// disables the cap.
func WithMaxPixels(n int) ServiceOption {
	return func(s *Service) {
		s.maxPixels = n
	}
}

// NewService prepares a service. Nothing is loaded until Load or the first Predict.
//
// Arguments:
//   - loader: Produces the backend on the first Load.
//   - classes: The class order outputs are reported in.
//   - logger: Receives load and request logs. A nil logger is replaced by a no-op logger.
//   - opts: Optional settings; uploads are capped at images.DefaultMaxPixels unless changed.
//
// Returns:
//   - *Service: The service.
func NewService(loader Loader, classes *models.ClassSet, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		loader:    loader,
		classes:   classes,
		logger:    logger,
		timings:   profiler.NewTimings(profiler.DefaultWindow),
		maxPixels: images.DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load runs the loader once. Concurrent and later callers share its result.
func (s *Service) Load(ctx context.Context) error {
	s.once.Do(func() {
		stop := s.timings.Start("load")
		backend, spec, pre, err := s.load(ctx)
		stop()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.loaded = true
		if err != nil {
			s.loadErr = err
			s.logger.Error("model load failed", zap.String(logging.OperationKey, "inference.load"), zap.Error(err))
			return
		}
		s.backend, s.spec, s.pre = backend, spec, pre
		s.logger.Info("model loaded",
			zap.String(logging.OperationKey, "inference.load"),
			zap.Int("input_size", spec.Preprocess.Size),
			zap.Int("outputs", spec.Outputs),
		)
	})

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

func (s *Service) load(ctx context.Context) (backend Backend, spec Spec, pre *images.Preprocessor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic while loading model: %v", r)
		}
		if err != nil {
			if backend != nil {
				backend.Close()
				backend = nil
			}
			var loadErr *ModelLoadError
			if !errors.As(err, &loadErr) {
				err = &ModelLoadError{Err: err}
			}
		}
	}()

	if s.loader == nil {
		return nil, Spec{}, nil, errors.New("no model loader configured")
	}
	backend, err = s.loader(ctx)
	if err != nil {
		return nil, Spec{}, nil, err
	}

	spec = backend.Spec()
	if spec.Outputs != s.classes.Len() {
		return backend, Spec{}, nil, errors.Errorf("model emits %d outputs for %d classes", spec.Outputs, s.classes.Len())
	}
	if len(spec.Classes) > 0 {
		if err := s.classes.Matches(spec.Classes); err != nil {
			return backend, Spec{}, nil, errors.Wrap(err, "model class order differs from configuration")
		}
	}
	pre, err = images.NewPreprocessor(spec.Preprocess)
	if err != nil {
		return backend, Spec{}, nil, err
	}
	return backend, spec, pre, nil
}

// Ready reports whether a model is loaded and usable.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded && s.loadErr == nil
}

// Err returns the cached load failure, or nil.
func (s *Service) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// Spec returns the contract of the loaded backend.
func (s *Service) Spec() (Spec, error) {
	if !s.Ready() {
		return Spec{}, s.notLoaded()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec, nil
}

// Timings returns the per-stage latency recorder.
func (s *Service) Timings() *profiler.Timings {
	return s.timings
}

// Classes returns the class order used for outputs.
func (s *Service) Classes() *models.ClassSet {
	return s.classes
}

func (s *Service) notLoaded() error {
	if err := s.Err(); err != nil {
		return err
	}
	return &ModelLoadError{Err: errors.New("load has not completed")}
}

// Predict decodes one image and classifies it.
//
// Arguments:
//   - ctx: Carries the request id, see ContextWithRequestID.
//   - data: The encoded upload.
//
// Returns:
//   - *Prediction: The winning class, its confidence and the full breakdown.
//   - error: A *ModelLoadError when no model is available, an
//     *images.DecodeError for undecodable bytes, or an *InferenceError.
func (s *Service) Predict(ctx context.Context, data []byte) (pred *Prediction, err error) {
	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	requestID := RequestIDFromContext(ctx)
	logger := logging.WithOperation(s.logger, "inference.predict", requestID)

	stopDecode := s.timings.Start("decode")
	img, meta, err := images.DecodeLimited(data, s.maxPixels)
	stopDecode()
	if err != nil {
		logger.Warn("rejected upload", zap.Error(err))
		return nil, err
	}

	s.mu.RLock()
	backend, pre := s.backend, s.pre
	s.mu.RUnlock()

	stage := "preprocess"
	defer func() {
		if r := recover(); r != nil {
			pred = nil
			err = &InferenceError{RequestID: requestID, Stage: stage, Err: fmt.Errorf("panic: %v", r)}
			logger.Error("inference panic", zap.String(logging.StageKey, stage), zap.Any("panic", r))
		}
	}()

	stopPreprocess := s.timings.Start(stage)
	input := pre.Tensor(img)
	stopPreprocess()

	stage = "forward"
	if err := ctx.Err(); err != nil {
		return nil, &InferenceError{RequestID: requestID, Stage: stage, Err: err}
	}
	stopForward := s.timings.Start(stage)
	out, err := backend.Forward(input)
	stopForward()
	if err != nil {
		logger.Error("forward pass failed", zap.Error(err))
		return nil, &InferenceError{RequestID: requestID, Stage: stage, Err: err}
	}

	stage = "postprocess"
	if len(out) != s.classes.Len() {
		return nil, &InferenceError{
			RequestID: requestID,
			Stage:     stage,
			Err:       errors.Errorf("model returned %d values for %d classes", len(out), s.classes.Len()),
		}
	}
	probs, err := probabilities(out)
	if err != nil {
		return nil, &InferenceError{RequestID: requestID, Stage: stage, Err: err}
	}

	best := 0
	breakdown := make([]ClassProbability, len(probs))
	for i, p := range probs {
		breakdown[i] = ClassProbability{Class: s.classes.Classes[i].Name, Probability: p}
		if p > probs[best] {
			best = i
		}
	}

	pred = &Prediction{
		RequestID:     requestID,
		ClassIndex:    best,
		Label:         models.ParseLabel(s.classes.Classes[best].Name),
		Confidence:    probs[best] * 100,
		Probabilities: breakdown,
		Image:         *meta,
		Raster:        img,
	}
	logger.Info("prediction",
		zap.String(logging.ClassKey, pred.Label.Raw),
		zap.Float64("confidence", pred.Confidence),
		zap.Stringer("image", meta),
	)
	return pred, nil
}

// Close releases the backend.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	s.loadErr = &ModelLoadError{Err: errors.New("service closed")}
	return err
}

// probabilities turns raw outputs into a distribution. Outputs that already
// form one are only renormalized, whatever the backend, so a model ending in
// softmax is never squashed twice. Anything else goes through a softmax.
func probabilities(out []float32) ([]float64, error) {
	var sum float32
	inRange := true
	for i, v := range out {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return nil, errors.Errorf("output %d is not finite", i)
		}
		if v < 0 || v > 1 {
			inRange = false
		}
		sum += v
	}

	probs := make([]float64, len(out))
	if inRange && math32.Abs(sum-1) <= normalizedTolerance {
		for i, v := range out {
			probs[i] = float64(v / sum)
		}
		return probs, nil
	}

	peak := out[0]
	for _, v := range out {
		peak = math32.Max(peak, v)
	}
	var total float32
	exps := make([]float32, len(out))
	for i, v := range out {
		exps[i] = math32.Exp(v - peak)
		total += exps[i]
	}
	for i, e := range exps {
		probs[i] = float64(e / total)
	}
	return probs, nil
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id used in logs and errors.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the attached request id or a new one.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

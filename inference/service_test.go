package inference

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nvr-ai/leaf-ml/config"
	"github.com/nvr-ai/leaf-ml/images"
	"github.com/nvr-ai/leaf-ml/models"
	"github.com/nvr-ai/leaf-ml/models/cnn"
)

var potatoClasses = []string{"Potato___Early_blight", "Potato___Late_blight", "Potato___healthy"}

// fakeBackend returns a fixed output and counts forward passes.
type fakeBackend struct {
	spec     Spec
	output   []float32
	err      error
	panicMsg string
	calls    atomic.Int32
	closed   atomic.Bool
	lastLen  atomic.Int32
}

func (f *fakeBackend) Spec() Spec { return f.spec }

func (f *fakeBackend) Forward(input []float32) ([]float32, error) {
	f.calls.Add(1)
	f.lastLen.Store(int32(len(input)))
	if f.panicMsg != "" {
		msg := f.panicMsg
		f.panicMsg = ""
		panic(msg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.output...), nil
}

func (f *fakeBackend) Close() error {
	f.closed.Store(true)
	return nil
}

func newFake(output ...float32) *fakeBackend {
	return &fakeBackend{
		spec: Spec{
			Preprocess: images.Config{Size: 8},
			Outputs:    len(output),
		},
		output: output,
	}
}

func mustClasses(t *testing.T) *models.ClassSet {
	t.Helper()
	classes, err := models.NewClassSet(potatoClasses)
	require.NoError(t, err)
	return classes
}

func staticLoader(b Backend, loads *atomic.Int32) Loader {
	return func(ctx context.Context) (Backend, error) {
		if loads != nil {
			loads.Add(1)
		}
		return b, nil
	}
}

func leafPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 14))
	for y := 0; y < 14; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: 160, B: uint8(y * 15), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestServiceLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	service := NewService(staticLoader(newFake(0.2, 0.3, 0.5), &loads), mustClasses(t), nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, service.Load(context.Background()))
		}()
	}
	wg.Wait()

	_, err := service.Predict(context.Background(), leafPNG(t))
	require.NoError(t, err)

	assert.Equal(t, int32(1), loads.Load())
	assert.True(t, service.Ready())
	assert.NoError(t, service.Err())
}

func TestServiceCachesLoadFailure(t *testing.T) {
	var loads atomic.Int32
	loader := func(ctx context.Context) (Backend, error) {
		loads.Add(1)
		return nil, errors.New("file is corrupt")
	}
	core, logs := observer.New(zap.ErrorLevel)
	service := NewService(loader, mustClasses(t), zap.New(core))

	err := service.Load(context.Background())
	require.Error(t, err)

	for i := 0; i < 3; i++ {
		_, err = service.Predict(context.Background(), leafPNG(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrModelNotLoaded))
		var loadErr *ModelLoadError
		assert.True(t, errors.As(err, &loadErr))
		assert.Contains(t, err.Error(), "file is corrupt")
	}

	assert.Equal(t, int32(1), loads.Load())
	assert.False(t, service.Ready())
	assert.Equal(t, 1, logs.FilterMessage("model load failed").Len())
}

func TestPredictBeforeLoadFailsOnGarbageToo(t *testing.T) {
	loader := func(ctx context.Context) (Backend, error) {
		return nil, &ModelLoadError{Path: "missing.model", Backend: config.BackendGorgonia, Err: errors.New("no such file")}
	}
	service := NewService(loader, mustClasses(t), nil)

	_, err := service.Predict(context.Background(), []byte("not an image"))
	assert.True(t, errors.Is(err, ErrModelNotLoaded))
	assert.Contains(t, err.Error(), "missing.model")
}

func TestServicePredict(t *testing.T) {
	fake := newFake(0.1, 0.7, 0.2)
	service := NewService(staticLoader(fake, nil), mustClasses(t), nil)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	pred, err := service.Predict(ctx, leafPNG(t))
	require.NoError(t, err)

	assert.Equal(t, "req-1", pred.RequestID)
	assert.Equal(t, 1, pred.ClassIndex)
	assert.Equal(t, "Potato___Late_blight", pred.Label.Raw)
	assert.Equal(t, "Potato", pred.Label.Plant)
	assert.Equal(t, "Late blight", pred.Label.Status)
	assert.InDelta(t, 70.0, pred.Confidence, 1e-4)
	assert.Equal(t, images.FormatPNG, pred.Image.Format)
	assert.Equal(t, 20, pred.Image.Width)
	assert.Equal(t, 14, pred.Image.Height)
	assert.NotNil(t, pred.Raster)
	assert.Equal(t, int32(8*8*3), fake.lastLen.Load())

	require.Len(t, pred.Probabilities, 3)
	var sum float64
	for i, p := range pred.Probabilities {
		assert.Equal(t, potatoClasses[i], p.Class)
		sum += p.Probability
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestServicePredictAppliesSoftmaxToScores(t *testing.T) {
	fake := newFake(2.0, -1.0, 0.5)
	service := NewService(staticLoader(fake, nil), mustClasses(t), nil)

	pred, err := service.Predict(context.Background(), leafPNG(t))
	require.NoError(t, err)

	var sum float64
	for _, p := range pred.Probabilities {
		assert.Greater(t, p.Probability, 0.0)
		sum += p.Probability
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
	assert.Equal(t, 0, pred.ClassIndex)
	assert.NotEmpty(t, pred.RequestID)
}

func TestServicePredictKeepsSoftmaxOutputs(t *testing.T) {
	fake := newFake(0.7, 0.2, 0.1)
	service := NewService(staticLoader(fake, nil), mustClasses(t), nil)

	pred, err := service.Predict(context.Background(), leafPNG(t))
	require.NoError(t, err)

	assert.Equal(t, 0, pred.ClassIndex)
	assert.InDelta(t, 70.0, pred.Confidence, 1e-4)
	want := []float64{0.7, 0.2, 0.1}
	require.Len(t, pred.Probabilities, len(want))
	for i, p := range pred.Probabilities {
		assert.InDelta(t, want[i], p.Probability, 1e-6)
	}
}

func TestProbabilities(t *testing.T) {
	tests := []struct {
		name string
		out  []float32
		want []float64
	}{
		{"distribution", []float32{0.7, 0.2, 0.1}, []float64{0.7, 0.2, 0.1}},
		{"near distribution", []float32{0.5, 0.25, 0.2504}, []float64{0.5 / 1.0004, 0.25 / 1.0004, 0.2504 / 1.0004}},
		{"logits", []float32{0, 0, 0}, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
		{"negative scores", []float32{1, -1, 1}, []float64{0.4683105, 0.0633789, 0.4683105}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probs, err := probabilities(tt.out)
			require.NoError(t, err)
			require.Len(t, probs, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], probs[i], 1e-5)
			}
		})
	}

	_, err := probabilities([]float32{0.5, float32(math.NaN()), 0.5})
	assert.Error(t, err)
}

func TestServiceRejectsImagesAboveMaxPixels(t *testing.T) {
	fake := newFake(0.5, 0.25, 0.25)
	service := NewService(staticLoader(fake, nil), mustClasses(t), nil, WithMaxPixels(8))

	_, err := service.Predict(context.Background(), leafPNG(t))
	var decodeErr *images.DecodeError
	require.True(t, errors.As(err, &decodeErr), "expected *images.DecodeError, got %T", err)
	assert.Contains(t, err.Error(), "pixel limit")
	assert.Zero(t, fake.calls.Load())
}

func TestServiceDecodeErrorKeepsServiceUsable(t *testing.T) {
	fake := newFake(0.5, 0.25, 0.25)
	service := NewService(staticLoader(fake, nil), mustClasses(t), nil)

	_, err := service.Predict(context.Background(), []byte("definitely not an image"))
	var decodeErr *images.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Zero(t, fake.calls.Load())

	pred, err := service.Predict(context.Background(), leafPNG(t))
	require.NoError(t, err)
	assert.Equal(t, "Potato___Early_blight", pred.Label.Raw)
}

func TestServiceRecoversFromPanics(t *testing.T) {
	fake := newFake(0.2, 0.2, 0.6)
	fake.panicMsg = "index out of range"
	service := NewService(staticLoader(fake, nil), mustClasses(t), nil)

	_, err := service.Predict(ContextWithRequestID(context.Background(), "req-9"), leafPNG(t))
	var inferenceErr *InferenceError
	require.True(t, errors.As(err, &inferenceErr))
	assert.Equal(t, "forward", inferenceErr.Stage)
	assert.Equal(t, "req-9", inferenceErr.RequestID)
	assert.Contains(t, err.Error(), "index out of range")

	pred, err := service.Predict(context.Background(), leafPNG(t))
	require.NoError(t, err)
	assert.Equal(t, 2, pred.ClassIndex)
}

func TestServiceForwardFailures(t *testing.T) {
	t.Run("backend error", func(t *testing.T) {
		fake := newFake(0.2, 0.2, 0.6)
		fake.err = errors.New("session lost")
		service := NewService(staticLoader(fake, nil), mustClasses(t), nil)

		_, err := service.Predict(context.Background(), leafPNG(t))
		var inferenceErr *InferenceError
		require.True(t, errors.As(err, &inferenceErr))
		assert.Equal(t, "forward", inferenceErr.Stage)
	})

	t.Run("wrong width at runtime", func(t *testing.T) {
		fake := newFake(0.2, 0.2, 0.6)
		fake.output = []float32{0.5, 0.5}
		service := NewService(staticLoader(fake, nil), mustClasses(t), nil)

		_, err := service.Predict(context.Background(), leafPNG(t))
		var inferenceErr *InferenceError
		require.True(t, errors.As(err, &inferenceErr))
		assert.Equal(t, "postprocess", inferenceErr.Stage)
	})

	t.Run("not finite", func(t *testing.T) {
		fake := newFake(0.2, 0.2, 0.6)
		fake.output = []float32{float32(nan()), 0, 0}
		service := NewService(staticLoader(fake, nil), mustClasses(t), nil)

		_, err := service.Predict(context.Background(), leafPNG(t))
		var inferenceErr *InferenceError
		require.True(t, errors.As(err, &inferenceErr))
	})
}

func TestServiceRejectsMismatchedModel(t *testing.T) {
	t.Run("output width", func(t *testing.T) {
		fake := newFake(0.5, 0.5)
		service := NewService(staticLoader(fake, nil), mustClasses(t), nil)
		err := service.Load(context.Background())
		assert.True(t, errors.Is(err, ErrModelNotLoaded))
		assert.True(t, fake.closed.Load())
	})

	t.Run("class order", func(t *testing.T) {
		fake := newFake(0.2, 0.3, 0.5)
		fake.spec.Classes = []string{"Potato___healthy", "Potato___Early_blight", "Potato___Late_blight"}
		service := NewService(staticLoader(fake, nil), mustClasses(t), nil)
		err := service.Load(context.Background())
		assert.True(t, errors.Is(err, ErrModelNotLoaded))
		assert.Contains(t, err.Error(), "class order")
	})
}

func TestServiceClose(t *testing.T) {
	fake := newFake(0.2, 0.3, 0.5)
	service := NewService(staticLoader(fake, nil), mustClasses(t), nil)
	require.NoError(t, service.Load(context.Background()))
	require.NoError(t, service.Close())
	assert.True(t, fake.closed.Load())
	assert.False(t, service.Ready())

	_, err := service.Predict(context.Background(), leafPNG(t))
	assert.True(t, errors.Is(err, ErrModelNotLoaded))
}

func TestGorgoniaBackendEndToEnd(t *testing.T) {
	topology := cnn.Topology{
		InputShape:  []int{12, 12, 3},
		ConvFilters: []int{2, 2, 2},
		DenseUnits:  4,
		DropoutRate: 0.5,
		NumClasses:  3,
	}
	net, err := cnn.New(topology, 42)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "leaf.model")
	require.NoError(t, cnn.Save(path, net, potatoClasses))

	params := config.Default()
	params.Inference.ModelPath = path
	service := NewService(NewLoader(params), mustClasses(t), nil)
	defer service.Close()

	require.NoError(t, service.Load(context.Background()))
	spec, err := service.Spec()
	require.NoError(t, err)
	assert.Equal(t, 12, spec.Preprocess.Size)
	assert.Equal(t, images.ChannelOrderCHW, spec.Preprocess.ChannelOrder)
	assert.Equal(t, potatoClasses, spec.Classes)

	pred, err := service.Predict(context.Background(), leafPNG(t))
	require.NoError(t, err)
	var sum float64
	for _, p := range pred.Probabilities {
		sum += p.Probability
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
	assert.GreaterOrEqual(t, pred.Confidence, 100.0/3.0-1e-6)
}

func TestLoadGorgoniaMissingFile(t *testing.T) {
	_, err := LoadGorgonia(filepath.Join(t.TempDir(), "absent.model"))
	var loadErr *ModelLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, config.BackendGorgonia, loadErr.Backend)
	assert.True(t, errors.Is(err, ErrModelNotLoaded))
}

func TestLoadONNXMissingFiles(t *testing.T) {
	dir := t.TempDir()
	params := config.Default()
	params.Inference.Backend = config.BackendONNX
	params.Inference.ModelPath = filepath.Join(dir, "plant_disease_model.onnx")
	params.Inference.ONNX.SharedLibrary = filepath.Join(dir, "onnxruntime.so")

	_, err := NewLoader(params)(context.Background())
	var loadErr *ModelLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, config.BackendONNX, loadErr.Backend)
	assert.Contains(t, err.Error(), "model file not accessible")

	_, err = LoadONNX(ONNXOptions{ModelPath: params.Inference.ModelPath})
	assert.True(t, errors.Is(err, ErrModelNotLoaded))
}

func TestRequestIDFromContext(t *testing.T) {
	assert.Equal(t, "abc", RequestIDFromContext(ContextWithRequestID(context.Background(), "abc")))
	generated := RequestIDFromContext(context.Background())
	assert.Len(t, generated, 36)
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}

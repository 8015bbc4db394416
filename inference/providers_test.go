package inference

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExecutionProvider(t *testing.T) {
	tests := []struct {
		name string
		want ExecutionProvider
		err  bool
	}{
		{name: "", want: ProviderCPU},
		{name: "cpu", want: ProviderCPU},
		{name: "cuda", want: ProviderCUDA},
		{name: "coreml", want: ProviderCoreML},
		{name: "openvino", want: ProviderOpenVINO},
		{name: "tpu", err: true},
		{name: "CUDA", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExecutionProvider(tt.name)
			if tt.err {
				assert.True(t, errors.Is(err, ErrUnknownProvider))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadONNXRejectsUnknownProvider(t *testing.T) {
	_, err := LoadONNX(ONNXOptions{
		ModelPath:  filepath.Join(t.TempDir(), "model.onnx"),
		ImageSize:  256,
		NumClasses: 3,
		Provider:   "tpu",
	})
	var loadErr *ModelLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

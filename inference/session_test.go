package inference

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/metal-classifier/inference/providers"
	"github.com/nvr-ai/metal-classifier/models/metal"
)

// TestStaticShape replaces dynamic dimensions with 1.
func TestStaticShape(t *testing.T) {
	assert.Equal(t, ort.NewShape(1, 224, 224, 3), staticShape(ort.NewShape(-1, 224, 224, 3)))
	assert.Equal(t, ort.NewShape(1, 8), staticShape(ort.NewShape(0, 8)))
}

// TestSelectTensor picks by name or falls back to the first tensor.
func TestSelectTensor(t *testing.T) {
	infos := []ort.InputOutputInfo{{Name: "input_1"}, {Name: "aux"}}

	info, err := selectTensor(infos, "", "input")
	require.NoError(t, err)
	assert.Equal(t, "input_1", info.Name)

	info, err = selectTensor(infos, "aux", "input")
	require.NoError(t, err)
	assert.Equal(t, "aux", info.Name)

	_, err = selectTensor(infos, "missing", "input")
	assert.Error(t, err)

	_, err = selectTensor(nil, "", "output")
	assert.Error(t, err)
}

// TestSessionRun exercises a real model when the runtime and model file are available.
//
// Set ONNXRUNTIME_LIB and METAL_MODEL_PATH to enable it.
func TestSessionRun(t *testing.T) {
	modelPath := os.Getenv("METAL_MODEL_PATH")
	if os.Getenv(providers.LibraryEnv) == "" || modelPath == "" {
		t.Skip("ONNXRUNTIME_LIB and METAL_MODEL_PATH are required")
	}

	require.NoError(t, InitializeRuntime(""))
	defer DestroyRuntime()

	s, err := NewSession(NewSessionArgs{
		ModelPath:    modelPath,
		Spec:         metal.DefaultSpec(),
		Optimization: providers.DefaultOptimizationConfig(),
	})
	require.NoError(t, err)
	defer s.Close()

	out, err := s.Run(context.Background(), make([]float32, 224*224*3))
	require.NoError(t, err)
	require.Len(t, out, 8)

	var sum float32
	for _, v := range out {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-3)

	_, err = s.Run(context.Background(), make([]float32, 3))
	assert.Error(t, err)

	require.NoError(t, s.Close())
	_, err = s.Run(context.Background(), make([]float32, 224*224*3))
	assert.Error(t, err)
}

package metal

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/metal-classifier/models/model"
)

// TestNewModelDefaults verifies the 8 class, 224x224 NHWC layout.
func TestNewModelDefaults(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{})
	require.NoError(t, err)

	spec := m.Spec()
	assert.Equal(t, model.ModelNameMetal, spec.Name)
	assert.Equal(t, Classes, spec.Classes)
	assert.Equal(t, []int64{1, 224, 224, 3}, spec.InputShape)
	assert.Equal(t, []int64{1, 8}, spec.OutputShape)

	idx, ok := m.Classes().Index("rose_gold")
	assert.True(t, ok)
	assert.Equal(t, 3, idx)
}

// TestPreProcessShape checks the tensor length matches the input shape for odd sized inputs.
func TestPreProcessShape(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{})
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 317, 123))
	for y := 0; y < 123; y++ {
		for x := 0; x < 317; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 183, G: 110, B: 121, A: 255})
		}
	}

	data, err := m.PreProcess(img)
	require.NoError(t, err)
	assert.Len(t, data, m.Spec().InputSize())
	assert.InDelta(t, 183, data[0], 1)
}

// TestPostProcessTop3 verifies the three most probable finishes are returned.
func TestPostProcessTop3(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{})
	require.NoError(t, err)

	preds, err := m.PostProcess([]float32{0.01, 0.02, 0.5, 0.01, 0.3, 0.01, 0.1, 0.05}, 3)
	require.NoError(t, err)

	require.Len(t, preds, 3)
	assert.Equal(t, "platinum", preds[0].Class)
	assert.Equal(t, "silver", preds[1].Class)
	assert.Equal(t, "white_gold", preds[2].Class)
}

// TestPostProcessSoftmax verifies logits exports are converted to probabilities.
func TestPostProcessSoftmax(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{ApplySoftmax: true})
	require.NoError(t, err)

	preds, err := m.PostProcess([]float32{0, 0, 0, 0, 0, 0, 0, 10}, 1)
	require.NoError(t, err)
	assert.Equal(t, "yellow_gold", preds[0].Class)
	assert.InDelta(t, 0.9997, preds[0].Probability, 1e-4)
}

// TestPostProcessWrongLength ensures a mismatched output is reported.
func TestPostProcessWrongLength(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{})
	require.NoError(t, err)

	_, err = m.PostProcess([]float32{1, 2, 3}, 3)
	assert.Error(t, err)
}

// TestNewModelOverrides verifies argument and metadata overrides, including CHW exports.
func TestNewModelOverrides(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{ImageSize: 160, Classes: []string{"gold", "silver"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 160, 160, 3}, m.Spec().InputShape)
	assert.Equal(t, []int64{1, 2}, m.Spec().OutputShape)

	path := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"input_shape":[1,3,224,224],"input_name":"pixel_values"}`), 0o600))

	m, err = NewModel(model.NewModelArgs{MetadataPath: path})
	require.NoError(t, err)
	assert.Equal(t, "pixel_values", m.Spec().InputName)

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	data, err := m.PreProcess(img)
	require.NoError(t, err)
	assert.Len(t, data, 3*224*224)
}

// TestNewModelInvalid ensures inconsistent overrides are rejected.
func TestNewModelInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"output_shape":[1,5]}`), 0o600))

	_, err := NewModel(model.NewModelArgs{MetadataPath: path})
	assert.ErrorContains(t, err, "5 scores for 8 classes")

	_, err = NewModel(model.NewModelArgs{MetadataPath: filepath.Join(t.TempDir(), "none.json")})
	assert.Error(t, err)
}

// Package metal - MobileNetV3-Large classifier for jewelry metal finishes.
package metal

import (
	"image"

	"github.com/pkg/errors"

	"github.com/nvr-ai/metal-classifier/models/model"
	"github.com/nvr-ai/metal-classifier/models/model/preprocess"
	"github.com/nvr-ai/metal-classifier/models/postprocess"
)

// ImageSize is the square input edge the network was trained on.
const ImageSize = 224

// Classes are the metal finish labels in model output order.
var Classes = []string{
	"black_gold",
	"gold",
	"platinum",
	"rose_gold",
	"silver",
	"two_tone",
	"white_gold",
	"yellow_gold",
}

// Model is the metal finish classifier.
type Model struct {
	spec         model.Spec
	classes      model.ClassSet
	preprocessor *preprocess.Preprocessor
	applySoftmax bool
}

// DefaultSpec returns the tensor layout of the Keras export: NHWC float32 input and one
// softmax probability per class.
func DefaultSpec() model.Spec {
	return model.Spec{
		Name:        model.ModelNameMetal,
		Classes:     append([]string(nil), Classes...),
		InputShape:  []int64{1, ImageSize, ImageSize, 3},
		OutputShape: []int64{1, int64(len(Classes))},
		ImageSize:   ImageSize,
	}
}

// NewModel creates the classifier.
//
// Overrides are applied in order: arguments, then the metadata sidecar when one is given.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *Model: The classifier.
//   - error: An error if the metadata cannot be read or the resulting spec is inconsistent.
func NewModel(args model.NewModelArgs) (*Model, error) {
	spec := DefaultSpec()

	if args.ImageSize > 0 && args.ImageSize != spec.ImageSize {
		spec.ImageSize = args.ImageSize
		spec.InputShape = []int64{1, int64(args.ImageSize), int64(args.ImageSize), 3}
	}
	if len(args.Classes) > 0 {
		spec.Classes = append([]string(nil), args.Classes...)
		spec.OutputShape = []int64{1, int64(len(args.Classes))}
	}

	if args.MetadataPath != "" {
		meta, err := model.LoadMetadata(args.MetadataPath)
		if err != nil {
			return nil, err
		}
		spec = spec.Merge(*meta)
	}

	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid metal model spec")
	}

	classes, err := model.NewClassSet(spec.Classes)
	if err != nil {
		return nil, err
	}

	cfg := preprocess.MobileNetV3Config(spec.ImageSize)
	if isCHW(spec.InputShape) {
		cfg.ChannelOrder = preprocess.ChannelOrderCHW
	}
	preprocessor, err := preprocess.NewPreprocessor(cfg)
	if err != nil {
		return nil, err
	}

	return &Model{
		spec:         spec,
		classes:      classes,
		preprocessor: preprocessor,
		applySoftmax: args.ApplySoftmax,
	}, nil
}

// isCHW reports whether a 4D shape puts the 3 color channels before the spatial axes.
func isCHW(shape []int64) bool {
	return len(shape) == 4 && shape[1] == 3 && shape[3] != 3
}

// Spec returns the tensor and label description.
func (m *Model) Spec() model.Spec {
	return m.spec
}

// Classes returns the indexed labels.
func (m *Model) Classes() model.ClassSet {
	return m.classes
}

// PreProcess resizes the image and lays it out as the network input.
//
// Arguments:
//   - img: The decoded image.
//
// Returns:
//   - []float32: The flattened input tensor.
//   - error: An error if preprocessing fails.
func (m *Model) PreProcess(img image.Image) ([]float32, error) {
	result, err := m.preprocessor.Preprocess(img)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// PostProcess ranks the class probabilities.
//
// Arguments:
//   - output: The raw output tensor.
//   - k: The number of predictions to return.
//
// Returns:
//   - []postprocess.Prediction: The ranked predictions.
//   - error: An error if the output does not match the class list.
func (m *Model) PostProcess(output []float32, k int) ([]postprocess.Prediction, error) {
	scores := output
	if m.applySoftmax {
		scores = postprocess.Softmax(output)
	}
	return postprocess.TopK(scores, m.spec.Classes, k)
}

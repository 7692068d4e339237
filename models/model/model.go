// Package model - The contract between classification models and the inference engine.
package model

import (
	"encoding/json"
	"image"
	"os"

	"github.com/pkg/errors"

	"github.com/nvr-ai/metal-classifier/models/postprocess"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameMetal is the MobileNetV3 metal finish classifier.
	ModelNameMetal Name = "metal-mobilenetv3"
)

// Spec describes the tensors and labels of a frozen model.
type Spec struct {
	// Name identifies the model.
	Name Name `json:"name" yaml:"name"`
	// Classes are the labels in output order.
	Classes []string `json:"classes" yaml:"classes"`
	// InputName is the graph input node; empty means the first input.
	InputName string `json:"input_name" yaml:"input_name"`
	// OutputName is the graph output node; empty means the first output.
	OutputName string `json:"output_name" yaml:"output_name"`
	// InputShape is the input tensor shape including the batch dimension.
	InputShape []int64 `json:"input_shape" yaml:"input_shape"`
	// OutputShape is the output tensor shape including the batch dimension.
	OutputShape []int64 `json:"output_shape" yaml:"output_shape"`
	// ImageSize is the square input edge in pixels.
	ImageSize int `json:"image_size" yaml:"image_size"`
}

// InputSize returns the number of elements in one input tensor.
func (s Spec) InputSize() int {
	return elements(s.InputShape)
}

// OutputSize returns the number of elements in one output tensor.
func (s Spec) OutputSize() int {
	return elements(s.OutputShape)
}

// elements multiplies the dimensions of a shape, treating dynamic (<1) dimensions as 1.
func elements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		if d > 1 {
			n *= int(d)
		}
	}
	return n
}

// Model is a frozen classifier that knows how to build its input and read its output.
type Model interface {
	// Spec returns the tensor and label description.
	Spec() Spec
	// PreProcess converts a decoded image into the flattened input tensor.
	PreProcess(img image.Image) ([]float32, error)
	// PostProcess ranks the raw output and returns the k best classes.
	PostProcess(output []float32, k int) ([]postprocess.Prediction, error)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name         Name   `json:"name" yaml:"name"`
	Path         string `json:"path" yaml:"path"`
	MetadataPath string `json:"metadata_path" yaml:"metadata_path"`
	// ImageSize overrides the model's default input edge when positive.
	ImageSize int `json:"image_size" yaml:"image_size"`
	// Classes overrides the model's default labels when non-empty.
	Classes []string `json:"classes" yaml:"classes"`
	// ApplySoftmax converts logits to probabilities in PostProcess.
	ApplySoftmax bool `json:"apply_softmax" yaml:"apply_softmax"`
}

// Metadata is the JSON sidecar written next to an exported model.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
}

// LoadMetadata reads a metadata sidecar file.
//
// Arguments:
//   - path: The JSON file path.
//
// Returns:
//   - *Metadata: The parsed metadata.
//   - error: An error if the file cannot be read or parsed.
func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read metadata")
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrap(err, "failed to parse metadata")
	}

	return &meta, nil
}

// Merge returns a copy of the spec with every non-zero metadata field applied.
//
// Arguments:
//   - meta: The metadata to apply.
//
// Returns:
//   - Spec: The merged spec.
func (s Spec) Merge(meta Metadata) Spec {
	out := s
	if len(meta.InputShape) > 0 {
		out.InputShape = append([]int64(nil), meta.InputShape...)
	}
	if len(meta.OutputShape) > 0 {
		out.OutputShape = append([]int64(nil), meta.OutputShape...)
	}
	if len(meta.Classes) > 0 {
		out.Classes = append([]string(nil), meta.Classes...)
	}
	if meta.ImageSize > 0 {
		out.ImageSize = meta.ImageSize
	}
	if meta.InputName != "" {
		out.InputName = meta.InputName
	}
	if meta.OutputName != "" {
		out.OutputName = meta.OutputName
	}
	return out
}

// Validate checks that the spec is internally consistent.
//
// Returns:
//   - error: The first inconsistency found, or nil.
func (s Spec) Validate() error {
	if s.ImageSize <= 0 {
		return errors.Errorf("image size must be positive, got %d", s.ImageSize)
	}
	if _, err := NewClassSet(s.Classes); err != nil {
		return err
	}
	if n := s.OutputSize(); n != len(s.Classes) {
		return errors.Errorf("output shape %v holds %d scores for %d classes", s.OutputShape, n, len(s.Classes))
	}
	if want := s.ImageSize * s.ImageSize * 3; s.InputSize() != want {
		return errors.Errorf("input shape %v does not hold a %dx%d RGB image", s.InputShape, s.ImageSize, s.ImageSize)
	}
	return nil
}

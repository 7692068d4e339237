// Package models - registry for models.
package models

import (
	"fmt"

	"github.com/nvr-ai/metal-classifier/models/metal"
	"github.com/nvr-ai/metal-classifier/models/model"
)

// NewModel creates a new classification model instance based on the specified model name.
//
// An empty name selects the metal finish classifier.
//
// Arguments:
//   - args: Configuration parameters specifying the model name and overrides.
//
// Returns:
//   - model.Model: A fully configured model instance implementing the Model interface.
//   - error: An error if the model name is unsupported or the model cannot be configured.
func NewModel(args model.NewModelArgs) (model.Model, error) {
	switch args.Name {
	case model.ModelNameMetal, "":
		m, err := metal.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model name: %s", args.Name)
	}
}

// Names lists the registered model names.
func Names() []model.Name {
	return []model.Name{model.ModelNameMetal}
}

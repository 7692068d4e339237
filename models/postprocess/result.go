// Package postprocess - Postprocessing utilities for classification outputs.
package postprocess

// Prediction represents a single ranked classification result.
type Prediction struct {
	// The class label.
	Class string `json:"class"`
	// The index of the class in the model output.
	Index int `json:"-"`
	// The probability, rounded to four decimals.
	Probability float64 `json:"probability"`
}

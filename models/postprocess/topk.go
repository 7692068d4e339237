package postprocess

import (
	"sort"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ProbabilityDecimals is the number of decimals kept in reported probabilities.
const ProbabilityDecimals = 4

// Softmax converts raw scores into a probability distribution.
//
// The maximum score is subtracted before exponentiation so large logits do not overflow.
//
// Arguments:
//   - scores: The raw model outputs.
//
// Returns:
//   - []float32: Probabilities summing to one, or nil for empty input.
func Softmax(scores []float32) []float32 {
	if len(scores) == 0 {
		return nil
	}

	maxScore := math32.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]float32, len(scores))
	var sum float32
	for i, s := range scores {
		out[i] = math32.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// TopK returns the k highest scoring classes in descending order.
//
// Equal scores are ordered by descending class index. k is clamped to the number of classes.
//
// Arguments:
//   - scores: One score per class, in class order.
//   - classes: The class labels.
//   - k: The number of predictions to return.
//
// Returns:
//   - []Prediction: The ranked predictions with probabilities rounded to four decimals.
//   - error: An error if the inputs are inconsistent.
func TopK(scores []float32, classes []string, k int) ([]Prediction, error) {
	if len(scores) == 0 {
		return nil, errors.New("model returned no scores")
	}
	if len(scores) != len(classes) {
		return nil, errors.Errorf("model returned %d scores for %d classes", len(scores), len(classes))
	}
	if k < 1 {
		return nil, errors.Errorf("k must be at least 1, got %d", k)
	}
	for i, s := range scores {
		if math32.IsNaN(s) {
			return nil, errors.Errorf("score for class %s is NaN", classes[i])
		}
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		return sa > sb || (sa == sb && order[a] > order[b])
	})

	if k > len(order) {
		k = len(order)
	}

	predictions := make([]Prediction, k)
	for i, idx := range order[:k] {
		predictions[i] = Prediction{
			Class:       classes[idx],
			Index:       idx,
			Probability: Round(float64(scores[idx]), ProbabilityDecimals),
		}
	}
	return predictions, nil
}

// Round rounds v to the given number of decimals. Rounding is applied to the
// exact binary value of v and exact halfway values round to even.
func Round(v float64, decimals int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	if err != nil {
		return v
	}
	return r
}

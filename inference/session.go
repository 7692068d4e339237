// Package inference - Runs a classification model on ONNX Runtime.
package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/metal-classifier/inference/providers"
	"github.com/nvr-ai/metal-classifier/models/model"
)

// Runner executes a model on a flattened input tensor.
type Runner interface {
	// Run returns a copy of the output tensor for one input.
	Run(ctx context.Context, input []float32) ([]float32, error)
	// Close releases the runner's resources.
	Close() error
}

// NewSessionArgs is the arguments for creating a new session.
type NewSessionArgs struct {
	// ModelPath is the ONNX file.
	ModelPath string
	// Spec supplies tensor names and the expected element counts.
	Spec model.Spec
	// Provider is the execution provider; nil selects the CPU.
	Provider providers.ExecutionProvider
	// Optimization tunes the session.
	Optimization providers.OptimizationConfig
}

// Session represents a model session from the onnxruntime.
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	mu      sync.Mutex
}

// NewSession creates a session bound to preallocated input and output tensors.
//
// The graph's declared shapes are used with dynamic dimensions set to 1. They must hold the
// same number of elements as the model spec.
//
// Arguments:
//   - args: The session arguments.
//
// Returns:
//   - *Session: The session.
//   - error: An error if the model cannot be loaded or does not match the spec.
func NewSession(args NewSessionArgs) (*Session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(args.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to inspect model %s", args.ModelPath)
	}

	in, err := selectTensor(inputs, args.Spec.InputName, "input")
	if err != nil {
		return nil, err
	}
	out, err := selectTensor(outputs, args.Spec.OutputName, "output")
	if err != nil {
		return nil, err
	}

	inShape := staticShape(in.Dimensions)
	if got, want := int(inShape.FlattenedSize()), args.Spec.InputSize(); got != want {
		return nil, errors.Errorf("model input %s has shape %v, expected %d elements", in.Name, in.Dimensions, want)
	}
	outShape := staticShape(out.Dimensions)
	if got, want := int(outShape.FlattenedSize()), args.Spec.OutputSize(); got != want {
		return nil, errors.Errorf("model output %s has shape %v, expected %d elements", out.Name, out.Dimensions, want)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "failed to create output tensor")
	}

	options, err := providers.NewSessionOptions(args.Provider, args.Optimization)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{in.Name},
		[]string{out.Name},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "failed to create onnxruntime session")
	}

	return &Session{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// selectTensor finds a tensor by name, or the first one when name is empty.
func selectTensor(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, errors.Errorf("model has no %s tensors", kind)
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, errors.Errorf("model has no %s named %q", kind, name)
}

// staticShape replaces dynamic dimensions with 1.
func staticShape(dims ort.Shape) ort.Shape {
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d < 1 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

// Run copies the input into the session, runs it and returns a copy of the output.
//
// Arguments:
//   - ctx: Checked before the run starts; a running inference cannot be interrupted.
//   - input: The flattened input tensor.
//
// Returns:
//   - []float32: The output tensor.
//   - error: An error if the input size is wrong or inference fails.
func (s *Session) Run(ctx context.Context, input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("session is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := s.input.GetData()
	if len(input) != len(dst) {
		return nil, errors.Errorf("input has %d elements, session expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	return append([]float32(nil), s.output.GetData()...), nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	return err
}

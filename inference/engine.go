package inference

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/metal-classifier/images"
	"github.com/nvr-ai/metal-classifier/inference/providers"
	"github.com/nvr-ai/metal-classifier/models"
	"github.com/nvr-ai/metal-classifier/models/model"
	"github.com/nvr-ai/metal-classifier/models/postprocess"
)

// Engine classifies images with a loaded model.
type Engine interface {
	// Classify ranks the classes for a decoded image.
	Classify(ctx context.Context, img image.Image) ([]postprocess.Prediction, error)
	// ClassifyBytes decodes an encoded image and classifies it.
	ClassifyBytes(ctx context.Context, data []byte) ([]postprocess.Prediction, error)
	// Model returns the loaded model.
	Model() model.Model
	// Close releases the sessions.
	Close() error
}

// EngineBuilder assembles an Engine with a fluent API.
//
// The first failing step is remembered and returned by Build.
type EngineBuilder struct {
	provider     providers.ExecutionProvider
	optimization providers.OptimizationConfig
	model        model.Model
	modelPath    string
	runner       Runner
	topK         int
	warmup       int
	decode       images.DecodeOptions
	metrics      *Metrics
	logger       logrus.FieldLogger
	err          error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		optimization: providers.DefaultOptimizationConfig(),
		topK:         3,
		logger:       logrus.StandardLogger(),
	}
}

// WithProvider sets the execution provider for the sessions.
//
// Arguments:
//   - backend: The provider backend name.
//   - deviceID: The accelerator index.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(backend string, deviceID int) *EngineBuilder {
	if b.HasError() {
		return b
	}

	provider, err := providers.NewProviderForBackend(backend, deviceID)
	if err != nil {
		b.err = err
		return b
	}
	b.provider = provider
	return b
}

// WithThreads sets the intra and inter op thread counts; 0 lets the runtime decide.
func (b *EngineBuilder) WithThreads(intraOp, interOp int) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.optimization.IntraOpNumThreads = intraOp
	b.optimization.InterOpNumThreads = interOp
	return b
}

// WithModel resolves the model from the registry.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args model.NewModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}

	m, err := models.NewModel(args)
	if err != nil {
		b.err = err
		return b
	}
	b.model = m
	b.modelPath = args.Path
	return b
}

// WithRunner uses an existing runner instead of creating sessions.
func (b *EngineBuilder) WithRunner(r Runner) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.runner = r
	return b
}

// WithSessions initializes the runtime and creates a pool of sessions for the model.
//
// Arguments:
//   - libraryPath: The onnxruntime shared library, or "" for the default.
//   - size: The number of sessions.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithSessions(libraryPath string, size int) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if b.model == nil {
		b.err = errors.New("model must be configured before sessions")
		return b
	}
	if size < 1 {
		b.err = errors.Errorf("session pool size must be at least 1, got %d", size)
		return b
	}

	if err := InitializeRuntime(libraryPath); err != nil {
		b.err = err
		return b
	}

	runners := make([]Runner, 0, size)
	for i := 0; i < size; i++ {
		s, err := NewSession(NewSessionArgs{
			ModelPath:    b.modelPath,
			Spec:         b.model.Spec(),
			Provider:     b.provider,
			Optimization: b.optimization,
		})
		if err != nil {
			for _, r := range runners {
				r.Close()
			}
			b.err = errors.Wrapf(err, "failed to create session %d", i)
			return b
		}
		runners = append(runners, s)
	}

	pool, err := NewPool(runners...)
	if err != nil {
		b.err = err
		return b
	}
	b.runner = pool
	return b
}

// WithTopK sets the number of predictions returned.
func (b *EngineBuilder) WithTopK(k int) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if k < 1 {
		b.err = errors.Errorf("top k must be at least 1, got %d", k)
		return b
	}
	b.topK = k
	return b
}

// WithWarmup sets the number of inference runs performed by Build.
func (b *EngineBuilder) WithWarmup(n int) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.warmup = n
	return b
}

// WithDecodeOptions sets how ClassifyBytes decodes images.
func (b *EngineBuilder) WithDecodeOptions(opts images.DecodeOptions) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.decode = opts
	return b
}

// WithMetrics records classification metrics.
func (b *EngineBuilder) WithMetrics(m *Metrics) *EngineBuilder {
	b.metrics = m
	return b
}

// WithLogger sets the logger.
func (b *EngineBuilder) WithLogger(l logrus.FieldLogger) *EngineBuilder {
	if l != nil {
		b.logger = l
	}
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - Engine: The engine.
func (b *EngineBuilder) MustBuild() Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine and runs the warmup inferences.
//
// Returns:
//   - Engine: The engine.
//   - error: The first configuration error, or a warmup failure.
func (b *EngineBuilder) Build() (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.model == nil {
		return nil, errors.New("model not configured")
	}
	if b.runner == nil {
		return nil, errors.New("runner not configured")
	}

	if pool, ok := b.runner.(*Pool); ok {
		pool.metrics = b.metrics
	}

	e := &engine{
		model:   b.model,
		runner:  b.runner,
		topK:    b.topK,
		decode:  b.decode,
		metrics: b.metrics,
		logger:  b.logger,
	}

	if err := e.warmup(b.warmup); err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

// engine implements the Engine interface.
type engine struct {
	model   model.Model
	runner  Runner
	topK    int
	decode  images.DecodeOptions
	metrics *Metrics
	logger  logrus.FieldLogger
}

// warmup runs blank inputs through the runner so the first request does not pay for lazy
// allocation.
func (e *engine) warmup(n int) error {
	if n <= 0 {
		return nil
	}

	input := make([]float32, e.model.Spec().InputSize())
	start := time.Now()
	for i := 0; i < n; i++ {
		if _, err := e.runner.Run(context.Background(), input); err != nil {
			return errors.Wrap(err, "warmup inference failed")
		}
	}
	e.logger.WithFields(logrus.Fields{
		"runs":     n,
		"duration": time.Since(start).String(),
	}).Info("model warmed up")
	return nil
}

// Classify ranks the classes for a decoded image.
//
// Arguments:
//   - ctx: The context for the inference.
//   - img: The decoded image.
//
// Returns:
//   - []postprocess.Prediction: The top classes, highest probability first.
//   - error: An error if any stage fails.
func (e *engine) Classify(ctx context.Context, img image.Image) (predictions []postprocess.Prediction, err error) {
	defer func() {
		top := ""
		if len(predictions) > 0 {
			top = predictions[0].Class
		}
		e.metrics.result(err, top)
	}()

	start := time.Now()
	input, err := e.model.PreProcess(img)
	if err != nil {
		return nil, errors.Wrap(err, "failed to preprocess image")
	}
	e.metrics.observe("preprocess", start)

	start = time.Now()
	output, err := e.runner.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	e.metrics.observe("inference", start)

	predictions, err = e.model.PostProcess(output, e.topK)
	if err != nil {
		return nil, errors.Wrap(err, "failed to rank predictions")
	}

	e.logger.WithFields(logrus.Fields{
		"class":       predictions[0].Class,
		"probability": predictions[0].Probability,
	}).Debug("image classified")

	return predictions, nil
}

// ClassifyBytes decodes an encoded image and classifies it.
//
// Arguments:
//   - ctx: The context for the inference.
//   - data: The encoded image.
//
// Returns:
//   - []postprocess.Prediction: The top classes, highest probability first.
//   - error: An error if the image cannot be decoded or classified.
func (e *engine) ClassifyBytes(ctx context.Context, data []byte) ([]postprocess.Prediction, error) {
	start := time.Now()
	_, img, err := images.Load(data, e.decode)
	if err != nil {
		e.metrics.result(err, "")
		return nil, err
	}
	e.metrics.observe("decode", start)

	return e.Classify(ctx, img)
}

// Model returns the loaded model.
func (e *engine) Model() model.Model {
	return e.model
}

// Close releases the sessions.
func (e *engine) Close() error {
	return e.runner.Close()
}

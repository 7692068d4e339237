package inference

import (
	"github.com/nvr-ai/metal-classifier/config"
	"github.com/nvr-ai/metal-classifier/images"
	"github.com/nvr-ai/metal-classifier/models/model"
)

// NewEngineBuilderFromConfig prepares a builder for the configured model and runtime.
//
// The returned builder still needs WithSessions or WithRunner, plus any metrics and logger.
//
// Arguments:
//   - cfg: The service configuration.
//
// Returns:
//   - *EngineBuilder: The builder.
func NewEngineBuilderFromConfig(cfg config.Config) *EngineBuilder {
	return NewEngineBuilder().
		WithProvider(cfg.Runtime.Provider, cfg.Runtime.DeviceID).
		WithThreads(cfg.Runtime.IntraOpThreads, cfg.Runtime.InterOpThreads).
		WithModel(model.NewModelArgs{
			Name:         model.Name(cfg.Model.Name),
			Path:         cfg.Model.Path,
			MetadataPath: cfg.Model.MetadataPath,
			ImageSize:    cfg.Model.ImageSize,
			Classes:      cfg.Model.Classes,
			ApplySoftmax: cfg.Model.ApplySoftmax,
		}).
		WithTopK(cfg.Model.TopK).
		WithWarmup(cfg.Runtime.Warmup).
		WithDecodeOptions(images.DecodeOptions{
			AutoOrient: cfg.Model.AutoOrient,
			MaxPixels:  cfg.Model.MaxPixels,
		})
}

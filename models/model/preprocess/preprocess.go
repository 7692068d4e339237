// Package preprocess - Converts decoded images into model input tensors.
package preprocess

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/metal-classifier/images"
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
	// InputChannels is the number of channels (3 for RGB).
	InputChannels int
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// MeanValues for standardization (if NormalizationType is Standardize).
	MeanValues []float32
	// StdValues for standardization (if NormalizationType is Standardize).
	StdValues []float32
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder
	// ColorMode defines the channel color order (RGB, BGR).
	ColorMode ColorMode
	// Interpolation is the resampling filter used for resizing.
	Interpolation resize.InterpolationFunction
	// KeepAspectRatio if true, maintains aspect ratio with letterboxing.
	KeepAspectRatio bool
	// LetterboxColor is the color used for letterbox padding (default black).
	LetterboxColor color.Color
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderHWC is Height-Width-Channel ordering (Keras / TensorFlow exports).
	ChannelOrderHWC ChannelOrder = iota
	// ChannelOrderCHW is Channel-Height-Width ordering (PyTorch exports).
	ChannelOrderCHW
)

// ColorMode defines the color space of the image.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (Caffe style models).
	ColorModeBGR
)

// Result contains the preprocessed image data and metadata.
type Result struct {
	// Data is the preprocessed float32 tensor data without the batch dimension.
	Data []float32
	// OriginalWidth is the original image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the original image height before preprocessing.
	OriginalHeight int
	// ScaleX is the horizontal scaling factor applied.
	ScaleX float64
	// ScaleY is the vertical scaling factor applied.
	ScaleY float64
	// PadLeft is the left padding applied for letterboxing.
	PadLeft int
	// PadTop is the top padding applied for letterboxing.
	PadTop int
	// Shape contains the tensor shape [C, H, W] or [H, W, C].
	Shape []int
}

// Preprocessor handles image preprocessing for ONNX models.
type Preprocessor struct {
	config *ModelConfig
}

// MobileNetV3Config returns the configuration for Keras MobileNetV3 classifiers.
//
// Keras MobileNetV3 models carry their own rescaling layer, so the network expects raw
// 0..255 RGB values in NHWC layout. Resizing uses bicubic interpolation, the default of
// PIL's Image.resize.
//
// Arguments:
//   - inputSize: The square input edge in pixels.
//
// Returns:
//   - *ModelConfig: The configuration.
func MobileNetV3Config(inputSize int) *ModelConfig {
	return &ModelConfig{
		Name:              "mobilenetv3",
		InputWidth:        inputSize,
		InputHeight:       inputSize,
		InputChannels:     3,
		NormalizationType: NormalizeNone,
		ChannelOrder:      ChannelOrderHWC,
		ColorMode:         ColorModeRGB,
		Interpolation:     resize.Bicubic,
		KeepAspectRatio:   false,
	}
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//
// Returns:
//   - *Preprocessor: A configured Preprocessor instance.
//   - error: An error if the configuration cannot produce a tensor.
func NewPreprocessor(config *ModelConfig) (*Preprocessor, error) {
	if config == nil {
		return nil, errors.New("preprocess config is nil")
	}
	if config.InputWidth <= 0 || config.InputHeight <= 0 {
		return nil, errors.Errorf("invalid input size %dx%d", config.InputWidth, config.InputHeight)
	}
	if config.InputChannels != 3 {
		return nil, errors.Errorf("unsupported channel count %d", config.InputChannels)
	}
	if config.NormalizationType == NormalizeStandardize &&
		(len(config.MeanValues) != config.InputChannels || len(config.StdValues) != config.InputChannels) {
		return nil, errors.New("standardization needs one mean and std value per channel")
	}
	for _, std := range config.StdValues {
		if std == 0 {
			return nil, errors.New("standardization std values must be non-zero")
		}
	}
	if config.LetterboxColor == nil {
		config.LetterboxColor = color.Black
	}

	return &Preprocessor{config: config}, nil
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() ModelConfig {
	return *p.config
}

// Preprocess performs all necessary preprocessing steps on the input image.
//
// Arguments:
//   - img: The decoded input image.
//
// Returns:
//   - *Result: The preprocessed tensor and metadata.
//   - error: An error if preprocessing fails.
func (p *Preprocessor) Preprocess(img image.Image) (*Result, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}

	bounds := img.Bounds()
	originalWidth, originalHeight := bounds.Dx(), bounds.Dy()
	if originalWidth <= 0 || originalHeight <= 0 {
		return nil, errors.Errorf("invalid image dimensions: %dx%d", originalWidth, originalHeight)
	}

	rgb := images.ToRGB(img)

	resized, scaleX, scaleY, padLeft, padTop := p.resizeImage(rgb)

	data := p.imageToTensor(resized)

	p.normalize(data)

	shape := []int{p.config.InputHeight, p.config.InputWidth, p.config.InputChannels}
	if p.config.ChannelOrder == ChannelOrderCHW {
		transposed, err := toCHW(data, shape)
		if err != nil {
			return nil, errors.Wrap(err, "failed to transpose tensor to CHW")
		}
		data = transposed
		shape = []int{p.config.InputChannels, p.config.InputHeight, p.config.InputWidth}
	}

	return &Result{
		Data:           data,
		OriginalWidth:  originalWidth,
		OriginalHeight: originalHeight,
		ScaleX:         scaleX,
		ScaleY:         scaleY,
		PadLeft:        padLeft,
		PadTop:         padTop,
		Shape:          shape,
	}, nil
}

// resizeImage resizes the image to the model's input dimensions.
//
// Returns the resized image, the horizontal and vertical scale factors and the left and
// top letterbox padding.
func (p *Preprocessor) resizeImage(img image.Image) (image.Image, float64, float64, int, int) {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	scaleX := float64(p.config.InputWidth) / float64(srcWidth)
	scaleY := float64(p.config.InputHeight) / float64(srcHeight)

	if !p.config.KeepAspectRatio {
		resized := resize.Resize(uint(p.config.InputWidth), uint(p.config.InputHeight), img, p.config.Interpolation)
		return resized, scaleX, scaleY, 0, 0
	}

	scale := math.Min(scaleX, scaleY)
	newWidth := max(1, int(float64(srcWidth)*scale))
	newHeight := max(1, int(float64(srcHeight)*scale))

	resized := resize.Resize(uint(newWidth), uint(newHeight), img, p.config.Interpolation)

	padLeft := (p.config.InputWidth - newWidth) / 2
	padTop := (p.config.InputHeight - newHeight) / 2

	letterboxed := image.NewRGBA(image.Rect(0, 0, p.config.InputWidth, p.config.InputHeight))
	draw.Draw(letterboxed, letterboxed.Bounds(), &image.Uniform{C: p.config.LetterboxColor}, image.Point{}, draw.Src)
	draw.Draw(letterboxed, image.Rect(padLeft, padTop, padLeft+newWidth, padTop+newHeight),
		resized, resized.Bounds().Min, draw.Src)

	return letterboxed, scale, scale, padLeft, padTop
}

// imageToTensor converts an image to an HWC float32 tensor of 0..255 values.
func (p *Preprocessor) imageToTensor(img image.Image) []float32 {
	bounds := img.Bounds()
	width := p.config.InputWidth
	height := p.config.InputHeight

	tensorData := make([]float32, width*height*p.config.InputChannels)

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			r8 := float32(uint8(r >> 8))
			g8 := float32(uint8(g >> 8))
			b8 := float32(uint8(b >> 8))

			if p.config.ColorMode == ColorModeBGR {
				r8, b8 = b8, r8
			}

			tensorData[idx] = r8
			tensorData[idx+1] = g8
			tensorData[idx+2] = b8
			idx += 3
		}
	}

	return tensorData
}

// normalize applies normalization to an HWC tensor in place.
func (p *Preprocessor) normalize(data []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range data {
			data[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range data {
			data[i] = (data[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		channels := p.config.InputChannels
		for i := range data {
			c := i % channels
			data[i] = (data[i] - p.config.MeanValues[c]) / p.config.StdValues[c]
		}
	}
}

// toCHW transposes an HWC tensor into CHW layout.
func toCHW(data []float32, hwc []int) ([]float32, error) {
	t := tensor.New(tensor.WithShape(hwc...), tensor.Of(tensor.Float32), tensor.WithBacking(data))
	if err := t.T(2, 0, 1); err != nil {
		return nil, err
	}
	if err := t.Transpose(); err != nil {
		return nil, err
	}
	out, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("unexpected tensor backing %T", t.Data())
	}
	return out, nil
}

// BatchPreprocess processes multiple images in parallel.
//
// Arguments:
//   - imgs: Slice of images to preprocess.
//   - maxConcurrency: Maximum number of images to process concurrently.
//
// Returns:
//   - []*Result: Results in input order.
//   - error: The first preprocessing error, if any.
func (p *Preprocessor) BatchPreprocess(imgs []image.Image, maxConcurrency int) ([]*Result, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]*Result, len(imgs))
	errs := make([]error, len(imgs))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, img := range imgs {
		wg.Add(1)
		go func(idx int, img image.Image) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := p.Preprocess(img)
			if err != nil {
				errs[idx] = errors.Wrapf(err, "failed to preprocess image %d", idx)
				return
			}
			results[idx] = result
		}(i, img)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}

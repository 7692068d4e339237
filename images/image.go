// Package images - Image ingestion for classification requests.
package images

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	// Registers JPEG, PNG and GIF with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

var (
	// ErrEmpty is returned when no image bytes were supplied.
	ErrEmpty = errors.New("image data is empty")
	// ErrUnsupportedFormat is returned when the bytes are not a known image format.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrTooLarge is returned when the image exceeds the configured pixel budget.
	ErrTooLarge = errors.New("image dimensions exceed limit")
)

// Image represents an image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"-" yaml:"-"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// DecodeOptions controls how raw bytes become pixels.
type DecodeOptions struct {
	// AutoOrient rotates the image according to its EXIF orientation tag.
	AutoOrient bool
	// MaxPixels rejects images with more pixels than this. Zero disables the check.
	MaxPixels int
}

// Load sniffs, validates and decodes raw image bytes.
//
// The header is read first so that oversized images are rejected before their pixels are
// allocated.
//
// Arguments:
//   - data: The encoded image.
//   - opts: Decoding options.
//
// Returns:
//   - *Image: The image metadata and its raw bytes.
//   - image.Image: The decoded pixels.
//   - error: ErrEmpty, ErrUnsupportedFormat, ErrTooLarge or a decoding error.
func Load(data []byte, opts DecodeOptions) (*Image, image.Image, error) {
	if len(data) == 0 {
		return nil, nil, ErrEmpty
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, nil, ErrUnsupportedFormat
		}
		return nil, nil, errors.Wrap(err, "failed to read image header")
	}

	format := ImageFormat(name)
	if !IsSupported(format) {
		return nil, nil, errors.Wrapf(ErrUnsupportedFormat, "format %s", name)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, nil, errors.Errorf("invalid image dimensions: %dx%d", cfg.Width, cfg.Height)
	}
	if opts.MaxPixels > 0 && cfg.Width*cfg.Height > opts.MaxPixels {
		return nil, nil, errors.Wrapf(ErrTooLarge, "%dx%d", cfg.Width, cfg.Height)
	}

	decoded, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(opts.AutoOrient))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to decode %s image", name)
	}

	bounds := decoded.Bounds()
	return &Image{
		Format: format,
		Data:   data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, decoded, nil
}

// ToRGB flattens an image onto an opaque white background and returns it as NRGBA with
// every alpha value set to 255. The result always starts at the origin.
//
// Arguments:
//   - img: The image to flatten.
//
// Returns:
//   - *image.NRGBA: The opaque image.
func ToRGB(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	if isOpaque(img) {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
		return dst
	}

	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}

// isOpaque reports whether the image declares itself fully opaque.
func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

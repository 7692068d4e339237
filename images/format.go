package images

import (
	"image"

	"github.com/chai2010/webp"
	// Registers BMP and TIFF with image.Decode.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants. The values match the names registered with the image package.
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatGIF is the GIF image format (first frame is used).
	FormatGIF ImageFormat = "gif"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
	// FormatTIFF is the TIFF image format.
	FormatTIFF ImageFormat = "tiff"
)

// SupportedFormats lists every format Load accepts.
var SupportedFormats = []ImageFormat{FormatJPEG, FormatPNG, FormatGIF, FormatWebP, FormatBMP, FormatTIFF}

func init() {
	image.RegisterFormat(string(FormatWebP), "RIFF????WEBPVP8", webp.Decode, webp.DecodeConfig)
}

// IsSupported reports whether the format can be decoded.
//
// Arguments:
//   - format: The format name as returned by image.DecodeConfig.
//
// Returns:
//   - bool: True if the format is supported.
func IsSupported(format ImageFormat) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsImageFile reports whether the name has a supported image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// LoadImageFiles reads image files named directly or found at the top level of directories.
//
// Arguments:
//   - paths: Files and directories. Files are read regardless of extension; directories
//     contribute only files with an image extension.
//
// Returns:
//   - []ImageFile: The files sorted by path.
//   - error: Error if any path cannot be read.
func LoadImageFiles(paths ...string) ([]ImageFile, error) {
	var images []ImageFile
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to stat %s", p)
		}

		if !info.IsDir() {
			img, err := readImageFile(p)
			if err != nil {
				return nil, err
			}
			images = append(images, img)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read directory %s", p)
		}
		for _, entry := range entries {
			if entry.IsDir() || !IsImageFile(entry.Name()) {
				continue
			}
			img, err := readImageFile(filepath.Join(p, entry.Name()))
			if err != nil {
				return nil, err
			}
			images = append(images, img)
		}
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Path < images[j].Path
	})

	return images, nil
}

func readImageFile(path string) (ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, errors.Wrapf(err, "failed to read %s", path)
	}
	return ImageFile{Path: path, Data: data}, nil
}

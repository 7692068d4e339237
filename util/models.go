// Package util - File discovery helpers for images and model artifacts.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FileEntry is one directory entry.
type FileEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

// ListDirectory returns the entries of dir sorted by name.
//
// Arguments:
//   - dir: The directory.
//
// Returns:
//   - []FileEntry: The entries.
//   - error: Error if the directory cannot be read.
func ListDirectory(dir string) ([]FileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		f := FileEntry{
			Name:  entry.Name(),
			Path:  filepath.Join(dir, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			f.Size = info.Size()
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// IsModelCandidate reports whether a file name looks like a model artifact.
func IsModelCandidate(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range []string{"metal", "model", ".h5", ".keras", ".onnx"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// FindModelCandidates lists the entries of dir that look like model artifacts.
//
// Arguments:
//   - dir: The directory to search.
//
// Returns:
//   - []FileEntry: The matching entries sorted by name.
//   - error: Error if the directory cannot be read.
func FindModelCandidates(dir string) ([]FileEntry, error) {
	entries, err := ListDirectory(dir)
	if err != nil {
		return nil, err
	}

	var out []FileEntry
	for _, e := range entries {
		if IsModelCandidate(e.Name) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Report writes a human readable inventory of model files.
//
// The model directory is listed in full, then the model candidates in cwd.
//
// Arguments:
//   - w: The destination.
//   - modelDir: The model directory.
//   - cwd: The working directory to search for candidates.
//
// Returns:
//   - error: Error if writing fails or cwd cannot be read.
func Report(w io.Writer, modelDir, cwd string) error {
	p := &printer{w: w}

	p.printf("Looking for model files...\n")

	entries, err := ListDirectory(modelDir)
	switch {
	case err == nil:
		p.printf("Contents of %q folder:\n", modelDir)
		for _, e := range entries {
			p.entry(e)
		}
	case errors.Is(err, os.ErrNotExist):
		p.printf("Folder %q does not exist\n", modelDir)
	default:
		p.printf("Folder %q cannot be read: %v\n", modelDir, err)
	}

	candidates, err := FindModelCandidates(cwd)
	if err != nil {
		return errors.Wrapf(err, "failed to list %s", cwd)
	}
	p.printf("Contents of current directory:\n")
	for _, e := range candidates {
		p.entry(e)
	}

	return p.err
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) entry(e FileEntry) {
	if e.IsDir {
		p.printf("   - %s/\n", e.Name)
		return
	}
	p.printf("   - %s (%d bytes)\n", e.Name, e.Size)
}

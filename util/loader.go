// Package util - Helpers for feeding still frames from disk into a model.
package util

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/edge-vision/images"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from the file name, or -1 when the name carries none.
	Frame int
	// Image holds the encoded bytes of the file, ready for a model.
	Image images.Image
}

var frameNumber = regexp.MustCompile(`(\d+)$`)

// parseFrame extracts the trailing number of a file name such as "frame-0042.jpg".
func parseFrame(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	m := frameNumber.FindStringSubmatch(base)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Files are read concurrently, at most workers at a time. The result is ordered by frame
// number, with unnumbered files last in name order.
//
// Arguments:
// - ctx: Cancels the remaining reads.
// - dir: Directory path containing image files.
// - workers: Maximum concurrent reads. Values below 1 mean one.
//
// Returns:
// - []ImageFile: Slice of ImageFile, each carrying the encoded bytes of an image file.
// - error: Error if listing or any read fails.
func LoadDirectoryImageFiles(ctx context.Context, dir string, workers int) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read directory %s", dir)
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, ok := images.FormatFromExt(strings.ToLower(filepath.Ext(entry.Name())))
		if !ok {
			continue
		}
		files = append(files, ImageFile{
			Path:  filepath.Join(dir, entry.Name()),
			Frame: parseFrame(entry.Name()),
			Image: images.Image{Format: format},
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range files {
		f := &files[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(f.Path)
			if err != nil {
				return errors.Wrapf(err, "read %s", f.Path)
			}
			f.Image.Data = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if (a.Frame < 0) != (b.Frame < 0) {
			return a.Frame >= 0
		}
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Path < b.Path
	})
	return files, nil
}

// Package source materializes project source trees from uploads and
// repositories.
package source

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrUnsafeArchive is returned for archives that exceed limits or would
// write outside the destination.
var ErrUnsafeArchive = errors.New("unsafe archive")

// Limits bounds what an uploaded archive may contain.
type Limits struct {
	MaxArchiveBytes      int64
	MaxUncompressedBytes int64
	MaxFiles             int
	MaxPathLength        int
}

// DefaultLimits returns the limits applied to uploads.
func DefaultLimits() Limits {
	return Limits{
		MaxArchiveBytes:      100 << 20,
		MaxUncompressedBytes: 500 << 20,
		MaxFiles:             1000,
		MaxPathLength:        255,
	}
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9./\-_]+`)

// ExtractZip unpacks the archive in r into dest. When every entry shares a
// single top-level directory, that directory is flattened away. Entry names
// are sanitized and any entry resolving outside dest is rejected.
func ExtractZip(r io.ReaderAt, size int64, dest string, limits Limits) error {
	if limits.MaxArchiveBytes > 0 && size > limits.MaxArchiveBytes {
		return fmt.Errorf("%w: archive is %d bytes (max %d)", ErrUnsafeArchive, size, limits.MaxArchiveBytes)
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	if limits.MaxFiles > 0 && countFiles(zr.File) > limits.MaxFiles {
		return fmt.Errorf("%w: more than %d files", ErrUnsafeArchive, limits.MaxFiles)
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(absDest, 0755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	prefix := commonPrefix(zr.File)
	var written int64

	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, `\`, "/")
		name = strings.TrimPrefix(name, prefix)
		if name == "" {
			continue
		}
		if limits.MaxPathLength > 0 && len(name) > limits.MaxPathLength {
			return fmt.Errorf("%w: path too long: %.40s...", ErrUnsafeArchive, name)
		}
		name = unsafeNameChars.ReplaceAllString(name, "_")

		target := filepath.Join(absDest, filepath.FromSlash(name))
		if target != absDest && !strings.HasPrefix(target, absDest+string(filepath.Separator)) {
			return fmt.Errorf("%w: entry %q escapes destination", ErrUnsafeArchive, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		// Symlinks and devices are skipped
		if !f.Mode().IsRegular() {
			continue
		}

		n, err := extractFile(f, target, limitRemaining(limits.MaxUncompressedBytes, written))
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

func limitRemaining(max, used int64) int64 {
	if max <= 0 {
		return -1
	}
	return max - used
}

// extractFile copies one entry, failing once more than remaining bytes are
// produced (remaining < 0 means unlimited).
func extractFile(f *zip.File, target string, remaining int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	var src io.Reader = rc
	if remaining >= 0 {
		src = io.LimitReader(rc, remaining+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return n, fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if remaining >= 0 && n > remaining {
		return n, fmt.Errorf("%w: uncompressed size limit exceeded", ErrUnsafeArchive)
	}
	return n, nil
}

func countFiles(files []*zip.File) int {
	n := 0
	for _, f := range files {
		if !f.FileInfo().IsDir() {
			n++
		}
	}
	return n
}

// commonPrefix returns "dir/" when every entry lives under the same
// top-level directory, else "".
func commonPrefix(files []*zip.File) string {
	prefix := ""
	for _, f := range files {
		name := strings.ReplaceAll(f.Name, `\`, "/")
		first, _, found := strings.Cut(name, "/")
		if !found {
			return ""
		}
		if prefix == "" {
			prefix = first + "/"
		} else if first+"/" != prefix {
			return ""
		}
	}
	return prefix
}

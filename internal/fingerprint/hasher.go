// Package fingerprint decides whether a project image needs rebuilding by
// hashing the files that feed the build.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Fingerprint is a hex-encoded SHA-256 over a project's build inputs.
type Fingerprint string

// manifestFiles have their full content hashed in addition to metadata.
var manifestFiles = map[string]bool{
	"Dockerfile":          true,
	"package.json":        true,
	"package-lock.json":   true,
	"yarn.lock":           true,
	"pom.xml":             true,
	"build.gradle":        true,
	"build.gradle.kts":    true,
	"settings.gradle":     true,
	"requirements.txt":    true,
	"pyproject.toml":      true,
	"setup.py":            true,
	"Pipfile":             true,
	"go.mod":              true,
	"go.sum":              true,
	"docker-compose.yml":  true,
	"docker-compose.yaml": true,
}

// excludedDirs hold dependencies, build output or VCS metadata.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"target":       true,
	"build":        true,
	"dist":         true,
	"__pycache__":  true,
	"venv":         true,
}

// Compute hashes the build inputs under projectPath.
//
// The hash covers, in order:
//  1. The Dockerfile content (empty if absent)
//  2. For every file in lexical path order: relative path, mtime, size
//  3. For manifest files, additionally the full content
//
// Every field is length-prefixed so adjacent fields cannot alias.
func Compute(projectPath string) (Fingerprint, error) {
	h := sha256.New()

	recipe, err := os.ReadFile(filepath.Join(projectPath, "Dockerfile"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read recipe: %w", err)
	}
	writeField(h, recipe)

	// WalkDir visits entries in lexical order
	err = filepath.WalkDir(projectPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == projectPath {
			return nil
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || excludedDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(projectPath, path)
		if err != nil {
			return err
		}

		writeField(h, []byte(filepath.ToSlash(rel)))
		writeUint(h, uint64(info.ModTime().UnixNano()))
		writeUint(h, uint64(info.Size()))

		if manifestFiles[d.Name()] {
			if err := writeFileContent(h, path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk project: %w", err)
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

func writeField(h hash.Hash, data []byte) {
	writeUint(h, uint64(len(data)))
	h.Write(data)
}

func writeUint(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func writeFileContent(h hash.Hash, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	content := sha256.New()
	if _, err := io.Copy(content, f); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	writeField(h, content.Sum(nil))
	return nil
}

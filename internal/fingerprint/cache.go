package fingerprint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/RevCBH/shipyard/internal/logging"
)

// Cache persists one fingerprint per project under <stateDir>/fingerprints.
// There is no eviction; entries are overwritten on every build and removed
// with the project.
type Cache struct {
	dir    string
	logger *zap.Logger
}

// NewCache creates a Cache rooted at stateDir.
func NewCache(stateDir string, logger *zap.Logger) *Cache {
	return &Cache{
		dir:    filepath.Join(stateDir, "fingerprints"),
		logger: logging.OrNop(logger),
	}
}

// ErrInvalidID is returned for project ids that cannot name a file inside
// the cache directory.
var ErrInvalidID = errors.New("invalid project id for fingerprint")

func (c *Cache) path(projectID string) (string, error) {
	if projectID == "" || strings.Contains(projectID, "..") || strings.ContainsAny(projectID, "/\\\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, projectID)
	}
	return filepath.Join(c.dir, projectID+".sha256"), nil
}

// Stored returns the recorded fingerprint for projectID, if any.
func (c *Cache) Stored(projectID string) (Fingerprint, bool, error) {
	path, err := c.path(projectID)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read fingerprint: %w", err)
	}
	return Fingerprint(strings.TrimSpace(string(data))), true, nil
}

// ShouldRebuild reports whether the project's image must be rebuilt. It
// answers true when nothing is stored, when either side cannot be
// computed or read, or when the project changed.
func (c *Cache) ShouldRebuild(projectID, projectPath string) bool {
	stored, ok, err := c.Stored(projectID)
	if err != nil {
		c.logger.Warn("fingerprint unreadable, rebuilding", zap.String("project", projectID), zap.Error(err))
		lookups.WithLabelValues("error").Inc()
		return true
	}
	if !ok {
		lookups.WithLabelValues("miss").Inc()
		return true
	}

	current, err := Compute(projectPath)
	if err != nil {
		c.logger.Warn("fingerprint computation failed, rebuilding", zap.String("project", projectID), zap.Error(err))
		lookups.WithLabelValues("error").Inc()
		return true
	}

	if current != stored {
		lookups.WithLabelValues("miss").Inc()
		return true
	}
	lookups.WithLabelValues("hit").Inc()
	return false
}

// RecordBuild computes and stores the current fingerprint. Call only after
// a successful image build.
func (c *Cache) RecordBuild(projectID, projectPath string) error {
	path, err := c.path(projectID)
	if err != nil {
		return err
	}
	fp, err := Compute(projectPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create fingerprint dir: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial hash
	tmp, err := os.CreateTemp(c.dir, projectID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp fingerprint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(string(fp) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write fingerprint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close fingerprint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store fingerprint: %w", err)
	}
	return nil
}

// Remove deletes the stored fingerprint. A missing entry is not an error.
func (c *Cache) Remove(projectID string) error {
	path, err := c.path(projectID)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove fingerprint: %w", err)
	}
	return nil
}

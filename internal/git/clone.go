package git

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidURL is returned for repository URLs that are not fetched.
var ErrInvalidURL = errors.New("invalid repository url")

// Cloner performs shallow clones of project repositories.
type Cloner struct {
	runner Runner
}

// NewCloner creates a Cloner. A nil runner uses the git binary on PATH.
func NewCloner(runner Runner) *Cloner {
	if runner == nil {
		runner = NewRunner()
	}
	return &Cloner{runner: runner}
}

// Clone shallow-clones repoURL into dest, which must not exist yet. When
// ref is non-empty that branch or tag is checked out. The .git directory
// is removed afterwards; only the working tree is deployed.
func (c *Cloner) Clone(ctx context.Context, repoURL, ref, dest string) error {
	if err := ValidateURL(repoURL); err != nil {
		return err
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("clone destination %s already exists", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create clone parent: %w", err)
	}

	args := []string{"clone", "--depth", "1", "--single-branch"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, "--", repoURL, dest)

	if _, err := c.runner.Exec(ctx, filepath.Dir(dest), args...); err != nil {
		os.RemoveAll(dest)
		return err
	}

	if err := os.RemoveAll(filepath.Join(dest, ".git")); err != nil {
		return fmt.Errorf("remove git metadata: %w", err)
	}
	return nil
}

// ValidateURL accepts https, http, ssh and scp-like (git@host:path) URLs.
// Local paths and ext:: transports are rejected.
func ValidateURL(repoURL string) error {
	if repoURL == "" || strings.HasPrefix(repoURL, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidURL, repoURL)
	}

	// scp-like syntax has no scheme
	if !strings.Contains(repoURL, "://") {
		user, rest, ok := strings.Cut(repoURL, "@")
		if ok && user != "" && strings.Contains(rest, ":") && !strings.HasPrefix(rest, ":") {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrInvalidURL, repoURL)
	}

	u, err := url.Parse(repoURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "https", "http", "ssh", "git":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

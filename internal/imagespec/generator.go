// Package imagespec synthesizes build recipes for projects that ship none.
package imagespec

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/RevCBH/shipyard/internal/logging"
	"github.com/RevCBH/shipyard/internal/stack"
)

// ComposeFile is the name of the generated run template.
const ComposeFile = "docker-compose.yml"

// UnsupportedStackError is returned when no template exists for a stack.
type UnsupportedStackError struct {
	Stack stack.Stack
}

func (e *UnsupportedStackError) Error() string {
	return fmt.Sprintf("no image template for stack %s", e.Stack)
}

// Generator writes a Dockerfile and, when absent, a compose template into a
// project directory.
type Generator struct {
	analyzer *stack.Analyzer
	logger   *zap.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(logger *zap.Logger) *Generator {
	return &Generator{
		analyzer: stack.NewAnalyzer(),
		logger:   logging.OrNop(logger),
	}
}

// Generate writes the recipe for s into projectPath. An existing Dockerfile
// is overwritten, so callers check stack.HasRecipe first. An existing
// compose file is kept.
func (g *Generator) Generate(projectPath string, s stack.Stack) error {
	tmpl, err := TemplateFor(s)
	if err != nil {
		return err
	}

	dockerfile := newDockerfileBuilder(tmpl).Build()
	if err := os.WriteFile(filepath.Join(projectPath, stack.RecipeFile), []byte(dockerfile), 0644); err != nil {
		return fmt.Errorf("write %s: %w", stack.RecipeFile, err)
	}

	if existing, ok := g.analyzer.FindCompose(projectPath); ok {
		g.logger.Debug("keeping existing compose file", zap.String("path", existing))
	} else {
		compose, err := renderCompose(tmpl)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(projectPath, ComposeFile), compose, 0644); err != nil {
			return fmt.Errorf("write %s: %w", ComposeFile, err)
		}
	}

	g.logger.Info("generated build recipe",
		zap.String("path", projectPath),
		zap.Stringer("stack", s),
		zap.Int("port", tmpl.Port))
	return nil
}

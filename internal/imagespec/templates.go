package imagespec

import (
	"github.com/RevCBH/shipyard/internal/stack"
)

// Template describes the image recipe for one stack.
type Template struct {
	// BaseImage is the FROM image
	BaseImage string

	// Manifests are copied before Install so dependency layers cache
	Manifests []string

	// Install runs after Manifests are copied
	Install []string

	// Build runs after the full source is copied
	Build []string

	// Env is baked into the image
	Env map[string]string

	// Port is exposed and published by the lifecycle manager
	Port int

	// Cmd is the exec-form start command
	Cmd []string
}

// TemplateFor returns the recipe template for s.
func TemplateFor(s stack.Stack) (Template, error) {
	switch s {
	case stack.JavaMaven:
		return Template{
			BaseImage: "maven:3.8-openjdk-17",
			Manifests: []string{"pom.xml"},
			Install:   []string{"mvn -B -q dependency:go-offline"},
			Build:     []string{"mvn -B clean package -DskipTests"},
			Port:      8080,
			Cmd:       []string{"sh", "-c", "java -jar target/*.jar"},
		}, nil
	case stack.JavaGradle:
		return Template{
			BaseImage: "gradle:8-jdk17",
			Build:     []string{"gradle build -x test --no-daemon"},
			Port:      8080,
			Cmd:       []string{"sh", "-c", "java -jar build/libs/*.jar"},
		}, nil
	case stack.NodeJS:
		return Template{
			BaseImage: "node:18-alpine",
			Manifests: []string{"package*.json"},
			Install:   []string{"npm install"},
			Env:       map[string]string{"NODE_ENV": "production"},
			Port:      3000,
			Cmd:       []string{"npm", "start"},
		}, nil
	case stack.Python:
		return Template{
			BaseImage: "python:3.9",
			// Projects declared only through setup.py/pyproject.toml have no
			// requirements file, so the install step waits for the full tree
			Build: []string{
				"if [ -f requirements.txt ]; then pip install --no-cache-dir -r requirements.txt; " +
					"else pip install --no-cache-dir .; fi",
			},
			Port: 5000,
			Cmd:  []string{"python", "app.py"},
		}, nil
	case stack.Go:
		return Template{
			BaseImage: "golang:1.22-alpine",
			Manifests: []string{"go.mod", "go.sum*"},
			Install:   []string{"go mod download"},
			Build:     []string{"go build -o /usr/local/bin/app ."},
			Port:      8080,
			Cmd:       []string{"/usr/local/bin/app"},
		}, nil
	case stack.Unknown:
		return Template{}, &UnsupportedStackError{Stack: s}
	default:
		return Template{}, &UnsupportedStackError{Stack: s}
	}
}

// ContainerPort returns the port s's template exposes, or 0 when s is not
// supported.
func ContainerPort(s stack.Stack) int {
	t, err := TemplateFor(s)
	if err != nil {
		return 0
	}
	return t.Port
}

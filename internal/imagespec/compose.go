package imagespec

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// composeFile is the subset of the compose format the generator emits.
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Build       composeBuild `yaml:"build"`
	Ports       []string     `yaml:"ports"`
	Environment []string     `yaml:"environment,omitempty"`
	Command     []string     `yaml:"command,omitempty"`
}

type composeBuild struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile"`
}

// renderCompose renders a single-service run template for tmpl.
func renderCompose(tmpl Template) ([]byte, error) {
	svc := composeService{
		Build: composeBuild{Context: ".", Dockerfile: "Dockerfile"},
		Ports: []string{fmt.Sprintf("%d:%d", tmpl.Port, tmpl.Port)},
	}
	for k, v := range tmpl.Env {
		svc.Environment = append(svc.Environment, k+"="+v)
	}
	sort.Strings(svc.Environment)

	out, err := yaml.Marshal(composeFile{
		Services: map[string]composeService{"app": svc},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal compose: %w", err)
	}
	return out, nil
}

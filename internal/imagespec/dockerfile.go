package imagespec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// dockerfileBuilder renders a Template as Dockerfile text.
type dockerfileBuilder struct {
	tmpl  Template
	lines []string
}

func newDockerfileBuilder(tmpl Template) *dockerfileBuilder {
	return &dockerfileBuilder{tmpl: tmpl}
}

// Build generates the Dockerfile content.
func (b *dockerfileBuilder) Build() string {
	b.lines = b.lines[:0]

	b.addLine("FROM %s", b.tmpl.BaseImage)
	b.addLine("")
	b.addLine("WORKDIR /app")

	if len(b.tmpl.Env) > 0 {
		keys := make([]string, 0, len(b.tmpl.Env))
		for k := range b.tmpl.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.addLine("ENV %s=%s", k, b.tmpl.Env[k])
		}
	}
	b.addLine("")

	if len(b.tmpl.Manifests) > 0 {
		b.addLine("COPY %s ./", strings.Join(b.tmpl.Manifests, " "))
		for _, cmd := range b.tmpl.Install {
			b.addLine("RUN %s", cmd)
		}
		b.addLine("")
	}

	b.addLine("COPY . .")
	if len(b.tmpl.Manifests) == 0 {
		for _, cmd := range b.tmpl.Install {
			b.addLine("RUN %s", cmd)
		}
	}
	for _, cmd := range b.tmpl.Build {
		b.addLine("RUN %s", cmd)
	}
	b.addLine("")

	b.addLine("EXPOSE %d", b.tmpl.Port)
	b.addLine("CMD %s", formatStringArray(b.tmpl.Cmd))

	return strings.Join(b.lines, "\n") + "\n"
}

func (b *dockerfileBuilder) addLine(format string, args ...any) {
	b.lines = append(b.lines, fmt.Sprintf(format, args...))
}

// formatStringArray renders an exec-form JSON array.
func formatStringArray(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = strconv.Quote(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

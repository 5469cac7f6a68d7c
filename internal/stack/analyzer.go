package stack

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// RecipeFile is the build recipe name looked for in a project root.
const RecipeFile = "Dockerfile"

// composeFiles are checked in order by FindCompose.
var composeFiles = []string{"docker-compose.yml", "docker-compose.yaml"}

// skipDirs are never descended into while looking for markers.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"build":        true,
	"dist":         true,
	"__pycache__":  true,
	"venv":         true,
}

// maxWalkDepth bounds how deep below the root markers are searched.
const maxWalkDepth = 4

// Analyzer classifies project trees. The zero value is ready to use.
type Analyzer struct{}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Classify returns the stack of the project rooted at projectPath.
// An author-supplied Dockerfile is inspected first; otherwise marker files
// decide, shallowest first and then by Precedence. Unknown is returned when
// nothing matches. The error is non-nil only when the tree cannot be read.
func (a *Analyzer) Classify(projectPath string) (Stack, error) {
	info, err := os.Stat(projectPath)
	if err != nil {
		return Unknown, fmt.Errorf("stat project: %w", err)
	}
	if !info.IsDir() {
		return Unknown, fmt.Errorf("project path %s is not a directory", projectPath)
	}

	s, err := classifyRecipe(filepath.Join(projectPath, RecipeFile))
	if err != nil {
		return Unknown, err
	}
	if s != Unknown {
		return s, nil
	}

	return classifyTree(projectPath)
}

// FindCompose returns the path of an existing compose file in projectPath.
func (a *Analyzer) FindCompose(projectPath string) (string, bool) {
	for _, name := range composeFiles {
		p := filepath.Join(projectPath, name)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// HasRecipe reports whether projectPath contains a build recipe.
func HasRecipe(projectPath string) bool {
	info, err := os.Stat(filepath.Join(projectPath, RecipeFile))
	return err == nil && info.Mode().IsRegular()
}

var (
	fromImages = []struct {
		pattern *regexp.Regexp
		stack   Stack
	}{
		{regexp.MustCompile(`^maven(:|$)`), JavaMaven},
		{regexp.MustCompile(`^gradle(:|$)`), JavaGradle},
		{regexp.MustCompile(`^node(:|$)`), NodeJS},
		{regexp.MustCompile(`^python(:|$)`), Python},
		{regexp.MustCompile(`^golang(:|$)`), Go},
	}

	runCommands = []struct {
		pattern *regexp.Regexp
		stack   Stack
	}{
		{regexp.MustCompile(`(^|[\s;&|/])(mvn|mvnw)(\s|$)`), JavaMaven},
		{regexp.MustCompile(`(^|[\s;&|/])(gradle|gradlew)(\s|$)`), JavaGradle},
		{regexp.MustCompile(`(^|[\s;&|])(npm|yarn|pnpm)(\s|$)`), NodeJS},
		{regexp.MustCompile(`(^|[\s;&|])(pip|pip3|poetry)(\s|$)`), Python},
		{regexp.MustCompile(`(^|[\s;&|])go\s+(build|mod|install)(\s|$)`), Go},
	}
)

// classifyRecipe inspects FROM images and RUN invocations of a Dockerfile.
// A missing file yields Unknown.
func classifyRecipe(path string) (Stack, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Unknown, nil
	}
	if err != nil {
		return Unknown, fmt.Errorf("open recipe: %w", err)
	}
	defer f.Close()

	best := Unknown
	consider := func(s Stack) {
		if best == Unknown || rank(s) < rank(best) {
			best = s
		}
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		instr, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch strings.ToUpper(instr) {
		case "FROM":
			image := strings.ToLower(baseImage(rest))
			for _, m := range fromImages {
				if m.pattern.MatchString(image) {
					consider(m.stack)
				}
			}
		case "RUN":
			for _, m := range runCommands {
				if m.pattern.MatchString(rest) {
					consider(m.stack)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Unknown, fmt.Errorf("read recipe: %w", err)
	}
	return best, nil
}

// baseImage strips flags, registry/namespace and stage alias from a FROM
// argument: "--platform=x docker.io/library/node:18 AS build" -> "node:18".
func baseImage(arg string) string {
	for _, field := range strings.Fields(arg) {
		if strings.HasPrefix(field, "--") {
			continue
		}
		if i := strings.LastIndex(field, "/"); i >= 0 {
			field = field[i+1:]
		}
		return field
	}
	return ""
}

// classifyTree walks projectPath in lexical order and picks the stack whose
// marker sits shallowest, breaking ties by Precedence.
func classifyTree(projectPath string) (Stack, error) {
	depthOf := make(map[Stack]int)
	markerStack := make(map[string]Stack)
	for _, s := range Precedence {
		for _, m := range s.Markers() {
			markerStack[m] = s
		}
	}

	err := filepath.WalkDir(projectPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are ignored; the root was already stat'ed
			if d != nil && d.IsDir() && path != projectPath {
				return fs.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(projectPath, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator))

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || skipDirs[d.Name()] || depth >= maxWalkDepth {
				return fs.SkipDir
			}
			return nil
		}

		s, ok := markerStack[d.Name()]
		if !ok {
			return nil
		}
		if prev, seen := depthOf[s]; !seen || depth < prev {
			depthOf[s] = depth
		}
		return nil
	})
	if err != nil {
		return Unknown, fmt.Errorf("walk project: %w", err)
	}

	best := Unknown
	bestDepth := 0
	for _, s := range Precedence {
		depth, ok := depthOf[s]
		if !ok {
			continue
		}
		if best == Unknown || depth < bestDepth {
			best, bestDepth = s, depth
		}
	}
	return best, nil
}

// ExposedPort returns the first TCP port named by an EXPOSE instruction in
// the project's recipe. "EXPOSE 8000/tcp" and "EXPOSE 80 443" yield 8000
// and 80.
func ExposedPort(projectPath string) (int, bool) {
	f, err := os.Open(filepath.Join(projectPath, RecipeFile))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !strings.EqualFold(fields[0], "EXPOSE") {
			continue
		}
		for _, exposed := range fields[1:] {
			port, proto, _ := strings.Cut(exposed, "/")
			if proto != "" && !strings.EqualFold(proto, "tcp") {
				continue
			}
			if n, err := strconv.Atoi(port); err == nil && n > 0 && n < 65536 {
				return n, true
			}
		}
	}
	return 0, false
}

// Package stack classifies a project's technology stack from its files.
package stack

import "fmt"

// Stack identifies a project ecosystem and build tool.
type Stack string

const (
	Unknown    Stack = "UNKNOWN"
	JavaMaven  Stack = "JAVA_MAVEN"
	JavaGradle Stack = "JAVA_GRADLE"
	NodeJS     Stack = "NODEJS"
	Python     Stack = "PYTHON"
	Go         Stack = "GO"
)

// Precedence lists the supported stacks from strongest to weakest. When
// markers for several stacks are present, the earliest one wins.
var Precedence = []Stack{JavaMaven, JavaGradle, NodeJS, Python, Go}

// Markers returns the file names that identify s.
func (s Stack) Markers() []string {
	switch s {
	case JavaMaven:
		return []string{"pom.xml"}
	case JavaGradle:
		return []string{"build.gradle", "build.gradle.kts"}
	case NodeJS:
		return []string{"package.json"}
	case Python:
		return []string{"requirements.txt", "setup.py", "pyproject.toml"}
	case Go:
		return []string{"go.mod"}
	case Unknown:
		return nil
	default:
		return nil
	}
}

// Supported reports whether s is a known, buildable stack.
func (s Stack) Supported() bool {
	switch s {
	case JavaMaven, JavaGradle, NodeJS, Python, Go:
		return true
	default:
		return false
	}
}

func (s Stack) String() string {
	return string(s)
}

// Parse converts a stored stack name back to a Stack.
func Parse(name string) (Stack, error) {
	s := Stack(name)
	if s == Unknown || s.Supported() {
		return s, nil
	}
	if name == "" {
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown stack %q", name)
}

// rank returns s's position in Precedence, or len(Precedence) if absent.
func rank(s Stack) int {
	for i, p := range Precedence {
		if p == s {
			return i
		}
	}
	return len(Precedence)
}

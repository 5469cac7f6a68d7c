package container

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
)

// ErrNoPortMapping is returned when a port query yields no binding.
var ErrNoPortMapping = errors.New("no host port mapping")

// ParseHostPort extracts the host port from `port` output. The engine prints
// one binding per line ("0.0.0.0:49153", "[::]:49153"); the first parseable
// one wins.
func ParseHostPort(output string) (int, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Older engines print "::" without brackets
		if strings.HasPrefix(line, ":::") {
			line = "[::]" + line[2:]
		}

		_, portStr, err := net.SplitHostPort(line)
		if err != nil {
			continue
		}
		port, err := nat.ParsePort(portStr)
		if err != nil || port <= 0 {
			continue
		}
		return port, nil
	}
	return 0, fmt.Errorf("%w in %q", ErrNoPortMapping, strings.TrimSpace(output))
}

// ParseStats parses "<cpu>%;<mem>%" as produced by
// `stats --no-stream --format {{.CPUPerc}};{{.MemPerc}}`.
func ParseStats(output string) (Stats, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	cpuStr, memStr, ok := strings.Cut(line, ";")
	if !ok {
		return Stats{}, fmt.Errorf("malformed stats line %q", line)
	}

	cpu, err := parsePercent(cpuStr)
	if err != nil {
		return Stats{}, fmt.Errorf("malformed cpu percentage: %w", err)
	}
	mem, err := parsePercent(memStr)
	if err != nil {
		return Stats{}, fmt.Errorf("malformed memory percentage: %w", err)
	}
	return Stats{CPUPercent: cpu, MemoryPercent: mem}, nil
}

func parsePercent(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" || s == "--" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ParseRestartPolicy parses "<name>:<max retries>" from inspect output.
// Retries are only meaningful for on-failure.
func ParseRestartPolicy(output string) RestartPolicy {
	name, count, _ := strings.Cut(strings.TrimSpace(output), ":")
	switch name {
	case "", "no":
		return RestartNo
	case "on-failure":
		n, err := strconv.Atoi(count)
		if err != nil {
			n = 0
		}
		return RestartOnFailure(n)
	default:
		return RestartPolicy(name)
	}
}

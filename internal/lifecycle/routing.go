package lifecycle

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// RoutingMode selects how external URLs are formed.
type RoutingMode string

const (
	// RoutingHostPort yields scheme://host:<published port>.
	RoutingHostPort RoutingMode = "hostport"
	// RoutingSubdomain yields scheme://<project id>.<domain>, served by a
	// proxy on the shared network.
	RoutingSubdomain RoutingMode = "subdomain"
)

// Routing builds externally reachable URLs for projects.
type Routing struct {
	Mode   RoutingMode
	Scheme string
	Host   string
	Domain string
}

// URL returns the address of projectID given its published host port.
// It reports false when the address cannot be determined.
func (r Routing) URL(projectID string, hostPort int) (string, bool) {
	scheme := r.Scheme
	if scheme == "" {
		scheme = "http"
	}

	switch r.Mode {
	case RoutingSubdomain:
		if r.Domain == "" || projectID == "" {
			return "", false
		}
		return fmt.Sprintf("%s://%s.%s", scheme, strings.ToLower(projectID), r.Domain), true
	default:
		if hostPort <= 0 {
			return "", false
		}
		host := r.Host
		if host == "" {
			host = "localhost"
		}
		return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, strconv.Itoa(hostPort))), true
	}
}

// Hostname returns the DNS name a project is served under in subdomain
// mode, or "" otherwise.
func (r Routing) Hostname(projectID string) string {
	if r.Mode != RoutingSubdomain || r.Domain == "" {
		return ""
	}
	return strings.ToLower(projectID) + "." + r.Domain
}

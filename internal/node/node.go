// Package node describes the processing node (worker) a runner executes on
// and translates paths between the coordinator's view and the local
// filesystem.
package node

import (
	"strings"

	"github.com/google/uuid"
)

// InternalAddress is the address the coordinator's own built-in node registers under.
const InternalAddress = "INTERNAL_NODE"

// Mapping rewrites a coordinator path prefix to a local one.
type Mapping struct {
	Server string `json:"Key"`
	Local  string `json:"Value"`
}

// Node is the coordinator's record of a worker.
type Node struct {
	UID        uuid.UUID `json:"Uid"`
	Name       string    `json:"Name"`
	Address    string    `json:"Address"`
	Enabled    bool      `json:"Enabled"`
	TempPath   string    `json:"TempPath,omitempty"`
	SignalrURL string    `json:"SignalrUrl"`
	Mappings   []Mapping `json:"Mappings,omitempty"`
}

// AddressFor returns the lookup address for a worker.
func AddressFor(isServer bool, hostname string) string {
	if isServer {
		return InternalAddress
	}
	return hostname
}

// IsInternal reports whether the node is the coordinator's own.
func (n *Node) IsInternal() bool {
	return n != nil && n.Address == InternalAddress
}

// Map converts a coordinator path into this node's local path.
func (n *Node) Map(path string) string {
	if n == nil || path == "" {
		return path
	}
	for _, m := range n.Mappings {
		if m.Server == "" {
			continue
		}
		if rest, ok := cutPrefix(path, m.Server); ok {
			path = m.Local + rest
			break
		}
	}
	return normalizeSeparators(path)
}

// UnMap converts a local path back into the coordinator's view.
func (n *Node) UnMap(path string) string {
	if n == nil || path == "" {
		return path
	}
	for _, m := range n.Mappings {
		if m.Local == "" {
			continue
		}
		if rest, ok := cutPrefix(path, m.Local); ok {
			return m.Server + rest
		}
	}
	return path
}

func cutPrefix(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := path[len(prefix):]
	if rest != "" && !strings.HasSuffix(prefix, "/") && !strings.HasSuffix(prefix, `\`) &&
		rest[0] != '/' && rest[0] != '\\' {
		return "", false
	}
	return rest, true
}

func normalizeSeparators(path string) string {
	if strings.HasPrefix(path, `\\`) {
		return path
	}
	return strings.ReplaceAll(path, `\`, "/")
}

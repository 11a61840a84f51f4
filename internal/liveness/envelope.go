package liveness

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

const (
	TypeInvoke     = "invoke"
	TypeCompletion = "completion"

	TargetHello      = "Hello"
	TargetLogMessage = "LogMessage"
	TargetAbortFlow  = "AbortFlow"
)

// Envelope is one websocket message.
type Envelope struct {
	Type         string            `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// NewInvocation builds an invoke envelope. An empty id means no completion
// is expected.
func NewInvocation(id, target string, args ...any) (Envelope, error) {
	env := Envelope{Type: TypeInvoke, InvocationID: id, Target: target}
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s argument: %w", target, err)
		}
		env.Arguments = append(env.Arguments, raw)
	}
	return env, nil
}

// EndpointURL derives the websocket endpoint. A node URL of "flow" (or
// empty) means the coordinator's own /flow endpoint; relative URLs are
// joined to baseURL. http(s) schemes become ws(s).
func EndpointURL(baseURL, nodeURL string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	nodeURL = strings.TrimSpace(nodeURL)
	var raw string
	switch {
	case nodeURL == "" || strings.EqualFold(nodeURL, "flow"):
		raw = base + "/flow"
	case strings.Contains(nodeURL, "://"):
		raw = nodeURL
	default:
		raw = base + "/" + strings.TrimLeft(nodeURL, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse liveness endpoint: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported liveness endpoint scheme %q", u.Scheme)
	}
	return u.String(), nil
}

package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flowrunner/internal/config"
)

const userAgent = "FlowRunner-Go/0.1.0"

// Event identifies a notification template.
type Event string

const (
	EventMessage       Event = "message"
	EventFlowCompleted Event = "flow_completed"
	EventFlowFailed    Event = "flow_failed"
	EventTest          Event = "test"
)

// Payload carries template values. Known keys: title, message, file, flow,
// step, error, priority.
type Payload map[string]string

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy publisher. When no topic is configured a noop
// implementation is returned.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func render(event Event, p Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(p[key]) }
	var msg message
	switch event {
	case EventMessage:
		msg = message{
			title: "FlowRunner",
			body:  get("message"),
			tags:  []string{"flowrunner", "message"},
		}
		if title := get("title"); title != "" {
			msg.title = "FlowRunner - " + title
		}
	case EventFlowCompleted:
		body := fmt.Sprintf("✅ Processed: %s", get("file"))
		if flowName := get("flow"); flowName != "" {
			body = fmt.Sprintf("%s\nFlow: %s", body, flowName)
		}
		msg = message{
			title: "FlowRunner - Processed",
			body:  body,
			tags:  []string{"flowrunner", "flow", "completed"},
		}
	case EventFlowFailed:
		var b strings.Builder
		b.WriteString("❌ Failed: ")
		b.WriteString(get("file"))
		if step := get("step"); step != "" {
			b.WriteString("\nStep: ")
			b.WriteString(step)
		}
		if flowName := get("flow"); flowName != "" {
			b.WriteString("\nFlow: ")
			b.WriteString(flowName)
		}
		if errText := get("error"); errText != "" {
			b.WriteString("\nError: ")
			b.WriteString(errText)
		}
		msg = message{
			title:    "FlowRunner - Failed",
			body:     b.String(),
			tags:     []string{"flowrunner", "flow", "failed"},
			priority: "high",
		}
	case EventTest:
		msg = message{
			title:    "FlowRunner - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"flowrunner", "test"},
			priority: "low",
		}
	default:
		return message{}, false
	}
	if priority := get("priority"); priority != "" {
		msg.priority = priority
	}
	return msg, true
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

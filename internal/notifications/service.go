package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelmill/internal/config"
)

const userAgent = "reelmill/0.1"

// Event names a notification type.
type Event string

const (
	EventProjectDone      Event = "project_done"
	EventProjectError     Event = "project_error"
	EventLanguageDisabled Event = "language_disabled"
	EventTest             Event = "test"
)

// Payload carries event fields.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy notifier when a topic is configured, or a
// no-op otherwise.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{endpoint: topic, client: &http.Client{Timeout: timeout}}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, p Payload) error {
	data, ok := format(event, p)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func format(event Event, p Payload) (payload, bool) {
	projectID := str(p, "projectId")
	switch event {
	case EventProjectDone:
		failed := strs(p, "failedLanguages")
		done := strs(p, "languages")
		if len(failed) == 0 {
			return payload{
				title:   "Reelmill - Video Ready",
				message: fmt.Sprintf("✅ Project %s finished: %s", projectID, strings.Join(done, ", ")),
				tags:    []string{"reelmill", "done"},
			}, true
		}
		return payload{
			title: "Reelmill - Video Ready (partial)",
			message: fmt.Sprintf("⚠️ Project %s finished: %s; failed: %s",
				projectID, strings.Join(done, ", "), strings.Join(failed, ", ")),
			tags:     []string{"reelmill", "done", "partial"},
			priority: "high",
		}, true
	case EventProjectError:
		var b strings.Builder
		fmt.Fprintf(&b, "❌ Project %s failed", projectID)
		if stage := str(p, "stage"); stage != "" {
			fmt.Fprintf(&b, " during %s", stage)
		}
		b.WriteString(": ")
		if reason := str(p, "error"); reason != "" {
			b.WriteString(reason)
		} else {
			b.WriteString("unknown")
		}
		return payload{
			title:    "Reelmill - Error",
			message:  b.String(),
			tags:     []string{"reelmill", "error", "alert"},
			priority: "high",
		}, true
	case EventLanguageDisabled:
		return payload{
			title: "Reelmill - Language Disabled",
			message: fmt.Sprintf("Project %s: %s disabled at %s: %s",
				projectID, str(p, "language"), str(p, "stage"), str(p, "reason")),
			tags: []string{"reelmill", "language", "disabled"},
		}, true
	case EventTest:
		return payload{
			title:    "Reelmill - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"reelmill", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func str(p Payload, key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func strs(p Payload, key string) []string {
	if v, ok := p[key].([]string); ok {
		return v
	}
	return nil
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

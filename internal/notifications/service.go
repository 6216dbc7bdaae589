// Package notifications pushes run events to an ntfy topic when configured.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"autosub/internal/config"
)

const userAgent = "Autosub/0.1.0"

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	NotifyFileMuxed(ctx context.Context, path, outputPath string) error
	NotifyFileFailed(ctx context.Context, path, errorKind string, err error) error
	NotifyRunCompleted(ctx context.Context, muxed, skipped, failed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		sendErrors:  cfg.Notifications.Errors,
		sendSummary: cfg.Notifications.Summary,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	sendErrors  bool
	sendSummary bool
}

func (n *ntfyService) NotifyFileMuxed(ctx context.Context, path, outputPath string) error {
	data := payload{
		title:   "Autosub - Subtitled",
		message: fmt.Sprintf("Subtitled: %s\nOutput: %s", filepath.Base(path), filepath.Base(outputPath)),
		tags:    []string{"autosub", "mux", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyFileFailed(ctx context.Context, path, errorKind string, err error) error {
	if !n.sendErrors {
		return nil
	}
	message := fmt.Sprintf("Failed: %s (%s)", filepath.Base(path), errorKind)
	if err != nil {
		message = fmt.Sprintf("%s\n%s", message, strings.TrimSpace(err.Error()))
	}
	data := payload{
		title:    "Autosub - Error",
		message:  message,
		tags:     []string{"autosub", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, muxed, skipped, failed int, duration time.Duration) error {
	if !n.sendSummary {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Autosub - Run Complete"
		message = fmt.Sprintf("Run complete: %d muxed, %d skipped in %s", muxed, skipped, duration)
	} else {
		title = "Autosub - Run Complete (with errors)"
		message = fmt.Sprintf("Run complete: %d muxed, %d skipped, %d failed in %s", muxed, skipped, failed, duration)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"autosub", "run", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Autosub - Test",
		message:  "Notification system test",
		tags:     []string{"autosub", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func (noopService) NotifyFileMuxed(context.Context, string, string) error  { return nil }
func (noopService) NotifyFileFailed(context.Context, string, string, error) error {
	return nil
}
func (noopService) NotifyRunCompleted(context.Context, int, int, int, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }

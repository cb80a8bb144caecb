package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SlackMessage is an incoming-webhook payload.
type SlackMessage struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks,omitempty"`
}

// SlackBlock is a Block Kit section or context block.
type SlackBlock struct {
	Type     string      `json:"type"`
	Text     *SlackText  `json:"text,omitempty"`
	Elements []SlackText `json:"elements,omitempty"`
}

// SlackText is a mrkdwn text object.
type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Section builds a mrkdwn section block.
func Section(text string) SlackBlock {
	return SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: text}}
}

// Context builds a context block with one mrkdwn element.
func Context(text string) SlackBlock {
	return SlackBlock{Type: "context", Elements: []SlackText{{Type: "mrkdwn", Text: text}}}
}

// Slack posts messages to an incoming webhook. An empty webhook URL turns
// Post into a no-op.
type Slack struct {
	webhookURL string
	client     *http.Client
}

// NewSlack constructs a webhook client.
func NewSlack(webhookURL string, client *http.Client) *Slack {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Slack{webhookURL: webhookURL, client: client}
}

// Enabled reports whether a webhook is configured.
func (s *Slack) Enabled() bool {
	return s != nil && s.webhookURL != ""
}

// Post sends msg to the webhook.
func (s *Slack) Post(ctx context.Context, msg SlackMessage) error {
	if !s.Enabled() {
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack post: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

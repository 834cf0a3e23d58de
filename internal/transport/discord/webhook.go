// Package discord delivers rendered notifications to registered webhook
// endpoints: execute-with-wait for the initial post (so we learn the
// message id), edit-in-place for every later update of the same build.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"buildrelay/internal/registry"
	"buildrelay/internal/render"
	logx "buildrelay/pkg/logx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	APIBase   string
	Username  string
	AvatarURL string
	Timeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.APIBase == "" {
		c.APIBase = "https://discord.com/api/v10"
	}
	if c.Username == "" {
		c.Username = "Cloud Build"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	return c
}

// Client is the outbound webhook transport. It satisfies the relay
// engine's Messenger contract.
type Client struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// ---- wire shapes ----

type embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type buttonEmoji struct {
	Name string `json:"name"`
}

type button struct {
	Type     int          `json:"type"` // 2 = button
	Style    int          `json:"style"`
	Label    string       `json:"label,omitempty"`
	Emoji    *buttonEmoji `json:"emoji,omitempty"`
	CustomID string       `json:"custom_id"`
}

type actionRow struct {
	Type       int      `json:"type"` // 1 = action row
	Components []button `json:"components"`
}

type webhookPayload struct {
	Embeds     []embed     `json:"embeds"`
	Components []actionRow `json:"components"`
	Username   string      `json:"username,omitempty"`
	AvatarURL  string      `json:"avatar_url,omitempty"`
}

type messageResponse struct {
	ID string `json:"id"`
}

func (c *Client) payload(body render.Body) webhookPayload {
	p := webhookPayload{
		Embeds:     []embed{{Title: body.Title, Description: body.Description}},
		Components: []actionRow{},
		Username:   c.cfg.Username,
		AvatarURL:  c.cfg.AvatarURL,
	}
	if len(body.Actions) > 0 {
		row := actionRow{Type: 1}
		for _, a := range body.Actions {
			btn := button{Type: 2, Style: a.Style, Label: a.Label, CustomID: a.CustomID}
			if a.Emoji != "" {
				btn.Emoji = &buttonEmoji{Name: a.Emoji}
			}
			row.Components = append(row.Components, btn)
		}
		p.Components = append(p.Components, row)
	}
	return p
}

// Create executes the webhook with wait=true and returns the assigned
// message id.
func (c *Client) Create(ctx context.Context, ep registry.Endpoint, body render.Body) (string, error) {
	url := fmt.Sprintf("%s/webhooks/%s/%s?wait=true", c.cfg.APIBase, ep.ID, ep.Token)
	respBody, err := c.do(ctx, http.MethodPost, url, c.payload(body))
	if err != nil {
		return "", err
	}

	var msg messageResponse
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return "", fmt.Errorf("discord: decode create response: %w", err)
	}
	if msg.ID == "" {
		return "", fmt.Errorf("discord: create response carried no message id")
	}
	return msg.ID, nil
}

// Edit replaces a previously delivered message in place. No new identity
// is assigned.
func (c *Client) Edit(ctx context.Context, ep registry.Endpoint, messageID string, body render.Body) error {
	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/%s", c.cfg.APIBase, ep.ID, ep.Token, messageID)
	_, err := c.do(ctx, http.MethodPatch, url, c.payload(body))
	return err
}

func (c *Client) do(ctx context.Context, method, url string, payload webhookPayload) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord: %s webhook: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("discord: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("discord: %s webhook: status %d: %s", method, resp.StatusCode, snippet(respBody))
	}
	return respBody, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:253] + "..."
	}
	return s
}

package discord

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// EditOriginalResponse rewrites the deferred reply of an interaction once
// its action has finished executing.
func (c *Client) EditOriginalResponse(ctx context.Context, appID, interactionToken, content string) error {
	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/@original", c.cfg.APIBase, appID, interactionToken)

	b, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("discord: marshal followup: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("discord: build followup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: edit original response: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("discord: edit original response: status %d", resp.StatusCode)
	}
	return nil
}

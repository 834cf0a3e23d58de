package actions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "buildrelay/pkg/logx"
)

// Controller executes build decisions on behalf of a recipient.
type Controller interface {
	Approve(ctx context.Context, ref Ref) error
	Reject(ctx context.Context, ref Ref) error
	Cancel(ctx context.Context, ref Ref) error
	Retry(ctx context.Context, ref Ref) error
}

// Execute runs one action against the controller and returns the
// confirmation text shown to the recipient.
func Execute(ctx context.Context, c Controller, kind Kind, ref Ref) (string, error) {
	switch kind {
	case KindApprove:
		if err := c.Approve(ctx, ref); err != nil {
			return "", err
		}
		return fmt.Sprintf("Build ``%s`` has been approved.", ref.BuildID), nil
	case KindReject:
		if err := c.Reject(ctx, ref); err != nil {
			return "", err
		}
		return fmt.Sprintf("Build ``%s`` has been rejected.", ref.BuildID), nil
	case KindStop:
		if err := c.Cancel(ctx, ref); err != nil {
			return "", err
		}
		return fmt.Sprintf("Build ``%s`` has been cancelled.", ref.BuildID), nil
	case KindRetry:
		if err := c.Retry(ctx, ref); err != nil {
			return "", err
		}
		return fmt.Sprintf("Build ``%s`` is being retried.", ref.BuildID), nil
	}
	return "", fmt.Errorf("actions: unknown kind %q", kind)
}

// ControllerConfig configures the REST build controller.
type ControllerConfig struct {
	// BaseURL of the build service API, e.g. "https://cloudbuild.googleapis.com".
	BaseURL string
	// Token is sent as a bearer credential.
	Token   string
	Timeout time.Duration
}

// RESTController drives the build service over its JSON API.
type RESTController struct {
	cfg    ControllerConfig
	client *http.Client
	log    logx.Logger
}

func NewRESTController(cfg ControllerConfig, log logx.Logger) *RESTController {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RESTController{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

func (c *RESTController) Approve(ctx context.Context, ref Ref) error {
	return c.decide(ctx, ref, "APPROVED")
}

func (c *RESTController) Reject(ctx context.Context, ref Ref) error {
	return c.decide(ctx, ref, "REJECTED")
}

func (c *RESTController) Cancel(ctx context.Context, ref Ref) error {
	return c.post(ctx, ref, "cancel", nil)
}

func (c *RESTController) Retry(ctx context.Context, ref Ref) error {
	return c.post(ctx, ref, "retry", nil)
}

func (c *RESTController) decide(ctx context.Context, ref Ref, decision string) error {
	body := fmt.Sprintf(`{"approvalResult":{"decision":%q}}`, decision)
	return c.post(ctx, ref, "approve", strings.NewReader(body))
}

func (c *RESTController) post(ctx context.Context, ref Ref, verb string, body io.Reader) error {
	url := fmt.Sprintf("%s/v1/projects/%s/builds/%s:%s", c.cfg.BaseURL, ref.ProjectID, ref.BuildID, verb)

	if body == nil {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("actions: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("actions: %s build %s: %w", verb, ref.BuildID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("build controller rejected action",
			logx.String("verb", verb),
			logx.String("build", ref.BuildID),
			logx.Int("status", resp.StatusCode))
		return fmt.Errorf("actions: %s build %s: status %d: %s", verb, ref.BuildID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

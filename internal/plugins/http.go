package plugins

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPPlugin is an illustrative builtin: a single "request" function that
// posts a body to a configured webhook, the kind of side effect a runbook
// node commonly wants (paging, Slack/Teams notification, deploy hook).
type HTTPPlugin struct {
	Client *http.Client
}

func NewHTTPPlugin() *HTTPPlugin {
	return &HTTPPlugin{Client: &http.Client{Timeout: 30 * time.Second}}
}

// Execute validates params against this plugin's fixed schema before
// making any request (spec.md §4.5: "plugin must validate parameters
// against its declared schema before executing").
func (p *HTTPPlugin) Execute(ctx context.Context, function string, params map[string]any, config map[string]any) (string, error) {
	if function != "request" {
		return "", fmt.Errorf("http plugin has no function %q", function)
	}

	url, _ := params["url"].(string)
	if url == "" {
		url, _ = config["url"].(string)
	}
	if url == "" {
		return "", fmt.Errorf("schema error: %q parameter is required", "url")
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = "POST"
	}
	body, _ := params["body"].(string)

	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("request returned %d: %s", resp.StatusCode, string(respBody))
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, string(respBody)), nil
}

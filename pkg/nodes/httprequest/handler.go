// Package httprequest provides an HTTP request step handler.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/template"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

var ErrMissingURL = errors.New("missing required field 'url'")

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Handler performs one HTTP request per step. URL, headers and body
// support {{stepId.field}} interpolation. Responses with status >= 400 fail
// the step; there are no retries.
type Handler struct {
	client *http.Client
}

func NewHandler(client *http.Client) *Handler {
	if client == nil {
		client = &http.Client{}
	}

	return &Handler{client: client}
}

type requestConfig struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

func parseConfig(config map[string]any) (requestConfig, error) {
	rc := requestConfig{
		Method:  http.MethodGet,
		Headers: make(map[string]string),
		Timeout: defaultTimeout,
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return rc, ErrMissingURL
	}

	rc.URL = url

	if method, ok := config["method"].(string); ok && method != "" {
		rc.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				rc.Headers[k] = s
			}
		}
	}

	switch body := config["body"].(type) {
	case nil:
	case string:
		rc.Body = body
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return rc, fmt.Errorf("failed to encode body: %w", err)
		}

		rc.Body = string(encoded)
	}

	if timeout, ok := config["timeout"].(float64); ok && timeout > 0 {
		rc.Timeout = time.Duration(timeout * float64(time.Second))
	}

	return rc, nil
}

func (h *Handler) Execute(ctx context.Context, step *models.Step, sc models.StepContext) (map[string]any, error) {
	rc, err := parseConfig(step.Config)
	if err != nil {
		return nil, err
	}

	scope := template.Scope(sc.PreviousOutputs, sc.TriggerData)

	var reqBody io.Reader
	if rc.Body != "" {
		reqBody = strings.NewReader(template.Interpolate(rc.Body, scope))
	}

	ctx, cancel := context.WithTimeout(ctx, rc.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, rc.Method, template.Interpolate(rc.URL, scope), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range rc.Headers {
		req.Header.Set(key, template.Interpolate(value, scope))
	}

	if reqBody != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
	}

	return result, nil
}

func (h *Handler) ID() string {
	return "http_request"
}

func (h *Handler) Name() string {
	return "HTTP Request"
}

func (h *Handler) Description() string {
	return "Performs an HTTP request. URL, headers and body support {{stepId.field}} references."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL",
				"examples":    []string{"https://api.example.com/users/{{trigger_data.user_id}}"},
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "get", "post", "put", "patch", "delete", "head", "options"},
				"default": "GET",
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"description": "Request body; non-string values are sent as JSON",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Timeout in seconds",
				"minimum":     1,
				"maximum":     300,
				"default":     30,
			},
		},
		"required": []string{"url"},
	}
}

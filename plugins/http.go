package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowdeck/flowdeck/internal/catalog"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPPlugin is the factory for the generic "http" tool. Credentials and the
// base URL come from the profile config; per-call details (path, method,
// body) come from action parameters, so one tool instance can serve any
// JSON-speaking endpoint.
type HTTPPlugin struct{}

// NewHTTPPlugin creates the http tool factory.
func NewHTTPPlugin() *HTTPPlugin { return &HTTPPlugin{} }

func (p *HTTPPlugin) Name() string { return "http" }

func (p *HTTPPlugin) New(config map[string]string) (catalog.Tool, error) {
	t := &httpTool{
		baseURL:    strings.TrimRight(config["base_url"], "/"),
		authType:   config["auth_type"],
		token:      config["token"],
		username:   config["username"],
		password:   config["password"],
		headerName: config["header_name"],
		timeout:    defaultHTTPTimeout,
		maxBody:    defaultMaxResponseBody,
	}
	if ts := config["timeout"]; ts != "" {
		d, err := time.ParseDuration(ts)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", ts, err)
		}
		t.timeout = d
	}
	return t, nil
}

type httpTool struct {
	baseURL    string
	authType   string
	token      string
	username   string
	password   string
	headerName string
	timeout    time.Duration
	maxBody    int64
}

// Authenticate checks that the configured auth mode has the fields it needs.
// An empty auth_type means unauthenticated requests, which is fine.
func (t *httpTool) Authenticate(_ context.Context) (bool, error) {
	switch t.authType {
	case "", "none":
		return true, nil
	case "bearer":
		return t.token != "", nil
	case "basic":
		return t.username != "" && t.password != "", nil
	case "api_key":
		return t.headerName != "" && t.token != "", nil
	default:
		return false, fmt.Errorf("unknown auth_type %q", t.authType)
	}
}

func (t *httpTool) AvailableActions() []string {
	return []string{"request", "get", "post"}
}

func (t *httpTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}

	var method string
	switch action {
	case "get":
		method = http.MethodGet
	case "post":
		method = http.MethodPost
	case "request":
		method = strings.ToUpper(stringParam(params, "method", "GET"))
	default:
		return nil, fmt.Errorf("action %q not supported", action)
	}

	target, err := t.resolveURL(stringParam(params, "url", ""))
	if err != nil {
		return nil, err
	}

	bodyReader, contentType, err := encodeBody(params)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if hdrs, ok := params["headers"].(map[string]any); ok {
		for k, v := range hdrs {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	t.applyAuth(req)

	client := &http.Client{}
	if !boolParam(params, "follow_redirects", true) {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	out := map[string]any{
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"headers":      respHeaders,
		"body":         parseBody(bodyBytes, resp.Header.Get("Content-Type")),
		"content_type": resp.Header.Get("Content-Type"),
		"duration_ms":  time.Since(start).Milliseconds(),
	}

	if boolParam(params, "fail_on_error_status", false) && resp.StatusCode >= 400 {
		return out, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return out, nil
}

// resolveURL joins a relative path onto the configured base URL. Absolute
// URLs pass through untouched.
func (t *httpTool) resolveURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("missing required parameter %q", "url")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return "", fmt.Errorf("invalid url %q: %w", raw, err)
		}
		return raw, nil
	}
	if t.baseURL == "" {
		return "", fmt.Errorf("relative url %q requires a configured base_url", raw)
	}
	return t.baseURL + "/" + strings.TrimLeft(raw, "/"), nil
}

func (t *httpTool) applyAuth(req *http.Request) {
	switch t.authType {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+t.token)
	case "basic":
		req.SetBasicAuth(t.username, t.password)
	case "api_key":
		req.Header.Set(t.headerName, t.token)
	}
}

func encodeBody(params map[string]any) (io.Reader, string, error) {
	raw, ok := params["body"]
	if !ok || raw == nil {
		return nil, "", nil
	}
	switch stringParam(params, "body_encoding", "json") {
	case "form":
		form, ok := raw.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("form body must be an object")
		}
		vals := url.Values{}
		for k, v := range form {
			vals.Set(k, fmt.Sprintf("%v", v))
		}
		return strings.NewReader(vals.Encode()), "application/x-www-form-urlencoded", nil
	case "text":
		return strings.NewReader(fmt.Sprintf("%v", raw)), "text/plain", nil
	case "raw":
		return strings.NewReader(fmt.Sprintf("%v", raw)), "", nil
	default: // json
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, "", fmt.Errorf("marshal body as JSON: %w", err)
		}
		return strings.NewReader(string(b)), "application/json", nil
	}
}

// parseBody decodes JSON responses into structured data; everything else is
// returned as a string.
func parseBody(b []byte, contentType string) any {
	if len(b) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") {
		var decoded any
		if err := json.Unmarshal(b, &decoded); err == nil {
			return decoded
		}
	}
	return string(b)
}

func stringParam(m map[string]any, key, def string) string {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return def
	}
	return s
}

func boolParam(m map[string]any, key string, def bool) bool {
	b, ok := m[key].(bool)
	if !ok {
		return def
	}
	return b
}

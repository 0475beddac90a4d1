package model

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"

	"aina-notebook/pkg/logger"
)

// maxLoggedBody caps logged request bodies; image payloads are large.
const maxLoggedBody = 4096

var sensitiveBodyField = regexp.MustCompile(`(?i)"(api_key|apikey|password|secret|token)"\s*:\s*"[^"]*"`)

// DebugTransport logs outgoing POST requests to AI providers with credentials redacted.
type DebugTransport struct {
	base    http.RoundTripper
	enabled bool
}

func NewDebugTransport(base http.RoundTripper, enabled bool) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, enabled: enabled}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.enabled && req.Method == http.MethodPost {
		t.logRequest(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil && t.enabled {
		logger.Errorf("AI request to %s failed: %v", req.URL.Host, err)
	}
	return resp, err
}

func (t *DebugTransport) logRequest(req *http.Request) {
	headers := make(map[string]string, len(req.Header))
	for name, values := range req.Header {
		if isSensitiveHeader(name) {
			headers[name] = "[REDACTED]"
			continue
		}
		headers[name] = strings.Join(values, ", ")
	}

	entry := logger.WithFields(map[string]interface{}{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": headers,
	})

	if req.Body == nil {
		entry.Debug("AI request")
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		logger.Errorf("Failed to read AI request body: %v", err)
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	entry.WithField("size", len(body)).Debugf("AI request body: %s", sanitizeBody(body))
}

func sanitizeBody(body []byte) string {
	s := sensitiveBodyField.ReplaceAllString(string(body), `"$1": "[REDACTED]"`)
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "...(truncated)"
	}
	return s
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "x-api-key", "x-auth-token", "cookie":
		return true
	}
	return false
}

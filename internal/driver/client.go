// Package driver implements the UiAutomator2 HTTP client used to drive
// the wallet application. The Session is the single long-lived handle
// to the automation resource; all mutating access to it must go through
// the exclusive task queue.
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wallet-test-framework/glue-metamask-android/internal/config"
)

// Element locator strategies understood by the UiAutomator2 server.
const (
	ByAccessibilityID = "accessibility id"
	ByUIAutomator     = "-android uiautomator"
	ByXPath           = "xpath"
	ByID              = "id"
)

// W3C error codes the glue distinguishes.
const (
	errNoSuchElement = "no such element"
	errStaleElement  = "stale element reference"
)

// Error is a WebDriver protocol error.
type Error struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("driver: %s: %s", e.Code, e.Message)
}

// IsNoSuchElement reports whether err means the element does not exist.
func IsNoSuchElement(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == errNoSuchElement
}

// isTransient reports whether err is worth a bounded local retry: the
// element vanished or went stale between the existence check and use.
func isTransient(err error) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == errNoSuchElement || de.Code == errStaleElement
}

// Client talks to a UiAutomator2 server.
type Client struct {
	baseURL     string
	http        *http.Client
	appPackage  string
	findRetries int
}

func NewClient(cfg config.DriverConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.ServerURL, "/"),
		http:        &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second},
		appPackage:  cfg.AppPackage,
		findRetries: cfg.FindRetries,
	}
}

// NewSession creates the automation session against the device.
func (c *Client) NewSession(ctx context.Context) (*Session, error) {
	req := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"platformName":      "Android",
				"appium:appPackage": c.appPackage,
			},
		},
	}
	var resp struct {
		Value struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	if err := c.do(ctx, http.MethodPost, "/session", req, &resp); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if resp.Value.SessionID == "" {
		return nil, fmt.Errorf("create session: server returned empty session id")
	}
	return &Session{client: c, id: resp.Value.SessionID}, nil
}

// do performs one HTTP exchange with the driver server. Protocol errors
// are surfaced as *Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var wrapped struct {
			Value Error `json:"value"`
		}
		if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Value.Code != "" {
			return &Error{Code: wrapped.Value.Code, Message: wrapped.Value.Message}
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

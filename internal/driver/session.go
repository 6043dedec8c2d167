package driver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// AppState is the application lifecycle state reported by the device.
type AppState int

const (
	AppStateNotInstalled AppState = 0
	AppStateNotRunning   AppState = 1
	AppStateBackground   AppState = 3
	AppStateForeground   AppState = 4
)

// Session is the automation resource handle. It is created once at glue
// start and deleted once at stop; everything in between is mediated by
// the exclusive task queue.
type Session struct {
	client *Client
	id     string
}

// ID returns the driver-assigned session id.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) path(suffix string) string {
	return "/session/" + url.PathEscape(s.id) + suffix
}

// AppState probes the wallet application's lifecycle state. Read-only.
func (s *Session) AppState(ctx context.Context) (AppState, error) {
	req := map[string]string{"appId": s.client.appPackage}
	var resp struct {
		Value AppState `json:"value"`
	}
	if err := s.client.do(ctx, http.MethodPost, s.path("/appium/device/app_state"), req, &resp); err != nil {
		return AppStateNotRunning, fmt.Errorf("app state: %w", err)
	}
	return resp.Value, nil
}

// Activate brings the wallet application to the foreground.
func (s *Session) Activate(ctx context.Context) error {
	req := map[string]string{"appId": s.client.appPackage}
	if err := s.client.do(ctx, http.MethodPost, s.path("/appium/device/activate_app"), req, nil); err != nil {
		return fmt.Errorf("activate app: %w", err)
	}
	return nil
}

// Element is a located UI element, valid only while the screen that
// produced it is still showing.
type Element struct {
	session *Session
	id      string
}

type elementRef struct {
	W3C    string `json:"element-6066-11e4-a52e-4f735466cecf"`
	Legacy string `json:"ELEMENT"`
}

func (r elementRef) id() string {
	if r.W3C != "" {
		return r.W3C
	}
	return r.Legacy
}

// FindElement locates a single element. Returns *Error with code
// "no such element" when absent.
func (s *Session) FindElement(ctx context.Context, by, selector string) (*Element, error) {
	req := map[string]string{"using": by, "value": selector}
	var resp struct {
		Value elementRef `json:"value"`
	}
	if err := s.client.do(ctx, http.MethodPost, s.path("/element"), req, &resp); err != nil {
		return nil, err
	}
	if resp.Value.id() == "" {
		return nil, &Error{Code: errNoSuchElement, Message: "server returned empty element reference"}
	}
	return &Element{session: s, id: resp.Value.id()}, nil
}

// HasElement reports element presence, treating "no such element" as a
// negative answer rather than a failure. Read-only.
func (s *Session) HasElement(ctx context.Context, by, selector string) (bool, error) {
	_, err := s.FindElement(ctx, by, selector)
	if err != nil {
		if IsNoSuchElement(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Click taps the element.
func (e *Element) Click(ctx context.Context) error {
	path := e.session.path("/element/" + url.PathEscape(e.id) + "/click")
	if err := e.session.client.do(ctx, http.MethodPost, path, map[string]string{}, nil); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

// Text returns the element's visible text.
func (e *Element) Text(ctx context.Context) (string, error) {
	path := e.session.path("/element/" + url.PathEscape(e.id) + "/text")
	var resp struct {
		Value string `json:"value"`
	}
	if err := e.session.client.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("text: %w", err)
	}
	return resp.Value, nil
}

// Tap finds and clicks an element, retrying a bounded number of times
// when the element vanishes or goes stale between lookup and click.
func (s *Session) Tap(ctx context.Context, by, selector string) error {
	return s.withRetry(ctx, func() error {
		el, err := s.FindElement(ctx, by, selector)
		if err != nil {
			return err
		}
		return el.Click(ctx)
	})
}

// ReadText finds an element and returns its text, with the same bounded
// retry as Tap.
func (s *Session) ReadText(ctx context.Context, by, selector string) (string, error) {
	var text string
	err := s.withRetry(ctx, func() error {
		el, err := s.FindElement(ctx, by, selector)
		if err != nil {
			return err
		}
		text, err = el.Text(ctx)
		return err
	})
	return text, err
}

func (s *Session) withRetry(ctx context.Context, op func() error) error {
	retries := s.client.findRetries
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(250 * time.Millisecond):
			}
		}
		err = op()
		if err == nil || !isTransient(err) {
			return err
		}
	}
	return err
}

// Close deletes the automation session.
func (s *Session) Close(ctx context.Context) error {
	if err := s.client.do(ctx, http.MethodDelete, s.path(""), nil, nil); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

package e2etest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/justinas/nosurf"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/persistence"
)

// Client talks to the JSON API of the server. It keeps the session cookies and the CSRF token between requests.
type Client struct {
	client    *http.Client
	url       string
	csrfToken string
}

// NewClient creates a cookie-aware HTTP client for the server at url.
func NewClient(url string) (*Client, error) {
	jar, err := newUnsafeCookieJar()
	if err != nil {
		return nil, errors.Wrap(err, "create unsafe cookie jar")
	}
	return &Client{
		client:    &http.Client{Jar: jar}, //nolint:exhaustruct // defaults are fine.
		url:       url,
		csrfToken: "",
	}, nil
}

// StatusError is returned when the server responds with an unexpected status code.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.Status, e.Body)
}

// Session is the state of the conversation as returned by the server.
type Session struct {
	persistence.Snapshot
	Busy      bool `json:"busy"`
	Recovered bool `json:"recovered"`
}

// Reply is the answer to a sent message.
type Reply struct {
	UserMessage    models.Message `json:"user_message"`
	Message        models.Message `json:"message"`
	PreviousStage  models.Stage   `json:"previous_stage"`
	Stage          models.Stage   `json:"stage"`
	EnteredOffline bool           `json:"entered_offline"`
	Offline        bool           `json:"offline"`
	DraftScenario  string         `json:"draft_scenario"`
	FinalScenario  string         `json:"final_scenario"`
}

// Extension is the result of asking for more time.
type Extension struct {
	Extended         bool `json:"extended"`
	RemainingSeconds int  `json:"remaining_seconds"`
}

// Scenario is an archived final scenario.
type Scenario struct {
	ID       string         `json:"id"`
	Director models.Persona `json:"director"`
	Emotion  models.Emotion `json:"emotion"`
	Vignette string         `json:"vignette"`
	Scenario string         `json:"scenario"`
	Created  time.Time      `json:"created"`
}

// Catalogue lists the directors and emotions a session can start with.
type Catalogue struct {
	Directors []models.Director `json:"directors"`
	Emotions  []models.Emotion  `json:"emotions"`
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(
			ctx,
			http.MethodGet,
			c.url+urlPath,
			nil,
		); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = c.client.Do(req); err == nil {
			if resp.StatusCode == http.StatusOK {
				if err = resp.Body.Close(); err != nil {
					return errors.Wrap(err, "close response body")
				}
				return nil
			}
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Get fetches a URL and returns the response. The caller closes the body.
func (c *Client) Get(ctx context.Context, urlPath string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+urlPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	c.rememberCSRFToken(resp)
	return resp, nil
}

// Directors fetches the directors and emotions. It also provides the CSRF token for later requests.
func (c *Client) Directors(ctx context.Context) (Catalogue, error) {
	var catalogue Catalogue
	if err := c.do(ctx, http.MethodGet, "/api/directors", nil, http.StatusOK, &catalogue); err != nil {
		return Catalogue{}, errors.Wrap(err, "get directors")
	}
	return catalogue, nil
}

// Start starts or resumes a conversation with director.
func (c *Client) Start(ctx context.Context, director models.Persona, emotion models.Emotion, vignette string) (Session, error) {
	body := map[string]string{"director": string(director), "emotion": string(emotion), "vignette": vignette}
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/session", body, http.StatusOK, &s); err != nil {
		return Session{}, errors.Wrap(err, "start session")
	}
	return s, nil
}

// Session fetches the current conversation.
func (c *Client) Session(ctx context.Context) (Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, http.StatusOK, &s); err != nil {
		return Session{}, errors.Wrap(err, "get session")
	}
	return s, nil
}

// Send sends text to the director and waits for the reply.
func (c *Client) Send(ctx context.Context, text string) (Reply, error) {
	var reply Reply
	body := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, "/api/session/messages", body, http.StatusOK, &reply); err != nil {
		return Reply{}, errors.Wrap(err, "send message")
	}
	return reply, nil
}

// Extend asks for more conversation time.
func (c *Client) Extend(ctx context.Context) (Extension, error) {
	var ext Extension
	if err := c.do(ctx, http.MethodPost, "/api/session/extend", nil, http.StatusOK, &ext); err != nil {
		return Extension{}, errors.Wrap(err, "extend session")
	}
	return ext, nil
}

// Reset drops the conversation.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/api/session", nil, http.StatusNoContent, nil); err != nil {
		return errors.Wrap(err, "reset session")
	}
	return nil
}

// Scenarios lists the archived scenarios of this client.
func (c *Client) Scenarios(ctx context.Context) ([]Scenario, error) {
	var resp struct {
		Scenarios []Scenario `json:"scenarios"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/scenarios", nil, http.StatusOK, &resp); err != nil {
		return nil, errors.Wrap(err, "list scenarios")
	}
	return resp.Scenarios, nil
}

func (c *Client) rememberCSRFToken(resp *http.Response) {
	if token := resp.Header.Get(nosurf.HeaderName); token != "" {
		c.csrfToken = token
	}
}

// do sends a JSON request and decodes the response into dst unless dst is nil.
func (c *Client) do(ctx context.Context, method, urlPath string, body any, wantStatus int, dst any) error {
	if method != http.MethodGet && c.csrfToken == "" {
		if _, err := c.Directors(ctx); err != nil {
			return errors.Wrap(err, "fetch CSRF token")
		}
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+urlPath, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(nosurf.HeaderName, c.csrfToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.rememberCSRFToken(resp)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response body")
	}
	if resp.StatusCode != wantStatus {
		return errors.Wrap(&StatusError{Status: resp.StatusCode, Body: string(respBody)}, "unexpected response",
			slog.String("method", method), slog.String("path", urlPath))
	}
	if dst == nil {
		return nil
	}
	if err = json.Unmarshal(respBody, dst); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	return nil
}

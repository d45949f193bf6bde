package reseller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://api.dataimpulse.com/reseller"

	defaultTimeout  = 60 * time.Second
	defaultTokenTTL = 23 * time.Hour

	// maxResetRetries is how many times a call is repeated after the
	// connection was reset by the peer
	maxResetRetries = 3
)

var (
	// ErrAuthentication means the login/password exchange failed
	ErrAuthentication = errors.New("reseller authentication failed")
	// ErrUnauthorized means the API rejected a freshly issued token
	ErrUnauthorized = errors.New("reseller rejected token after refresh")
)

// APIError is a non-2xx answer from the reseller API
type APIError struct {
	Method   string
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reseller %s %s: status %d: %s", e.Method, e.Endpoint, e.Status, e.Body)
}

// Client calls the reseller REST API with a bearer token
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    *Session
	tokenTTL   time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the fixed per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithTokenTTL sets how long an issued token is trusted
func WithTokenTTL(d time.Duration) Option {
	return func(c *Client) { c.tokenTTL = d }
}

func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokenTTL:   defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = newSession(creds, c.tokenTTL, c.fetchToken)
	return c
}

// Session exposes the token holder, mainly for health reporting
func (c *Client) Session() *Session {
	return c.session
}

// Authenticate forces a fresh token
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.session.Refresh(ctx)
	return err
}

func (c *Client) fetchToken(ctx context.Context, creds Credentials) (string, error) {
	if creds.Login == "" || creds.Password == "" {
		return "", fmt.Errorf("%w: login and password must be set", ErrAuthentication)
	}
	payload, err := json.Marshal(map[string]string{"login": creds.Login, "password": creds.Password})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	status, body, err := c.send(ctx, http.MethodPost, "/user/token/get", nil, payload, "")
	if err != nil {
		log.WithError(err).Error("Error getting reseller token")
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if status < 200 || status >= 300 {
		log.WithFields(log.Fields{"status": status, "body": string(body)}).Error("Error getting reseller token")
		return "", fmt.Errorf("%w: status %d", ErrAuthentication, status)
	}

	var res struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrAuthentication, err)
	}
	if res.Token == "" {
		return "", fmt.Errorf("%w: received an empty token", ErrAuthentication)
	}
	log.Debug("Obtained reseller API token")
	return res.Token, nil
}

// get issues an authorized GET with params in the query string
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, params, nil, out)
}

// post issues an authorized POST with a JSON body
func (c *Client) post(ctx context.Context, endpoint string, body interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPost, endpoint, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal %s payload: %w", endpoint, err)
		}
	}

	token, err := c.session.Token(ctx)
	if err != nil {
		return err
	}

	status, raw, err := c.send(ctx, method, endpoint, params, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		log.WithField("endpoint", endpoint).Warn("Reseller token expired, refreshing token")
		if token, err = c.session.Refresh(ctx); err != nil {
			return err
		}
		if status, raw, err = c.send(ctx, method, endpoint, params, payload, token); err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("%s %s: %w", method, endpoint, ErrUnauthorized)
		}
	}

	if status < 200 || status >= 300 {
		return &APIError{Method: method, Endpoint: endpoint, Status: status, Body: string(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// send performs one logical request, repeating it when the connection is
// reset. token may be empty for the unauthenticated token exchange.
func (c *Client) send(ctx context.Context, method, endpoint string, params url.Values, payload []byte, token string) (int, []byte, error) {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	for attempt := 0; ; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return 0, nil, fmt.Errorf("http new request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		status, body, err := c.roundTrip(req)
		if err == nil {
			return status, body, nil
		}
		if !isConnReset(err) || attempt >= maxResetRetries || ctx.Err() != nil {
			return 0, nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
		}
		log.WithFields(log.Fields{
			"endpoint":     endpoint,
			"retries_left": maxResetRetries - attempt,
		}).Warn("Connection reset, retrying request")
	}
}

func (c *Client) roundTrip(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET)
}

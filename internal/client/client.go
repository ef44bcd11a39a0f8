// Package client is the terminal side of the SafeSpace API: the auth provider surface under
// /auth/v1, the CRUD routes under /api, and a local stream of session events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/model"
)

// refreshLeeway is how close to expiry an access token is refreshed before use
const refreshLeeway = 30 * time.Second

// eventBuffer is the per-subscriber event queue length
const eventBuffer = 32

// APIError is a non-2xx response. Code is set for provider errors.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return e.Message
}

// ErrorCode returns the provider error code, if any
func (e *APIError) ErrorCode() string { return e.Code }

// Options configure a Client
type Options struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	Now        func() time.Time
}

// Client talks to the API on behalf of one user. Tokens live in a TokenStore and
// session changes are broadcast to subscribers.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	logger     *zap.Logger
	now        func() time.Time

	refreshMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan model.AuthEvent
	nextID int
}

// New creates a client targeting baseURL (e.g. "http://localhost:8080")
func New(baseURL string, tokens TokenStore, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: opts.HTTPClient,
		tokens:     tokens,
		logger:     opts.Logger.Named("client"),
		now:        opts.Now,
		subs:       make(map[int]chan model.AuthEvent),
	}
}

// Subscribe returns a channel of session events and a cancel func that closes it
func (c *Client) Subscribe() (<-chan model.AuthEvent, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan model.AuthEvent, eventBuffer)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

func (c *Client) emit(t model.AuthEventType, user *model.AuthUser) {
	ev := model.AuthEvent{Type: t, User: user, At: c.now()}
	if user != nil {
		ev.UserID = user.ID.String()
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("dropping session event for slow subscriber", zap.Int("subscriber", id), zap.String("event", string(t)))
		}
	}
}

// accessToken returns a usable access token, refreshing it when close to expiry.
// An empty token means no session.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	session, err := c.tokens.Load()
	if err != nil {
		return "", fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return "", nil
	}
	if !c.expiring(session) || session.RefreshToken == "" {
		return session.AccessToken, nil
	}

	refreshed, err := c.refresh(ctx)
	if err != nil {
		return "", err
	}
	if refreshed == nil {
		return "", nil
	}
	return refreshed.AccessToken, nil
}

func (c *Client) expiring(s *auth.Session) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return time.Unix(s.ExpiresAt, 0).Sub(c.now()) < refreshLeeway
}

// doJSON performs a request and decodes a JSON response into result. authed requests
// carry the stored access token; without a session they fail with session_not_found.
func (c *Client) doJSON(ctx context.Context, method, path string, authed bool, body, result any) error {
	var token string
	if authed {
		var err error
		if token, err = c.accessToken(ctx); err != nil {
			return err
		}
		if token == "" {
			return &APIError{StatusCode: auth.ErrSessionMissing.Status, Code: auth.ErrSessionMissing.Code, Message: auth.ErrSessionMissing.Message}
		}
	}
	return c.send(ctx, method, path, token, body, result)
}

func (c *Client) send(ctx context.Context, method, path, token string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	// 202 is how /api/signin reports an unconfirmed email
	if resp.StatusCode >= 400 || resp.StatusCode == http.StatusAccepted {
		var errResp struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

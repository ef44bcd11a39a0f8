package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/model"
)

// IdentityLinker links a Google account to the signed-in user. Create one per link
// attempt and Close it when done.
type IdentityLinker struct {
	client *Client
	poll   time.Duration
	done   chan struct{}
	once   sync.Once
}

// NewIdentityLinker creates a linker that polls the user's identities every poll interval
func (c *Client) NewIdentityLinker(poll time.Duration) *IdentityLinker {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &IdentityLinker{client: c, poll: poll, done: make(chan struct{})}
}

// Start returns the Google consent URL to open in a browser
func (l *IdentityLinker) Start(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := l.client.doJSON(ctx, http.MethodGet, "/auth/v1/identities/google", true, nil, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("api returned no consent url")
	}
	return resp.URL, nil
}

// Wait blocks until a Google identity shows up on the user, then emits USER_UPDATED
func (l *IdentityLinker) Wait(ctx context.Context) (*model.Identity, error) {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		identities, err := l.client.Identities(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range identities {
			if id.Provider == auth.ProviderGoogle {
				user, err := l.client.GetUser(ctx)
				if err == nil {
					l.client.emit(model.EventUserUpdated, user)
				}
				return &id, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.done:
			return nil, fmt.Errorf("identity linker closed")
		case <-ticker.C:
		}
	}
}

// Close stops a pending Wait
func (l *IdentityLinker) Close() {
	l.once.Do(func() { close(l.done) })
}

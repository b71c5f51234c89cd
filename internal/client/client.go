// Package client is the participant side of the event: it keeps live
// snapshots of the registry and the event config, drives the sign-in flow
// and submits quiz answers and messages on behalf of the session owner.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/rkrmr33/bukber/internal/apperrors"
	"github.com/rkrmr33/bukber/internal/models"
	"github.com/rkrmr33/bukber/internal/panel"
	"github.com/rkrmr33/bukber/internal/reconcile"
	"github.com/rkrmr33/bukber/internal/session"
)

const accessCodeHeader = "X-Access-Code"

// Client talks to the event server over HTTP and the websocket feed
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	dialer   *websocket.Dialer
	sessions session.Store
	onChange func()

	mu           sync.RWMutex
	participants []models.Participant
	config       models.EventConfig
}

var _ reconcile.Directory = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithOnChange registers a callback invoked after every snapshot change
func WithOnChange(fn func()) Option {
	return func(c *Client) {
		c.onChange = fn
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, sessions session.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	c := &Client{
		baseURL:  u,
		http:     &http.Client{Timeout: 10 * time.Second},
		dialer:   websocket.DefaultDialer,
		sessions: sessions,
		config:   models.DefaultEventConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewAttempt starts a sign-in attempt against this client's snapshot
func (c *Client) NewAttempt() *reconcile.Attempt {
	return reconcile.NewAttempt(c, c.sessions)
}

// Lookup finds a participant by case-insensitive name in the current snapshot
func (c *Client) Lookup(name string) (models.Participant, bool) {
	key := models.NameKey(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.participants {
		if models.NameKey(p.Name) == key {
			return p, true
		}
	}
	return models.Participant{}, false
}

// Register creates a participant
func (c *Client) Register(ctx context.Context, name string) (models.Registration, error) {
	var reg models.Registration
	err := c.do(ctx, http.MethodPost, "/api/participants", map[string]string{"name": name}, nil, &reg)
	return reg, err
}

// Verify checks an access code for a participant
func (c *Client) Verify(ctx context.Context, id, accessCode string) (models.Participant, error) {
	var p models.Participant
	err := c.do(ctx, http.MethodPost, "/api/participants/"+url.PathEscape(id)+"/verify",
		map[string]string{"accessCode": accessCode}, nil, &p)
	return p, err
}

// Refresh replaces both snapshots with the server's current state
func (c *Client) Refresh(ctx context.Context) error {
	var list []models.Participant
	if err := c.do(ctx, http.MethodGet, "/api/participants", nil, nil, &list); err != nil {
		return err
	}
	var cfg models.EventConfig
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, nil, &cfg); err != nil {
		return err
	}
	c.setParticipants(list)
	c.setConfig(cfg)
	return c.checkSession(ctx)
}

// Participants returns the current registry snapshot
func (c *Client) Participants() []models.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Participant(nil), c.participants...)
}

// Config returns the current event config snapshot
func (c *Client) Config() models.EventConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Me returns the session owner's record from the snapshot
func (c *Client) Me() (models.Participant, bool) {
	s, ok, err := c.sessions.Load()
	if err != nil || !ok {
		return models.Participant{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.participants {
		if p.ID == s.ParticipantID {
			return p, true
		}
	}
	return models.Participant{}, false
}

// Panel renders the interaction panel for the session owner
func (c *Client) Panel() (panel.View, bool) {
	me, ok := c.Me()
	if !ok {
		return panel.View{}, false
	}
	return panel.Render(c.Config(), me), true
}

// Feed returns everyone else's messages, newest first
func (c *Client) Feed() []panel.FeedItem {
	var exclude string
	if s, ok, _ := c.sessions.Load(); ok {
		exclude = s.ParticipantID
	}
	return panel.Feed(c.Participants(), exclude)
}

// SubmitQuizAnswer records the session owner's quiz answer
func (c *Client) SubmitQuizAnswer(ctx context.Context, index int) (models.Participant, error) {
	return c.update(ctx, models.ParticipantUpdate{QuizAnswer: &index})
}

// SaveMessage stores the session owner's message
func (c *Client) SaveMessage(ctx context.Context, text string) (models.Participant, error) {
	return c.update(ctx, models.ParticipantUpdate{Message: &text})
}

// SignOut forgets the session
func (c *Client) SignOut() error {
	return c.sessions.Clear()
}

func (c *Client) update(ctx context.Context, change models.ParticipantUpdate) (models.Participant, error) {
	s, ok, err := c.sessions.Load()
	if err != nil {
		return models.Participant{}, err
	}
	if !ok {
		return models.Participant{}, apperrors.Auth(apperrors.ReasonInvalidCode, "not signed in")
	}

	var p models.Participant
	err = c.do(ctx, http.MethodPatch, "/api/participants/"+url.PathEscape(s.ParticipantID), change,
		map[string]string{accessCodeHeader: s.AccessCode}, &p)
	if errors.Is(err, apperrors.ErrNotFound) {
		_ = c.checkSession(ctx)
	}
	return p, err
}

// Run keeps the websocket subscription alive until ctx is done, reconnecting
// with exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second

	for {
		connected, err := c.Subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}
		wait := b.NextBackOff()
		slog.Warn("Subscription lost, reconnecting", "error", err, "retry_in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Subscribe applies snapshots pushed by the server until the connection
// drops or ctx is done. It reports whether the connection was established.
func (c *Client) Subscribe(ctx context.Context) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return false, apperrors.Connectivity("failed to connect to event feed", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, apperrors.Connectivity("event feed disconnected", err)
		}
		if err := c.apply(ctx, msg.Type, msg.Payload); err != nil {
			slog.Warn("Subscription failed to apply frame", "error", err, "msg_type", msg.Type)
		}
	}
}

func (c *Client) apply(ctx context.Context, kind string, payload json.RawMessage) error {
	switch kind {
	case models.MessageTypeParticipants:
		var list []models.Participant
		if err := json.Unmarshal(payload, &list); err != nil {
			return fmt.Errorf("decode participants: %w", err)
		}
		c.setParticipants(list)
		return c.checkSession(ctx)
	case models.MessageTypeConfig:
		var cfg models.EventConfig
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		c.setConfig(cfg)
		return nil
	default:
		return nil
	}
}

// checkSession clears a session whose participant is gone from the snapshot,
// after the server confirms it no longer exists.
func (c *Client) checkSession(ctx context.Context) error {
	s, ok, err := c.sessions.Load()
	if err != nil || !ok {
		return err
	}
	if _, found := c.Me(); found {
		return nil
	}

	err = c.do(ctx, http.MethodGet, "/api/participants/"+url.PathEscape(s.ParticipantID), nil, nil, nil)
	switch {
	case err == nil:
		// Snapshot is behind; the next one will include us
		return nil
	case errors.Is(err, apperrors.ErrNotFound):
		slog.Info("Session participant no longer exists, signing out", "participant_id", s.ParticipantID)
		if err := c.sessions.Clear(); err != nil {
			return err
		}
		c.changed()
		return nil
	default:
		return err
	}
}

func (c *Client) setParticipants(list []models.Participant) {
	c.mu.Lock()
	c.participants = list
	c.mu.Unlock()
	c.changed()
}

func (c *Client) setConfig(cfg models.EventConfig) {
	c.mu.Lock()
	c.config = cfg
	c.mu.Unlock()
	c.changed()
}

func (c *Client) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Client) wsURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Connectivity("server unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e models.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
			e.Message = resp.Status
		}
		appErr := apperrors.FromHTTP(resp.StatusCode, e.Error, e.Message)
		if e.ParticipantID != "" {
			appErr = appErr.WithMetadata(apperrors.MetaParticipantID, e.ParticipantID)
		}
		return appErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

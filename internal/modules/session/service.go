package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"storefront/internal/modules/pipeline"
	"storefront/internal/pkg/idempotency"
	"storefront/internal/pkg/token"
	"storefront/internal/pkg/validator"
)

const (
	refreshLead  = 2 * time.Minute
	logoutGrace  = 100 * time.Millisecond
	refreshLimit = 30 * time.Second
)

// RefreshDelay computes how long to wait before refreshing a token with the
// given remaining lifetime: two minutes before expiry for long-lived tokens,
// 70% of the lifetime for tokens shorter than two minutes.
func RefreshDelay(lifetime time.Duration) time.Duration {
	if lifetime > refreshLead {
		return lifetime - refreshLead
	}
	d := time.Duration(float64(lifetime) * 0.7)
	if d < 0 {
		return 0
	}
	return d
}

// Manager owns login, logout, refresh and auto-refresh scheduling. It is the
// source of truth for the current user, exposed as an observable stream.
type Manager struct {
	baseURL string
	http    Doer
	creds   *CredentialStore
	gate    *Gate
	now     func() time.Time

	mu       sync.Mutex
	current  *Session
	subs     map[int]chan *Session
	nextSub  int
	onLogout []func()
	navigate func()

	timerMu      sync.Mutex
	refreshTimer *time.Timer
}

func NewManager(baseURL string, client Doer, creds *CredentialStore) *Manager {
	return &Manager{
		baseURL: baseURL,
		http:    client,
		creds:   creds,
		gate:    NewGate(),
		now:     time.Now,
		subs:    make(map[int]chan *Session),
	}
}

// OnLogout registers cleanup run whenever the session ends: cart clear,
// channel teardown.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

// SetNavigate registers the hook fired (after a short grace delay) when the
// user is sent back to the login surface.
func (m *Manager) SetNavigate(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigate = fn
}

// Restore rebuilds the session from persisted tokens at startup. An
// unexpired token is published as-is and scheduled; an expired one triggers
// a single refresh attempt, falling back to logout.
func (m *Manager) Restore(ctx context.Context) {
	access := m.creds.AccessToken()
	if access == "" {
		m.publish(nil)
		return
	}

	if !m.creds.TokenExpired(m.now()) {
		claims, err := token.Decode(access)
		if err != nil {
			m.publish(nil)
			return
		}
		sess := &Session{
			AccessToken:  access,
			RefreshToken: m.creds.RefreshToken(),
			Identity:     identityFromClaims(claims),
			ExpiresAt:    claims.ExpiresAtTime(),
		}
		m.publish(sess)
		m.scheduleRefresh(sess.ExpiresAt)
		return
	}

	if _, err := m.Refresh(ctx); err != nil {
		m.Logout()
	}
}

// Login posts credentials, and on success persists both tokens, publishes
// the new session and arms the refresh schedule.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	resp, err := m.postJSON(ctx, "/api/auth/login", req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return nil, ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("login failed: status %d", resp.StatusCode)
	}

	var body LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return m.establish(body.Token, body.RefreshToken)
}

// Register submits a new account. The caller-supplied idempotency key makes
// retransmission of the same logical submission safe; reuse the key across
// retries, never across submissions.
func (m *Manager) Register(ctx context.Context, req RegisterRequest, idempotencyKey string) (*RegisterResponse, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(idempotency.Header, idempotencyKey)
	resp, err := m.postJSON(ctx, "/api/auth/register", req, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("registration failed: status %d", resp.StatusCode)
	}

	var body RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Refresh exchanges the stored token pair for a fresh one. Guarded by the
// in-flight gate: a concurrent call fails fast with ErrRefreshInProgress
// instead of issuing a second network call. On failure the session is
// cleared and logout forced.
func (m *Manager) Refresh(ctx context.Context) (*Session, error) {
	if !m.gate.TryBegin() {
		return nil, ErrRefreshInProgress
	}

	access := m.creds.AccessToken()
	refresh := m.creds.RefreshToken()
	if access == "" || refresh == "" {
		m.gate.Resolve("", ErrNoStoredTokens)
		return nil, ErrNoStoredTokens
	}

	header := http.Header{}
	header.Set(pipeline.SkipLoaderHeader, "1")
	resp, err := m.postJSON(ctx, "/api/auth/refresh-token", refreshRequest{
		Token:        access,
		RefreshToken: refresh,
	}, header)
	if err != nil {
		m.gate.Resolve("", err)
		m.Logout()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("refresh rejected: %w (status %d)", ErrUnauthorized, resp.StatusCode)
		m.gate.Resolve("", err)
		m.Logout()
		return nil, err
	}

	var body LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		m.gate.Resolve("", err)
		m.Logout()
		return nil, err
	}

	sess, err := m.establish(body.Token, body.RefreshToken)
	if err != nil {
		m.gate.Resolve("", err)
		m.Logout()
		return nil, err
	}
	m.gate.Resolve(sess.AccessToken, nil)
	return sess, nil
}

// TokenAfterRefresh is the pipeline's entry point after a 401: it performs
// the refresh, or parks behind the one already outstanding, and returns the
// shared new token.
func (m *Manager) TokenAfterRefresh(ctx context.Context) (string, error) {
	sess, err := m.Refresh(ctx)
	if err == nil {
		return sess.AccessToken, nil
	}
	if errors.Is(err, ErrRefreshInProgress) {
		return m.gate.Wait(ctx)
	}
	return "", err
}

// Logout clears persisted credentials, disarms the refresh timer, publishes
// a nil session, runs registered cleanup, and fires the login navigation
// hook after a short grace delay so in-flight cleanup can complete.
func (m *Manager) Logout() {
	if err := m.creds.Clear(); err != nil {
		log.Printf("session: clearing credentials: %v", err)
	}
	m.stopRefreshTimer()
	m.publish(nil)

	m.mu.Lock()
	hooks := append([]func(){}, m.onLogout...)
	nav := m.navigate
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	if nav != nil {
		time.AfterFunc(logoutGrace, nav)
	}
}

// IsAuthenticated is pure and synchronous: the persisted token's expiry is
// decoded on demand, never via a background poll.
func (m *Manager) IsAuthenticated() bool {
	return !m.creds.TokenExpired(m.now())
}

func (m *Manager) IsAdmin() bool {
	access := m.creds.AccessToken()
	if access == "" {
		return false
	}
	claims, err := token.Decode(access)
	if err != nil {
		return false
	}
	return claims.Role == RoleAdmin
}

// AccessToken exposes the stored bearer token to the pipeline and channel.
func (m *Manager) AccessToken() string {
	return m.creds.AccessToken()
}

func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe returns a stream of session changes; nil means logged out. The
// returned func cancels the subscription.
func (m *Manager) Subscribe() (<-chan *Session, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan *Session, 8)
	m.subs[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) establish(access, refresh string) (*Session, error) {
	claims, err := token.Decode(access)
	if err != nil {
		return nil, err
	}

	if err := m.creds.SaveTokens(access, refresh); err != nil {
		return nil, err
	}
	identity := identityFromClaims(claims)
	if err := m.creds.SaveIdentity(identity); err != nil {
		return nil, err
	}

	sess := &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		Identity:     identity,
		ExpiresAt:    claims.ExpiresAtTime(),
	}
	m.publish(sess)
	m.scheduleRefresh(sess.ExpiresAt)
	return sess, nil
}

func (m *Manager) scheduleRefresh(expiry time.Time) {
	m.stopRefreshTimer()

	lifetime := expiry.Sub(m.now())
	if lifetime <= 0 {
		go m.refreshInBackground()
		return
	}

	delay := RefreshDelay(lifetime)
	m.timerMu.Lock()
	m.refreshTimer = time.AfterFunc(delay, m.refreshInBackground)
	m.timerMu.Unlock()
	log.Printf("session: token refresh scheduled in %s", delay.Round(time.Second))
}

func (m *Manager) stopRefreshTimer() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

func (m *Manager) refreshInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshLimit)
	defer cancel()
	if _, err := m.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInProgress) {
		log.Printf("session: auto-refresh failed: %v", err)
	}
}

func (m *Manager) publish(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = sess
	for _, ch := range m.subs {
		select {
		case ch <- sess:
		default:
		}
	}
}

func (m *Manager) postJSON(ctx context.Context, path string, body any, header http.Header) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return m.http.Do(req)
}

func identityFromClaims(claims *token.Claims) Identity {
	return Identity{
		Subject:   claims.Subject,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		Role:      claims.Role,
	}
}

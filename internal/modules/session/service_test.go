package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/modules/pipeline"
	"storefront/internal/pkg/token"
)

type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key string, out any) error {
	raw, ok := m.data[key]
	if !ok {
		return errors.New("not found")
	}
	return json.Unmarshal(raw, out)
}

func (m *memKV) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memKV) Delete(key string) error {
	delete(m.data, key)
	return nil
}

// authStub serves the three auth endpoints with real signed tokens.
type authStub struct {
	tokens       *token.Service
	refreshCalls atomic.Int32
	refreshDelay time.Duration
	refreshFails bool
	sawSkip      atomic.Bool
}

func newAuthStub(ttl time.Duration) *authStub {
	return &authStub{tokens: token.New("test-secret", ttl)}
}

func (a *authStub) issue(w http.ResponseWriter) {
	access, _ := a.tokens.Generate("user-1", "jo@shop.local", "Jo", "Doe", "Customer")
	_ = json.NewEncoder(w).Encode(LoginResponse{
		Token:        access,
		RefreshToken: "refresh-1",
		Email:        "jo@shop.local",
		Role:         "Customer",
		FirstName:    "Jo",
		LastName:     "Doe",
	})
}

func (a *authStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "good-password" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid email or password"})
			return
		}
		a.issue(w)
	})
	mux.HandleFunc("/api/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		a.refreshCalls.Add(1)
		if r.Header.Get(pipeline.SkipLoaderHeader) != "" {
			a.sawSkip.Store(true)
		}
		time.Sleep(a.refreshDelay)
		if a.refreshFails {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid refresh token"})
			return
		}
		a.issue(w)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, stub *authStub) (*Manager, *memKV) {
	t.Helper()
	srv := stub.server(t)
	kv := newMemKV()
	m := NewManager(srv.URL, srv.Client(), NewCredentialStore(kv))
	return m, kv
}

func TestRefreshDelay(t *testing.T) {
	cases := []struct {
		name     string
		lifetime time.Duration
		want     time.Duration
	}{
		{"long lived fires two minutes early", 10 * time.Minute, 8 * time.Minute},
		{"exactly two minutes uses the fraction", 2 * time.Minute, 84 * time.Second},
		{"short lived uses seventy percent", time.Minute, 42 * time.Second},
		{"already expired fires immediately", -time.Second, 0},
		{"zero fires immediately", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RefreshDelay(tc.lifetime))
		})
	}
}

func TestLoginEstablishesSession(t *testing.T) {
	stub := newAuthStub(time.Hour)
	m, _ := newTestManager(t, stub)

	sessions, cancel := m.Subscribe()
	defer cancel()

	sess, err := m.Login(context.Background(), LoginRequest{Email: "jo@shop.local", Password: "good-password"})
	require.NoError(t, err)
	assert.Equal(t, "jo@shop.local", sess.Identity.Email)
	assert.Equal(t, "user-1", sess.Identity.Subject)
	assert.Equal(t, sess.AccessToken, m.AccessToken())
	assert.True(t, m.IsAuthenticated())
	assert.False(t, m.IsAdmin())

	published := <-sessions
	require.NotNil(t, published)
	assert.Equal(t, sess.AccessToken, published.AccessToken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	stub := newAuthStub(time.Hour)
	m, _ := newTestManager(t, stub)

	_, err := m.Login(context.Background(), LoginRequest{Email: "jo@shop.local", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, m.IsAuthenticated())
}

func TestLoginValidatesBeforeNetwork(t *testing.T) {
	stub := newAuthStub(time.Hour)
	m, _ := newTestManager(t, stub)

	_, err := m.Login(context.Background(), LoginRequest{Email: "not-an-email", Password: ""})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotatesTokens(t *testing.T) {
	stub := newAuthStub(time.Hour)
	m, _ := newTestManager(t, stub)

	first, err := m.Login(context.Background(), LoginRequest{Email: "jo@shop.local", Password: "good-password"})
	require.NoError(t, err)

	sess, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, sess.AccessToken)
	assert.Equal(t, sess.AccessToken, m.AccessToken())
	assert.True(t, stub.sawSkip.Load(), "refresh must carry the skip-loader marker")
}

func TestRefreshWithoutStoredTokens(t *testing.T) {
	stub := newAuthStub(time.Hour)
	m, _ := newTestManager(t, stub)

	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoStoredTokens)
	assert.Equal(t, int32(0), stub.refreshCalls.Load())
}

func TestConcurrentRefreshIsSingleFlight(t *testing.T) {
	stub := newAuthStub(time.Hour)
	stub.refreshDelay = 100 * time.Millisecond
	m, _ := newTestManager(t, stub)

	_, err := m.Login(context.Background(), LoginRequest{Email: "jo@shop.local", Password: "good-password"})
	require.NoError(t, err)
	before := stub.refreshCalls.Load()

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := m.Refresh(context.Background())
		done <- err
	}()

	<-started
	time.Sleep(20 * time.Millisecond)
	_, err = m.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)

	require.NoError(t, <-done)
	assert.Equal(t, before+1, stub.refreshCalls.Load())
}

func TestTokenAfterRefreshSharesOutcome(t *testing.T) {
	stub := newAuthStub(time.Hour)
	stub.refreshDelay = 100 * time.Millisecond
	m, _ := newTestManager(t, stub)

	_, err := m.Login(context.Background(), LoginRequest{Email: "jo@shop.local", Password: "good-password"})
	require.NoError(t, err)
	before := stub.refreshCalls.Load()

	const callers = 5
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		go func() {
			tok, err := m.TokenAfterRefresh(context.Background())
			require.NoError(t, err)
			results <- tok
		}()
	}

	first := <-results
	for i := 1; i < callers; i++ {
		assert.Equal(t, first, <-results)
	}
	assert.Equal(t, before+1, stub.refreshCalls.Load())
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	stub := newAuthStub(time.Hour)
	m, _ := newTestManager(t, stub)

	_, err := m.Login(context.Background(), LoginRequest{Email: "jo@shop.local", Password: "good-password"})
	require.NoError(t, err)

	stub.refreshFails = true
	_, err = m.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Empty(t, m.AccessToken())
	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.Current())
}

func TestLogoutClearsEverything(t *testing.T) {
	stub := newAuthStub(time.Hour)
	m, kv := newTestManager(t, stub)

	_, err := m.Login(context.Background(), LoginRequest{Email: "jo@shop.local", Password: "good-password"})
	require.NoError(t, err)

	hookRan := make(chan struct{})
	m.OnLogout(func() { close(hookRan) })
	navigated := make(chan struct{})
	m.SetNavigate(func() { close(navigated) })

	m.Logout()

	<-hookRan
	assert.Empty(t, kv.data)
	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.Current())

	// navigation fires after the grace delay
	select {
	case <-navigated:
	case <-time.After(time.Second):
		t.Fatal("navigate hook never fired")
	}
}

func TestRestorePublishesStoredSession(t *testing.T) {
	stub := newAuthStub(time.Hour)
	m, kv := newTestManager(t, stub)

	_, err := m.Login(context.Background(), LoginRequest{Email: "jo@shop.local", Password: "good-password"})
	require.NoError(t, err)

	// a second manager over the same storage plays the part of a restart
	srv := stub.server(t)
	restarted := NewManager(srv.URL, srv.Client(), NewCredentialStore(kv))
	restarted.Restore(context.Background())

	sess := restarted.Current()
	require.NotNil(t, sess)
	assert.Equal(t, "jo@shop.local", sess.Identity.Email)
	assert.True(t, restarted.IsAuthenticated())
}

func TestRestoreWithExpiredTokenRefreshes(t *testing.T) {
	// seed storage with an already expired pair, as if the app was closed
	// for longer than the token lifetime
	expired, err := token.New("test-secret", -time.Minute).Generate("user-1", "jo@shop.local", "Jo", "Doe", "Customer")
	require.NoError(t, err)
	creds := NewCredentialStore(newMemKV())
	require.NoError(t, creds.SaveTokens(expired, "refresh-1"))

	fresh := newAuthStub(time.Hour)
	srv := fresh.server(t)
	restarted := NewManager(srv.URL, srv.Client(), creds)
	restarted.Restore(context.Background())

	assert.True(t, restarted.IsAuthenticated())
	assert.Equal(t, int32(1), fresh.refreshCalls.Load())
}

func TestRestoreWithNothingStored(t *testing.T) {
	stub := newAuthStub(time.Hour)
	m, _ := newTestManager(t, stub)

	m.Restore(context.Background())
	assert.Nil(t, m.Current())
	assert.False(t, m.IsAuthenticated())
}

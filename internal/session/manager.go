package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	slogctx "github.com/veqryn/slog-context"

	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

const (
	LoginPath   = "/login/"
	RefreshPath = "/token/refresh/"
)

// tokenAlgs are accepted when reading the exp claim. Signatures are never
// verified here; the API server does that.
var tokenAlgs = []jose.SignatureAlgorithm{
	jose.HS256, jose.HS384, jose.HS512,
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.EdDSA,
}

// Manager owns the session. Every read goes to the repository, every write
// replaces the whole session.
type Manager struct {
	sessions   Repository
	httpClient *http.Client
	baseURL    string
	now        func() time.Time

	mu        sync.Mutex
	refreshes singleflight.Group
	expiries  *cache.Cache

	hooksMu sync.Mutex
	onClear []func(ctx context.Context)

	refreshCounter metric.Int64Counter
}

type Option func(*Manager)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(sessions Repository, httpClient *http.Client, baseURL string, opts ...Option) *Manager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	m := &Manager{
		sessions:   sessions,
		httpClient: httpClient,
		baseURL:    baseURL,
		now:        time.Now,
		expiries:   cache.New(time.Hour, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(m)
	}

	meter := otel.Meter("github.com/medcampus/analytics-dashboard/internal/session")

	counter, err := meter.Int64Counter(
		"session.token_refresh_count",
		metric.WithDescription("Access token refresh attempts"),
		metric.WithUnit("refresh"),
	)
	if err != nil {
		otel.Handle(err)
	}
	m.refreshCounter = counter

	return m
}

// OnSessionCleared registers fn to run after the session was removed by a
// logout or a failed refresh.
func (m *Manager) OnSessionCleared(fn func(ctx context.Context)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()

	m.onClear = append(m.onClear, fn)
}

// CurrentSession returns serviceerr.ErrNotFound when nobody is signed in.
func (m *Manager) CurrentSession(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessions.LoadSession(ctx)
}

// IsExpired reports whether the exp claim of token is at or before now.
// Tokens that cannot be decoded, or carry no exp claim, count as expired.
func (m *Manager) IsExpired(token string) bool {
	exp, ok := m.expiry(token)
	if !ok {
		return true
	}

	return !m.now().Before(exp)
}

func (m *Manager) expiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	key := "exp_" + token
	if v, found := m.expiries.Get(key); found {
		exp, _ := v.(time.Time)
		return exp, !exp.IsZero()
	}

	var exp time.Time
	if parsed, err := jwt.ParseSigned(token, tokenAlgs); err == nil {
		var claims jwt.Claims
		if err := parsed.UnsafeClaimsWithoutVerification(&claims); err == nil && claims.Expiry != nil {
			exp = claims.Expiry.Time()
		}
	}

	m.expiries.Set(key, exp, cache.DefaultExpiration)

	return exp, !exp.IsZero()
}

// ValidToken returns the current access token, refreshing it first when it is
// expired. It returns an empty token and no error when nobody is signed in or
// the refresh failed.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	s, err := m.CurrentSession(ctx)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return "", nil
		}

		return "", err
	}

	if !m.IsExpired(s.AccessToken) {
		return s.AccessToken, nil
	}

	token, err := m.refreshShared(ctx, s.AccessToken)
	if err != nil {
		slogctx.Debug(ctx, "No valid access token", "error", err)
		return "", nil
	}

	return token, nil
}

// Refresh exchanges the refresh token for a new access token. Concurrent
// callers share one request. A failed exchange clears the session and returns
// an error matching serviceerr.ErrReauthenticationRequired.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	return m.refreshShared(ctx, "")
}

// RefreshIfRejected is called after the API rejected the access token
// rejected. When the stored token has already been replaced by a valid one it
// is returned without calling the refresh endpoint.
func (m *Manager) RefreshIfRejected(ctx context.Context, rejected string) (string, error) {
	s, err := m.CurrentSession(ctx)
	if err != nil && !errors.Is(err, serviceerr.ErrNotFound) {
		return "", fmt.Errorf("loading session: %w", err)
	}

	if m.replaced(s, rejected) {
		slogctx.Debug(ctx, "Rejected token already replaced")
		return s.AccessToken, nil
	}

	return m.refreshShared(ctx, rejected)
}

func (m *Manager) refreshShared(ctx context.Context, rejected string) (string, error) {
	// The shared refresh must not be cancelled by whichever caller started it.
	detached := context.WithoutCancel(ctx)

	v, err, shared := m.refreshes.Do("refresh", func() (any, error) {
		return m.refresh(detached, rejected)
	})
	if shared {
		slogctx.Debug(ctx, "Joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// replaced reports whether s holds a usable access token other than rejected.
func (m *Manager) replaced(s Session, rejected string) bool {
	return rejected != "" && s.AccessToken != "" && s.AccessToken != rejected && !m.IsExpired(s.AccessToken)
}

func (m *Manager) refresh(ctx context.Context, rejected string) (string, error) {
	s, err := m.CurrentSession(ctx)
	if err != nil && !errors.Is(err, serviceerr.ErrNotFound) {
		m.recordRefresh(ctx, "error")
		return "", fmt.Errorf("loading session: %w", err)
	}

	// A refresh that finished just before this one started already did the work.
	if m.replaced(s, rejected) {
		m.recordRefresh(ctx, "superseded")
		return s.AccessToken, nil
	}

	if s.RefreshToken == "" {
		m.recordRefresh(ctx, "no_refresh_token")
		m.clear(ctx)
		return "", serviceerr.New(serviceerr.CodeReauthenticationRequired, "no refresh token")
	}

	pair, exchangeErr := m.post(ctx, RefreshPath, map[string]string{"refresh": s.RefreshToken})

	m.mu.Lock()

	// The session may have been replaced or removed while the request ran.
	// Another writer's session is never overwritten or cleared from here.
	current, err := m.sessions.LoadSession(ctx)
	if err != nil || current.RefreshToken != s.RefreshToken {
		m.mu.Unlock()

		if err == nil && !m.IsExpired(current.AccessToken) {
			m.recordRefresh(ctx, "superseded")
			slogctx.Info(ctx, "Session replaced during refresh, using the new one", "user_id", current.UserID())

			return current.AccessToken, nil
		}

		m.recordRefresh(ctx, "discarded")

		return "", serviceerr.New(serviceerr.CodeReauthenticationRequired, "session changed during refresh")
	}

	if exchangeErr != nil {
		m.mu.Unlock()

		slogctx.Warn(ctx, "Token refresh failed", "error", exchangeErr)
		m.recordRefresh(ctx, "failed")
		m.clear(ctx)

		return "", errors.Join(serviceerr.ErrReauthenticationRequired, exchangeErr)
	}

	defer m.mu.Unlock()

	current.AccessToken = pair.Access
	if pair.Refresh != "" {
		current.RefreshToken = pair.Refresh
	}

	if err := m.sessions.StoreSession(ctx, current); err != nil {
		m.recordRefresh(ctx, "error")
		return "", err
	}

	m.recordRefresh(ctx, "success")
	slogctx.Info(ctx, "Refreshed access token", "user_id", current.UserID())

	return pair.Access, nil
}

// RefreshIfExpiring refreshes the access token when it expires within window.
// It reports whether a refresh happened. Without a session it does nothing.
func (m *Manager) RefreshIfExpiring(ctx context.Context, window time.Duration) (bool, error) {
	s, err := m.CurrentSession(ctx)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	if exp, ok := m.expiry(s.AccessToken); ok && exp.Sub(m.now()) > window {
		return false, nil
	}

	if _, err := m.Refresh(ctx); err != nil {
		return false, err
	}

	return true, nil
}

// Login signs in with credentials and stores the returned session.
func (m *Manager) Login(ctx context.Context, creds Credentials) (Session, error) {
	if creds.Email == "" || creds.Password == "" {
		return Session{}, serviceerr.New(serviceerr.CodeInvalidRequest, "email and password are required")
	}

	pair, err := m.post(ctx, LoginPath, creds)
	if err != nil {
		return Session{}, err
	}

	s := Session{
		User:            pair.User,
		AccessToken:     pair.Access,
		RefreshToken:    pair.Refresh,
		IsAuthenticated: true,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.sessions.StoreSession(ctx, s); err != nil {
		return Session{}, err
	}

	slogctx.Info(ctx, "Signed in", "user_id", s.UserID())

	return s, nil
}

// Logout removes the session. Calling it without a session is not an error.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	err := m.sessions.DeleteSession(ctx)
	m.mu.Unlock()

	if err != nil {
		return err
	}

	m.runHooks(ctx)

	return nil
}

func (m *Manager) clear(ctx context.Context) {
	if err := m.Logout(ctx); err != nil {
		slogctx.Error(ctx, "Failed to clear session", "error", err)
	}
}

func (m *Manager) runHooks(ctx context.Context) {
	m.hooksMu.Lock()
	hooks := append([]func(context.Context){}, m.onClear...)
	m.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(ctx)
	}
}

func (m *Manager) post(ctx context.Context, path string, body any) (tokenPair, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return tokenPair{}, fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return tokenPair{}, fmt.Errorf("creating a new HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return tokenPair{}, errors.Join(serviceerr.ErrNetwork, fmt.Errorf("executing an http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenPair{}, errors.Join(serviceerr.ErrNetwork, fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tokenPair{}, serviceerr.FromResponse(resp.StatusCode, raw)
	}

	var pair tokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return tokenPair{}, errors.Join(serviceerr.ErrDecode, fmt.Errorf("decoding token response: %w", err))
	}

	pair = pair.unwrap()
	if pair.Access == "" {
		return tokenPair{}, serviceerr.New(serviceerr.CodeDecode, "response carries no access token")
	}

	return pair, nil
}

func (m *Manager) recordRefresh(ctx context.Context, result string) {
	if m.refreshCounter == nil {
		return
	}

	m.refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

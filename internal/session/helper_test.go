package session_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	persistmock "github.com/medcampus/analytics-dashboard/internal/persist/mock"
	"github.com/medcampus/analytics-dashboard/internal/session"
)

var signingKey = []byte("0123456789abcdef0123456789abcdef")

func makeToken(t *testing.T, exp time.Time) string {
	t.Helper()

	return signClaims(t, jwt.Claims{Subject: "user-1", Expiry: jwt.NewNumericDate(exp)})
}

func makeTokenWithoutExpiry(t *testing.T) string {
	t.Helper()

	return signClaims(t, jwt.Claims{Subject: "user-1"})
}

func signClaims(t *testing.T, claims jwt.Claims) string {
	t.Helper()

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: signingKey}, nil)
	require.NoError(t, err)

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)

	return token
}

type fixedClock struct {
	now atomic.Pointer[time.Time]
}

func newClock(t time.Time) *fixedClock {
	c := &fixedClock{}
	c.Set(t)

	return c
}

func (c *fixedClock) Now() time.Time { return *c.now.Load() }

func (c *fixedClock) Set(t time.Time) { c.now.Store(&t) }

// fakeAuthServer answers the login and refresh endpoints and counts calls.
type fakeAuthServer struct {
	*httptest.Server

	loginCalls   atomic.Int32
	refreshCalls atomic.Int32
	lastRefresh  atomic.Value
}

func newFakeAuthServer(t *testing.T, login, refresh http.HandlerFunc) *fakeAuthServer {
	t.Helper()

	f := &fakeAuthServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+session.LoginPath, func(w http.ResponseWriter, r *http.Request) {
		f.loginCalls.Add(1)
		login(w, r)
	})
	mux.HandleFunc("POST "+session.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)

		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastRefresh.Store(body["refresh"])

		refresh(w, r)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)

	return f
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func notCalled(t *testing.T) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected call")
		w.WriteHeader(http.StatusTeapot)
	}
}

// seededManager returns a manager whose store already holds s.
func seededManager(t *testing.T, srv *fakeAuthServer, clock *fixedClock, s session.Session) (*session.Manager, session.Repository) {
	t.Helper()

	repo := session.NewRepository(persistmock.NewInMemStore())
	require.NoError(t, repo.StoreSession(t.Context(), s))

	return session.NewManager(repo, srv.Client(), srv.URL, session.WithClock(clock.Now)), repo
}

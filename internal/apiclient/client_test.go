package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcampus/analytics-dashboard/internal/apiclient"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

type fakeTokens struct {
	token      string
	refreshed  string
	refreshErr error
	rejected   string

	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
}

func (f *fakeTokens) ValidToken(context.Context) (string, error) { return f.token, nil }

func (f *fakeTokens) RefreshIfRejected(_ context.Context, rejected string) (string, error) {
	f.refreshCalls.Add(1)
	f.rejected = rejected
	if f.refreshErr != nil {
		return "", f.refreshErr
	}

	f.token = f.refreshed

	return f.refreshed, nil
}

func (f *fakeTokens) Logout(context.Context) error {
	f.logoutCalls.Add(1)
	f.token = ""

	return nil
}

// authorizedOnly answers 401 unless the request carries one of the accepted tokens.
func authorizedOnly(calls *atomic.Int32, accepted string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+accepted {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Given token not valid for any token type"}`))
			return
		}

		next(w, r)
	}
}

func jsonOK(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}
}

func TestClient_Do_AttachesBearerToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(authorizedOnly(&calls, "a1", jsonOK(`{"ok":true}`)))
	defer srv.Close()

	c := apiclient.New(srv.URL, &fakeTokens{token: "a1"})

	resp, err := c.Do(t.Context(), apiclient.Request{Path: "/analytics/summary/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, map[string]any{"ok": true}, resp.Data)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_Do_RetriesOnceAfterRefresh(t *testing.T) {
	var calls atomic.Int32
	var bodies []string
	srv := httptest.NewServer(authorizedOnly(&calls, "a2", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		jsonOK(`{"ok":true}`)(w, r)
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "a1", refreshed: "a2"}
	c := apiclient.New(srv.URL, tokens)

	resp, err := c.Do(t.Context(), apiclient.Request{Method: http.MethodPost, Path: "reports/", Body: map[string]string{"kind": "weekly"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 1, tokens.refreshCalls.Load())
	assert.Equal(t, "a1", tokens.rejected)
	assert.Equal(t, []string{`{"kind":"weekly"}`}, bodies)
}

func TestClient_Do_SecondUnauthorizedIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(authorizedOnly(&calls, "never", jsonOK(`{}`)))
	defer srv.Close()

	var hooked atomic.Int32
	tokens := &fakeTokens{token: "a1", refreshed: "a2"}
	c := apiclient.New(srv.URL, tokens, apiclient.WithReauthHook(func(context.Context) { hooked.Add(1) }))

	_, err := c.Do(t.Context(), apiclient.Request{Path: "/analytics/students/"})
	require.ErrorIs(t, err, serviceerr.ErrReauthenticationRequired)
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 1, tokens.refreshCalls.Load())
	assert.EqualValues(t, 1, tokens.logoutCalls.Load())
	assert.EqualValues(t, 1, hooked.Load())
}

func TestClient_Do_RefreshFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(authorizedOnly(&calls, "a2", jsonOK(`{}`)))
	defer srv.Close()

	var hooked atomic.Int32
	tokens := &fakeTokens{token: "a1", refreshErr: serviceerr.ErrReauthenticationRequired}
	c := apiclient.New(srv.URL, tokens, apiclient.WithReauthHook(func(context.Context) { hooked.Add(1) }))

	_, err := c.Do(t.Context(), apiclient.Request{Path: "/analytics/revenue/"})
	require.ErrorIs(t, err, serviceerr.ErrReauthenticationRequired)
	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, tokens.logoutCalls.Load())
	assert.EqualValues(t, 1, hooked.Load())
}

func TestClient_Do_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "Server error is not retried",
			status:     http.StatusInternalServerError,
			body:       `{"message":"database unavailable"}`,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "database unavailable",
		},
		{
			name:       "Not found without a message",
			status:     http.StatusNotFound,
			body:       `<h1>Not Found</h1>`,
			wantStatus: http.StatusNotFound,
			wantMsg:    "request failed with status 404 (Not Found)",
		},
		{
			name:       "Validation detail",
			status:     http.StatusBadRequest,
			body:       `{"detail":"start_date must be before end_date"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "start_date must be before end_date",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tokens := &fakeTokens{token: "a1"}
			c := apiclient.New(srv.URL, tokens)

			_, err := c.Do(t.Context(), apiclient.Request{Path: "/analytics/content/"})
			require.ErrorIs(t, err, serviceerr.ErrHTTP)

			var svcErr *serviceerr.Error
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, tt.wantStatus, svcErr.StatusCode)
			assert.Equal(t, tt.wantMsg, svcErr.Description)
			assert.EqualValues(t, 1, calls.Load())
			assert.Zero(t, tokens.refreshCalls.Load())
		})
	}
}

func TestClient_Do_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := apiclient.New(srv.URL, &fakeTokens{token: "a1"})

	_, err := c.Do(t.Context(), apiclient.Request{Path: "/analytics/summary/"})
	assert.ErrorIs(t, err, serviceerr.ErrNetwork)
}

func TestClient_Do_ResponseParsing(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        any
		wantErr     error
	}{
		{name: "JSON", contentType: "application/json", body: `[1,2]`, want: []any{float64(1), float64(2)}},
		{name: "Problem JSON", contentType: "application/problem+json", body: `{"a":"b"}`, want: map[string]any{"a": "b"}},
		{name: "Text", contentType: "text/csv", body: "a,b\n1,2\n", want: "a,b\n1,2\n"},
		{name: "Empty", contentType: "application/json", body: "", want: nil},
		{name: "Malformed JSON", contentType: "application/json", body: `{"a":`, wantErr: serviceerr.ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := apiclient.New(srv.URL, &fakeTokens{}).Do(t.Context(), apiclient.Request{Path: "/x"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Data)
			assert.Equal(t, tt.body, string(resp.Raw))
		})
	}
}

func TestClient_Do_URLResolution(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.RequestURI())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		baseURL string
		path    string
		query   url.Values
		want    string
	}{
		{name: "Relative path", baseURL: srv.URL + "/api", path: "/analytics/summary/", want: "/api/analytics/summary/"},
		{name: "Base with trailing slash", baseURL: srv.URL + "/api/", path: "analytics/summary/", want: "/api/analytics/summary/"},
		{name: "Absolute path", baseURL: "http://unused.invalid/api", path: srv.URL + "/elsewhere/", want: "/elsewhere/"},
		{name: "Query", baseURL: srv.URL + "/api", path: "/analytics/students/?page=2", query: url.Values{"page_size": {"20"}}, want: "/api/analytics/students/?page=2&page_size=20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := apiclient.New(tt.baseURL, &fakeTokens{})

			_, err := c.Do(t.Context(), apiclient.Request{Path: tt.path, Query: tt.query})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Load())
		})
	}
}

func TestClient_Do_ForwardsRequestID(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get(apiclient.RequestIDHeader))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx := apiclient.WithRequestID(t.Context(), "req-42")
	_, err := apiclient.New(srv.URL, &fakeTokens{}).Do(ctx, apiclient.Request{Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, "req-42", got.Load())
}

func TestDecodeEnvelope(t *testing.T) {
	type card struct {
		Label string `json:"label"`
		Value int    `json:"value"`
	}

	t.Run("Success", func(t *testing.T) {
		resp := &apiclient.Response{Raw: []byte(`{"success":true,"data":[{"label":"students","value":40}],"count":1}`)}

		env, err := apiclient.DecodeEnvelope[[]card](resp)
		require.NoError(t, err)
		assert.Equal(t, []card{{Label: "students", Value: 40}}, env.Data)
		require.NotNil(t, env.Count)
		assert.Equal(t, 1, *env.Count)
	})

	t.Run("Failure envelope", func(t *testing.T) {
		resp := &apiclient.Response{Raw: []byte(`{"success":false,"data":null,"message":"College not found"}`)}

		_, err := apiclient.DecodeEnvelope[[]card](resp)
		require.ErrorIs(t, err, serviceerr.ErrUnsuccessful)
		assert.Equal(t, "College not found", serviceerr.Message(err))
	})

	t.Run("Bare data", func(t *testing.T) {
		resp := &apiclient.Response{Raw: []byte(`{"label":"revenue","value":7}`)}

		env, err := apiclient.DecodeEnvelope[card](resp)
		require.NoError(t, err)
		assert.True(t, env.Success)
		assert.Equal(t, card{Label: "revenue", Value: 7}, env.Data)
	})

	t.Run("Wrong data shape", func(t *testing.T) {
		resp := &apiclient.Response{Raw: []byte(`{"success":true,"data":"nope"}`)}

		_, err := apiclient.DecodeEnvelope[[]card](resp)
		assert.ErrorIs(t, err, serviceerr.ErrDecode)
	})
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(jsonOK(`{"success":true,"data":{"total":3},"message":"ok"}`))
	defer srv.Close()

	env, err := apiclient.Get[map[string]int](t.Context(), apiclient.New(srv.URL, &fakeTokens{}), "/analytics/summary/", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"total": 3}, env.Data)
	assert.Equal(t, "ok", env.Message)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"total":3},"message":"ok"}`, string(raw))
}

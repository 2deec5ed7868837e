package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcampus/analytics-dashboard/internal/analytics"
	"github.com/medcampus/analytics-dashboard/internal/preferences"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
	"github.com/medcampus/analytics-dashboard/internal/session"
)

type testDeps struct {
	mu sync.Mutex

	view       analytics.View
	fetchErr   error
	lastQuery  analytics.Query
	lastRes    analytics.Resource
	clearCalls int

	session    session.Session
	sessionErr error
	loginErr   error
	logouts    int

	prefs    preferences.Preferences
	prefsErr error
}

func newTestDeps() *testDeps {
	return &testDeps{sessionErr: serviceerr.ErrNotFound}
}

func (d *testDeps) deps() Deps {
	return Deps{Dashboard: d, Sessions: d, Preferences: d}
}

func (d *testDeps) Fetch(_ context.Context, r analytics.Resource, q analytics.Query) (analytics.View, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastRes, d.lastQuery = r, q
	if d.fetchErr != nil {
		return analytics.View{}, d.fetchErr
	}

	v := d.view
	v.Resource = r

	return v, nil
}

func (d *testDeps) ClearAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearCalls++
}

func (d *testDeps) Login(_ context.Context, creds session.Credentials) (session.Session, error) {
	if d.loginErr != nil {
		return session.Session{}, d.loginErr
	}

	return session.Session{
		User:            &session.User{ID: "u-1", Email: creds.Email},
		AccessToken:     "access",
		RefreshToken:    "refresh",
		IsAuthenticated: true,
	}, nil
}

func (d *testDeps) Logout(context.Context) error {
	d.logouts++
	return nil
}

func (d *testDeps) CurrentSession(context.Context) (session.Session, error) {
	return d.session, d.sessionErr
}

func (d *testDeps) Load(context.Context) (preferences.Preferences, error) {
	return d.prefs, d.prefsErr
}

func (d *testDeps) Save(_ context.Context, p preferences.Preferences) (preferences.Preferences, error) {
	if err := p.Validate(); err != nil {
		return preferences.Preferences{}, errors.Join(serviceerr.ErrInvalidRequest, err)
	}
	d.prefs = p

	return p, nil
}

func serve(t *testing.T, d *testDeps, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	server, err := createHTTPServer(t.Context(), testConfig("localhost:0"), d.deps())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))

	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorModel {
	t.Helper()

	var model ErrorModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &model))

	return model
}

func TestGetResource(t *testing.T) {
	d := newTestDeps()
	d.view = analytics.View{Data: map[string]any{"total_students": 12}, Outcome: "fetched"}

	rec := serve(t, d, http.MethodGet, "/api/v1/students?college_id=c-1&page=2&page_size=20&search=ann", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analytics.ResourceStudents, d.lastRes)
	assert.Equal(t, analytics.Query{CollegeID: "c-1", Page: 2, Limit: 20, Search: "ann"}, d.lastQuery)
	assert.JSONEq(t, `{
		"resource": "students",
		"data": {"total_students": 12},
		"loading": false,
		"lastFetchedAt": null,
		"outcome": "fetched"
	}`, rec.Body.String())
}

func TestGetResource_LimitWinsOverPageSize(t *testing.T) {
	d := newTestDeps()

	rec := serve(t, d, http.MethodGet, "/api/v1/content?limit=5&page_size=50", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, d.lastQuery.Limit)
}

func TestGetResource_PreferencesFillQuery(t *testing.T) {
	saved := preferences.Preferences{
		Theme:     preferences.ThemeDark,
		CollegeID: "c2",
		DateRange: preferences.DateRange{Start: "2026-03-01", End: "2026-03-31"},
	}

	tests := []struct {
		name     string
		target   string
		prefsErr error
		want     analytics.Query
	}{
		{
			name:   "Saved college and range",
			target: "/api/v1/students?page=2",
			want:   analytics.Query{CollegeID: "c2", StartDate: "2026-03-01", EndDate: "2026-03-31", Page: 2},
		},
		{
			name:   "Explicit parameters win",
			target: "/api/v1/students?college_id=c9&start_date=2026-01-01&end_date=2026-01-31",
			want:   analytics.Query{CollegeID: "c9", StartDate: "2026-01-01", EndDate: "2026-01-31"},
		},
		{
			name:     "Unreadable preferences",
			target:   "/api/v1/students",
			prefsErr: errors.New("storage down"),
			want:     analytics.Query{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps()
			d.prefs, d.prefsErr = saved, tt.prefsErr

			rec := serve(t, d, http.MethodGet, tt.target, "")

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, d.lastQuery)
		})
	}
}

func TestGetResource_SavedCollegeReachesFetch(t *testing.T) {
	d := newTestDeps()

	rec := serve(t, d, http.MethodPut, "/api/v1/preferences", `{"theme": "light", "collegeId": "c2", "dateRange": {"start": "2026-03-01", "end": "2026-03-31"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, d, http.MethodGet, "/api/v1/students", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c2", d.lastQuery.CollegeID)
	assert.Equal(t, "2026-03-01", d.lastQuery.StartDate)
	assert.Equal(t, "2026-03-31", d.lastQuery.EndDate)
}

func TestGetResource_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		view       analytics.View
		fetchErr   error
		wantStatus int
		wantCode   serviceerr.Code
		redirect   string
	}{
		{
			name:       "Unknown resource",
			target:     "/api/v1/grades",
			wantStatus: http.StatusNotFound,
			wantCode:   serviceerr.CodeNotFound,
		},
		{
			name:       "Non numeric page",
			target:     "/api/v1/students?page=two",
			wantStatus: http.StatusBadRequest,
			wantCode:   serviceerr.CodeInvalidRequest,
		},
		{
			name:       "Reversed date range",
			target:     "/api/v1/revenue?start_date=2026-04-01&end_date=2026-03-01",
			wantStatus: http.StatusBadRequest,
			wantCode:   serviceerr.CodeInvalidRequest,
		},
		{
			name:       "Session gone",
			target:     "/api/v1/summary",
			view:       analytics.View{Err: serviceerr.ErrReauthenticationRequired, Error: "reauthentication required"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   serviceerr.CodeReauthenticationRequired,
			redirect:   LoginRedirect,
		},
		{
			name:       "Dashboard failure",
			target:     "/api/v1/summary",
			fetchErr:   errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   serviceerr.CodeUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps()
			d.view = tt.view
			d.fetchErr = tt.fetchErr

			rec := serve(t, d, http.MethodGet, tt.target, "")

			require.Equal(t, tt.wantStatus, rec.Code)
			model := decodeError(t, rec)
			assert.Equal(t, string(tt.wantCode), model.Error)
			assert.Equal(t, tt.redirect, model.Redirect)
		})
	}
}

func TestGetResource_FailedFetchKeepsData(t *testing.T) {
	d := newTestDeps()
	d.view = analytics.View{
		Data:  []any{"stale"},
		Error: "request failed with status 500 (Internal Server Error)",
		Err:   serviceerr.HTTP(http.StatusInternalServerError, "request failed with status 500 (Internal Server Error)"),
	}

	rec := serve(t, d, http.MethodGet, "/api/v1/engagement", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var view analytics.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, []any{"stale"}, view.Data)
	assert.Contains(t, view.Error, "status 500")
}

func TestClearCache(t *testing.T) {
	d := newTestDeps()

	rec := serve(t, d, http.MethodDelete, "/api/v1/cache", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, d.clearCalls)
}

func TestSessionEndpoints(t *testing.T) {
	t.Run("Anonymous session", func(t *testing.T) {
		rec := serve(t, newTestDeps(), http.MethodGet, "/api/v1/session", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"user": null, "isAuthenticated": false}`, rec.Body.String())
	})

	t.Run("Signed in session hides tokens", func(t *testing.T) {
		d := newTestDeps()
		d.session = session.Session{User: &session.User{ID: "u-1"}, AccessToken: "a", RefreshToken: "r", IsAuthenticated: true}
		d.sessionErr = nil

		rec := serve(t, d, http.MethodGet, "/api/v1/session", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "accessToken")
		assert.JSONEq(t, `{"user": {"id": "u-1", "email": "", "name": "", "role": ""}, "isAuthenticated": true}`, rec.Body.String())
	})

	t.Run("Login", func(t *testing.T) {
		rec := serve(t, newTestDeps(), http.MethodPost, "/api/v1/session", `{"email": "dean@college.edu", "password": "secret"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "refresh")
		assert.Contains(t, rec.Body.String(), "dean@college.edu")
	})

	t.Run("Login with malformed body", func(t *testing.T) {
		rec := serve(t, newTestDeps(), http.MethodPost, "/api/v1/session", `{"email":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Login rejected upstream", func(t *testing.T) {
		d := newTestDeps()
		d.loginErr = serviceerr.HTTP(http.StatusUnauthorized, "Invalid credentials")

		rec := serve(t, d, http.MethodPost, "/api/v1/session", `{"email": "a@b.c", "password": "x"}`)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid credentials", decodeError(t, rec).ErrorDescription)
	})

	t.Run("Logout", func(t *testing.T) {
		d := newTestDeps()

		rec := serve(t, d, http.MethodDelete, "/api/v1/session", "")

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 1, d.logouts)
	})
}

func TestPreferencesEndpoints(t *testing.T) {
	d := newTestDeps()
	d.prefs = preferences.Preferences{Theme: preferences.ThemeLight}

	rec := serve(t, d, http.MethodGet, "/api/v1/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"theme":"light"`)

	rec = serve(t, d, http.MethodPut, "/api/v1/preferences", `{"theme": "dark", "sidebarCollapsed": true, "dateRange": {"start": "2026-03-01", "end": "2026-03-31"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, preferences.ThemeDark, d.prefs.Theme)
	assert.True(t, d.prefs.SidebarCollapsed)

	rec = serve(t, d, http.MethodPut, "/api/v1/preferences", `{"theme": "neon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, d, http.MethodPut, "/api/v1/preferences", `{"colour": "red"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/oapi-codegen/runtime"

	slogctx "github.com/veqryn/slog-context"

	"github.com/medcampus/analytics-dashboard/internal/analytics"
	"github.com/medcampus/analytics-dashboard/internal/preferences"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
	"github.com/medcampus/analytics-dashboard/internal/session"
)

const maxBodyBytes = 1 << 20

type Dashboard interface {
	Fetch(ctx context.Context, r analytics.Resource, q analytics.Query) (analytics.View, error)
	ClearAll()
}

type Sessions interface {
	Login(ctx context.Context, creds session.Credentials) (session.Session, error)
	Logout(ctx context.Context) error
	CurrentSession(ctx context.Context) (session.Session, error)
}

type Preferences interface {
	Load(ctx context.Context) (preferences.Preferences, error)
	Save(ctx context.Context, p preferences.Preferences) (preferences.Preferences, error)
}

// Deps are the services behind the dashboard API.
type Deps struct {
	Dashboard   Dashboard
	Sessions    Sessions
	Preferences Preferences
}

type dashboardAPI struct {
	deps Deps
}

func newDashboardAPI(deps Deps) *dashboardAPI {
	return &dashboardAPI{deps: deps}
}

// sessionBody never carries the tokens.
type sessionBody struct {
	User            *session.User `json:"user"`
	IsAuthenticated bool          `json:"isAuthenticated"`
}

// GetResource fetches one analytics resource through its store and returns
// the store state. A failed fetch still answers 200 with the stale data and
// the error message, unless the session is gone.
func (a *dashboardAPI) GetResource(ctx context.Context, _ http.ResponseWriter, r *http.Request, _ any) (any, error) {
	res, err := analytics.ParseResource(r.PathValue("resource"))
	if err != nil {
		return toErrorModel(err), nil
	}

	q, err := bindQuery(r.URL.Query())
	if err != nil {
		return newBadRequest(err.Error()), nil
	}

	q = a.withPreferences(ctx, q)
	if err := q.Validate(); err != nil {
		return newBadRequest(err.Error()), nil
	}

	slogctx.Debug(ctx, "GetResource() called", "resource", res)
	defer slogctx.Debug(ctx, "GetResource() completed")

	view, err := a.deps.Dashboard.Fetch(ctx, res, q)
	if err != nil {
		return toErrorModel(err), nil
	}

	if errors.Is(view.Err, serviceerr.ErrReauthenticationRequired) {
		return toErrorModel(view.Err), nil
	}

	return jsonResponse{status: http.StatusOK, body: view}, nil
}

// withPreferences fills the college and date range from the saved
// preferences. Unreadable preferences leave q as it is.
func (a *dashboardAPI) withPreferences(ctx context.Context, q analytics.Query) analytics.Query {
	p, err := a.deps.Preferences.Load(ctx)
	if err != nil {
		slogctx.Warn(ctx, "Fetching without saved preferences", "error", err)
		return q
	}

	return q.WithDefaults(p.CollegeID, p.DateRange.Start, p.DateRange.End)
}

func (a *dashboardAPI) ClearCache(ctx context.Context, _ http.ResponseWriter, _ *http.Request, _ any) (any, error) {
	a.deps.Dashboard.ClearAll()
	slogctx.Info(ctx, "Cleared dashboard caches")

	return noContentResponse{}, nil
}

func (a *dashboardAPI) GetSession(ctx context.Context, _ http.ResponseWriter, _ *http.Request, _ any) (any, error) {
	s, err := a.deps.Sessions.CurrentSession(ctx)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return jsonResponse{status: http.StatusOK, body: sessionBody{}}, nil
		}

		slogctx.Error(ctx, "Failed to load session", "error", err)
		return toErrorModel(err), nil
	}

	return jsonResponse{status: http.StatusOK, body: sessionBody{User: s.User, IsAuthenticated: s.IsAuthenticated}}, nil
}

func (a *dashboardAPI) Login(ctx context.Context, _ http.ResponseWriter, r *http.Request, _ any) (any, error) {
	var creds session.Credentials
	if err := decodeBody(r, &creds); err != nil {
		return newBadRequest(err.Error()), nil
	}

	s, err := a.deps.Sessions.Login(ctx, creds)
	if err != nil {
		slogctx.Warn(ctx, "Login failed", "error", err)
		return toErrorModel(err), nil
	}

	return jsonResponse{status: http.StatusOK, body: sessionBody{User: s.User, IsAuthenticated: s.IsAuthenticated}}, nil
}

func (a *dashboardAPI) Logout(ctx context.Context, _ http.ResponseWriter, _ *http.Request, _ any) (any, error) {
	if err := a.deps.Sessions.Logout(ctx); err != nil {
		slogctx.Error(ctx, "Failed to logout", "error", err)
		return toErrorModel(err), nil
	}

	return noContentResponse{}, nil
}

func (a *dashboardAPI) GetPreferences(ctx context.Context, _ http.ResponseWriter, _ *http.Request, _ any) (any, error) {
	p, err := a.deps.Preferences.Load(ctx)
	if err != nil {
		slogctx.Error(ctx, "Failed to load preferences", "error", err)
		return toErrorModel(err), nil
	}

	return jsonResponse{status: http.StatusOK, body: p}, nil
}

func (a *dashboardAPI) PutPreferences(ctx context.Context, _ http.ResponseWriter, r *http.Request, _ any) (any, error) {
	var p preferences.Preferences
	if err := decodeBody(r, &p); err != nil {
		return newBadRequest(err.Error()), nil
	}

	saved, err := a.deps.Preferences.Save(ctx, p)
	if err != nil {
		return toErrorModel(err), nil
	}

	return jsonResponse{status: http.StatusOK, body: saved}, nil
}

func decodeBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	return nil
}

// bindQuery reads the dashboard filters. page_size is accepted as an alias
// of limit.
func bindQuery(values url.Values) (analytics.Query, error) {
	var q analytics.Query

	params := []struct {
		name string
		dest any
	}{
		{"college_id", &q.CollegeID},
		{"start_date", &q.StartDate},
		{"end_date", &q.EndDate},
		{"page", &q.Page},
		{"limit", &q.Limit},
		{"search", &q.Search},
		{"subject", &q.Subject},
		{"difficulty", &q.Difficulty},
		{"status", &q.Status},
	}
	if !values.Has("limit") {
		params = append(params, struct {
			name string
			dest any
		}{"page_size", &q.Limit})
	}

	for _, p := range params {
		if err := runtime.BindQueryParameter("form", true, false, p.name, values, p.dest); err != nil {
			return analytics.Query{}, fmt.Errorf("invalid query parameter %s: %w", p.name, err)
		}
	}

	if err := q.Validate(); err != nil {
		return analytics.Query{}, err
	}

	return q, nil
}

package business

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"

	slogctx "github.com/veqryn/slog-context"

	"github.com/medcampus/analytics-dashboard/internal/analytics"
	"github.com/medcampus/analytics-dashboard/internal/config"
	"github.com/medcampus/analytics-dashboard/internal/session"
)

const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// WriteOutput renders v as indented JSON or as YAML.
func WriteOutput(w io.Writer, format string, v any) error {
	switch format {
	case OutputJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	case OutputYAML:
		b, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		_, err = w.Write(b)

		return err
	default:
		return fmt.Errorf("unknown output format %q, want %s or %s", format, OutputJSON, OutputYAML)
	}
}

// LoginMain signs in with creds and prints the signed in user.
func LoginMain(ctx context.Context, cfg *config.Config, creds session.Credentials, w io.Writer) error {
	app, closeFn, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	s, err := app.Sessions.Login(ctx, creds)
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	slogctx.Info(ctx, "Signed in", "user_id", s.UserID())

	return WriteOutput(w, OutputJSON, struct {
		User            *session.User `json:"user"`
		IsAuthenticated bool          `json:"isAuthenticated"`
	}{s.User, s.IsAuthenticated})
}

// LogoutMain clears the stored session. It succeeds when nobody is signed in.
func LogoutMain(ctx context.Context, cfg *config.Config) error {
	app, closeFn, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := app.Sessions.Logout(ctx); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}

	return nil
}

// FetchMain fetches one resource and prints its store state. The college and
// date range default to the saved preferences. A failed fetch still prints
// the state before returning the error.
func FetchMain(ctx context.Context, cfg *config.Config, resource string, q analytics.Query, format string, w io.Writer) error {
	r, err := analytics.ParseResource(resource)
	if err != nil {
		return err
	}
	if err := q.Validate(); err != nil {
		return err
	}

	app, closeFn, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := app.RequireSession(ctx); err != nil {
		return err
	}

	p, err := app.Preferences.Load(ctx)
	if err != nil {
		slogctx.Warn(ctx, "Fetching without saved preferences", "error", err)
	} else {
		q = q.WithDefaults(p.CollegeID, p.DateRange.Start, p.DateRange.End)
	}

	view, err := app.Dashboard.Fetch(ctx, r, q)
	if err != nil {
		return err
	}

	if err := WriteOutput(w, format, view); err != nil {
		return err
	}

	return view.Err
}

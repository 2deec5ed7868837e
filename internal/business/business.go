package business

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/medcampus/analytics-dashboard/internal/analytics"
	"github.com/medcampus/analytics-dashboard/internal/apiclient"
	"github.com/medcampus/analytics-dashboard/internal/business/server"
	"github.com/medcampus/analytics-dashboard/internal/config"
	"github.com/medcampus/analytics-dashboard/internal/persist"
	"github.com/medcampus/analytics-dashboard/internal/persist/jsonfile"
	persistsql "github.com/medcampus/analytics-dashboard/internal/persist/sql"
	persistvalkey "github.com/medcampus/analytics-dashboard/internal/persist/valkey"
	"github.com/medcampus/analytics-dashboard/internal/preferences"
	"github.com/medcampus/analytics-dashboard/internal/resource"
	"github.com/medcampus/analytics-dashboard/internal/session"
)

// App wires the session, the API client and the stores of one signed in
// user together.
type App struct {
	Sessions    *session.Manager
	Preferences *preferences.Service
	Client      *apiclient.Client
	Dashboard   *analytics.Dashboard
}

// Main starts the dashboard HTTP server.
func Main(ctx context.Context, cfg *config.Config) error {
	app, closeFn, err := NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the dashboard: %w", err)
	}
	defer closeFn()

	return server.StartHTTPServer(ctx, cfg, server.Deps{
		Dashboard:   app.Dashboard,
		Sessions:    app.Sessions,
		Preferences: app.Preferences,
	})
}

// TokenRefresherMain keeps the stored access token fresh so that the next
// dashboard request does not have to wait for a refresh.
func TokenRefresherMain(ctx context.Context, cfg *config.Config) error {
	if cfg.TokenRefresher.RefreshInterval <= 0 {
		return fmt.Errorf("token refresher interval must be positive, got %s", cfg.TokenRefresher.RefreshInterval)
	}

	app, closeFn, err := NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the dashboard: %w", err)
	}
	defer closeFn()

	slogctx.Info(ctx, "Starting token refresh job")
	return startTokenRefresher(ctx, app.Sessions, cfg.TokenRefresher)
}

func startTokenRefresher(ctx context.Context, sessions *session.Manager, cfg config.TokenRefresher) error {
	c := time.Tick(cfg.RefreshInterval)
	for {
		refreshed, err := sessions.RefreshIfExpiring(ctx, cfg.RefreshWindow)
		if err != nil {
			slogctx.Error(ctx, "Failed to refresh token", "error", err)
		} else if refreshed {
			slogctx.Info(ctx, "Refreshed expiring access token")
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}

// NewApp builds the application from cfg. The returned function releases
// the storage backend.
func NewApp(ctx context.Context, cfg *config.Config) (_ *App, closeFn func(), _ error) {
	baseURL, err := config.ResolveAPIBaseURL(cfg.API)
	if err != nil {
		return nil, nil, err
	}

	store, closeFn, err := initStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("initialising storage: %w", err)
	}

	httpClient := loadHTTPClient(cfg.API)

	sessions := session.NewManager(session.NewRepository(store), httpClient, baseURL)
	prefs := preferences.NewService(store)

	client := apiclient.New(baseURL, sessions,
		apiclient.WithHTTPClient(httpClient),
		apiclient.WithUserAgent(cfg.API.UserAgent),
		apiclient.WithReauthHook(func(ctx context.Context) {
			slogctx.Warn(ctx, "Reauthentication required, redirecting to login")
		}),
	)

	dashboard := analytics.NewDashboard(client, resource.WithTTL(cfg.Cache.TTL))

	sessions.OnSessionCleared(func(context.Context) { dashboard.ClearAll() })
	prefs.OnCollegeChanged(func(context.Context, string) { dashboard.ClearAll() })

	slogctx.Info(ctx, "Dashboard initialised", "api_base_url", baseURL, "storage", cfg.Storage.Backend)

	return &App{
		Sessions:    sessions,
		Preferences: prefs,
		Client:      client,
		Dashboard:   dashboard,
	}, closeFn, nil
}

func initStore(ctx context.Context, cfg config.Storage) (persist.Store, func(), error) {
	switch cfg.Backend {
	case config.StorageBackendFile, "":
		return jsonfile.NewStore(cfg.Path), func() {}, nil
	case config.StorageBackendValKey:
		client, err := newValkeyClient(cfg.ValKey)
		if err != nil {
			return nil, nil, err
		}

		return persistvalkey.NewStore(client, cfg.Prefix), client.Close, nil
	case config.StorageBackendPostgres:
		db, err := newPgxPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}

		return persistsql.NewStore(db, cfg.Prefix), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newValkeyClient(cfg config.ValKey) (valkey.Client, error) {
	host, err := commoncfg.LoadValueFromSourceRef(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	username, err := commoncfg.LoadValueFromSourceRef(cfg.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{string(host)},
		Username:    string(username),
		Password:    string(password),
	})
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return client, nil
}

func newPgxPool(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}

func loadHTTPClient(cfg config.API) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &userAgentRoundTripper{
			userAgent: cfg.UserAgent,
			next:      http.DefaultTransport,
		},
	}
}

// userAgentRoundTripper also covers the login and refresh calls, which do
// not go through apiclient.
type userAgentRoundTripper struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" || req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)

	return t.next.RoundTrip(req)
}

var errNotSignedIn = errors.New("not signed in, run the login command first")

// RequireSession fails when nobody is signed in.
func (a *App) RequireSession(ctx context.Context) error {
	token, err := a.Sessions.ValidToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return errNotSignedIn
	}

	return nil
}

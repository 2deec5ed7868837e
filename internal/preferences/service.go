// Package preferences keeps the UI settings stored under the ui-storage key.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/medcampus/analytics-dashboard/internal/persist"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"

	dateLayout = "2006-01-02"

	// DefaultRangeDays is the width of the date range shown before the user
	// picks one.
	DefaultRangeDays = 30
)

type DateRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

type Preferences struct {
	Theme            string    `json:"theme" yaml:"theme"`
	SidebarCollapsed bool      `json:"sidebarCollapsed" yaml:"sidebarCollapsed"`
	CollegeID        string    `json:"collegeId" yaml:"collegeId"`
	DateRange        DateRange `json:"dateRange" yaml:"dateRange"`
}

func (p Preferences) Validate() error {
	if !slices.Contains([]string{ThemeLight, ThemeDark, ThemeSystem}, p.Theme) {
		return fmt.Errorf("unknown theme %q", p.Theme)
	}

	start, err := time.Parse(dateLayout, p.DateRange.Start)
	if err != nil {
		return fmt.Errorf("invalid range start %q", p.DateRange.Start)
	}
	end, err := time.Parse(dateLayout, p.DateRange.End)
	if err != nil {
		return fmt.Errorf("invalid range end %q", p.DateRange.End)
	}
	if start.After(end) {
		return errors.New("range start is after range end")
	}

	return nil
}

type Service struct {
	store persist.Store
	now   func() time.Time

	mu              sync.Mutex
	onCollegeChange []func(ctx context.Context, collegeID string)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store persist.Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Defaults are used until the user saves preferences.
func (s *Service) Defaults() Preferences {
	today := s.now().UTC()

	return Preferences{
		Theme: ThemeLight,
		DateRange: DateRange{
			Start: today.AddDate(0, 0, -DefaultRangeDays).Format(dateLayout),
			End:   today.Format(dateLayout),
		},
	}
}

// OnCollegeChanged registers fn to run after a save switched the college.
func (s *Service) OnCollegeChanged(fn func(ctx context.Context, collegeID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onCollegeChange = append(s.onCollegeChange, fn)
}

// Load returns the stored preferences, or the defaults when none are stored
// or the stored blob is unreadable.
func (s *Service) Load(ctx context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked(ctx)
}

func (s *Service) loadLocked(ctx context.Context) (Preferences, error) {
	p, err := persist.Load[Preferences](ctx, s.store, persist.KeyUI)
	switch {
	case err == nil:
		return s.fillDefaults(p), nil
	case errors.Is(err, serviceerr.ErrNotFound):
		return s.Defaults(), nil
	case errors.Is(err, serviceerr.ErrDecode):
		slogctx.Warn(ctx, "Discarding unreadable preferences", "error", err)
		return s.Defaults(), nil
	default:
		return Preferences{}, fmt.Errorf("loading preferences: %w", err)
	}
}

// Save validates and stores p as a whole.
func (s *Service) Save(ctx context.Context, p Preferences) (Preferences, error) {
	p = s.fillDefaults(p)
	if err := p.Validate(); err != nil {
		return Preferences{}, serviceerr.New(serviceerr.CodeInvalidRequest, err.Error())
	}

	s.mu.Lock()
	prev, err := s.loadLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return Preferences{}, err
	}

	if err := persist.Save(ctx, s.store, persist.KeyUI, p); err != nil {
		s.mu.Unlock()
		return Preferences{}, fmt.Errorf("storing preferences: %w", err)
	}

	hooks := slices.Clone(s.onCollegeChange)
	s.mu.Unlock()

	if prev.CollegeID != p.CollegeID {
		slogctx.Info(ctx, "College changed", "college_id", p.CollegeID)
		for _, fn := range hooks {
			fn(ctx, p.CollegeID)
		}
	}

	return p, nil
}

func (s *Service) fillDefaults(p Preferences) Preferences {
	d := s.Defaults()
	if p.Theme == "" {
		p.Theme = d.Theme
	}
	if p.DateRange.Start == "" {
		p.DateRange.Start = d.DateRange.Start
	}
	if p.DateRange.End == "" {
		p.DateRange.End = d.DateRange.End
	}

	return p
}

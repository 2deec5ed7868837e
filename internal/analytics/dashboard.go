package analytics

import (
	"context"
	"time"

	"github.com/medcampus/analytics-dashboard/internal/resource"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

// Dashboard holds one store per analytics resource.
type Dashboard struct {
	Summary    *resource.Store[Summary, Query]
	Students   *resource.Store[[]Student, Query]
	Content    *resource.Store[[]Content, Query]
	Revenue    *resource.Store[[]Revenue, Query]
	Engagement *resource.Store[[]EngagementPoint, Query]
}

func NewDashboard(api Doer, opts ...resource.Option) *Dashboard {
	return &Dashboard{
		Summary:    resource.NewStore(string(ResourceSummary), fetcher[Summary](api, ResourceSummary), opts...),
		Students:   resource.NewStore(string(ResourceStudents), fetcher[[]Student](api, ResourceStudents), opts...),
		Content:    resource.NewStore(string(ResourceContent), fetcher[[]Content](api, ResourceContent), opts...),
		Revenue:    resource.NewStore(string(ResourceRevenue), fetcher[[]Revenue](api, ResourceRevenue), opts...),
		Engagement: resource.NewStore(string(ResourceEngagement), fetcher[[]EngagementPoint](api, ResourceEngagement), opts...),
	}
}

// ClearAll empties every store. It runs on logout and when the selected
// college changes.
func (d *Dashboard) ClearAll() {
	d.Summary.ClearCache()
	d.Students.ClearCache()
	d.Content.ClearCache()
	d.Revenue.ClearCache()
	d.Engagement.ClearCache()
}

// View is a type erased snapshot of one store.
type View struct {
	Resource      Resource             `json:"resource" yaml:"resource"`
	Data          any                  `json:"data" yaml:"data"`
	Loading       bool                 `json:"loading" yaml:"loading"`
	Error         string               `json:"error,omitempty" yaml:"error,omitempty"`
	LastFetchedAt *time.Time           `json:"lastFetchedAt" yaml:"lastFetchedAt"`
	Pagination    *resource.Pagination `json:"pagination,omitempty" yaml:"pagination,omitempty"`
	Outcome       string               `json:"outcome,omitempty" yaml:"outcome,omitempty"`

	Err error `json:"-" yaml:"-"`
}

// Fetch runs Fetch on the store of r and returns its state afterwards.
func (d *Dashboard) Fetch(ctx context.Context, r Resource, q Query) (View, error) {
	switch r {
	case ResourceSummary:
		return fetchView(ctx, r, d.Summary, q), nil
	case ResourceStudents:
		return fetchView(ctx, r, d.Students, q), nil
	case ResourceContent:
		return fetchView(ctx, r, d.Content, q), nil
	case ResourceRevenue:
		return fetchView(ctx, r, d.Revenue, q), nil
	case ResourceEngagement:
		return fetchView(ctx, r, d.Engagement, q), nil
	default:
		return View{}, serviceerr.New(serviceerr.CodeNotFound, "unknown resource "+string(r))
	}
}

// Snapshot returns the state of the store of r without fetching.
func (d *Dashboard) Snapshot(r Resource) (View, error) {
	switch r {
	case ResourceSummary:
		return toView(r, d.Summary.Snapshot()), nil
	case ResourceStudents:
		return toView(r, d.Students.Snapshot()), nil
	case ResourceContent:
		return toView(r, d.Content.Snapshot()), nil
	case ResourceRevenue:
		return toView(r, d.Revenue.Snapshot()), nil
	case ResourceEngagement:
		return toView(r, d.Engagement.Snapshot()), nil
	default:
		return View{}, serviceerr.New(serviceerr.CodeNotFound, "unknown resource "+string(r))
	}
}

func fetchView[T any](ctx context.Context, r Resource, s *resource.Store[T, Query], q Query) View {
	outcome := s.Fetch(ctx, q)

	v := toView(r, s.Snapshot())
	v.Outcome = outcome.String()

	return v
}

func toView[T any](r Resource, e resource.Entry[T]) View {
	return View{
		Resource:      r,
		Data:          e.Data,
		Loading:       e.Loading,
		Error:         serviceerr.Message(e.Err),
		Err:           e.Err,
		LastFetchedAt: e.LastFetchedAt,
		Pagination:    e.Pagination,
	}
}

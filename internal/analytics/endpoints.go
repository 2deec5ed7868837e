package analytics

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/medcampus/analytics-dashboard/internal/apiclient"
	"github.com/medcampus/analytics-dashboard/internal/resource"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

type Resource string

const (
	ResourceSummary    Resource = "summary"
	ResourceStudents   Resource = "students"
	ResourceContent    Resource = "content"
	ResourceRevenue    Resource = "revenue"
	ResourceEngagement Resource = "engagement"
)

type endpoint struct {
	path       string
	limitParam string
	paginated  bool
}

var endpoints = map[Resource]endpoint{
	ResourceSummary:    {path: "/analytics/summary/"},
	ResourceStudents:   {path: "/analytics/students/", limitParam: "page_size", paginated: true},
	ResourceContent:    {path: "/analytics/content/", limitParam: "limit", paginated: true},
	ResourceRevenue:    {path: "/analytics/revenue/", limitParam: "page_size", paginated: true},
	ResourceEngagement: {path: "/analytics/engagement/"},
}

// Resources lists every resource in a stable order.
func Resources() []Resource {
	return []Resource{ResourceSummary, ResourceStudents, ResourceContent, ResourceRevenue, ResourceEngagement}
}

func ParseResource(s string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Resources(), r) {
		return "", serviceerr.New(serviceerr.CodeNotFound, fmt.Sprintf("unknown resource %q", s))
	}

	return r, nil
}

// Doer is implemented by apiclient.Client.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error)
}

func fetcher[T any](api Doer, r Resource) resource.FetchFunc[T, Query] {
	ep := endpoints[r]

	return func(ctx context.Context, q Query) (resource.Result[T], error) {
		if err := q.Validate(); err != nil {
			return resource.Result[T]{}, serviceerr.New(serviceerr.CodeInvalidRequest, err.Error())
		}

		values, err := q.Values(ep.limitParam)
		if err != nil {
			return resource.Result[T]{}, err
		}

		resp, err := api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: ep.path, Query: values})
		if err != nil {
			return resource.Result[T]{}, err
		}

		env, err := apiclient.DecodeEnvelope[T](resp)
		if err != nil {
			return resource.Result[T]{}, err
		}

		res := resource.Result[T]{Data: env.Data}
		if ep.paginated && env.Count != nil {
			total := *env.Count
			res.TotalCount = &total
		}

		return res, nil
	}
}

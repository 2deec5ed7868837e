package analytics

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

const DateLayout = "2006-01-02"

// Query filters every analytics endpoint. Zero fields are not sent.
type Query struct {
	CollegeID  string `mapstructure:"college_id,omitempty" json:"collegeId,omitempty" yaml:"collegeId,omitempty"`
	StartDate  string `mapstructure:"start_date,omitempty" json:"startDate,omitempty" yaml:"startDate,omitempty"`
	EndDate    string `mapstructure:"end_date,omitempty" json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Page       int    `mapstructure:"page,omitempty" json:"page,omitempty" yaml:"page,omitempty"`
	Limit      int    `mapstructure:"-" json:"limit,omitempty" yaml:"limit,omitempty"`
	Search     string `mapstructure:"search,omitempty" json:"search,omitempty" yaml:"search,omitempty"`
	Subject    string `mapstructure:"subject,omitempty" json:"subject,omitempty" yaml:"subject,omitempty"`
	Difficulty string `mapstructure:"difficulty,omitempty" json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Status     string `mapstructure:"status,omitempty" json:"status,omitempty" yaml:"status,omitempty"`
}

// PaginationChanging reports whether the query picks a page, a page size or
// a search term.
func (q Query) PaginationChanging() bool {
	return q.Page > 0 || q.Limit > 0 || q.Search != ""
}

func (q Query) Pagination() (int, int) {
	return q.Page, q.Limit
}

// WithDefaults fills the college and the date range the request left empty.
// The dates are only filled as a pair so a half-open range stays as given.
func (q Query) WithDefaults(collegeID, startDate, endDate string) Query {
	if q.CollegeID == "" {
		q.CollegeID = collegeID
	}
	if q.StartDate == "" && q.EndDate == "" {
		q.StartDate, q.EndDate = startDate, endDate
	}

	return q
}

// Values encodes q as query parameters. The page size goes out under
// limitParam since endpoints disagree on its name.
func (q Query) Values(limitParam string) (url.Values, error) {
	fields := make(map[string]any)
	if err := mapstructure.Decode(q, &fields); err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	values := url.Values{}
	for name, v := range fields {
		s := fmt.Sprint(v)
		if s == "" || s == "0" {
			continue
		}
		values.Set(name, s)
	}

	if q.Limit > 0 && limitParam != "" {
		values.Set(limitParam, strconv.Itoa(q.Limit))
	}

	return values, nil
}

// Validate rejects queries the backend would reject anyway.
func (q Query) Validate() error {
	if q.Page < 0 {
		return fmt.Errorf("page must not be negative: %d", q.Page)
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative: %d", q.Limit)
	}
	for _, d := range []string{q.StartDate, q.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, d); err != nil {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", d)
		}
	}
	if q.StartDate != "" && q.EndDate != "" && q.StartDate > q.EndDate {
		return fmt.Errorf("start date %s is after end date %s", q.StartDate, q.EndDate)
	}

	return nil
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// APIBaseURLEnv overrides the configured API base URL.
const APIBaseURLEnv = "ANALYTICS_API_BASE_URL"

// DefaultAPIBaseURL is used when neither the environment nor the config file
// provide a base URL. It can be replaced at build time with
// -ldflags "-X github.com/medcampus/analytics-dashboard/internal/config.DefaultAPIBaseURL=..."
var DefaultAPIBaseURL = "http://localhost:8000/api"

// ResolveAPIBaseURL returns the API base URL with the precedence
// environment, config file, build default. The result has no trailing slash.
func ResolveAPIBaseURL(conf API) (string, error) {
	raw := os.Getenv(APIBaseURLEnv)
	if raw == "" {
		raw = conf.BaseURL
	}
	if raw == "" {
		raw = DefaultAPIBaseURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("api base url %q must be http or https", raw)
	}

	return strings.TrimSuffix(u.String(), "/"), nil
}

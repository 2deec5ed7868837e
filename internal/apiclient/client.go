// Package apiclient talks to the analytics backend on behalf of a signed in
// user. It attaches the bearer token, recovers from one 401 by refreshing the
// token, and normalizes responses.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

const RequestIDHeader = "X-Request-ID"

// TokenSource is implemented by session.Manager.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
	// RefreshIfRejected returns a token to retry with after rejected got a 401.
	RefreshIfRejected(ctx context.Context, rejected string) (string, error)
	Logout(ctx context.Context) error
}

// Request describes one API call. Path is joined onto the base URL unless it
// is absolute. A non-nil Body is sent as JSON.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Response is a successful (2xx) response. Data holds the decoded JSON value
// for JSON responses and the body text otherwise.
type Response struct {
	Status int
	Header http.Header
	Data   any
	Raw    []byte
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	userAgent  string
	onReauth   func(ctx context.Context)

	tracer   trace.Tracer
	counter  metric.Int64Counter
	duration metric.Int64Histogram
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// WithReauthHook sets the function called after a 401 could not be recovered
// and the session was dropped. UIs use it to navigate to the login page.
func WithReauthHook(fn func(ctx context.Context)) Option {
	return func(cl *Client) { cl.onReauth = fn }
}

func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		tokens:     tokens,
		tracer:     otel.Tracer("github.com/medcampus/analytics-dashboard/internal/apiclient"),
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter("github.com/medcampus/analytics-dashboard/internal/apiclient",
		metric.WithInstrumentationVersion(otel.Version()),
	)

	var err error

	c.counter, err = meter.Int64Counter(
		"apiclient.request_count",
		metric.WithDescription("Outgoing API request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		otel.Handle(err)
	}

	c.duration, err = meter.Int64Histogram(
		"apiclient.duration",
		metric.WithDescription("Outgoing API request duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return c
}

// Do sends req. A 401 triggers one retry of the same request, with a token
// refreshed for the rejected one or with the newer token already stored. When that does not help the session is dropped, the reauth hook is
// called and the error matches serviceerr.ErrReauthenticationRequired.
// 5xx and transport errors are returned as they are, without retry.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, serviceerr.New(serviceerr.CodeInvalidRequest, err.Error())
	}

	var body []byte
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	if _, ok := requestID(ctx); !ok {
		id := uuid.NewString()
		ctx = slogctx.With(WithRequestID(ctx, id), commoncfg.AttrRequestID, id)
	}
	ctx, span := c.tracer.Start(ctx, req.Method+" "+req.Path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	token, err := c.tokens.ValidToken(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("getting access token: %w", err)
	}

	resp, raw, err := c.send(ctx, req, target, body, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		slogctx.Info(ctx, "Access token rejected, refreshing", "path", req.Path)

		token, err = c.tokens.RefreshIfRejected(ctx, token)
		if err != nil || token == "" {
			return nil, c.reauthenticate(ctx, span, err)
		}

		resp, raw, err = c.send(ctx, req, target, body, token)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, c.reauthenticate(ctx, span, serviceerr.FromResponse(resp.StatusCode, raw))
		}
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := serviceerr.FromResponse(resp.StatusCode, raw)
		span.SetStatus(codes.Error, err.Error())
		slogctx.Warn(ctx, "API request failed", "path", req.Path, "status", resp.StatusCode, "error", err)
		return nil, err
	}

	return parse(resp, raw)
}

func (c *Client) reauthenticate(ctx context.Context, span trace.Span, cause error) error {
	slogctx.Warn(ctx, "Session could not be recovered", "error", cause)

	if err := c.tokens.Logout(ctx); err != nil {
		slogctx.Error(ctx, "Failed to drop session", "error", err)
	}

	if c.onReauth != nil {
		c.onReauth(ctx)
	}

	err := serviceerr.ErrReauthenticationRequired
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}

func (c *Client) send(ctx context.Context, req Request, target string, body []byte, token string) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, nil, serviceerr.New(serviceerr.CodeInvalidRequest, err.Error())
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if id, ok := requestID(ctx); ok {
		httpReq.Header.Set(RequestIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.record(ctx, req.Method, "network_error", start)
		return nil, nil, errors.Join(serviceerr.ErrNetwork, fmt.Errorf("executing an http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.record(ctx, req.Method, strconv.Itoa(resp.StatusCode), start)
	if err != nil {
		return nil, nil, errors.Join(serviceerr.ErrNetwork, fmt.Errorf("reading response body: %w", err))
	}

	return resp, raw, nil
}

func (c *Client) record(ctx context.Context, method, status string, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", status),
	)

	if c.counter != nil {
		c.counter.Add(ctx, 1, attrs)
	}
	if c.duration != nil {
		c.duration.Record(ctx, time.Since(start).Milliseconds(), attrs)
	}
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parsing request path: %w", err)
	}

	if !u.IsAbs() {
		u, err = url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
		if err != nil {
			return "", fmt.Errorf("parsing request url: %w", err)
		}
	}

	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func parse(resp *http.Response, raw []byte) (*Response, error) {
	out := &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Raw:    raw,
	}

	if len(raw) == 0 {
		return out, nil
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		out.Data = string(raw)
		return out, nil
	}

	if err := json.Unmarshal(raw, &out.Data); err != nil {
		return nil, errors.Join(serviceerr.ErrDecode, fmt.Errorf("decoding response body: %w", err))
	}

	return out, nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

type requestIDKey struct{}

// WithRequestID makes the client forward id instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every transport request.
const DefaultTimeout = 30 * time.Second

// Response is the normalized envelope every transport call returns.
type Response struct {
	OK         bool
	Status     int
	StatusText string
	Data       []byte
	Headers    http.Header
}

// Transport performs the HTTP calls for the endpoint client.
type Transport interface {
	Get(ctx context.Context, p string, q url.Values) (*Response, error)
	Post(ctx context.Context, p string, body any) (*Response, error)
	Put(ctx context.Context, p string, body any) (*Response, error)
	Delete(ctx context.Context, p string) (*Response, error)
}

// HTTPTransport implements Transport over net/http.
type HTTPTransport struct {
	http      *http.Client
	baseURL   *url.URL
	timeout   time.Duration
	tokens    oauth2.TokenSource
	limiter   *rate.Limiter
	userAgent string
	logger    zerolog.Logger
}

var _ Transport = (*HTTPTransport)(nil)

type Option func(*HTTPTransport)

func WithHTTPClient(h *http.Client) Option {
	return func(t *HTTPTransport) { t.http = h }
}

func WithTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithTokenSource attaches an Authorization header from ts to every request.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(t *HTTPTransport) { t.tokens = ts }
}

// WithBearerToken is WithTokenSource over a static token. Empty is a no-op.
func WithBearerToken(token string) Option {
	return func(t *HTTPTransport) {
		if token != "" {
			t.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		}
	}
}

// WithRateLimit caps outgoing requests per second. 0 disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(t *HTTPTransport) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

func WithLogger(l zerolog.Logger) Option {
	return func(t *HTTPTransport) { t.logger = l }
}

// NewHTTPTransport returns a transport rooted at baseURL.
func NewHTTPTransport(baseURL string, opts ...Option) (*HTTPTransport, error) {
	if baseURL == "" {
		return nil, errors.New("base URL required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	t := &HTTPTransport{
		http:      http.DefaultClient,
		baseURL:   u,
		timeout:   DefaultTimeout,
		userAgent: "heavymath-indexer-client",
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(t)
	}
	if t.tokens != nil {
		base := t.http.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		h := *t.http
		h.Transport = &oauth2.Transport{Source: t.tokens, Base: base}
		t.http = &h
	}
	return t, nil
}

// BaseURL returns the root every path is resolved against.
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL.String()
}

func (t *HTTPTransport) Get(ctx context.Context, p string, q url.Values) (*Response, error) {
	return t.do(ctx, http.MethodGet, p, q, nil)
}

func (t *HTTPTransport) Post(ctx context.Context, p string, body any) (*Response, error) {
	return t.do(ctx, http.MethodPost, p, nil, body)
}

func (t *HTTPTransport) Put(ctx context.Context, p string, body any) (*Response, error) {
	return t.do(ctx, http.MethodPut, p, nil, body)
}

func (t *HTTPTransport) Delete(ctx context.Context, p string) (*Response, error) {
	return t.do(ctx, http.MethodDelete, p, nil, nil)
}

// resolve joins p onto the base path. p is already escaped.
func (t *HTTPTransport) resolve(p string, q url.Values) string {
	u := *t.baseURL
	escaped := path.Join(u.EscapedPath(), p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(escaped, "/") {
		escaped += "/"
	}
	if unescaped, err := url.PathUnescape(escaped); err == nil {
		u.Path = unescaped
		u.RawPath = escaped
	}
	u.RawQuery = ""
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (t *HTTPTransport) do(ctx context.Context, method, p string, q url.Values, body any) (*Response, error) {
	target := t.resolve(p, q)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Method: method, URL: target, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		t.logger.Debug().Err(err).Str("method", method).Str("url", target).Str("request_id", reqID).Msg("request failed")
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		// a timeout mid-body is still a failed request, never a partial response
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}

	t.logger.Debug().
		Str("method", method).
		Str("url", target).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request")

	return &Response{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Data:       data,
		Headers:    resp.Header,
	}, nil
}

// statusText strips the numeric prefix net/http puts on Status.
func statusText(resp *http.Response) string {
	if s := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))); s != "" {
		return s
	}
	return http.StatusText(resp.StatusCode)
}

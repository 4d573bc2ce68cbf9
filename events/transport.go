package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"path"

	"github.com/google/uuid"
	sse "github.com/tmaxmax/go-sse"
	"golang.org/x/oauth2"
)

// Filters narrow what the server pushes. Empty fields are not sent.
type Filters struct {
	Channel  string `json:"channel,omitempty"`
	MarketID string `json:"marketId,omitempty"`
	Dealer   string `json:"dealer,omitempty"`
	User     string `json:"user,omitempty"`
	Category string `json:"category,omitempty"`
}

func (f Filters) values() url.Values {
	q := url.Values{}
	for k, v := range map[string]string{
		"channel":  f.Channel,
		"marketId": f.MarketID,
		"dealer":   f.Dealer,
		"user":     f.User,
		"category": f.Category,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

// Stream yields raw message payloads until it fails or is closed.
type Stream interface {
	Next() ([]byte, error)
	Close() error
}

// Dialer opens a Stream. Dial returns once the server has accepted the
// subscription; ctx bounds the whole life of the stream.
type Dialer interface {
	Dial(ctx context.Context, f Filters) (Stream, error)
}

// maxEventSize bounds one SSE event.
const maxEventSize = 1 << 20

// HTTPDialer speaks server-sent events over GET /api/events.
type HTTPDialer struct {
	http    *http.Client
	baseURL *url.URL
}

var _ Dialer = (*HTTPDialer)(nil)

type DialerOption func(*HTTPDialer)

// WithHTTPClient replaces the client. It must not set a Timeout, which
// would cut long-lived streams.
func WithHTTPClient(h *http.Client) DialerOption {
	return func(d *HTTPDialer) { d.http = h }
}

// WithBearerToken authenticates the stream request. Empty is a no-op.
func WithBearerToken(token string) DialerOption {
	return func(d *HTTPDialer) {
		if token == "" {
			return
		}
		base := d.http.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		h := *d.http
		h.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base,
		}
		d.http = &h
	}
}

func NewHTTPDialer(baseURL string, opts ...DialerOption) (*HTTPDialer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	d := &HTTPDialer{http: &http.Client{}, baseURL: u}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func (d *HTTPDialer) Dial(ctx context.Context, f Filters) (Stream, error) {
	u := *d.baseURL
	u.Path = path.Join("/", u.Path, "api", "events")
	u.RawQuery = f.values().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open stream: status %d", resp.StatusCode)
	}
	return &sseStream{body: resp.Body}, nil
}

type sseStream struct {
	body io.ReadCloser
	next func() (sse.Event, error, bool)
	stop func()
}

// Next returns the data of the next event. Multi-line data fields arrive
// joined with "\n"; events without data are skipped. The pull iterator is
// started on the first call so a stream closed before reading holds no
// goroutine, and it is stopped on the reading goroutine once it ends.
func (s *sseStream) Next() ([]byte, error) {
	if s.next == nil {
		seq := iter.Seq2[sse.Event, error](sse.Read(s.body, &sse.ReadConfig{MaxEventSize: maxEventSize}))
		s.next, s.stop = iter.Pull2(seq)
	}
	for {
		ev, err, ok := s.next()
		if !ok {
			s.stop()
			return nil, io.EOF
		}
		if err != nil {
			s.stop()
			return nil, err
		}
		if ev.Data == "" {
			continue
		}
		return []byte(ev.Data), nil
	}
}

// Close only closes the body, which unblocks a concurrent Next.
func (s *sseStream) Close() error {
	err := s.body.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

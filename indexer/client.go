// Package indexer is the typed REST client for the heavymath prediction-market
// indexer. Each method issues exactly one transport call and unwraps the
// response envelope into a typed result or a structured error.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Client is the endpoint client. It performs no caching and no retries.
type Client struct {
	transport Transport
	validate  *validator.Validate
	logger    zerolog.Logger
}

type ClientOption func(*Client)

func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient wraps an existing transport.
func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		validate:  validator.New(),
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// New builds a client over an HTTPTransport rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	t, err := NewHTTPTransport(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(t, WithClientLogger(t.logger)), nil
}

// envelope covers both the single-item and the paginated response shapes.
type envelope[T any] struct {
	Success    bool        `json:"success"`
	Data       T           `json:"data"`
	Error      string      `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// op names an endpoint for errors and its generic failure message.
type op struct {
	name string
	msg  string
}

// unwrap decodes resp into an envelope, turning non-OK statuses and
// success=false bodies into APIErrors.
func unwrap[T any](o op, resp *Response) (*envelope[T], error) {
	var env envelope[T]
	decodeErr := json.Unmarshal(resp.Data, &env)

	if !resp.OK {
		msg := o.msg
		if resp.StatusText != "" {
			msg = resp.StatusText
		}
		// the body may still carry an error message
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(resp.Data, &body) == nil && body.Error != "" {
			msg = body.Error
		}
		return nil, &APIError{Op: o.name, Status: resp.Status, Message: msg}
	}
	if decodeErr != nil {
		return nil, &APIError{Op: o.name, Status: resp.Status, Message: fmt.Sprintf("%s: decode response: %v", o.msg, decodeErr)}
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = o.msg
		}
		return nil, &APIError{Op: o.name, Status: resp.Status, Message: msg}
	}
	return &env, nil
}

// getOne fetches a single resource. A success envelope without data is an
// APIError, so callers never see a nil result with a nil error.
func getOne[T any](ctx context.Context, c *Client, o op, p string, q url.Values) (*T, error) {
	resp, err := c.transport.Get(ctx, p, q)
	if err != nil {
		return nil, err
	}
	env, err := unwrap[*T](o, resp)
	if err == nil && env.Data == nil {
		err = &APIError{Op: o.name, Status: resp.Status, Message: "empty data"}
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("op", o.name).Msg("api error")
		return nil, err
	}
	return env.Data, nil
}

// getList fetches an unpaginated list. Null data is an empty list.
func getList[T any](ctx context.Context, c *Client, o op, p string, q url.Values) ([]T, error) {
	resp, err := c.transport.Get(ctx, p, q)
	if err != nil {
		return nil, err
	}
	env, err := unwrap[[]T](o, resp)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", o.name).Msg("api error")
		return nil, err
	}
	if env.Data == nil {
		return []T{}, nil
	}
	return env.Data, nil
}

func getPage[T any](ctx context.Context, c *Client, o op, p string, q url.Values) (*Page[T], error) {
	resp, err := c.transport.Get(ctx, p, q)
	if err != nil {
		return nil, err
	}
	env, err := unwrap[[]T](o, resp)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", o.name).Msg("api error")
		return nil, err
	}
	page := &Page[T]{Items: env.Data}
	if page.Items == nil {
		page.Items = []T{}
	}
	if env.Pagination != nil {
		page.Pagination = *env.Pagination
	} else {
		page.Pagination = Pagination{TotalCount: len(page.Items), PageSize: len(page.Items)}
	}
	return page, nil
}

// seg percent-encodes a single path segment. PathEscape leaves "." and ".."
// alone, and those would be resolved away when the path is joined.
func seg(s string) string {
	if s == "." || s == ".." {
		return strings.ReplaceAll(s, ".", "%2E")
	}
	return url.PathEscape(s)
}

func required(opName, field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &ValidationError{Op: opName, Field: field, Msg: "is required"}
	}
	return nil
}

func (c *Client) check(opName string, v any) error {
	if err := c.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Op: opName, Field: verrs[0].Field(), Msg: "failed " + verrs[0].Tag()}
		}
		return &ValidationError{Op: opName, Field: "request", Msg: err.Error()}
	}
	return nil
}

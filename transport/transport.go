// Package transport carries requests to a camera and owns the HTTP
// authentication handshake.
package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Request is one HTTP exchange with a camera
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Clone copies the request so a retry can carry different headers
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	return &c
}

// Response is the status, headers and fully read body of a reply
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Doer executes a single request without any authentication logic.
// A returned error always means no HTTP response was received.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// DoerFunc adapts a function to Doer
type DoerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f DoerFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Options configures the default HTTP client
type Options struct {
	// InsecureTLS skips certificate verification; cameras ship self-signed certs.
	InsecureTLS bool
	// Timeout caps a single request when the context carries no deadline.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client is the resty-backed Doer used against real cameras
type Client struct {
	http *resty.Client
}

// NewClient creates a Client. Every session may share one Client: it holds
// no camera state, only the connection pool.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	r := resty.New()
	r.SetTimeout(timeout)
	r.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	r.SetLogger(restyLogger{log: opts.Logger})
	if opts.InsecureTLS {
		r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}

	return &Client{http: r}
}

func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	r := c.http.R().SetContext(ctx)
	for k, values := range req.Header {
		for _, v := range values {
			r.Header.Add(k, v)
		}
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	res, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
	}, nil
}

// restyLogger routes resty's internal messages to zerolog
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }

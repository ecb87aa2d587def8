package transport

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/juju/errors"

	"github.com/use-go/ptzctl/ptz"
)

// Conn binds a Doer to one camera endpoint and one Auth. Once closed every
// call fails with ptz.ErrNotConnected before any I/O.
type Conn struct {
	doer     Doer
	endpoint ptz.Endpoint
	auth     *Auth
	timeout  time.Duration
	closed   atomic.Bool
}

// NewConn creates a connection; timeout bounds every single request
func NewConn(d Doer, ep ptz.Endpoint, auth *Auth, timeout time.Duration) *Conn {
	return &Conn{doer: d, endpoint: ep, auth: auth, timeout: timeout}
}

func (c *Conn) Endpoint() ptz.Endpoint {
	return c.endpoint
}

func (c *Conn) Auth() *Auth {
	return c.auth
}

func (c *Conn) Timeout() time.Duration {
	return c.timeout
}

// WithTimeout returns a connection sharing the endpoint and auth state
func (c *Conn) WithTimeout(timeout time.Duration) *Conn {
	return NewConn(c.doer, c.endpoint, c.auth, timeout)
}

// Close makes every later call fail without network I/O
func (c *Conn) Close() {
	c.closed.Store(true)
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Do sends a request to path on the endpoint. A transport failure is
// returned as ptz.ErrUnreachable; any HTTP response is returned as is and
// left to the caller to judge.
func (c *Conn) Do(ctx context.Context, method, path string, header http.Header, body []byte) (*Request, *Response, error) {
	req := &Request{Method: method, URL: c.endpoint.URL(path), Header: header, Body: body}

	if c.Closed() {
		return req, nil, errors.Annotatef(ptz.ErrNotConnected, "%s %s", method, req.URL)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.auth.Send(ctx, c.doer, req)
	if err != nil {
		return req, nil, errors.Annotatef(ptz.ErrUnreachable, "%s %s: %v", method, req.URL, err)
	}
	return req, res, nil
}

// Call is Do followed by Check: only a 2xx response comes back without error
func (c *Conn) Call(ctx context.Context, method, path string, header http.Header, body []byte) (*Response, error) {
	req, res, err := c.Do(ctx, method, path, header, body)
	if err != nil {
		return nil, err
	}
	if err = Check(req, res); err != nil {
		return res, err
	}
	return res, nil
}

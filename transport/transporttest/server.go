// Package transporttest provides a scripted in-memory camera for tests.
package transporttest

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/juju/errors"

	"github.com/use-go/ptzctl/transport"
)

// ErrRefused is returned for hosts marked unreachable
var ErrRefused = errors.New("connect: connection refused")

// HandlerFunc answers one request
type HandlerFunc func(req *transport.Request) (*transport.Response, error)

// ContextHandlerFunc answers one request and sees its context
type ContextHandlerFunc func(ctx context.Context, req *transport.Request) (*transport.Response, error)

type route struct {
	method string
	url    string
	prefix bool
	h      ContextHandlerFunc
}

func withoutContext(h HandlerFunc) ContextHandlerFunc {
	return func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		return h(req)
	}
}

// Server is a transport.Doer that dispatches on method and URL and records
// every request it receives. Unmatched requests get a 404.
type Server struct {
	mu       sync.Mutex
	routes   []route
	down     map[string]bool
	requests []*transport.Request
}

func New() *Server {
	return &Server{down: map[string]bool{}}
}

// Handle registers an exact method+URL route; an empty method matches any
func (s *Server) Handle(method, rawURL string, h HandlerFunc) {
	s.mu.Lock()
	s.routes = append(s.routes, route{method: method, url: rawURL, h: withoutContext(h)})
	s.mu.Unlock()
}

// HandleContext is Handle for handlers that need the request context
func (s *Server) HandleContext(method, rawURL string, h ContextHandlerFunc) {
	s.mu.Lock()
	s.routes = append(s.routes, route{method: method, url: rawURL, h: h})
	s.mu.Unlock()
}

// HandlePrefix registers a route matching every URL with the prefix
func (s *Server) HandlePrefix(method, prefix string, h HandlerFunc) {
	s.mu.Lock()
	s.routes = append(s.routes, route{method: method, url: prefix, prefix: true, h: withoutContext(h)})
	s.mu.Unlock()
}

// Down makes every request to host:port fail at the transport level
func (s *Server) Down(hostport string) {
	s.mu.Lock()
	s.down[hostport] = true
	s.mu.Unlock()
}

func (s *Server) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.requests = append(s.requests, req.Clone())
	u, _ := url.Parse(req.URL)
	if u != nil && s.down[u.Host] {
		s.mu.Unlock()
		return nil, ErrRefused
	}
	var h ContextHandlerFunc
	for i := len(s.routes) - 1; i >= 0; i-- {
		r := s.routes[i]
		if r.method != "" && r.method != req.Method {
			continue
		}
		if r.url == req.URL || (r.prefix && strings.HasPrefix(req.URL, r.url)) {
			h = r.h
			break
		}
	}
	s.mu.Unlock()

	if h == nil {
		return Status(http.StatusNotFound), nil
	}
	return h(ctx, req)
}

// Requests returns a copy of every request received so far
func (s *Server) Requests() []*transport.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*transport.Request(nil), s.requests...)
}

// Count returns how many requests matched method and URL exactly
func (s *Server) Count(method, rawURL string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.URL == rawURL {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests but keeps the routes
func (s *Server) Reset() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

// Status is a bodiless response
func Status(code int) *transport.Response {
	return &transport.Response{StatusCode: code, Header: http.Header{}}
}

// Body is a 200 response with the given body
func Body(body string) *transport.Response {
	return &transport.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(body)}
}

// Reply always answers with res
func Reply(res *transport.Response) HandlerFunc {
	return func(*transport.Request) (*transport.Response, error) {
		return res, nil
	}
}

// OK always answers 200 with body
func OK(body string) HandlerFunc {
	return Reply(Body(body))
}

// Challenge answers 401 with the given WWW-Authenticate value
func Challenge(header string) *transport.Response {
	res := Status(http.StatusUnauthorized)
	if header != "" {
		res.Header.Set("WWW-Authenticate", header)
	}
	return res
}

// Hang never answers: it returns once the request context is done, the
// way a camera that accepted the connection but stalls looks to a client
func Hang(ctx context.Context, _ *transport.Request) (*transport.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// Sequence answers with each handler in turn and repeats the last one
func Sequence(hs ...HandlerFunc) HandlerFunc {
	var mu sync.Mutex
	i := 0
	return func(req *transport.Request) (*transport.Response, error) {
		mu.Lock()
		h := hs[i]
		if i < len(hs)-1 {
			i++
		}
		mu.Unlock()
		return h(req)
	}
}

// RequireAuth answers 401 with challenge until the request carries an
// Authorization header starting with scheme, then delegates to next
func RequireAuth(scheme, challenge string, next HandlerFunc) HandlerFunc {
	return func(req *transport.Request) (*transport.Response, error) {
		if !strings.HasPrefix(req.Header.Get("Authorization"), scheme+" ") {
			return Challenge(challenge), nil
		}
		return next(req)
	}
}

// Package api exposes camera sessions over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/camera"
	"github.com/use-go/ptzctl/discovery"
	"github.com/use-go/ptzctl/identify"
	"github.com/use-go/ptzctl/stream"
	"github.com/use-go/ptzctl/transport"
)

// StatePublisher receives the state of a session after it changes
type StatePublisher interface {
	PublishState(host string, st camera.State)
}

// DiscoverFunc runs a discovery with the given timeout
type DiscoverFunc func(ctx context.Context, timeout time.Duration) ([]discovery.Camera, error)

// Options configures a Server
type Options struct {
	Identify identify.Options
	// Discover defaults to a multicast discovery.
	Discover DiscoverFunc
	// Prober checks stream candidates; defaults to RTSP DESCRIBE.
	Prober stream.Prober
	// States is optional.
	States StatePublisher
	Logger zerolog.Logger
}

// Server holds the sessions opened through the API
type Server struct {
	negotiator *camera.Negotiator
	doer       transport.Doer
	opts       Options
	log        zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*camera.Session

	engine *gin.Engine
}

func New(n *camera.Negotiator, d transport.Doer, opts Options) *Server {
	if opts.Discover == nil {
		log := opts.Logger
		opts.Discover = func(ctx context.Context, timeout time.Duration) ([]discovery.Camera, error) {
			return discovery.Discover(ctx, discovery.Options{Timeout: timeout, Logger: log})
		}
	}
	if opts.Prober == nil {
		opts.Prober = stream.RTSPProber{}
	}
	opts.Identify.Logger = opts.Logger

	s := &Server{
		negotiator: n,
		doer:       d,
		opts:       opts,
		log:        opts.Logger,
		sessions:   map[string]*camera.Session{},
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)

	r.POST("/sessions", s.createSession)
	r.GET("/sessions", s.listSessions)

	ses := r.Group("/sessions/:id", s.session)
	ses.GET("", s.getSession)
	ses.DELETE("", s.deleteSession)
	ses.POST("/move", s.move)
	ses.POST("/stop", s.stop)
	ses.POST("/absolute", s.absolute)
	ses.GET("/position", s.position)
	ses.POST("/home", s.goHome)
	ses.PUT("/home", s.setHome)
	ses.POST("/presets/:n", s.goToPreset)
	ses.PUT("/presets/:n", s.setPreset)
	ses.GET("/stream", s.streamURI)

	r.GET("/discover", s.discover)
	r.POST("/identify", s.identify)
	return r
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).Dur("latency", time.Since(start)).Msg("[api]")
}

// Run serves on addr until ctx is cancelled, then disconnects every session
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("[api] listen")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Annotate(err, "serve")
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdown)
	s.Close()
	return errors.Trace(err)
}

// Close disconnects and forgets every session
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ses := range s.sessions {
		ses.Disconnect()
		delete(s.sessions, id)
	}
}

func newID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", errors.Trace(err)
	}
	return id.String(), nil
}

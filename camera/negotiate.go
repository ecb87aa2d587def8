package camera

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/adapter"
	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/transport"
)

// Timeout bounds
const (
	DefaultProbeTimeout   = 4 * time.Second
	MinProbeTimeout       = 3 * time.Second
	MaxProbeTimeout       = 5 * time.Second
	DefaultCommandTimeout = 15 * time.Second
	MinCommandTimeout     = 10 * time.Second
	MaxCommandTimeout     = 30 * time.Second
)

// ClampProbeTimeout keeps exploratory timeouts short; zero means the default
func ClampProbeTimeout(d time.Duration) time.Duration {
	return clampDuration(d, DefaultProbeTimeout, MinProbeTimeout, MaxProbeTimeout)
}

// ClampCommandTimeout keeps command timeouts long enough for slow links;
// zero means the default
func ClampCommandTimeout(d time.Duration) time.Duration {
	return clampDuration(d, DefaultCommandTimeout, MinCommandTimeout, MaxCommandTimeout)
}

func clampDuration(d, def, min, max time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < min:
		return min
	case d > max:
		return max
	}
	return d
}

// Options configures a Negotiator
type Options struct {
	// ProbeTimeout bounds each negotiation request, clamped into [3s,5s].
	ProbeTimeout time.Duration
	// CommandTimeout bounds each command once connected, clamped into [10s,30s].
	CommandTimeout time.Duration
	// SkipUnreachablePorts drops every attempt on a port whose plain GET /
	// got no HTTP response. Off by default: the probe is diagnostic only.
	SkipUnreachablePorts bool
	// Adapter tunes the adapters; its Logger is replaced by Logger.
	Adapter  adapter.Options
	Observer Observer
	Logger   zerolog.Logger
}

// Negotiator finds the port, account and dialect a camera answers to.
// It holds no camera state and may serve any number of sessions.
type Negotiator struct {
	doer transport.Doer
	opts Options
}

func NewNegotiator(d transport.Doer, opts Options) *Negotiator {
	opts.ProbeTimeout = ClampProbeTimeout(opts.ProbeTimeout)
	opts.CommandTimeout = ClampCommandTimeout(opts.CommandTimeout)
	opts.Adapter.Logger = opts.Logger
	return &Negotiator{doer: d, opts: opts}
}

func (n *Negotiator) emit(e Event) {
	if n.opts.Observer == nil {
		return
	}
	e.Time = time.Now()
	n.opts.Observer.OnEvent(e)
}

// Connect runs the attempts of Plan(t) one at a time and returns a connected
// session on the first success. When every attempt fails the error is a
// *NegotiationFailure. Invalid targets fail before any I/O.
func (n *Negotiator) Connect(ctx context.Context, t Target) (*Session, error) {
	s := NewSession(n.opts.Logger)
	if err := n.ConnectSession(ctx, s, t); err != nil {
		return nil, err
	}
	return s, nil
}

// ConnectSession negotiates into an existing session, replacing whatever it
// was connected to. On failure the session is left disconnected.
func (n *Negotiator) ConnectSession(ctx context.Context, s *Session, t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.Disconnect()

	log := n.opts.Logger.With().Str("host", t.Host).Logger()
	failure := &NegotiationFailure{Host: t.Host}
	probed := map[int]transport.ProbeResult{}

	for _, at := range Plan(t) {
		if err := ctx.Err(); err != nil {
			return errors.Annotatef(err, "connect to %s", t.Host)
		}

		port := at.Endpoint.Port
		pr, ok := probed[port]
		if !ok {
			pr = transport.Probe(ctx, n.doer, at.Endpoint, n.opts.ProbeTimeout)
			probed[port] = pr
			log.Debug().Int("port", port).Bool("reachable", pr.Reachable).Int("status", pr.StatusCode).
				Str("server", pr.Server).Str("hint", pr.Hint).Msg("probe")
			n.emit(probeEvent(t.Host, pr))
		}
		if !pr.Reachable && n.opts.SkipUnreachablePorts {
			failure.add(at, errors.Annotatef(ptz.ErrUnreachable, "port %d skipped: %v", port, pr.Err))
			continue
		}

		auth := transport.NewAuth(at.Credentials)
		conn := transport.NewConn(n.doer, at.Endpoint, auth, n.opts.ProbeTimeout)
		a, err := adapter.New(at.Route, conn, n.opts.Adapter)
		if err != nil {
			return errors.Trace(err)
		}

		info, err := a.Probe(ctx)
		log.Debug().Err(err).Int("port", port).Str("user", at.Credentials.Username).
			Str("variant", at.Route.Variant.String()).Str("path", at.Route.Path).
			Str("auth", auth.Mode().String()).Str("status", attemptStatus(err)).Msg("attempt")
		n.emit(attemptEvent(t.Host, at, err))

		if err != nil {
			if errors.Is(err, ptz.ErrInvalidArgument) {
				return err
			}
			failure.add(at, err)
			continue
		}

		n.lock(s, at, conn, info)
		log.Info().Int("port", port).Str("user", at.Credentials.Username).
			Str("variant", at.Route.Variant.String()).Str("auth", auth.Mode().String()).Msg("connected")
		n.emit(Event{
			Stage:    StageConnected,
			Host:     t.Host,
			Port:     port,
			Username: at.Credentials.Username,
			Variant:  at.Route.Variant,
			Protocol: at.Route.Variant.String(),
			Path:     at.Route.Path,
			Message:  "connected to " + at.Endpoint.String() + " as " + at.Route.Variant.String() + " (" + auth.Mode().String() + " auth)",
		})
		return nil
	}

	failure.classify()
	log.Warn().Int("attempts", len(failure.Attempts)).Str("classification", failure.Classification.String()).Msg("negotiation failed")
	n.emit(Event{Stage: StageFailed, Host: t.Host, Error: failure.Error(), Message: failure.Error()})
	return failure
}

// attemptStatus names the outcome of an attempt by its error kind
func attemptStatus(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := ptz.Kind(err); kind != nil {
		return kind.Error()
	}
	return "error"
}

// lock freezes the winning attempt into the session. The command connection
// shares the negotiated auth state and only differs in its timeout.
func (n *Negotiator) lock(s *Session, at Attempt, probeConn *transport.Conn, info ptz.DeviceInfo) {
	conn := probeConn.WithTimeout(n.opts.CommandTimeout)
	a, _ := adapter.New(at.Route, conn, n.opts.Adapter)
	s.establish(at.Endpoint, at.Credentials, at.Route.Variant, info, conn, a)
}

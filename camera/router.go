package camera

import (
	"context"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/adapter"
	"github.com/use-go/ptzctl/ptz"
)

// The router methods forward to the adapter matched during negotiation.
// Calls are not queued: concurrent moves and stops race to the camera and
// the last one to land wins there.

func (s *Session) route(op string) (adapter.Adapter, zerolog.Logger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected || s.adapter == nil {
		return nil, s.log, errors.Annotatef(ptz.ErrNotConnected, "%s", op)
	}
	return s.adapter, s.log, nil
}

func done(log zerolog.Logger, op string, err error) error {
	if err != nil {
		log.Debug().Err(err).Str("op", op).Msg("command failed")
		return err
	}
	log.Debug().Str("op", op).Msg("command sent")
	return nil
}

func (s *Session) ContinuousMove(ctx context.Context, v ptz.Vector) error {
	a, log, err := s.route("continuous move")
	if err != nil {
		return err
	}
	return done(log.With().Str("velocity", v.String()).Logger(), "continuous move", a.ContinuousMove(ctx, v))
}

func (s *Session) Stop(ctx context.Context) error {
	a, log, err := s.route("stop")
	if err != nil {
		return err
	}
	return done(log, "stop", a.Stop(ctx))
}

func (s *Session) AbsoluteMove(ctx context.Context, v ptz.Vector) error {
	a, log, err := s.route("absolute move")
	if err != nil {
		return err
	}
	return done(log.With().Str("position", v.String()).Logger(), "absolute move", a.AbsoluteMove(ctx, v))
}

func (s *Session) GetPosition(ctx context.Context) (ptz.Vector, error) {
	a, log, err := s.route("get position")
	if err != nil {
		return ptz.Vector{}, err
	}
	v, err := a.GetPosition(ctx)
	return v, done(log, "get position", err)
}

func (s *Session) GoHome(ctx context.Context) error {
	a, log, err := s.route("go home")
	if err != nil {
		return err
	}
	return done(log, "go home", a.GoHome(ctx))
}

func (s *Session) SetHome(ctx context.Context) error {
	a, log, err := s.route("set home")
	if err != nil {
		return err
	}
	return done(log, "set home", a.SetHome(ctx))
}

func (s *Session) GoToPreset(ctx context.Context, n int) error {
	if n < 0 {
		return ptz.Invalidf("preset %d", n)
	}
	a, log, err := s.route("go to preset")
	if err != nil {
		return err
	}
	return done(log.With().Int("preset", n).Logger(), "go to preset", a.GoToPreset(ctx, n))
}

func (s *Session) SetPreset(ctx context.Context, n int) error {
	if n < 0 {
		return ptz.Invalidf("preset %d", n)
	}
	a, log, err := s.route("set preset")
	if err != nil {
		return err
	}
	return done(log.With().Int("preset", n).Logger(), "set preset", a.SetPreset(ctx, n))
}

// StreamURI returns the RTSP URI of the main stream
func (s *Session) StreamURI(ctx context.Context) (string, error) {
	a, log, err := s.route("stream uri")
	if err != nil {
		return "", err
	}
	uri, err := a.GetStreamURI(ctx)
	return uri, done(log, "stream uri", err)
}

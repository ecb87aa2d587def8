package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/use-go/ptzctl/camera"
	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/stream"
)

func newConnectCmd(a *app) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Negotiate with a camera and report what it speaks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			ses, err := a.connect(ctx, true)
			if err != nil {
				return err
			}
			defer ses.Disconnect()

			st := ses.State()
			if save {
				if err := a.remember(st, ses.StreamURI); err != nil {
					a.log.Warn().Err(err).Msg("save settings")
				}
			}
			return a.print(st, fmt.Sprintf("connected to %s as %s, %s auth, user %q (%s)",
				st.Endpoint, st.Protocol, st.AuthMode, st.Username, st.Device.DisplayName()))
		},
	}
	cmd.Flags().BoolVar(&save, "save", true, "write the working connection back to the settings file")
	return cmd
}

// remember writes the negotiated connection to the settings file
func (a *app) remember(st camera.State, streamURI func(ctx context.Context) (string, error)) error {
	s := a.settings
	s.Host = st.Endpoint.Host
	s.Port = st.Endpoint.Port
	s.Username = st.Credentials.Username
	s.Password = st.Credentials.Password

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CommandTimeout)
	defer cancel()
	if uri, err := streamURI(ctx); err == nil {
		s.StreamURL = uri
	} else {
		a.log.Debug().Err(err).Msg("stream uri")
	}

	if err := a.store.Save(s); err != nil {
		return err
	}
	a.settings = s
	return nil
}

// withSession connects, runs fn and disconnects
func (a *app) withSession(fn func(ctx context.Context, ses *camera.Session) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	ses, err := a.connect(ctx, false)
	if err != nil {
		return err
	}
	defer ses.Disconnect()
	return fn(ctx, ses)
}

func vectorFlags(cmd *cobra.Command, v *ptz.Vector) {
	cmd.Flags().Float64Var(&v.Pan, "pan", 0, "pan, -1 (left) to 1 (right)")
	cmd.Flags().Float64Var(&v.Tilt, "tilt", 0, "tilt, -1 (down) to 1 (up)")
	cmd.Flags().Float64Var(&v.Zoom, "zoom", 0, "zoom")
}

func newMoveCmd(a *app) *cobra.Command {
	var (
		v        ptz.Vector
		duration time.Duration
		scale    bool
	)
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move continuously, then stop",
		Example: `  ptzctl move --pan 1 --for 500ms
  ptzctl move --zoom -1 --for 0   # keep zooming out until 'ptzctl stop'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if scale {
				v.Pan *= a.settings.PanTiltSpeed
				v.Tilt *= a.settings.PanTiltSpeed
				v.Zoom *= a.settings.ZoomSpeed
			}
			return a.withSession(func(ctx context.Context, ses *camera.Session) error {
				if err := ses.ContinuousMove(ctx, v); err != nil {
					return err
				}
				if duration <= 0 {
					return a.print(v, "moving "+v.String())
				}

				select {
				case <-time.After(duration):
				case <-ctx.Done():
				}
				// the stop must land even after an interrupt
				stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.CommandTimeout)
				defer cancel()
				if err := ses.Stop(stopCtx); err != nil {
					return err
				}
				return a.print(v, fmt.Sprintf("moved %s for %s", v, duration))
			})
		},
	}
	vectorFlags(cmd, &v)
	cmd.Flags().DurationVar(&duration, "for", 500*time.Millisecond, "how long to move; 0 leaves the camera moving")
	cmd.Flags().BoolVar(&scale, "scale", false, "multiply by the speeds in the settings file")
	return cmd
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop every movement",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(ctx context.Context, ses *camera.Session) error {
				if err := ses.Stop(ctx); err != nil {
					return err
				}
				return a.print(struct{}{}, "stopped")
			})
		},
	}
}

func newAbsoluteCmd(a *app) *cobra.Command {
	var v ptz.Vector
	cmd := &cobra.Command{
		Use:   "absolute",
		Short: "Move to an absolute position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(ctx context.Context, ses *camera.Session) error {
				if err := ses.AbsoluteMove(ctx, v); err != nil {
					return err
				}
				return a.print(v, "moving to "+v.ClampPosition().String())
			})
		},
	}
	vectorFlags(cmd, &v)
	return cmd
}

func newPositionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "position",
		Short: "Print the current position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(ctx context.Context, ses *camera.Session) error {
				v, err := ses.GetPosition(ctx)
				if err != nil {
					return err
				}
				return a.print(v, v.String())
			})
		},
	}
}

func newHomeCmd(a *app) *cobra.Command {
	var set bool
	cmd := &cobra.Command{
		Use:   "home",
		Short: "Go to the home position, or store the current one with --set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(ctx context.Context, ses *camera.Session) error {
				if set {
					if err := ses.SetHome(ctx); err != nil {
						return err
					}
					return a.print(struct{}{}, "home position set")
				}
				if err := ses.GoHome(ctx); err != nil {
					return err
				}
				return a.print(struct{}{}, "going home")
			})
		},
	}
	cmd.Flags().BoolVar(&set, "set", false, "store the current position as home")
	return cmd
}

func newPresetCmd(a *app) *cobra.Command {
	var set bool
	cmd := &cobra.Command{
		Use:   "preset N",
		Short: "Recall preset N, or store the current position as N with --set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return ptz.Invalidf("preset %q is not a number", args[0])
			}
			return a.withSession(func(ctx context.Context, ses *camera.Session) error {
				if set {
					if err := ses.SetPreset(ctx, n); err != nil {
						return err
					}
					return a.print(map[string]int{"preset": n}, fmt.Sprintf("preset %d stored", n))
				}
				if err := ses.GoToPreset(ctx, n); err != nil {
					return err
				}
				return a.print(map[string]int{"preset": n}, fmt.Sprintf("going to preset %d", n))
			})
		},
	}
	cmd.Flags().BoolVar(&set, "set", false, "store instead of recall")
	return cmd
}

func newStreamCmd(a *app) *cobra.Command {
	var (
		detect bool
		show   bool
	)
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Print the RTSP URL of the main stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(ctx context.Context, ses *camera.Session) error {
				var (
					uri string
					err error
				)
				if detect {
					st := ses.State()
					uri, err = stream.Detect(ctx, stream.RTSPProber{Timeout: a.cfg.ProbeTimeout}, st.Credentials, st.Endpoint.Host, a.log)
				} else {
					uri, err = ses.StreamURI(ctx)
				}
				if err != nil {
					return errors.Annotate(err, "stream")
				}

				a.settings.StreamURL = uri
				if err := a.store.Save(a.settings); err != nil {
					a.log.Warn().Err(err).Msg("save settings")
				}
				text := uri
				if !show {
					text = stream.Redact(uri)
				}
				return a.print(map[string]string{"uri": uri}, text)
			})
		},
	}
	cmd.Flags().BoolVar(&detect, "detect", false, "probe the common RTSP paths with DESCRIBE instead of asking the camera")
	cmd.Flags().BoolVar(&show, "show-password", false, "print the password in the URL")
	return cmd
}

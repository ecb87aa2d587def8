package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/use-go/ptzctl/adapter"
	"github.com/use-go/ptzctl/camera"
	"github.com/use-go/ptzctl/internal/config"
	"github.com/use-go/ptzctl/internal/logger"
	"github.com/use-go/ptzctl/internal/notify"
	"github.com/use-go/ptzctl/transport"
)

// app carries what every command needs once the flags are parsed
type app struct {
	cfgFile    string
	envFile    string
	jsonOutput bool
	logLevel   string

	// connection flags; empty ones fall back to the settings file
	host     string
	port     int
	user     string
	password string
	altUser  string

	out      io.Writer
	cfg      config.Config
	store    *config.Store
	settings config.Settings
	log      zerolog.Logger
	doer     transport.Doer
	mqtt     *notify.Client
	notifier *notify.Notifier
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}

	root := &cobra.Command{
		Use:   "ptzctl",
		Short: "Control PTZ cameras over ONVIF, Hikvision ISAPI, Dahua and HiSilicon CGI",
		Long: `ptzctl finds the port, account and protocol a PTZ camera answers to and
sends it pan, tilt, zoom, home and preset commands.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "settings file (default is $HOME/"+config.FileName+")")
	pf.StringVar(&a.envFile, "env", ".env", "environment file")
	pf.BoolVar(&a.jsonOutput, "json", false, "output results as JSON")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (overrides PTZCTL_LOG_LEVEL)")
	pf.StringVar(&a.host, "host", "", "camera host")
	pf.IntVar(&a.port, "port", 0, "camera HTTP port")
	pf.StringVarP(&a.user, "user", "u", "", "username")
	pf.StringVarP(&a.password, "password", "p", "", "password")
	pf.StringVar(&a.altUser, "alt-user", "", "extra ONVIF username to try")

	root.AddCommand(
		newConnectCmd(a),
		newMoveCmd(a),
		newStopCmd(a),
		newAbsoluteCmd(a),
		newPositionCmd(a),
		newHomeCmd(a),
		newPresetCmd(a),
		newStreamCmd(a),
		newDiscoverCmd(a),
		newIdentifyCmd(a),
		newServeCmd(a),
		newSettingsCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.LoadRuntime(a.envFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	a.log = logger.New(logger.Options{Level: level, Format: cfg.LogFormat})

	if a.store, err = config.NewStore(a.cfgFile); err != nil {
		return err
	}
	if a.settings, err = a.store.Load(); err != nil {
		return err
	}

	a.doer = transport.NewClient(transport.Options{
		InsecureTLS: cfg.InsecureTLS,
		Timeout:     cfg.CommandTimeout,
		Logger:      a.log,
	})

	if cfg.MQTT.Enabled() {
		cli, err := notify.Dial(cfg.MQTT)
		if err != nil {
			a.log.Warn().Err(err).Msg("[mqtt] status publishing disabled")
		} else {
			a.mqtt = cli
			a.notifier = notify.New(cli, cfg.MQTT.Topic, a.log)
		}
	}
	return nil
}

func (a *app) close() {
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
}

// target merges the connection flags over the settings file
func (a *app) target() camera.Target {
	t := camera.Target{
		Host:     a.settings.Host,
		Port:     a.settings.Port,
		Username: a.settings.Username,
		Password: a.settings.Password,
		AltUser:  a.cfg.AltUser,
	}
	if a.host != "" {
		t.Host = a.host
	}
	if a.port != 0 {
		t.Port = a.port
	}
	if a.user != "" {
		t.Username = a.user
	}
	if a.password != "" {
		t.Password = a.password
	}
	if a.altUser != "" {
		t.AltUser = a.altUser
	}
	return t
}

func (a *app) negotiator(obs camera.Observer) *camera.Negotiator {
	observers := camera.Observers{obs}
	if a.notifier != nil {
		observers = append(observers, a.notifier)
	}
	return camera.NewNegotiator(a.doer, camera.Options{
		ProbeTimeout:         a.cfg.ProbeTimeout,
		CommandTimeout:       a.cfg.CommandTimeout,
		SkipUnreachablePorts: a.cfg.SkipUnreachablePorts,
		Adapter:              adapter.Options{WSSecurity: a.cfg.WSSecurity},
		Observer:             observers,
		Logger:               a.log,
	})
}

// connect negotiates with the target, printing progress unless the output
// is JSON. A negotiation failure is printed in full.
func (a *app) connect(ctx context.Context, verbose bool) (*camera.Session, error) {
	var obs camera.Observer
	if verbose && !a.jsonOutput {
		obs = camera.ObserverFunc(func(e camera.Event) {
			fmt.Fprintln(a.out, e.Message)
		})
	}

	ses, err := a.negotiator(obs).Connect(ctx, a.target())
	if err != nil {
		if f, ok := camera.AsNegotiationFailure(err); ok && !a.jsonOutput {
			fmt.Fprint(a.out, f.Report())
		}
		return nil, err
	}
	if a.notifier != nil {
		a.notifier.PublishState(ses.Endpoint().Host, ses.State())
	}
	return ses, nil
}

// print writes v as indented JSON, or text otherwise
func (a *app) print(v interface{}, text string) error {
	if a.jsonOutput {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return errors.Trace(enc.Encode(v))
	}
	_, err := fmt.Fprintln(a.out, text)
	return errors.Trace(err)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

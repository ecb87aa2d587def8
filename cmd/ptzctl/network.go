package main

import (
	"fmt"
	"net"
	"text/tabwriter"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/use-go/ptzctl/camera"
	"github.com/use-go/ptzctl/discovery"
	"github.com/use-go/ptzctl/identify"
	"github.com/use-go/ptzctl/internal/api"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var (
		timeout time.Duration
		iface   string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find ONVIF cameras on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			opts := discovery.Options{Timeout: timeout, Logger: a.log}
			if iface != "" {
				ifi, err := net.InterfaceByName(iface)
				if err != nil {
					return errors.Annotatef(err, "interface %s", iface)
				}
				opts.Interface = ifi
			}

			cams, err := discovery.Discover(ctx, opts)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.print(cams, "")
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tPORT\tMANUFACTURER\tMODEL\tNAME\tSERVICE")
			for _, c := range cams {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", c.IPAddress, c.Port, c.Manufacturer, c.Model, c.Name, c.ServiceURL)
			}
			if err := w.Flush(); err != nil {
				return errors.Trace(err)
			}
			fmt.Fprintf(a.out, "%d camera(s) found\n", len(cams))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultTimeout, "how long to wait for answers")
	cmd.Flags().StringVar(&iface, "interface", "", "network interface to probe on")
	return cmd
}

func newIdentifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "identify",
		Short: "Ask the camera who it is in every protocol at once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			t := a.target()
			res, err := identify.Identify(ctx, a.doer, identify.Target{
				Host: t.Host, Port: t.Port, Username: t.Username, Password: t.Password,
			}, identify.Options{Timeout: a.cfg.ProbeTimeout, Logger: a.log})
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.print(res, "")
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "PROTOCOL\tPATH\tRESULT")
			for _, p := range res.Probes {
				result := "ok"
				if !p.OK {
					result = p.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Protocol, p.Path, result)
			}
			if err := w.Flush(); err != nil {
				return errors.Trace(err)
			}
			fmt.Fprintf(a.out, "device: %s\nrecommended: %s\n", res.Info.DisplayName(), res.Recommended)
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if listen == "" {
				listen = a.cfg.Listen
			}
			opts := api.Options{
				Identify: identify.Options{Timeout: a.cfg.ProbeTimeout},
				Logger:   a.log,
			}
			if a.notifier != nil {
				opts.States = a.notifier
			}
			srv := api.New(a.negotiator(nil), a.doer, opts)
			return srv.Run(ctx, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default PTZCTL_LISTEN or :8088)")
	return cmd
}

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or save the connection settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.settings
			if a.jsonOutput {
				return a.print(s, "")
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
			fmt.Fprintf(w, "file\t%s\n", a.store.Path())
			fmt.Fprintf(w, "host\t%s\n", s.Host)
			fmt.Fprintf(w, "port\t%d\n", s.Port)
			fmt.Fprintf(w, "username\t%s\n", s.Username)
			fmt.Fprintf(w, "password\t%s\n", mask(s.Password))
			fmt.Fprintf(w, "stream_url\t%s\n", s.StreamURL)
			fmt.Fprintf(w, "pan_tilt_speed\t%g\n", s.PanTiltSpeed)
			fmt.Fprintf(w, "zoom_speed\t%g\n", s.ZoomSpeed)
			return errors.Trace(w.Flush())
		},
	}

	var panTilt, zoom float64
	save := &cobra.Command{
		Use:   "save",
		Short: "Write the connection flags to the settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := a.target()
			if err := (camera.Target{Host: t.Host, Port: t.Port}).Validate(); err != nil {
				return err
			}
			s := a.settings
			s.Host, s.Port, s.Username, s.Password = t.Host, t.Port, t.Username, t.Password
			if cmd.Flags().Changed("pan-tilt-speed") {
				s.PanTiltSpeed = panTilt
			}
			if cmd.Flags().Changed("zoom-speed") {
				s.ZoomSpeed = zoom
			}
			if err := a.store.Save(s); err != nil {
				return err
			}
			a.settings = s
			return a.print(s, "saved "+a.store.Path())
		},
	}
	save.Flags().Float64Var(&panTilt, "pan-tilt-speed", 0, "pan/tilt speed, 0 to 1")
	save.Flags().Float64Var(&zoom, "zoom-speed", 0, "zoom speed, 0 to 1")

	cmd.AddCommand(show, save)
	return cmd
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// Package identify asks a camera who it is in every dialect at once.
// Unlike negotiation nothing is locked in: the result is advisory.
package identify

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/use-go/ptzctl/adapter"
	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/transport"
)

// DefaultTimeout bounds each probe
const DefaultTimeout = 5 * time.Second

// Unknown is the recommendation when no dialect answered
const Unknown = "unknown"

// Target is the camera to identify
type Target struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Options configures Identify
type Options struct {
	Timeout time.Duration
	Adapter adapter.Options
	Logger  zerolog.Logger
}

// Probe is the outcome of one dialect's device-info query
type Probe struct {
	Variant  ptz.Variant    `json:"-"`
	Protocol string         `json:"protocol"`
	Path     string         `json:"path"`
	OK       bool           `json:"ok"`
	Info     ptz.DeviceInfo `json:"info"`
	Error    string         `json:"error,omitempty"`
}

// Result merges every successful probe
type Result struct {
	Endpoint ptz.Endpoint   `json:"endpoint"`
	Info     ptz.DeviceInfo `json:"info"`
	Probes   []Probe        `json:"probes"`
	// Recommended names the best dialect that answered, or Unknown.
	Recommended        string      `json:"recommended"`
	RecommendedVariant ptz.Variant `json:"-"`
}

// priority ranks dialects for the recommendation, lowest first
var priority = map[ptz.Protocol]int{
	ptz.ProtocolONVIF:     0,
	ptz.ProtocolHikvision: 1,
	ptz.ProtocolHiSilicon: 2,
	ptz.ProtocolDahua:     3,
}

// probeGroups lists what each goroutine tries. ONVIF tries its routes in
// negotiation order and stops at the first answer.
func probeGroups() [][]adapter.Route {
	var onvif []adapter.Route
	var groups [][]adapter.Route
	for _, r := range adapter.Routes() {
		if r.Variant.Protocol == ptz.ProtocolONVIF {
			onvif = append(onvif, r)
			continue
		}
		groups = append(groups, []adapter.Route{r})
	}
	return append([][]adapter.Route{onvif}, groups...)
}

// Identify probes every dialect concurrently, each with its own auth state,
// and merges whatever answered. A camera that answers nothing is not an
// error: the result says Unknown.
func Identify(ctx context.Context, d transport.Doer, t Target, opts Options) (Result, error) {
	if strings.TrimSpace(t.Host) == "" {
		return Result{}, ptz.Invalidf("empty host")
	}
	if t.Port < 0 || t.Port > 65535 {
		return Result{}, ptz.Invalidf("port %d out of range", t.Port)
	}
	if t.Port == 0 {
		t.Port = 80
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	opts.Adapter.Logger = opts.Logger

	ep := ptz.NewEndpoint(t.Host, t.Port)
	creds := ptz.Credentials{Username: t.Username, Password: t.Password}
	groups := probeGroups()

	var mu sync.Mutex
	probes := make([]Probe, 0, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	for _, routes := range groups {
		routes := routes
		g.Go(func() error {
			p := probeGroup(gctx, d, ep, creds, routes, opts)
			opts.Logger.Debug().Str("protocol", p.Protocol).Bool("ok", p.OK).Str("error", p.Error).Msg("identify probe")
			mu.Lock()
			probes = append(probes, p)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, errors.Trace(err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, errors.Annotatef(err, "identify %s", ep)
	}

	return merge(ep, probes), nil
}

func probeGroup(ctx context.Context, d transport.Doer, ep ptz.Endpoint, creds ptz.Credentials, routes []adapter.Route, opts Options) Probe {
	var p Probe
	for _, route := range routes {
		conn := transport.NewConn(d, ep, transport.NewAuth(creds), opts.Timeout)
		p = Probe{Variant: route.Variant, Protocol: route.Variant.Protocol.String(), Path: route.Path}

		a, err := adapter.New(route, conn, opts.Adapter)
		if err == nil {
			p.Info, err = a.Probe(ctx)
		}
		if err == nil {
			p.OK = true
			p.Variant = a.Variant()
			return p
		}
		p.Error = err.Error()
		if ctx.Err() != nil {
			break
		}
	}
	return p
}

// merge orders probes by priority, fills the device info from the
// successful ones in that order, and picks the recommendation
func merge(ep ptz.Endpoint, probes []Probe) Result {
	sort.SliceStable(probes, func(i, j int) bool {
		return priority[probes[i].Variant.Protocol] < priority[probes[j].Variant.Protocol]
	})

	res := Result{Endpoint: ep, Probes: probes, Recommended: Unknown}
	for _, p := range probes {
		if !p.OK {
			continue
		}
		if res.RecommendedVariant.IsZero() {
			res.RecommendedVariant = p.Variant
			res.Recommended = p.Variant.String()
		}
		res.Info.Merge(p.Info)
	}
	return res
}

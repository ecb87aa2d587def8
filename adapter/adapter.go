// Package adapter formats PTZ commands for each camera dialect and judges
// the replies. Every adapter talks through a transport.Conn, so a closed
// session fails before any I/O.
package adapter

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/transport"
)

// Adapter is the capability set shared by every dialect. Expected failures
// come back as errors of one ptz kind; a capability the dialect lacks is
// ptz.ErrUnsupported and costs no request.
type Adapter interface {
	Variant() ptz.Variant
	// Probe checks that the camera speaks this dialect and returns what it
	// says about itself.
	Probe(ctx context.Context) (ptz.DeviceInfo, error)
	ContinuousMove(ctx context.Context, v ptz.Vector) error
	Stop(ctx context.Context) error
	AbsoluteMove(ctx context.Context, v ptz.Vector) error
	GetPosition(ctx context.Context) (ptz.Vector, error)
	GoHome(ctx context.Context) error
	SetHome(ctx context.Context) error
	GoToPreset(ctx context.Context, n int) error
	SetPreset(ctx context.Context, n int) error
	GetStreamURI(ctx context.Context) (string, error)
}

// Options tunes adapter behaviour
type Options struct {
	// WSSecurity adds a UsernameToken header to ONVIF requests.
	WSSecurity bool
	Logger     zerolog.Logger
}

// Route is one probe target: a dialect and the path its probe is sent to
type Route struct {
	Variant ptz.Variant
	Path    string
}

func (r Route) String() string {
	return r.Variant.String() + " " + r.Path
}

// Probe paths
const (
	HikvisionProbePath = "/ISAPI/System/deviceInfo"
	DahuaProbePath     = "/cgi-bin/magicBox.cgi?action=getSystemInfo"
	HiSiliconProbePath = hisiliconPrefix + "/param.cgi?cmd=getserverinfo"
	GenericProbePath   = "/"
)

// ONVIFPaths are the device service paths seen in the field, most common first
var ONVIFPaths = []string{
	"/onvif/device_service",
	"/onvif/Device",
	"/onvif/services",
	"/device_service",
}

// Routes returns every vendor probe target in the order they are tried.
// Each ONVIF path is tried at SOAP 1.2 before SOAP 1.1. The generic root is
// not included; see GenericRoute.
func Routes() []Route {
	routes := make([]Route, 0, len(ONVIFPaths)*2+3)
	for _, path := range ONVIFPaths {
		routes = append(routes,
			Route{Variant: ptz.Onvif(ptz.SOAP12), Path: path},
			Route{Variant: ptz.Onvif(ptz.SOAP11), Path: path},
		)
	}
	return append(routes,
		Route{Variant: ptz.HikvisionISAPI(), Path: HikvisionProbePath},
		Route{Variant: ptz.DahuaCGI(), Path: DahuaProbePath},
		Route{Variant: ptz.HiSiliconCGI(), Path: HiSiliconProbePath},
	)
}

// GenericRoute is the catch-all probe: any 2xx on the web root
func GenericRoute() Route {
	return Route{Variant: ptz.GenericCGI(), Path: GenericProbePath}
}

// New returns the adapter for route bound to conn
func New(route Route, conn *transport.Conn, opts Options) (Adapter, error) {
	switch route.Variant.Protocol {
	case ptz.ProtocolONVIF:
		return NewONVIF(conn, route.Variant.SOAP, route.Path, opts), nil
	case ptz.ProtocolHikvision:
		return NewHikvision(conn, opts), nil
	case ptz.ProtocolDahua:
		return NewDahua(conn, opts), nil
	case ptz.ProtocolHiSilicon:
		return NewHiSilicon(conn, opts), nil
	case ptz.ProtocolGeneric:
		return NewGeneric(conn, opts), nil
	}
	return nil, ptz.Invalidf("no adapter for %s", route.Variant)
}

// DeadZone is the axis magnitude below which CGI dialects send nothing
const DeadZone = 0.05

func active(x float64) bool {
	return math.Abs(x) >= DeadZone
}

// speedStep scales a magnitude in [0,1] into the integer range [1,max]
func speedStep(x float64, max int) int {
	s := int(math.Round(math.Abs(x) * float64(max)))
	if s < 1 {
		return 1
	}
	if s > max {
		return max
	}
	return s
}

func checkPreset(n int) error {
	if n < 0 {
		return ptz.Invalidf("preset %d", n)
	}
	return nil
}

package adapter

import (
	"context"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/stream"
	"github.com/use-go/ptzctl/transport"
)

const (
	hisiliconPrefix = "/web/cgi-bin/hi3510"
	genericPrefix   = "/cgi-bin/hi3510"
)

const hisiliconSpeedMax = 8

var varRx = regexp.MustCompile(`var\s+(\w+)\s*=\s*"?([^";\r\n]*)"?\s*;`)

// HiSilicon speaks the hi3510 ptzctrl.cgi. It has relative moves, stop and
// home only; absolute moves, position and presets are unsupported.
type HiSilicon struct {
	conn    *transport.Conn
	log     zerolog.Logger
	variant ptz.Variant
	prefix  string
}

func NewHiSilicon(conn *transport.Conn, opts Options) *HiSilicon {
	return &HiSilicon{conn: conn, log: opts.Logger, variant: ptz.HiSiliconCGI(), prefix: hisiliconPrefix}
}

// NewGeneric is the hi3510 command set rooted at /cgi-bin, used for cameras
// that only answered on the web root
func NewGeneric(conn *transport.Conn, opts Options) *HiSilicon {
	return &HiSilicon{conn: conn, log: opts.Logger, variant: ptz.GenericCGI(), prefix: genericPrefix}
}

func (a *HiSilicon) Variant() ptz.Variant {
	return a.variant
}

// Probe reads getserverinfo, a list of javascript var assignments. The
// generic variant only needs the web root to answer 2xx.
func (a *HiSilicon) Probe(ctx context.Context) (ptz.DeviceInfo, error) {
	if a.variant.Protocol == ptz.ProtocolGeneric {
		_, err := a.conn.Call(ctx, http.MethodGet, GenericProbePath, nil, nil)
		return ptz.DeviceInfo{}, err
	}

	res, err := a.conn.Call(ctx, http.MethodGet, HiSiliconProbePath, nil, nil)
	if err != nil {
		return ptz.DeviceInfo{}, err
	}

	vars := map[string]string{}
	for _, m := range varRx.FindAllSubmatch(res.Body, -1) {
		vars[string(m[1])] = string(m[2])
	}
	if len(vars) == 0 {
		return ptz.DeviceInfo{}, ptz.Mismatchf("GET %s: not a hi3510 server info document", HiSiliconProbePath)
	}
	return ptz.DeviceInfo{
		Manufacturer:    "HiSilicon",
		Model:           vars["model"],
		FirmwareVersion: vars["softVersion"],
		HardwareID:      vars["hardVersion"],
		Name:            vars["name"],
	}, nil
}

// ContinuousMove sends one request per axis at or above the dead zone. The
// speed is the largest axis magnitude scaled into 1..8.
func (a *HiSilicon) ContinuousMove(ctx context.Context, v ptz.Vector) error {
	v = v.Clamp(-1, 1)
	speed := speedStep(math.Max(math.Abs(v.Pan), math.Max(math.Abs(v.Tilt), math.Abs(v.Zoom))), hisiliconSpeedMax)

	var acts []string
	if active(v.Pan) {
		acts = append(acts, pick(v.Pan > 0, "right", "left"))
	}
	if active(v.Tilt) {
		acts = append(acts, pick(v.Tilt > 0, "up", "down"))
	}
	if active(v.Zoom) {
		acts = append(acts, pick(v.Zoom > 0, "zoomin", "zoomout"))
	}

	for _, act := range acts {
		if err := a.command(ctx, act, speed); err != nil {
			return err
		}
	}
	return nil
}

func (a *HiSilicon) Stop(ctx context.Context) error {
	return a.command(ctx, "stop", 0)
}

func (a *HiSilicon) AbsoluteMove(context.Context, ptz.Vector) error {
	return ptz.Unsupportedf("%s: absolute move", a.variant)
}

func (a *HiSilicon) GetPosition(context.Context) (ptz.Vector, error) {
	return ptz.Vector{}, ptz.Unsupportedf("%s: get position", a.variant)
}

func (a *HiSilicon) GoHome(ctx context.Context) error {
	return a.command(ctx, "home", 0)
}

func (a *HiSilicon) SetHome(context.Context) error {
	return ptz.Unsupportedf("%s: set home position", a.variant)
}

func (a *HiSilicon) GoToPreset(context.Context, int) error {
	return ptz.Unsupportedf("%s: presets", a.variant)
}

func (a *HiSilicon) SetPreset(context.Context, int) error {
	return ptz.Unsupportedf("%s: presets", a.variant)
}

func (a *HiSilicon) GetStreamURI(context.Context) (string, error) {
	return stream.URL(a.conn.Auth().Credentials(), a.conn.Endpoint().Host, stream.PathHiSilicon), nil
}

// command sends -act with speed; speed 0 leaves the parameter out
func (a *HiSilicon) command(ctx context.Context, act string, speed int) error {
	path := a.prefix + "/ptzctrl.cgi?-step=0&-act=" + act
	if speed > 0 {
		path += "&speed=" + strconv.Itoa(speed)
	}

	res, err := a.conn.Call(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if body := string(res.Body); strings.Contains(strings.ToLower(body), "[error]") {
		return ptz.Mismatchf("%s: %s", act, strings.TrimSpace(body))
	}
	return nil
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

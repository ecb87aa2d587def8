package adapter

import (
	"bufio"
	"bytes"
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/stream"
	"github.com/use-go/ptzctl/transport"
)

const dahuaPTZ = "/cgi-bin/ptz.cgi"

// dahuaSpeedMax is the top of the arg2 speed scale
const dahuaSpeedMax = 8

// Dahua PositionABS ranges: pan 0..360 degrees, tilt 0..90 degrees, zoom 1..128
const (
	dahuaPanMax  = 360
	dahuaTiltMax = 90
	dahuaZoomMin = 1
	dahuaZoomMax = 128
)

// Dahua speaks the direction-coded ptz.cgi. There is no combined vector
// command, so a move is one request per active axis.
type Dahua struct {
	conn *transport.Conn
	log  zerolog.Logger

	mu      sync.Mutex
	started []string
}

func NewDahua(conn *transport.Conn, opts Options) *Dahua {
	return &Dahua{conn: conn, log: opts.Logger}
}

func (a *Dahua) Variant() ptz.Variant {
	return ptz.DahuaCGI()
}

// Probe reads magicBox getSystemInfo, a key=value document
func (a *Dahua) Probe(ctx context.Context) (ptz.DeviceInfo, error) {
	res, err := a.conn.Call(ctx, http.MethodGet, DahuaProbePath, nil, nil)
	if err != nil {
		return ptz.DeviceInfo{}, err
	}

	kv := parseKeyValues(res.Body)
	if kv["deviceType"] == "" && kv["serialNumber"] == "" {
		return ptz.DeviceInfo{}, ptz.Mismatchf("GET %s: not a Dahua system info document", DahuaProbePath)
	}
	return ptz.DeviceInfo{
		Manufacturer:    "Dahua",
		Model:           kv["deviceType"],
		FirmwareVersion: kv["softwareVersion"],
		SerialNumber:    kv["serialNumber"],
		HardwareID:      kv["hardwareVersion"],
	}, nil
}

func dahuaCodes(v ptz.Vector) (codes []string, speeds []int) {
	add := func(code string, x float64) {
		codes = append(codes, code)
		speeds = append(speeds, speedStep(x, dahuaSpeedMax))
	}
	switch {
	case v.Pan >= DeadZone:
		add("Right", v.Pan)
	case v.Pan <= -DeadZone:
		add("Left", v.Pan)
	}
	switch {
	case v.Tilt >= DeadZone:
		add("Up", v.Tilt)
	case v.Tilt <= -DeadZone:
		add("Down", v.Tilt)
	}
	switch {
	case v.Zoom >= DeadZone:
		add("ZoomTele", v.Zoom)
	case v.Zoom <= -DeadZone:
		add("ZoomWide", v.Zoom)
	}
	return codes, speeds
}

// ContinuousMove starts one direction code per axis at or above the dead
// zone; a zero vector sends nothing
func (a *Dahua) ContinuousMove(ctx context.Context, v ptz.Vector) error {
	codes, speeds := dahuaCodes(v.Clamp(-1, 1))
	for i, code := range codes {
		if err := a.command(ctx, "start", code, 0, speeds[i], 0); err != nil {
			return err
		}
		a.track(code)
	}
	return nil
}

func (a *Dahua) track(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.started {
		if c == code {
			return
		}
	}
	a.started = append(a.started, code)
}

// Stop issues action=stop for every code started since the last stop. The
// camera ignores the code on stop, so Up is sent when none is known.
func (a *Dahua) Stop(ctx context.Context) error {
	a.mu.Lock()
	codes := a.started
	a.started = nil
	a.mu.Unlock()

	if len(codes) == 0 {
		codes = []string{"Up"}
	}
	for _, code := range codes {
		if err := a.command(ctx, "stop", code, 0, 0, 0); err != nil {
			return err
		}
	}
	return nil
}

func (a *Dahua) AbsoluteMove(ctx context.Context, v ptz.Vector) error {
	v = v.ClampPosition()
	pan := int(math.Round((v.Pan + 1) / 2 * dahuaPanMax))
	tilt := int(math.Round((v.Tilt + 1) / 2 * dahuaTiltMax))
	zoom := int(math.Round(dahuaZoomMin + v.Zoom*(dahuaZoomMax-dahuaZoomMin)))
	return a.command(ctx, "start", "PositionABS", pan, tilt, zoom)
}

// GetPosition reads status.Postion[0..2] from getStatus. The firmware
// spells it that way; Position is accepted too.
func (a *Dahua) GetPosition(ctx context.Context) (ptz.Vector, error) {
	res, err := a.conn.Call(ctx, http.MethodGet, dahuaPTZ+"?action=getStatus&channel=0", nil, nil)
	if err != nil {
		return ptz.Vector{}, err
	}

	kv := parseKeyValues(res.Body)
	axis := func(i int) (float64, bool) {
		for _, key := range []string{"status.Postion[", "status.Position["} {
			if s, ok := kv[key+strconv.Itoa(i)+"]"]; ok {
				f, err := strconv.ParseFloat(s, 64)
				return f, err == nil
			}
		}
		return 0, false
	}

	pan, okPan := axis(0)
	tilt, okTilt := axis(1)
	zoom, _ := axis(2)
	if !okPan || !okTilt {
		return ptz.Vector{}, ptz.Mismatchf("getStatus: no position in response")
	}
	return ptz.Vector{
		Pan:  pan/dahuaPanMax*2 - 1,
		Tilt: tilt/dahuaTiltMax*2 - 1,
		Zoom: (zoom - dahuaZoomMin) / (dahuaZoomMax - dahuaZoomMin),
	}.ClampPosition(), nil
}

func (a *Dahua) GoHome(context.Context) error {
	return ptz.Unsupportedf("%s: home position", a.Variant())
}

func (a *Dahua) SetHome(context.Context) error {
	return ptz.Unsupportedf("%s: set home position", a.Variant())
}

func (a *Dahua) GoToPreset(ctx context.Context, n int) error {
	if err := checkPreset(n); err != nil {
		return err
	}
	return a.command(ctx, "start", "GotoPreset", 0, n, 0)
}

func (a *Dahua) SetPreset(ctx context.Context, n int) error {
	if err := checkPreset(n); err != nil {
		return err
	}
	return a.command(ctx, "start", "SetPreset", 0, n, 0)
}

func (a *Dahua) GetStreamURI(context.Context) (string, error) {
	return stream.URL(a.conn.Auth().Credentials(), a.conn.Endpoint().Host, stream.PathDahua), nil
}

func (a *Dahua) command(ctx context.Context, action, code string, arg1, arg2, arg3 int) error {
	path := dahuaPTZ + "?action=" + action + "&channel=0&code=" + code +
		"&arg1=" + strconv.Itoa(arg1) + "&arg2=" + strconv.Itoa(arg2) + "&arg3=" + strconv.Itoa(arg3)

	res, err := a.conn.Call(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if body := strings.TrimSpace(string(res.Body)); body != "" && !strings.EqualFold(body, "OK") {
		return ptz.Mismatchf("%s %s: %s", action, code, body)
	}
	return nil
}

// parseKeyValues reads key=value lines
func parseKeyValues(b []byte) map[string]string {
	kv := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		kv[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return kv
}

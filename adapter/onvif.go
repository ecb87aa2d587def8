package adapter

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/transport"
)

// Profile tokens sent on the wire
const (
	PTZProfileToken    = "MainProfile"
	StreamProfileToken = "MainStream"
)

// ONVIF speaks SOAP to the device, PTZ and media services
type ONVIF struct {
	soap       soapClient
	devicePath string
	log        zerolog.Logger

	mu        sync.Mutex
	resolved  bool
	ptzPath   string
	mediaPath string
}

// NewONVIF binds an ONVIF adapter to the device service at devicePath
func NewONVIF(conn *transport.Conn, version ptz.SOAPVersion, devicePath string, opts Options) *ONVIF {
	return &ONVIF{
		soap:       soapClient{conn: conn, version: version, security: opts.WSSecurity},
		devicePath: devicePath,
		log:        opts.Logger,
	}
}

func (a *ONVIF) Variant() ptz.Variant {
	return ptz.Onvif(a.soap.version)
}

// Probe sends GetDeviceInformation to the device service
func (a *ONVIF) Probe(ctx context.Context) (ptz.DeviceInfo, error) {
	op := etree.NewElement("tds:GetDeviceInformation")
	res, err := a.soap.call(ctx, a.devicePath, nsDevice+"/GetDeviceInformation", op, "GetDeviceInformationResponse")
	if err != nil {
		return ptz.DeviceInfo{}, err
	}

	return ptz.DeviceInfo{
		Manufacturer:    childText(res, "Manufacturer"),
		Model:           childText(res, "Model"),
		FirmwareVersion: childText(res, "FirmwareVersion"),
		SerialNumber:    childText(res, "SerialNumber"),
		HardwareID:      childText(res, "HardwareId"),
	}, nil
}

// services resolves the PTZ and media service paths. GetCapabilities is
// asked first; when it fails the paths are derived from the device path.
// A definitive answer from the camera is kept for the session. A timeout or
// a cancelled context only affects this call, so the next one asks again.
// The lock is not held across the request.
func (a *ONVIF) services(ctx context.Context) (ptzPath, mediaPath string) {
	a.mu.Lock()
	if a.resolved {
		ptzPath, mediaPath = a.ptzPath, a.mediaPath
		a.mu.Unlock()
		return ptzPath, mediaPath
	}
	a.mu.Unlock()

	ptzPath = servicePath(a.devicePath, "ptz_service")
	mediaPath = servicePath(a.devicePath, "media_service")

	op := etree.NewElement("tds:GetCapabilities")
	op.CreateElement("tds:Category").SetText("All")
	res, err := a.soap.call(ctx, a.devicePath, nsDevice+"/GetCapabilities", op, "GetCapabilitiesResponse")
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ptz.ErrUnreachable) {
			a.log.Debug().Err(err).Msg("GetCapabilities did not answer, deriving service paths for this call")
			return ptzPath, mediaPath
		}
		a.log.Debug().Err(err).Msg("GetCapabilities failed, deriving service paths")
	} else {
		if p := xaddrPath(res, "PTZ"); p != "" {
			ptzPath = p
		}
		if p := xaddrPath(res, "Media"); p != "" {
			mediaPath = p
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.resolved {
		a.ptzPath, a.mediaPath, a.resolved = ptzPath, mediaPath, true
		a.log.Debug().Str("ptz", ptzPath).Str("media", mediaPath).Msg("ONVIF services resolved")
	}
	return a.ptzPath, a.mediaPath
}

// servicePath replaces device_service with service, keeping the device path
// when it does not name device_service
func servicePath(devicePath, service string) string {
	if strings.Contains(devicePath, "device_service") {
		return strings.Replace(devicePath, "device_service", service, 1)
	}
	return devicePath
}

// xaddrPath returns the path of Capabilities/<name>/XAddr. The host the
// camera reports is dropped: behind NAT it is often not the one we reach.
func xaddrPath(res *etree.Element, name string) string {
	el := res.FindElement(".//Capabilities/" + name + "/XAddr")
	if el == nil {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(el.Text()))
	if err != nil || u.Path == "" {
		return ""
	}
	return u.RequestURI()
}

func (a *ONVIF) ptzCall(ctx context.Context, op *etree.Element, name string) (*etree.Element, error) {
	path, _ := a.services(ctx)
	return a.soap.call(ctx, path, nsPTZ+"/"+name, op, name+"Response")
}

func ptzOp(name string) *etree.Element {
	op := etree.NewElement("tptz:" + name)
	op.CreateElement("tptz:ProfileToken").SetText(PTZProfileToken)
	return op
}

func vector(parent *etree.Element, v ptz.Vector) {
	pt := parent.CreateElement("tt:PanTilt")
	pt.CreateAttr("x", ftoa(v.Pan))
	pt.CreateAttr("y", ftoa(v.Tilt))
	parent.CreateElement("tt:Zoom").CreateAttr("x", ftoa(v.Zoom))
}

func (a *ONVIF) ContinuousMove(ctx context.Context, v ptz.Vector) error {
	op := ptzOp("ContinuousMove")
	vector(op.CreateElement("tptz:Velocity"), v.Clamp(-1, 1))
	_, err := a.ptzCall(ctx, op, "ContinuousMove")
	return err
}

func (a *ONVIF) Stop(ctx context.Context) error {
	op := ptzOp("Stop")
	op.CreateElement("tptz:PanTilt").SetText("true")
	op.CreateElement("tptz:Zoom").SetText("true")
	_, err := a.ptzCall(ctx, op, "Stop")
	return err
}

func (a *ONVIF) AbsoluteMove(ctx context.Context, v ptz.Vector) error {
	op := ptzOp("AbsoluteMove")
	vector(op.CreateElement("tptz:Position"), v.ClampPosition())
	_, err := a.ptzCall(ctx, op, "AbsoluteMove")
	return err
}

func (a *ONVIF) GetPosition(ctx context.Context) (ptz.Vector, error) {
	res, err := a.ptzCall(ctx, ptzOp("GetStatus"), "GetStatus")
	if err != nil {
		return ptz.Vector{}, err
	}

	pt := res.FindElement(".//Position/PanTilt")
	if pt == nil {
		return ptz.Vector{}, ptz.Mismatchf("GetStatus: no Position in response")
	}
	v := ptz.Vector{
		Pan:  atof(pt.SelectAttrValue("x", "0")),
		Tilt: atof(pt.SelectAttrValue("y", "0")),
	}
	if z := res.FindElement(".//Position/Zoom"); z != nil {
		v.Zoom = atof(z.SelectAttrValue("x", "0"))
	}
	return v, nil
}

func (a *ONVIF) GoHome(ctx context.Context) error {
	_, err := a.ptzCall(ctx, ptzOp("GotoHomePosition"), "GotoHomePosition")
	return err
}

func (a *ONVIF) SetHome(ctx context.Context) error {
	_, err := a.ptzCall(ctx, ptzOp("SetHomePosition"), "SetHomePosition")
	return err
}

func (a *ONVIF) GoToPreset(ctx context.Context, n int) error {
	if err := checkPreset(n); err != nil {
		return err
	}
	op := ptzOp("GotoPreset")
	op.CreateElement("tptz:PresetToken").SetText(strconv.Itoa(n))
	_, err := a.ptzCall(ctx, op, "GotoPreset")
	return err
}

func (a *ONVIF) SetPreset(ctx context.Context, n int) error {
	if err := checkPreset(n); err != nil {
		return err
	}
	op := ptzOp("SetPreset")
	op.CreateElement("tptz:PresetName").SetText("Preset" + strconv.Itoa(n))
	op.CreateElement("tptz:PresetToken").SetText(strconv.Itoa(n))
	_, err := a.ptzCall(ctx, op, "SetPreset")
	return err
}

// GetStreamURI asks the media service for the RTSP URI of the main stream
func (a *ONVIF) GetStreamURI(ctx context.Context) (string, error) {
	_, mediaPath := a.services(ctx)

	op := etree.NewElement("trt:GetStreamUri")
	setup := op.CreateElement("trt:StreamSetup")
	setup.CreateElement("tt:Stream").SetText("RTP-Unicast")
	setup.CreateElement("tt:Transport").CreateElement("tt:Protocol").SetText("RTSP")
	op.CreateElement("trt:ProfileToken").SetText(StreamProfileToken)

	res, err := a.soap.call(ctx, mediaPath, nsMedia+"/GetStreamUri", op, "GetStreamUriResponse")
	if err != nil {
		return "", err
	}

	uri := res.FindElement(".//MediaUri/Uri")
	if uri == nil || strings.TrimSpace(uri.Text()) == "" {
		return "", ptz.Mismatchf("GetStreamUri: no Uri in response")
	}
	return strings.TrimSpace(uri.Text()), nil
}

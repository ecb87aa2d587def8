package adapter

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/beevik/etree"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/stream"
	"github.com/use-go/ptzctl/transport"
)

const hikvisionPTZ = "/ISAPI/PTZCtrl/channels/1"

// Hikvision absolute coordinates: azimuth and elevation in tenths of a
// degree, zoom in tenths of magnification
const (
	hikAzimuthMax   = 3600
	hikElevationMax = 900
	hikZoomMin      = 10
	hikZoomMax      = 400
)

// Hikvision speaks ISAPI: XML bodies over REST-like paths
type Hikvision struct {
	conn *transport.Conn
	log  zerolog.Logger
}

func NewHikvision(conn *transport.Conn, opts Options) *Hikvision {
	return &Hikvision{conn: conn, log: opts.Logger}
}

func (a *Hikvision) Variant() ptz.Variant {
	return ptz.HikvisionISAPI()
}

// Probe reads /ISAPI/System/deviceInfo; the reply must be a DeviceInfo document
func (a *Hikvision) Probe(ctx context.Context) (ptz.DeviceInfo, error) {
	root, err := a.get(ctx, HikvisionProbePath, "DeviceInfo")
	if err != nil {
		return ptz.DeviceInfo{}, err
	}
	return ptz.DeviceInfo{
		Manufacturer:    "Hikvision",
		Model:           childText(root, "model"),
		FirmwareVersion: childText(root, "firmwareVersion"),
		SerialNumber:    childText(root, "serialNumber"),
		HardwareID:      childText(root, "macAddress"),
		Name:            childText(root, "deviceName"),
	}, nil
}

// ContinuousMove sends the vector scaled to [-100,100] per axis
func (a *Hikvision) ContinuousMove(ctx context.Context, v ptz.Vector) error {
	v = v.Clamp(-1, 1)
	return a.continuous(ctx, percent(v.Pan), percent(v.Tilt), percent(v.Zoom))
}

// Stop is a continuous move with every axis at zero
func (a *Hikvision) Stop(ctx context.Context) error {
	return a.continuous(ctx, 0, 0, 0)
}

func (a *Hikvision) continuous(ctx context.Context, pan, tilt, zoom int) error {
	doc := xmlDoc()
	data := doc.CreateElement("PTZData")
	data.CreateElement("pan").SetText(strconv.Itoa(pan))
	data.CreateElement("tilt").SetText(strconv.Itoa(tilt))
	data.CreateElement("zoom").SetText(strconv.Itoa(zoom))
	return a.put(ctx, hikvisionPTZ+"/continuous", doc)
}

func (a *Hikvision) AbsoluteMove(ctx context.Context, v ptz.Vector) error {
	v = v.ClampPosition()

	doc := xmlDoc()
	high := doc.CreateElement("PTZData").CreateElement("AbsoluteHigh")
	high.CreateElement("elevation").SetText(strconv.Itoa(int(math.Round(v.Tilt * hikElevationMax))))
	high.CreateElement("azimuth").SetText(strconv.Itoa(int(math.Round((v.Pan + 1) / 2 * hikAzimuthMax))))
	high.CreateElement("absoluteZoom").SetText(strconv.Itoa(int(math.Round(hikZoomMin + v.Zoom*(hikZoomMax-hikZoomMin)))))
	return a.put(ctx, hikvisionPTZ+"/absolute", doc)
}

func (a *Hikvision) GetPosition(ctx context.Context) (ptz.Vector, error) {
	root, err := a.get(ctx, hikvisionPTZ+"/status", "PTZStatus")
	if err != nil {
		return ptz.Vector{}, err
	}
	high := root.SelectElement("AbsoluteHigh")
	if high == nil {
		return ptz.Vector{}, ptz.Mismatchf("PTZStatus: no AbsoluteHigh")
	}

	azimuth := atof(childText(high, "azimuth"))
	elevation := atof(childText(high, "elevation"))
	zoom := atof(childText(high, "absoluteZoom"))

	return ptz.Vector{
		Pan:  azimuth/hikAzimuthMax*2 - 1,
		Tilt: elevation / hikElevationMax,
		Zoom: (zoom - hikZoomMin) / (hikZoomMax - hikZoomMin),
	}.ClampPosition(), nil
}

func (a *Hikvision) GoHome(ctx context.Context) error {
	return a.put(ctx, hikvisionPTZ+"/homeposition/goto", nil)
}

func (a *Hikvision) SetHome(ctx context.Context) error {
	return a.put(ctx, hikvisionPTZ+"/homeposition", nil)
}

func (a *Hikvision) GoToPreset(ctx context.Context, n int) error {
	if err := checkPreset(n); err != nil {
		return err
	}
	return a.put(ctx, hikvisionPTZ+"/presets/"+strconv.Itoa(n)+"/goto", nil)
}

func (a *Hikvision) SetPreset(ctx context.Context, n int) error {
	if err := checkPreset(n); err != nil {
		return err
	}
	doc := xmlDoc()
	preset := doc.CreateElement("PTZPreset")
	preset.CreateElement("id").SetText(strconv.Itoa(n))
	preset.CreateElement("presetName").SetText("Preset " + strconv.Itoa(n))
	return a.put(ctx, hikvisionPTZ+"/presets/"+strconv.Itoa(n), doc)
}

func (a *Hikvision) GetStreamURI(context.Context) (string, error) {
	return stream.URL(a.conn.Auth().Credentials(), a.conn.Endpoint().Host, stream.PathHikvision), nil
}

// get fetches path and returns its root element, which must be named root
func (a *Hikvision) get(ctx context.Context, path, root string) (*etree.Element, error) {
	res, err := a.conn.Call(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err = doc.ReadFromBytes(res.Body); err != nil || doc.Root() == nil {
		return nil, ptz.Mismatchf("GET %s: response is not XML", path)
	}
	if doc.Root().Tag != root {
		return nil, ptz.Mismatchf("GET %s: expected %s, got %s", path, root, doc.Root().Tag)
	}
	return doc.Root(), nil
}

// put sends doc, or an empty body when doc is nil. A ResponseStatus with a
// statusCode other than 1 is a failure even under HTTP 200.
func (a *Hikvision) put(ctx context.Context, path string, doc *etree.Document) error {
	var body []byte
	header := http.Header{}
	if doc != nil {
		b, err := doc.WriteToBytes()
		if err != nil {
			return errors.Trace(err)
		}
		body = b
		header.Set("Content-Type", "application/xml; charset=UTF-8")
	}

	res, err := a.conn.Call(ctx, http.MethodPut, path, header, body)
	if err != nil {
		return err
	}

	status := etree.NewDocument()
	if status.ReadFromBytes(res.Body) == nil && status.Root() != nil && status.Root().Tag == "ResponseStatus" {
		if code := childText(status.Root(), "statusCode"); code != "" && code != "1" {
			return ptz.Mismatchf("PUT %s: %s (%s)", path, childText(status.Root(), "statusString"), code)
		}
	}
	return nil
}

func xmlDoc() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return doc
}

func percent(x float64) int {
	return int(math.Round(x * 100))
}

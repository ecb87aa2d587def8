package identify_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-go/ptzctl/adapter"
	"github.com/use-go/ptzctl/identify"
	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/transport/transporttest"
)

const base = "http://10.0.0.5:80"

const onvifInfo = `<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope" xmlns:tds="http://www.onvif.org/ver10/device/wsdl">` +
	`<env:Body><tds:GetDeviceInformationResponse><tds:Manufacturer>ACME</tds:Manufacturer>` +
	`<tds:Model>PTZ-9000</tds:Model></tds:GetDeviceInformationResponse></env:Body></env:Envelope>`

const hikInfo = `<?xml version="1.0" encoding="UTF-8"?><DeviceInfo><deviceName>Lobby</deviceName>` +
	`<model>DS-2DE4425IW-DE</model><serialNumber>DS2020</serialNumber></DeviceInfo>`

const dahuaInfo = "deviceType=SD49225XA-HNR\r\nserialNumber=4L0123PAZ00001\r\n"

const hisiliconInfo = "var model=\"C6F0SgZ3N0P6L0\";\r\nvar name=\"IPCAM\";\r\n"

var target = identify.Target{Host: "10.0.0.5", Username: "admin", Password: "pass123"}

func run(t *testing.T, srv *transporttest.Server, tgt identify.Target) identify.Result {
	t.Helper()
	res, err := identify.Identify(context.Background(), srv, tgt, identify.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	return res
}

func TestIdentifyRecommendation(t *testing.T) {
	tests := []struct {
		name      string
		answering []string
		want      string
		variant   ptz.Variant
	}{
		{"onvif beats everything", []string{"onvif", "hikvision", "dahua", "hisilicon"}, "ONVIF (SOAP 1.2)", ptz.Onvif(ptz.SOAP12)},
		{"hikvision beats cgi", []string{"hikvision", "dahua", "hisilicon"}, "Hikvision ISAPI", ptz.HikvisionISAPI()},
		{"hisilicon beats dahua", []string{"dahua", "hisilicon"}, "HiSilicon CGI", ptz.HiSiliconCGI()},
		{"dahua alone", []string{"dahua"}, "Dahua CGI", ptz.DahuaCGI()},
		{"nothing answers", nil, identify.Unknown, ptz.Variant{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := transporttest.New()
			for _, dialect := range tt.answering {
				switch dialect {
				case "onvif":
					srv.Handle(http.MethodPost, base+"/onvif/device_service", transporttest.OK(onvifInfo))
				case "hikvision":
					srv.Handle(http.MethodGet, base+adapter.HikvisionProbePath, transporttest.OK(hikInfo))
				case "dahua":
					srv.Handle(http.MethodGet, base+adapter.DahuaProbePath, transporttest.OK(dahuaInfo))
				case "hisilicon":
					srv.Handle(http.MethodGet, base+adapter.HiSiliconProbePath, transporttest.OK(hisiliconInfo))
				}
			}

			res := run(t, srv, target)
			assert.Equal(t, tt.want, res.Recommended)
			assert.Equal(t, tt.variant, res.RecommendedVariant)
			require.Len(t, res.Probes, 4)
			assert.Equal(t, ptz.ProtocolONVIF, res.Probes[0].Variant.Protocol)
			assert.Equal(t, ptz.ProtocolDahua, res.Probes[3].Variant.Protocol)
		})
	}
}

func TestIdentifyMergesInfo(t *testing.T) {
	srv := transporttest.New()
	srv.Handle(http.MethodPost, base+"/onvif/device_service", transporttest.OK(onvifInfo))
	srv.Handle(http.MethodGet, base+adapter.HikvisionProbePath, transporttest.OK(hikInfo))

	res := run(t, srv, target)
	assert.Equal(t, ptz.DeviceInfo{
		Manufacturer: "ACME",
		Model:        "PTZ-9000",
		SerialNumber: "DS2020",
		Name:         "Lobby",
	}, res.Info)
	assert.Equal(t, ptz.NewEndpoint("10.0.0.5", 80), res.Endpoint)

	for _, p := range res.Probes {
		switch p.Variant.Protocol {
		case ptz.ProtocolONVIF, ptz.ProtocolHikvision:
			assert.True(t, p.OK, p.Protocol)
			assert.Empty(t, p.Error)
		default:
			assert.False(t, p.OK, p.Protocol)
			assert.NotEmpty(t, p.Error)
		}
	}
}

func TestIdentifyONVIFFallsThroughRoutes(t *testing.T) {
	srv := transporttest.New()
	srv.Handle(http.MethodPost, base+"/onvif/Device", transporttest.OK(onvifInfo))

	res := run(t, srv, target)
	assert.Equal(t, ptz.Onvif(ptz.SOAP12), res.RecommendedVariant)
	assert.Equal(t, "/onvif/Device", res.Probes[0].Path)
	assert.Zero(t, srv.Count(http.MethodPost, base+"/onvif/services"))
}

func TestIdentifyEachProbeAuthenticates(t *testing.T) {
	srv := transporttest.New()
	challenge := `Digest realm="cam", nonce="n1", qop="auth"`
	srv.Handle(http.MethodGet, base+adapter.HikvisionProbePath,
		transporttest.RequireAuth("Digest", challenge, transporttest.OK(hikInfo)))
	srv.Handle(http.MethodGet, base+adapter.DahuaProbePath,
		transporttest.RequireAuth("Basic", `Basic realm="cam"`, transporttest.OK(dahuaInfo)))

	res := run(t, srv, target)
	assert.Equal(t, ptz.HikvisionISAPI(), res.RecommendedVariant)
	for _, p := range res.Probes {
		if p.Variant.Protocol == ptz.ProtocolDahua {
			assert.True(t, p.OK)
		}
	}
}

func TestIdentifyPort(t *testing.T) {
	srv := transporttest.New()
	srv.Handle(http.MethodGet, "http://10.0.0.5:8080"+adapter.HikvisionProbePath, transporttest.OK(hikInfo))

	tgt := target
	tgt.Port = 8080
	res := run(t, srv, tgt)
	assert.Equal(t, 8080, res.Endpoint.Port)
	assert.Equal(t, ptz.HikvisionISAPI(), res.RecommendedVariant)
}

func TestIdentifyInvalidTarget(t *testing.T) {
	srv := transporttest.New()
	_, err := identify.Identify(context.Background(), srv, identify.Target{}, identify.Options{})
	assert.True(t, errors.Is(err, ptz.ErrInvalidArgument))

	_, err = identify.Identify(context.Background(), srv, identify.Target{Host: "h", Port: -1}, identify.Options{})
	assert.True(t, errors.Is(err, ptz.ErrInvalidArgument))
	assert.Empty(t, srv.Requests())
}

func TestIdentifyCancelled(t *testing.T) {
	srv := transporttest.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := identify.Identify(ctx, srv, target, identify.Options{})
	assert.True(t, errors.Is(err, context.Canceled))
}

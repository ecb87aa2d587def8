package transport_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-go/ptzctl/digest"
	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/transport"
	"github.com/use-go/ptzctl/transport/transporttest"
)

const (
	deviceURL = "http://10.0.0.5:80/onvif/device_service"
	digestHdr = `Digest realm="IP Camera(12345)", nonce="abc123", qop="auth"`
)

var endpoint = ptz.NewEndpoint("10.0.0.5", 80)

func TestSendDigestRetry(t *testing.T) {
	srv := transporttest.New()
	srv.Handle(http.MethodPost, deviceURL, transporttest.RequireAuth("Digest", digestHdr, transporttest.OK("<ok/>")))

	auth := transport.NewAuth(ptz.Credentials{Username: "admin", Password: "pass123"})
	conn := transport.NewConn(srv, endpoint, auth, time.Second)

	res, err := conn.Call(context.Background(), http.MethodPost, "/onvif/device_service", nil, []byte("<x/>"))
	require.NoError(t, err)
	assert.Equal(t, "<ok/>", string(res.Body))
	assert.Equal(t, ptz.AuthDigest, auth.Mode())

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].Header.Get("Authorization"))

	h := reqs[1].Header.Get("Authorization")
	assert.Equal(t, "/onvif/device_service", digest.Field(h, "uri"))
	assert.Equal(t, "abc123", digest.Field(h, "nonce"))
	assert.Equal(t, "<x/>", string(reqs[1].Body))

	require.NotNil(t, auth.Challenge())
	assert.Equal(t, "IP Camera(12345)", auth.Challenge().Realm)
}

func TestSendBasicRetry(t *testing.T) {
	srv := transporttest.New()
	srv.Handle("", deviceURL, transporttest.RequireAuth("Basic", `Basic realm="cam"`, transporttest.OK("")))

	auth := transport.NewAuth(ptz.Credentials{Username: "admin", Password: "pass123"})
	conn := transport.NewConn(srv, endpoint, auth, time.Second)

	_, err := conn.Call(context.Background(), http.MethodPost, "/onvif/device_service", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ptz.AuthBasic, auth.Mode())
	assert.Equal(t, "Basic YWRtaW46cGFzczEyMw==", srv.Requests()[1].Header.Get("Authorization"))
}

func TestSendRetriesOnlyOnce(t *testing.T) {
	srv := transporttest.New()
	srv.Handle("", deviceURL, transporttest.Reply(transporttest.Challenge(digestHdr)))

	auth := transport.NewAuth(ptz.Credentials{Username: "admin", Password: "wrong"})
	conn := transport.NewConn(srv, endpoint, auth, time.Second)

	_, err := conn.Call(context.Background(), http.MethodPost, "/onvif/device_service", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ptz.ErrUnauthorized))
	assert.Len(t, srv.Requests(), 2)
}

func TestSendAnonymousDoesNotRetry(t *testing.T) {
	srv := transporttest.New()
	srv.Handle("", deviceURL, transporttest.Reply(transporttest.Challenge(digestHdr)))

	conn := transport.NewConn(srv, endpoint, transport.NewAuth(ptz.Credentials{}), time.Second)

	_, err := conn.Call(context.Background(), http.MethodGet, "/onvif/device_service", nil, nil)
	assert.True(t, errors.Is(err, ptz.ErrUnauthorized))
	assert.Len(t, srv.Requests(), 1)
}

func TestEstablishedDigestIsPreemptive(t *testing.T) {
	srv := transporttest.New()
	srv.Handle("", deviceURL, transporttest.RequireAuth("Digest", digestHdr, transporttest.OK("")))

	auth := transport.NewAuth(ptz.Credentials{Username: "admin", Password: "pass123"})
	conn := transport.NewConn(srv, endpoint, auth, time.Second)

	_, err := conn.Call(context.Background(), http.MethodPost, "/onvif/device_service", nil, nil)
	require.NoError(t, err)
	srv.Reset()

	_, err = conn.Call(context.Background(), http.MethodPost, "/onvif/device_service", nil, nil)
	require.NoError(t, err)
	require.Len(t, srv.Requests(), 1)
	assert.NotEmpty(t, srv.Requests()[0].Header.Get("Authorization"))
}

func TestConnErrors(t *testing.T) {
	srv := transporttest.New()
	srv.Down("10.0.0.5:80")

	conn := transport.NewConn(srv, endpoint, transport.NewAuth(ptz.Credentials{}), time.Second)
	_, err := conn.Call(context.Background(), http.MethodGet, "/", nil, nil)
	assert.True(t, errors.Is(err, ptz.ErrUnreachable))

	conn.Close()
	srv.Reset()
	_, err = conn.Call(context.Background(), http.MethodGet, "/", nil, nil)
	assert.True(t, errors.Is(err, ptz.ErrNotConnected))
	assert.Empty(t, srv.Requests())
}

func TestCheck(t *testing.T) {
	req := &transport.Request{Method: http.MethodGet, URL: "http://cam/x"}

	assert.NoError(t, transport.Check(req, transporttest.Status(http.StatusNoContent)))
	assert.True(t, errors.Is(transport.Check(req, transporttest.Status(http.StatusUnauthorized)), ptz.ErrUnauthorized))
	assert.True(t, errors.Is(transport.Check(req, transporttest.Status(http.StatusNotFound)), ptz.ErrProtocolMismatch))
}

func TestProbe(t *testing.T) {
	srv := transporttest.New()
	res := transporttest.Body("<html><head><title> Web Client </title></head></html>")
	res.Header.Set("Server", "App-webs/")
	srv.Handle(http.MethodGet, "http://10.0.0.5:80/", transporttest.Reply(res))
	srv.Down("10.0.0.5:8080")

	p := transport.Probe(context.Background(), srv, endpoint, time.Second)
	assert.True(t, p.Reachable)
	assert.Equal(t, http.StatusOK, p.StatusCode)
	assert.Equal(t, "App-webs/", p.Server)
	assert.Equal(t, "Web Client", p.Title)
	assert.Equal(t, "Hikvision", p.Hint)

	p = transport.Probe(context.Background(), srv, ptz.NewEndpoint("10.0.0.5", 8080), time.Second)
	assert.False(t, p.Reachable)
	assert.Error(t, p.Err)
}

func TestProbeRealmHint(t *testing.T) {
	srv := transporttest.New()
	srv.Handle(http.MethodGet, "http://10.0.0.5:80/",
		transporttest.Reply(transporttest.Challenge(`Digest realm="Login to 4L0123", nonce="1"`)))

	p := transport.Probe(context.Background(), srv, endpoint, time.Second)
	assert.True(t, p.Reachable)
	assert.Equal(t, "Login to 4L0123", p.Realm)
	assert.Equal(t, "Dahua", p.Hint)
}

// Package stream builds RTSP URLs for a camera and finds the one it serves.
package stream

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/ptz"
)

// DefaultPort is the RTSP port every supported vendor listens on
const DefaultPort = 554

// Common vendor paths, most likely first
const (
	PathONVIF     = "onvif1"
	PathHikvision = "Streaming/Channels/101"
	PathDahua     = "cam/realmonitor?channel=1&subtype=0"
	PathH264      = "h264/ch1/main/av_stream"
	PathHiSilicon = "11"
)

// Paths is the ordered list tried by Detect
var Paths = []string{
	PathONVIF,
	PathHikvision,
	PathDahua,
	PathH264,
	PathHiSilicon,
	"12",
	"live/ch00_0",
	"stream1",
	"live.sdp",
	"videoMain",
}

// URL builds rtsp://{user}:{password}@{host}:554/{path}. The password is
// query-escaped with spaces as %20; without credentials the userinfo is
// left out.
func URL(creds ptz.Credentials, host, path string) string {
	var sb strings.Builder
	sb.WriteString("rtsp://")
	if creds.Username != "" || creds.Password != "" {
		sb.WriteString(escape(creds.Username))
		sb.WriteByte(':')
		sb.WriteString(escape(creds.Password))
		sb.WriteByte('@')
	}
	sb.WriteString(net.JoinHostPort(host, strconv.Itoa(DefaultPort)))
	sb.WriteByte('/')
	sb.WriteString(strings.TrimPrefix(path, "/"))
	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Candidates returns one URL per entry of Paths
func Candidates(creds ptz.Credentials, host string) []string {
	urls := make([]string, 0, len(Paths))
	for _, path := range Paths {
		urls = append(urls, URL(creds, host, path))
	}
	return urls
}

// Prober checks that an RTSP URL answers
type Prober interface {
	Describe(ctx context.Context, rawURL string) error
}

// RTSPProber sends an RTSP DESCRIBE with gortsplib
type RTSPProber struct {
	Timeout time.Duration
}

func (p RTSPProber) Describe(ctx context.Context, rawURL string) error {
	u, err := base.ParseURL(rawURL)
	if err != nil {
		return errors.Annotatef(ptz.ErrInvalidArgument, "%s: %v", rawURL, err)
	}

	timeout := p.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return errors.Annotate(ptz.ErrUnreachable, "deadline exceeded")
	}

	client := &gortsplib.Client{ReadTimeout: timeout, WriteTimeout: timeout}
	if err = client.Start(u.Scheme, u.Host); err != nil {
		return errors.Annotatef(ptz.ErrUnreachable, "%s: %v", u.Host, err)
	}
	defer client.Close()

	if _, _, err = client.Describe(u); err != nil {
		return errors.Annotatef(ptz.ErrProtocolMismatch, "DESCRIBE %s: %v", u.Path, err)
	}
	return nil
}

// Detect tries every candidate URL in order and returns the first one the
// camera describes
func Detect(ctx context.Context, p Prober, creds ptz.Credentials, host string, log zerolog.Logger) (string, error) {
	var last error
	for _, rawURL := range Candidates(creds, host) {
		if err := ctx.Err(); err != nil {
			return "", errors.Trace(err)
		}
		err := p.Describe(ctx, rawURL)
		if err == nil {
			log.Debug().Str("url", Redact(rawURL)).Msg("stream found")
			return rawURL, nil
		}
		log.Debug().Err(err).Str("url", Redact(rawURL)).Msg("stream candidate failed")
		last = err
	}
	if last == nil {
		return "", errors.NotFoundf("stream for %s", host)
	}
	return "", errors.Annotatef(last, "no stream path answered on %s", host)
}

// Redact hides the password of a URL for logs
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

package transport

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/use-go/ptzctl/digest"
	"github.com/use-go/ptzctl/ptz"
)

// ProbeResult is what a plain GET / revealed about a port
type ProbeResult struct {
	Endpoint   ptz.Endpoint
	Reachable  bool
	StatusCode int
	Server     string
	Realm      string
	Title      string
	// Hint names the vendor the banner suggests, empty when nothing matched
	Hint string
	Err  error
}

// bannerHints maps lowercase banner fragments to a vendor name
var bannerHints = []struct {
	fragment string
	vendor   string
}{
	{"app-webs", "Hikvision"},
	{"dnvrs-webs", "Hikvision"},
	{"hikvision", "Hikvision"},
	{"ip camera(", "Hikvision"},
	{"dahua", "Dahua"},
	{"login to ", "Dahua"},
	{"hi3510", "HiSilicon"},
	{"hiipcam", "HiSilicon"},
	{"thttpd", "HiSilicon"},
	{"gsoap", "ONVIF"},
	{"onvif", "ONVIF"},
}

var titleRx = regexp.MustCompile(`(?is)<title>\s*([^<]*?)\s*</title>`)

// Probe issues an unauthenticated GET / with a short timeout. It never
// fails: unreachable ports come back with Reachable=false and Err set.
func Probe(ctx context.Context, d Doer, ep ptz.Endpoint, timeout time.Duration) ProbeResult {
	result := ProbeResult{Endpoint: ep}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := &Request{Method: http.MethodGet, URL: ep.URL("/"), Header: http.Header{}}
	res, err := d.Do(ctx, req)
	if err != nil {
		result.Err = err
		return result
	}

	result.Reachable = true
	result.StatusCode = res.StatusCode
	result.Server = res.Header.Get("Server")
	if c, ok := digest.ParseChallenges(res.Header.Values("WWW-Authenticate")); ok {
		result.Realm = c.Realm
	}
	if m := titleRx.FindSubmatch(res.Body); m != nil {
		result.Title = string(m[1])
	}
	result.Hint = sniff(result.Server, result.Realm, result.Title)
	return result
}

func sniff(parts ...string) string {
	banner := strings.ToLower(strings.Join(parts, " "))
	for _, h := range bannerHints {
		if strings.Contains(banner, h.fragment) {
			return h.vendor
		}
	}
	return ""
}

package camera

import (
	"strings"

	"github.com/use-go/ptzctl/adapter"
	"github.com/use-go/ptzctl/ptz"
)

// DefaultPort is tried first whatever port is configured: many cameras
// serve their web/CGI interface there even when ONVIF lives elsewhere.
const DefaultPort = 80

// AlternatePorts are the common ONVIF ports tried after the configured one
var AlternatePorts = []int{8080, 443, 8443}

// DefaultUsernames are the ONVIF accounts cameras commonly ship with
var DefaultUsernames = []string{"onvif", "onvif1", "onvifuser", "onvifadmin"}

// Target is what the caller knows about a camera
type Target struct {
	Host     string
	Port     int
	Username string
	Password string
	// AltUser is an extra ONVIF username tried after Username.
	AltUser string
}

// Validate rejects a target no attempt could succeed with
func (t Target) Validate() error {
	if strings.TrimSpace(t.Host) == "" {
		return ptz.Invalidf("empty host")
	}
	if t.Port < 0 || t.Port > 65535 {
		return ptz.Invalidf("port %d out of range", t.Port)
	}
	return nil
}

// Attempt is one probe: which endpoint, which account, which dialect
type Attempt struct {
	Endpoint    ptz.Endpoint
	Credentials ptz.Credentials
	Route       adapter.Route
}

// Ports returns 80, the configured port, then the alternates, without
// duplicates. A zero port means none was configured.
func Ports(configured int) []int {
	ports := []int{DefaultPort}
	if configured > 0 {
		ports = appendUnique(ports, configured)
	}
	for _, p := range AlternatePorts {
		ports = appendUnique(ports, p)
	}
	return ports
}

func appendUnique(ports []int, p int) []int {
	for _, q := range ports {
		if q == p {
			return ports
		}
	}
	return append(ports, p)
}

// Usernames returns the configured username, the alternate, then the common
// ONVIF usernames, de-duplicated case-insensitively. The configured one is
// kept even when empty so anonymous cameras are tried first.
func Usernames(configured, alt string) []string {
	seen := map[string]bool{}
	var users []string
	add := func(u string, keepEmpty bool) {
		if u == "" && !keepEmpty {
			return
		}
		key := strings.ToLower(u)
		if seen[key] {
			return
		}
		seen[key] = true
		users = append(users, u)
	}

	add(configured, true)
	add(alt, false)
	for _, u := range DefaultUsernames {
		add(u, false)
	}
	return users
}

// Plan flattens the search space into the ordered list of attempts. Every
// vendor route is tried for each port and username before the generic root,
// which comes last for every port and username.
func Plan(t Target) []Attempt {
	ports := Ports(t.Port)
	users := Usernames(t.Username, t.AltUser)
	routes := adapter.Routes()

	plan := make([]Attempt, 0, len(ports)*len(users)*(len(routes)+1))
	for _, port := range ports {
		ep := ptz.NewEndpoint(t.Host, port)
		for _, user := range users {
			creds := ptz.Credentials{Username: user, Password: t.Password}
			for _, route := range routes {
				plan = append(plan, Attempt{Endpoint: ep, Credentials: creds, Route: route})
			}
		}
	}

	generic := adapter.GenericRoute()
	for _, port := range ports {
		ep := ptz.NewEndpoint(t.Host, port)
		for _, user := range users {
			creds := ptz.Credentials{Username: user, Password: t.Password}
			plan = append(plan, Attempt{Endpoint: ep, Credentials: creds, Route: generic})
		}
	}
	return plan
}

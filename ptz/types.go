// Package ptz holds the value types shared by every part of the camera control engine.
package ptz

import (
	"fmt"
	"net"
	"strconv"
)

// Scheme is the URL scheme used to reach a camera's HTTP service
type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

// SchemeForPort returns HTTPS for the well-known TLS ports and HTTP otherwise
func SchemeForPort(port int) Scheme {
	if port == 443 || port == 8443 {
		return SchemeHTTPS
	}
	return SchemeHTTP
}

// Endpoint identifies the HTTP service of a camera
type Endpoint struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Scheme Scheme `json:"scheme"`
}

// NewEndpoint builds an endpoint choosing the scheme from the port
func NewEndpoint(host string, port int) Endpoint {
	return Endpoint{Host: host, Port: port, Scheme: SchemeForPort(port)}
}

// BaseURL returns scheme://host:port without a trailing slash
func (e Endpoint) BaseURL() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = SchemeHTTP
	}
	return string(scheme) + "://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL joins the base URL with a path that may carry a query string
func (e Endpoint) URL(path string) string {
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return e.BaseURL() + path
}

func (e Endpoint) String() string {
	return e.BaseURL()
}

// IsZero reports whether the endpoint is unset
func (e Endpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

// Credentials is one username/password pair
type Credentials struct {
	Username string
	Password string
}

// AuthMode is the HTTP authentication scheme in use for a session
type AuthMode int

const (
	AuthNone AuthMode = iota
	AuthBasic
	AuthDigest
)

func (m AuthMode) String() string {
	switch m {
	case AuthBasic:
		return "Basic"
	case AuthDigest:
		return "Digest"
	default:
		return "None"
	}
}

// Vector is a pan/tilt/zoom triple.
//
// For velocities pan and tilt are in [-1,1] and only the sign of zoom matters
// to the CGI dialects. For absolute positions pan and tilt are in [-1,1] and
// zoom is in [0,1].
type Vector struct {
	Pan  float64 `json:"pan"`
	Tilt float64 `json:"tilt"`
	Zoom float64 `json:"zoom"`
}

func (v Vector) String() string {
	return fmt.Sprintf("pan=%.3f tilt=%.3f zoom=%.3f", v.Pan, v.Tilt, v.Zoom)
}

// Clamp limits every axis to [min,max]
func (v Vector) Clamp(min, max float64) Vector {
	return Vector{Pan: clamp(v.Pan, min, max), Tilt: clamp(v.Tilt, min, max), Zoom: clamp(v.Zoom, min, max)}
}

// ClampPosition limits pan and tilt to [-1,1] and zoom to [0,1]
func (v Vector) ClampPosition() Vector {
	return Vector{Pan: clamp(v.Pan, -1, 1), Tilt: clamp(v.Tilt, -1, 1), Zoom: clamp(v.Zoom, 0, 1)}
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

// DeviceInfo is the descriptive metadata a probe may return
type DeviceInfo struct {
	Manufacturer    string `json:"manufacturer,omitempty"`
	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	SerialNumber    string `json:"serial_number,omitempty"`
	HardwareID      string `json:"hardware_id,omitempty"`
	Name            string `json:"name,omitempty"`
}

// Merge fills empty fields of d from other
func (d *DeviceInfo) Merge(other DeviceInfo) {
	if d.Manufacturer == "" {
		d.Manufacturer = other.Manufacturer
	}
	if d.Model == "" {
		d.Model = other.Model
	}
	if d.FirmwareVersion == "" {
		d.FirmwareVersion = other.FirmwareVersion
	}
	if d.SerialNumber == "" {
		d.SerialNumber = other.SerialNumber
	}
	if d.HardwareID == "" {
		d.HardwareID = other.HardwareID
	}
	if d.Name == "" {
		d.Name = other.Name
	}
}

// DisplayName returns the best available name for the device
func (d DeviceInfo) DisplayName() string {
	// Priority: Manufacturer + Model > Name > Model
	if d.Manufacturer != "" && d.Model != "" {
		return d.Manufacturer + " " + d.Model
	}
	if d.Name != "" {
		return d.Name
	}
	return d.Model
}

package discovery

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/gofrs/uuid"
	"github.com/juju/errors"
)

const (
	nsSOAP12     = "http://www.w3.org/2003/05/soap-envelope"
	nsAddressing = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	nsDiscovery  = "http://schemas.xmlsoap.org/ws/2005/04/discovery"
	nsNetwork    = "http://www.onvif.org/ver10/network/wsdl"

	actionProbe = "http://schemas.xmlsoap.org/ws/2005/04/discovery/Probe"
	toDiscovery = "urn:schemas-xmlsoap-org:ws:2005:04:discovery"
)

// Unknown labels a field the camera did not advertise
const Unknown = "Unknown"

// Camera is one device that answered a probe
type Camera struct {
	EndpointReference string   `json:"endpoint_reference"`
	IPAddress         string   `json:"ip_address"`
	Port              int      `json:"port"`
	Manufacturer      string   `json:"manufacturer"`
	Model             string   `json:"model"`
	Serial            string   `json:"serial,omitempty"`
	HardwareID        string   `json:"hardware_id,omitempty"`
	Name              string   `json:"name"`
	Location          string   `json:"location,omitempty"`
	ServiceURL        string   `json:"service_url"`
	XAddrs            []string `json:"xaddrs,omitempty"`
	Profiles          []string `json:"profiles,omitempty"`
}

// newProbe builds a Probe for NetworkVideoTransmitters with a fresh message id
func newProbe() (string, []byte, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", nil, errors.Annotate(err, "message id")
	}
	messageID := "urn:uuid:" + id.String()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	env := doc.CreateElement("s:Envelope")
	env.CreateAttr("xmlns:s", nsSOAP12)
	env.CreateAttr("xmlns:a", nsAddressing)
	env.CreateAttr("xmlns:d", nsDiscovery)
	env.CreateAttr("xmlns:dn", nsNetwork)

	header := env.CreateElement("s:Header")
	header.CreateElement("a:Action").SetText(actionProbe)
	header.CreateElement("a:MessageID").SetText(messageID)
	header.CreateElement("a:To").SetText(toDiscovery)

	probe := env.CreateElement("s:Body").CreateElement("d:Probe")
	probe.CreateElement("d:Types").SetText("dn:NetworkVideoTransmitter")

	b, err := doc.WriteToBytes()
	if err != nil {
		return "", nil, errors.Trace(err)
	}
	return messageID, b, nil
}

// parseMatches reads every ProbeMatch of a ProbeMatches packet. from is
// the sender, used when a match carries no XAddrs.
func parseMatches(packet []byte, from net.Addr) ([]Camera, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(packet); err != nil {
		return nil, errors.Annotate(err, "parse packet")
	}
	if doc.Root() == nil || doc.Root().Tag != "Envelope" {
		return nil, errors.New("not a SOAP envelope")
	}

	matches := doc.FindElements("//Body/ProbeMatches/ProbeMatch")
	if len(matches) == 0 {
		return nil, errors.New("no ProbeMatch in packet")
	}

	cams := make([]Camera, 0, len(matches))
	for _, m := range matches {
		cams = append(cams, fromMatch(m, from))
	}
	return cams, nil
}

func fromMatch(m *etree.Element, from net.Addr) Camera {
	cam := Camera{
		Manufacturer: Unknown,
		Model:        Unknown,
		Name:         Unknown,
	}
	if el := m.FindElement("./EndpointReference/Address"); el != nil {
		cam.EndpointReference = strings.TrimSpace(el.Text())
	}
	if el := m.SelectElement("XAddrs"); el != nil {
		cam.XAddrs = strings.Fields(el.Text())
	}
	if el := m.SelectElement("Types"); el != nil {
		cam.Profiles = parseTypes(el.Text())
	}
	if el := m.SelectElement("Scopes"); el != nil {
		applyScopes(&cam, el.Text())
	}

	if len(cam.XAddrs) > 0 {
		cam.ServiceURL = cam.XAddrs[0]
		if u, err := url.Parse(cam.ServiceURL); err == nil {
			cam.IPAddress = u.Hostname()
			cam.Port = portOf(u)
		}
	}
	if cam.IPAddress == "" {
		if udp, ok := from.(*net.UDPAddr); ok {
			cam.IPAddress = udp.IP.String()
			cam.Port = 80
		}
	}
	if cam.EndpointReference == "" {
		cam.EndpointReference = cam.ServiceURL
	}
	if cam.EndpointReference == "" {
		cam.EndpointReference = cam.IPAddress
	}
	return cam
}

func portOf(u *url.URL) int {
	if p, err := strconv.Atoi(u.Port()); err == nil {
		return p
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}

// scope prefixes, matched in order; the first hit per field wins
var scopeFields = []struct {
	prefix string
	set    func(*Camera, string)
}{
	{"onvif://www.onvif.org/name/", func(c *Camera, v string) { c.Name = v }},
	{"onvif://www.onvif.org/hardware/", func(c *Camera, v string) { c.Model = v; c.HardwareID = v }},
	{"onvif://www.onvif.org/model/", func(c *Camera, v string) { c.Model = v }},
	{"onvif://www.onvif.org/manufacturer/", func(c *Camera, v string) { c.Manufacturer = v }},
	{"onvif://www.onvif.org/mfr/", func(c *Camera, v string) { c.Manufacturer = v }},
	{"onvif://www.onvif.org/serial/", func(c *Camera, v string) { c.Serial = v }},
	{"onvif://www.onvif.org/SerialNumber/", func(c *Camera, v string) { c.Serial = v }},
	{"onvif://www.onvif.org/location/", func(c *Camera, v string) {
		if c.Location == "" {
			c.Location = v
		}
	}},
}

func applyScopes(cam *Camera, scopes string) {
	seen := map[string]bool{}
	for _, scope := range strings.Fields(scopes) {
		for _, f := range scopeFields {
			if !strings.HasPrefix(scope, f.prefix) {
				continue
			}
			v := scopeValue(strings.TrimPrefix(scope, f.prefix))
			if v == "" || seen[f.prefix] {
				break
			}
			seen[f.prefix] = true
			f.set(cam, v)
			break
		}
	}
	// many cameras put the vendor only in the name scope
	if cam.Manufacturer == Unknown && cam.Name != Unknown {
		if i := strings.IndexByte(cam.Name, ' '); i > 0 {
			cam.Manufacturer = cam.Name[:i]
		}
	}
}

func scopeValue(raw string) string {
	if v, err := url.PathUnescape(raw); err == nil {
		raw = v
	}
	return strings.TrimSpace(strings.ReplaceAll(raw, "_", " "))
}

func parseTypes(types string) []string {
	var profiles []string
	for _, t := range strings.Fields(types) {
		if i := strings.IndexByte(t, ':'); i >= 0 {
			t = t[i+1:]
		}
		switch t {
		case "NetworkVideoTransmitter":
			profiles = append(profiles, "Network Video Transmitter")
		case "Device", "PTZ", "Media", "Imaging", "Analytics", "Events", "Recording", "Replay":
			profiles = append(profiles, t)
		}
	}
	return profiles
}

package ptz

// Protocol is the vendor dialect a camera speaks
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolONVIF
	ProtocolHikvision
	ProtocolDahua
	ProtocolHiSilicon
	ProtocolGeneric
)

func (p Protocol) String() string {
	switch p {
	case ProtocolONVIF:
		return "ONVIF"
	case ProtocolHikvision:
		return "Hikvision ISAPI"
	case ProtocolDahua:
		return "Dahua CGI"
	case ProtocolHiSilicon:
		return "HiSilicon CGI"
	case ProtocolGeneric:
		return "Generic CGI"
	default:
		return "unknown"
	}
}

// SOAPVersion selects the envelope dialect of an ONVIF request
type SOAPVersion int

const (
	SOAP12 SOAPVersion = iota + 1
	SOAP11
)

func (v SOAPVersion) String() string {
	switch v {
	case SOAP11:
		return "1.1"
	case SOAP12:
		return "1.2"
	default:
		return ""
	}
}

// Variant is the matched protocol of a session. SOAP is only meaningful for
// ProtocolONVIF and is zero for every other protocol; use the constructors to
// keep that invariant.
type Variant struct {
	Protocol Protocol
	SOAP     SOAPVersion
}

func Onvif(v SOAPVersion) Variant { return Variant{Protocol: ProtocolONVIF, SOAP: v} }
func HikvisionISAPI() Variant     { return Variant{Protocol: ProtocolHikvision} }
func DahuaCGI() Variant           { return Variant{Protocol: ProtocolDahua} }
func HiSiliconCGI() Variant       { return Variant{Protocol: ProtocolHiSilicon} }
func GenericCGI() Variant         { return Variant{Protocol: ProtocolGeneric} }

// IsZero reports whether no protocol has been matched
func (v Variant) IsZero() bool {
	return v.Protocol == ProtocolUnknown
}

func (v Variant) String() string {
	if v.Protocol == ProtocolONVIF {
		return "ONVIF (SOAP " + v.SOAP.String() + ")"
	}
	return v.Protocol.String()
}

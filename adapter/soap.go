package adapter

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/elgs/gostrgen"
	"github.com/juju/errors"

	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/transport"
)

// Namespaces
const (
	nsSOAP12 = "http://www.w3.org/2003/05/soap-envelope"
	nsSOAP11 = "http://schemas.xmlsoap.org/soap/envelope/"
	nsDevice = "http://www.onvif.org/ver10/device/wsdl"
	nsMedia  = "http://www.onvif.org/ver10/media/wsdl"
	nsPTZ    = "http://www.onvif.org/ver20/ptz/wsdl"
	nsSchema = "http://www.onvif.org/ver10/schema"

	nsWSSE = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	nsWSU  = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"

	passwordDigestType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest"
	base64EncodingType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"
)

const (
	contentTypeSOAP12 = "application/soap+xml; charset=utf-8"
	contentTypeSOAP11 = "text/xml; charset=utf-8"
)

// soapClient sends SOAP envelopes of one version over a Conn
type soapClient struct {
	conn     *transport.Conn
	version  ptz.SOAPVersion
	security bool
}

func (c *soapClient) envelopeNS() string {
	if c.version == ptz.SOAP11 {
		return nsSOAP11
	}
	return nsSOAP12
}

// envelope wraps op into a complete SOAP document
func (c *soapClient) envelope(op *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("s:Envelope")
	env.CreateAttr("xmlns:s", c.envelopeNS())
	env.CreateAttr("xmlns:tds", nsDevice)
	env.CreateAttr("xmlns:trt", nsMedia)
	env.CreateAttr("xmlns:tptz", nsPTZ)
	env.CreateAttr("xmlns:tt", nsSchema)

	header := env.CreateElement("s:Header")
	if c.security {
		c.usernameToken(header)
	}

	env.CreateElement("s:Body").AddChild(op)
	return doc.WriteToBytes()
}

// usernameToken appends a WS-Security PasswordDigest token:
// base64(sha1(nonce + created + password))
func (c *soapClient) usernameToken(header *etree.Element) {
	creds := c.conn.Auth().Credentials()
	if creds.Username == "" {
		return
	}

	nonce, err := gostrgen.RandGen(16, gostrgen.Lower|gostrgen.Digit, "", "")
	if err != nil {
		nonce = strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	created := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	h := sha1.New()
	h.Write([]byte(nonce))
	h.Write([]byte(created))
	h.Write([]byte(creds.Password))

	sec := header.CreateElement("wsse:Security")
	sec.CreateAttr("xmlns:wsse", nsWSSE)
	sec.CreateAttr("s:mustUnderstand", "1")
	token := sec.CreateElement("wsse:UsernameToken")
	token.CreateElement("wsse:Username").SetText(creds.Username)
	pass := token.CreateElement("wsse:Password")
	pass.CreateAttr("Type", passwordDigestType)
	pass.SetText(base64.StdEncoding.EncodeToString(h.Sum(nil)))
	n := token.CreateElement("wsse:Nonce")
	n.CreateAttr("EncodingType", base64EncodingType)
	n.SetText(base64.StdEncoding.EncodeToString([]byte(nonce)))
	cr := token.CreateElement("wsu:Created")
	cr.CreateAttr("xmlns:wsu", nsWSU)
	cr.SetText(created)
}

func (c *soapClient) header(action string) http.Header {
	h := http.Header{}
	if c.version == ptz.SOAP11 {
		h.Set("Content-Type", contentTypeSOAP11)
		h.Set("SOAPAction", `"`+action+`"`)
	} else {
		h.Set("Content-Type", contentTypeSOAP12)
	}
	return h
}

// call posts op to path and returns the element named want from the reply
// body. A missing element is a protocol mismatch, never a panic.
func (c *soapClient) call(ctx context.Context, path, action string, op *etree.Element, want string) (*etree.Element, error) {
	payload, err := c.envelope(op)
	if err != nil {
		return nil, errors.Trace(err)
	}

	req, res, err := c.conn.Do(ctx, http.MethodPost, path, c.header(action), payload)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	parseErr := doc.ReadFromBytes(res.Body)
	if parseErr == nil && doc.Root() != nil {
		if fault := doc.FindElement("//Fault"); fault != nil {
			return nil, faultError(action, res.StatusCode, fault)
		}
	}

	if err = transport.Check(req, res); err != nil {
		return nil, err
	}
	if parseErr != nil || doc.Root() == nil {
		return nil, ptz.Mismatchf("%s: response is not XML", actionName(action))
	}
	if doc.Root().Tag != "Envelope" {
		return nil, ptz.Mismatchf("%s: response is not a SOAP envelope", actionName(action))
	}

	el := doc.FindElement("//Body/" + want)
	if el == nil {
		return nil, ptz.Mismatchf("%s: no %s in response", actionName(action), want)
	}
	return el, nil
}

// faultError turns a SOAP fault into the error taxonomy. NotAuthorized
// subcodes are reported as unauthorized whatever the HTTP status.
func faultError(action string, status int, fault *etree.Element) error {
	reason := ""
	if el := fault.FindElement(".//Reason/Text"); el != nil {
		reason = strings.TrimSpace(el.Text())
	} else if el := fault.FindElement(".//faultstring"); el != nil {
		reason = strings.TrimSpace(el.Text())
	}

	codes := []string{}
	for _, el := range fault.FindElements(".//Value") {
		codes = append(codes, strings.TrimSpace(el.Text()))
	}
	if el := fault.FindElement(".//faultcode"); el != nil {
		codes = append(codes, strings.TrimSpace(el.Text()))
	}

	for _, code := range codes {
		if strings.HasSuffix(code, "NotAuthorized") {
			return errors.Annotatef(ptz.ErrUnauthorized, "%s: SOAP fault %s", actionName(action), reason)
		}
	}
	if status == http.StatusUnauthorized {
		return errors.Annotatef(ptz.ErrUnauthorized, "%s: SOAP fault %s", actionName(action), reason)
	}

	if reason == "" {
		reason = strings.Join(codes, " ")
	}
	return ptz.Mismatchf("%s: SOAP fault: %s", actionName(action), reason)
}

func actionName(action string) string {
	if i := strings.LastIndexByte(action, '/'); i >= 0 {
		return action[i+1:]
	}
	return action
}

// childText returns the trimmed text of the first child with the local name
func childText(el *etree.Element, name string) string {
	if c := el.SelectElement(name); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

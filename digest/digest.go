// Package digest implements the client side of RFC 2617 HTTP authentication.
package digest

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/elgs/gostrgen"
)

// NonceCount is always 1: every header is computed from a fresh challenge
// and no replay counter is kept between calls.
const NonceCount = "00000001"

// Scheme of a WWW-Authenticate challenge
type Scheme string

const (
	SchemeBasic  Scheme = "Basic"
	SchemeDigest Scheme = "Digest"
)

// Challenge is the parsed content of a WWW-Authenticate header
type Challenge struct {
	Scheme    Scheme
	Realm     string
	Nonce     string
	Qop       string
	Opaque    string
	Algorithm string
}

var paramRx = regexp.MustCompile(`(\w+)\s*=\s*(?:"([^"]*)"|([^\s,]+))`)

// ParseChallenge parses a single WWW-Authenticate value. It returns false when
// the scheme is neither Basic nor Digest or a Digest challenge has no nonce.
func ParseChallenge(header string) (*Challenge, bool) {
	header = strings.TrimSpace(header)
	i := strings.IndexByte(header, ' ')
	scheme := header
	rest := ""
	if i > 0 {
		scheme, rest = header[:i], header[i+1:]
	}

	c := &Challenge{}
	switch {
	case strings.EqualFold(scheme, string(SchemeDigest)):
		c.Scheme = SchemeDigest
	case strings.EqualFold(scheme, string(SchemeBasic)):
		c.Scheme = SchemeBasic
	default:
		return nil, false
	}

	for _, m := range paramRx.FindAllStringSubmatch(rest, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		switch strings.ToLower(m[1]) {
		case "realm":
			c.Realm = value
		case "nonce":
			c.Nonce = value
		case "qop":
			c.Qop = value
		case "opaque":
			c.Opaque = value
		case "algorithm":
			c.Algorithm = value
		}
	}

	if c.Scheme == SchemeDigest && c.Nonce == "" {
		return nil, false
	}
	return c, true
}

// ParseChallenges picks the strongest challenge among all WWW-Authenticate
// values: Digest wins over Basic.
func ParseChallenges(headers []string) (*Challenge, bool) {
	var basic *Challenge
	for _, h := range headers {
		c, ok := ParseChallenge(h)
		if !ok {
			continue
		}
		if c.Scheme == SchemeDigest {
			return c, true
		}
		if basic == nil {
			basic = c
		}
	}
	return basic, basic != nil
}

// AlgorithmMD5Sess hashes the client nonce into HA1
const AlgorithmMD5Sess = "MD5-sess"

// Compute returns the Authorization header value for a Digest challenge.
//
// HA1 = MD5(username:realm:password), or for MD5-sess
// MD5(MD5(username:realm:password):nonce:cnonce). HA2 = MD5(method:uri). When qop offers
// "auth" the response is MD5(HA1:nonce:nc:cnonce:auth:HA2) with a fresh client
// nonce, otherwise MD5(HA1:nonce:HA2).
func Compute(username, password, method, uri, realm, nonce, qop string) string {
	return compute(username, password, method, uri, realm, nonce, qop, "", "", newCnonce())
}

// Authorization computes the header for this challenge, echoing opaque and
// algorithm when the server sent them.
func (c *Challenge) Authorization(username, password, method, uri string) string {
	if c.Scheme == SchemeBasic {
		return Basic(username, password)
	}
	return compute(username, password, method, uri, c.Realm, c.Nonce, c.Qop, c.Opaque, c.Algorithm, newCnonce())
}

func compute(username, password, method, uri, realm, nonce, qop, opaque, algorithm, cnonce string) string {
	ha1 := HexMD5(username, realm, password)
	sess := strings.EqualFold(algorithm, AlgorithmMD5Sess)
	if sess {
		ha1 = HexMD5(ha1, nonce, cnonce)
	}
	ha2 := HexMD5(method, uri)

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s"`, username, realm, nonce, uri)
	if algorithm != "" {
		b.WriteString(", algorithm=" + algorithm)
	}

	if hasAuth(qop) {
		response := HexMD5(ha1, nonce, NonceCount, cnonce, "auth", ha2)
		fmt.Fprintf(&b, `, response="%s", qop=auth, nc=%s, cnonce="%s"`, response, NonceCount, cnonce)
	} else {
		fmt.Fprintf(&b, `, response="%s"`, HexMD5(ha1, nonce, ha2))
		if sess {
			fmt.Fprintf(&b, `, cnonce="%s"`, cnonce)
		}
	}

	if opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, opaque)
	}
	return b.String()
}

// hasAuth reports whether a qop list such as "auth,auth-int" offers plain auth
func hasAuth(qop string) bool {
	for _, s := range strings.Split(qop, ",") {
		if strings.TrimSpace(s) == "auth" {
			return true
		}
	}
	return false
}

// Basic returns a Basic Authorization header value
func Basic(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// HexMD5 hashes the colon-joined parts
func HexMD5(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

func newCnonce() string {
	s, err := gostrgen.RandGen(16, gostrgen.Lower|gostrgen.Digit, "", "")
	if err != nil {
		return "0a4f113b"
	}
	return s
}

// Field extracts a named parameter such as response or cnonce from an
// Authorization header
func Field(header, name string) string {
	for _, m := range paramRx.FindAllStringSubmatch(header, -1) {
		if strings.EqualFold(m[1], name) {
			if m[2] != "" {
				return m[2]
			}
			return m[3]
		}
	}
	return ""
}

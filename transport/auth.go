package transport

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/juju/errors"

	"github.com/use-go/ptzctl/digest"
	"github.com/use-go/ptzctl/ptz"
)

// Auth is the authentication state of one session. It is never shared
// between sessions: the Digest challenge and the credentials belong to the
// camera connection that produced them.
type Auth struct {
	mu        sync.Mutex
	creds     ptz.Credentials
	mode      ptz.AuthMode
	challenge *digest.Challenge
}

// NewAuth starts unauthenticated; the first 401 decides the mode
func NewAuth(creds ptz.Credentials) *Auth {
	return &Auth{creds: creds}
}

func (a *Auth) Credentials() ptz.Credentials {
	return a.creds
}

func (a *Auth) Mode() ptz.AuthMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Challenge returns a copy of the last accepted challenge, or nil
func (a *Auth) Challenge() *digest.Challenge {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.challenge == nil {
		return nil
	}
	c := *a.challenge
	return &c
}

// Reset forgets the negotiated mode and challenge
func (a *Auth) Reset() {
	a.mu.Lock()
	a.mode = ptz.AuthNone
	a.challenge = nil
	a.mu.Unlock()
}

// Send performs the two-step exchange: send with the current mode, and on a
// 401 adopt the server's challenge and send exactly once more. The retry
// never recurses; a second 401 is returned to the caller as is.
func (a *Auth) Send(ctx context.Context, d Doer, req *Request) (*Response, error) {
	first := req.Clone()
	a.authorize(first)

	res, err := d.Do(ctx, first)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}

	if !a.adopt(res) {
		return res, nil
	}

	second := req.Clone()
	a.authorize(second)

	return d.Do(ctx, second)
}

// adopt switches the mode from a 401 response. It returns false when there
// is nothing different to try.
func (a *Auth) adopt(res *Response) bool {
	if a.creds.Username == "" && a.creds.Password == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := digest.ParseChallenges(res.Header.Values("WWW-Authenticate"))
	if ok && c.Scheme == digest.SchemeDigest {
		a.mode = ptz.AuthDigest
		a.challenge = c
		return true
	}

	// a Basic challenge, or a bare 401 with no usable header
	if a.mode == ptz.AuthBasic {
		return false
	}
	a.mode = ptz.AuthBasic
	a.challenge = c
	return true
}

func (a *Auth) authorize(req *Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.mode {
	case ptz.AuthBasic:
		req.Header.Set("Authorization", digest.Basic(a.creds.Username, a.creds.Password))
	case ptz.AuthDigest:
		req.Header.Set("Authorization", a.challenge.Authorization(
			a.creds.Username, a.creds.Password, req.Method, requestURI(req.URL),
		))
	}
}

func requestURI(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.RequestURI()
}

// Check converts a final response into the failure taxonomy
func Check(req *Request, res *Response) error {
	switch {
	case res.OK():
		return nil
	case res.StatusCode == http.StatusUnauthorized:
		return errors.Annotatef(ptz.ErrUnauthorized, "%s %s: HTTP %d", req.Method, req.URL, res.StatusCode)
	default:
		return errors.Annotatef(ptz.ErrProtocolMismatch, "%s %s: HTTP %d %s",
			req.Method, req.URL, res.StatusCode, http.StatusText(res.StatusCode))
	}
}

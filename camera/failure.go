package camera

import (
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/use-go/ptzctl/ptz"
)

// Classification summarizes why every attempt failed
type Classification int

const (
	// FailureUnreachable: no attempt got an HTTP response.
	FailureUnreachable Classification = iota + 1
	// FailureAllUnauthorized: every attempt was refused with 401.
	FailureAllUnauthorized
	// FailureMixed: anything else, typically wrong paths or dialects.
	FailureMixed
)

func (c Classification) String() string {
	switch c {
	case FailureUnreachable:
		return "unreachable"
	case FailureAllUnauthorized:
		return "all unauthorized"
	case FailureMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Classification) UnmarshalText(b []byte) error {
	for _, k := range []Classification{FailureUnreachable, FailureAllUnauthorized, FailureMixed} {
		if k.String() == string(b) {
			*c = k
			return nil
		}
	}
	return errors.Errorf("unknown classification %q", b)
}

// AttemptError is one failed attempt
type AttemptError struct {
	Attempt Attempt
	Err     error
}

func (e AttemptError) String() string {
	return fmt.Sprintf("port %d user %q %s %s: %v",
		e.Attempt.Endpoint.Port, e.Attempt.Credentials.Username, e.Attempt.Route.Variant, e.Attempt.Route.Path, e.Err)
}

// NegotiationFailure is returned by Connect when no attempt succeeded. It
// carries every attempt error so callers can show them all.
type NegotiationFailure struct {
	Host           string
	Attempts       []AttemptError
	Classification Classification
	Remediation    []string
}

func (f *NegotiationFailure) Error() string {
	return fmt.Sprintf("could not connect to %s: %d attempts failed (%s)", f.Host, len(f.Attempts), f.Classification)
}

// Report is the full multi-line diagnostic
func (f *NegotiationFailure) Report() string {
	var sb strings.Builder
	sb.WriteString(f.Error())
	sb.WriteString("\n")
	for _, a := range f.Attempts {
		sb.WriteString("  ")
		sb.WriteString(a.String())
		sb.WriteString("\n")
	}
	if len(f.Remediation) > 0 {
		sb.WriteString("suggestions:\n")
		for _, r := range f.Remediation {
			sb.WriteString("  - ")
			sb.WriteString(r)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (f *NegotiationFailure) add(at Attempt, err error) {
	f.Attempts = append(f.Attempts, AttemptError{Attempt: at, Err: err})
}

// classify sets the classification and the remediation list
func (f *NegotiationFailure) classify() {
	unauthorized, unreachable := 0, 0
	for _, a := range f.Attempts {
		switch {
		case errors.Is(a.Err, ptz.ErrUnauthorized):
			unauthorized++
		case errors.Is(a.Err, ptz.ErrUnreachable):
			unreachable++
		}
	}

	switch n := len(f.Attempts); {
	case n > 0 && unauthorized == n:
		f.Classification = FailureAllUnauthorized
	case n > 0 && unreachable == n:
		f.Classification = FailureUnreachable
	default:
		f.Classification = FailureMixed
	}
	f.Remediation = remediation[f.Classification]
}

var remediation = map[Classification][]string{
	FailureAllUnauthorized: {
		"credentials are likely wrong: check the username and password",
		"some cameras keep a separate ONVIF account; create one or pass it as the alternate user",
		"check that the account is allowed to use PTZ",
	},
	FailureUnreachable: {
		"check the host address and that the camera is on the network",
		"check that a firewall does not block ports 80, 8080, 443 and 8443",
		"set the port the camera's web interface listens on",
	},
	FailureMixed: {
		"enable ONVIF in the camera's web interface",
		"set the port the camera's ONVIF service listens on",
		"the camera may speak a dialect that is not supported",
	},
}

// AsNegotiationFailure extracts a NegotiationFailure from err
func AsNegotiationFailure(err error) (*NegotiationFailure, bool) {
	var f *NegotiationFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

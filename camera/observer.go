package camera

import (
	"fmt"
	"strings"
	"time"

	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/transport"
)

// Stage tells what an Event reports
type Stage string

const (
	StageProbe     Stage = "probe"
	StageAttempt   Stage = "attempt"
	StageConnected Stage = "connected"
	StageFailed    Stage = "failed"
)

// Event is one progress line of a negotiation. A probe event is emitted the
// first time each port is used, an attempt event for every candidate tried.
type Event struct {
	Stage    Stage       `json:"stage"`
	Time     time.Time   `json:"time"`
	Host     string      `json:"host"`
	Port     int         `json:"port,omitempty"`
	Username string      `json:"username,omitempty"`
	Variant  ptz.Variant `json:"-"`
	Protocol string      `json:"protocol,omitempty"`
	Path     string      `json:"path,omitempty"`
	Hint     string      `json:"hint,omitempty"`
	Error    string      `json:"error,omitempty"`
	Message  string      `json:"message"`
}

func (e Event) String() string {
	return e.Message
}

// Observer receives negotiation progress. It is called synchronously from
// the negotiating goroutine and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Observers fans an event out to several observers
type Observers []Observer

func (o Observers) OnEvent(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(e)
		}
	}
}

func probeEvent(host string, p transport.ProbeResult) Event {
	port := p.Endpoint.Port
	e := Event{Stage: StageProbe, Host: host, Port: port, Hint: p.Hint}
	switch {
	case !p.Reachable:
		e.Error = errString(p.Err)
		e.Message = fmt.Sprintf("port %d: unreachable (%s)", port, e.Error)
	default:
		var sb strings.Builder
		fmt.Fprintf(&sb, "port %d: reachable (HTTP %d", port, p.StatusCode)
		if p.Server != "" {
			fmt.Fprintf(&sb, ", server %q", p.Server)
		}
		if p.Realm != "" {
			fmt.Fprintf(&sb, ", realm %q", p.Realm)
		}
		sb.WriteString(")")
		if p.Hint != "" {
			fmt.Fprintf(&sb, ", looks like %s", p.Hint)
		}
		e.Message = sb.String()
	}
	return e
}

func attemptEvent(host string, at Attempt, err error) Event {
	e := Event{
		Stage:    StageAttempt,
		Host:     host,
		Port:     at.Endpoint.Port,
		Username: at.Credentials.Username,
		Variant:  at.Route.Variant,
		Protocol: at.Route.Variant.String(),
		Path:     at.Route.Path,
	}
	result := "ok"
	if err != nil {
		e.Error = err.Error()
		result = e.Error
	}
	e.Message = fmt.Sprintf("port %d user %q %s %s: %s", e.Port, e.Username, e.Protocol, e.Path, result)
	return e
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

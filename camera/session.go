// Package camera negotiates a connection to a camera and routes PTZ commands
// to the dialect it speaks.
package camera

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/use-go/ptzctl/adapter"
	"github.com/use-go/ptzctl/digest"
	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/transport"
)

// Session is one logical connection to one camera. It is either fully
// disconnected or fully connected; Connect builds it and Disconnect tears it
// down. Sessions share nothing: each owns its credentials and auth state.
type Session struct {
	mu        sync.RWMutex
	connected bool
	endpoint  ptz.Endpoint
	creds     ptz.Credentials
	variant   ptz.Variant
	info      ptz.DeviceInfo
	conn      *transport.Conn
	adapter   adapter.Adapter
	base      zerolog.Logger
	log       zerolog.Logger
}

// State is a point-in-time copy of a session, safe to hand to other goroutines
type State struct {
	Connected   bool              `json:"connected"`
	Endpoint    ptz.Endpoint      `json:"endpoint"`
	Username    string            `json:"username,omitempty"`
	Protocol    string            `json:"protocol,omitempty"`
	AuthMode    string            `json:"auth_mode,omitempty"`
	Realm       string            `json:"realm,omitempty"`
	Device      ptz.DeviceInfo    `json:"device"`
	Credentials ptz.Credentials   `json:"-"`
	Variant     ptz.Variant       `json:"-"`
	Mode        ptz.AuthMode      `json:"-"`
	Challenge   *digest.Challenge `json:"-"`
}

// NewSession returns a disconnected session
func NewSession(log zerolog.Logger) *Session {
	return &Session{base: log, log: log}
}

// establish fills every field at once; nothing outside sees a partial session
func (s *Session) establish(ep ptz.Endpoint, creds ptz.Credentials, variant ptz.Variant,
	info ptz.DeviceInfo, conn *transport.Conn, a adapter.Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
	}
	s.endpoint = ep
	s.creds = creds
	s.variant = variant
	s.info = info
	s.conn = conn
	s.adapter = a
	s.connected = true
	s.log = s.base.With().Str("camera", ep.String()).Logger()
}

// Disconnect clears every field and closes the connection: commands still
// in flight finish, later ones fail with ptz.ErrNotConnected
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
	}
	if s.connected {
		s.log.Info().Msg("disconnected")
	}
	s.connected = false
	s.endpoint = ptz.Endpoint{}
	s.creds = ptz.Credentials{}
	s.variant = ptz.Variant{}
	s.info = ptz.DeviceInfo{}
	s.conn = nil
	s.adapter = nil
	s.log = s.base
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Session) Variant() ptz.Variant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.variant
}

func (s *Session) Endpoint() ptz.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// AuthMode is the HTTP authentication the session settled on
func (s *Session) AuthMode() ptz.AuthMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ptz.AuthNone
	}
	return s.conn.Auth().Mode()
}

// State returns a copy of the session fields
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Connected:   s.connected,
		Endpoint:    s.endpoint,
		Username:    s.creds.Username,
		Device:      s.info,
		Credentials: s.creds,
		Variant:     s.variant,
	}
	if !s.variant.IsZero() {
		st.Protocol = s.variant.String()
	}
	if s.conn != nil {
		st.Mode = s.conn.Auth().Mode()
		st.Challenge = s.conn.Auth().Challenge()
		st.AuthMode = st.Mode.String()
		if st.Challenge != nil {
			st.Realm = st.Challenge.Realm
		}
	}
	return st
}

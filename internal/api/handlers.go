package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/errors"

	"github.com/use-go/ptzctl/camera"
	"github.com/use-go/ptzctl/identify"
	"github.com/use-go/ptzctl/ptz"
	"github.com/use-go/ptzctl/stream"
)

const sessionKey = "session"

type connectRequest struct {
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	AltUser  string `json:"alt_user"`
}

type sessionResponse struct {
	ID    string       `json:"id"`
	State camera.State `json:"state"`
}

type streamResponse struct {
	URI string `json:"uri"`
}

type errorResponse struct {
	Error          string                `json:"error"`
	Kind           string                `json:"kind,omitempty"`
	Classification camera.Classification `json:"classification,omitempty"`
	Attempts       []string              `json:"attempts,omitempty"`
	Remediation    []string              `json:"remediation,omitempty"`
}

// fail maps err onto a status code and aborts
func fail(c *gin.Context, err error) {
	if f, ok := camera.AsNegotiationFailure(err); ok {
		res := errorResponse{
			Error:          f.Error(),
			Classification: f.Classification,
			Remediation:    f.Remediation,
		}
		for _, a := range f.Attempts {
			res.Attempts = append(res.Attempts, a.String())
		}
		c.AbortWithStatusJSON(http.StatusBadGateway, res)
		return
	}

	status := http.StatusInternalServerError
	kind := ptz.Kind(err)
	switch kind {
	case ptz.ErrInvalidArgument:
		status = http.StatusBadRequest
	case ptz.ErrNotConnected:
		status = http.StatusConflict
	case ptz.ErrUnsupported:
		status = http.StatusNotImplemented
	case ptz.ErrUnauthorized, ptz.ErrUnreachable, ptz.ErrProtocolMismatch:
		status = http.StatusBadGateway
	}
	res := errorResponse{Error: err.Error()}
	if kind != nil {
		res.Kind = kind.Error()
	}
	c.AbortWithStatusJSON(status, res)
}

func badRequest(c *gin.Context, err error) {
	fail(c, errors.Annotate(ptz.ErrInvalidArgument, err.Error()))
}

func (s *Server) createSession(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ses, err := s.negotiator.Connect(c.Request.Context(), camera.Target{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		AltUser:  req.AltUser,
	})
	if err != nil {
		fail(c, err)
		return
	}

	id, err := newID()
	if err != nil {
		ses.Disconnect()
		fail(c, err)
		return
	}
	s.mu.Lock()
	s.sessions[id] = ses
	s.mu.Unlock()

	st := ses.State()
	s.publish(req.Host, st)
	c.JSON(http.StatusCreated, sessionResponse{ID: id, State: st})
}

func (s *Server) listSessions(c *gin.Context) {
	s.mu.RLock()
	out := make([]sessionResponse, 0, len(s.sessions))
	for id, ses := range s.sessions {
		out = append(out, sessionResponse{ID: id, State: ses.State()})
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, out)
}

// session resolves :id for the handlers of the group
func (s *Server) session(c *gin.Context) {
	id := c.Param("id")
	s.mu.RLock()
	ses, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "no session " + id})
		return
	}
	c.Set(sessionKey, ses)
	c.Next()
}

func current(c *gin.Context) *camera.Session {
	return c.MustGet(sessionKey).(*camera.Session)
}

func (s *Server) publish(host string, st camera.State) {
	if s.opts.States != nil {
		s.opts.States.PublishState(host, st)
	}
}

func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionResponse{ID: c.Param("id"), State: current(c).State()})
}

func (s *Server) deleteSession(c *gin.Context) {
	ses := current(c)
	host := ses.Endpoint().Host

	s.mu.Lock()
	delete(s.sessions, c.Param("id"))
	s.mu.Unlock()

	ses.Disconnect()
	s.publish(host, ses.State())
	c.Status(http.StatusNoContent)
}

func bindVector(c *gin.Context) (ptz.Vector, bool) {
	var v ptz.Vector
	if err := c.ShouldBindJSON(&v); err != nil {
		badRequest(c, err)
		return v, false
	}
	return v, true
}

func reply(c *gin.Context, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) move(c *gin.Context) {
	if v, ok := bindVector(c); ok {
		reply(c, current(c).ContinuousMove(c.Request.Context(), v))
	}
}

func (s *Server) stop(c *gin.Context) {
	reply(c, current(c).Stop(c.Request.Context()))
}

func (s *Server) absolute(c *gin.Context) {
	if v, ok := bindVector(c); ok {
		reply(c, current(c).AbsoluteMove(c.Request.Context(), v))
	}
}

func (s *Server) position(c *gin.Context) {
	v, err := current(c).GetPosition(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) goHome(c *gin.Context) {
	reply(c, current(c).GoHome(c.Request.Context()))
}

func (s *Server) setHome(c *gin.Context) {
	reply(c, current(c).SetHome(c.Request.Context()))
}

func presetParam(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		badRequest(c, errors.Errorf("preset %q is not a number", c.Param("n")))
		return 0, false
	}
	return n, true
}

func (s *Server) goToPreset(c *gin.Context) {
	if n, ok := presetParam(c); ok {
		reply(c, current(c).GoToPreset(c.Request.Context(), n))
	}
}

func (s *Server) setPreset(c *gin.Context) {
	if n, ok := presetParam(c); ok {
		reply(c, current(c).SetPreset(c.Request.Context(), n))
	}
}

// streamURI asks the camera, or with ?detect=true probes the common paths
func (s *Server) streamURI(c *gin.Context) {
	ses := current(c)
	ctx := c.Request.Context()

	if detect, _ := strconv.ParseBool(c.Query("detect")); detect {
		st := ses.State()
		if !st.Connected {
			fail(c, errors.Annotate(ptz.ErrNotConnected, "stream detect"))
			return
		}
		uri, err := stream.Detect(ctx, s.opts.Prober, st.Credentials, st.Endpoint.Host, s.log)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, streamResponse{URI: uri})
		return
	}

	uri, err := ses.StreamURI(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, streamResponse{URI: uri})
}

func (s *Server) discover(c *gin.Context) {
	timeout := 3 * time.Second
	if q := c.Query("timeout"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil || d <= 0 || d > time.Minute {
			badRequest(c, errors.Errorf("timeout %q: want a duration up to 1m", q))
			return
		}
		timeout = d
	}

	cams, err := s.opts.Discover(c.Request.Context(), timeout)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cams)
}

func (s *Server) identify(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := identify.Identify(c.Request.Context(), s.doer, identify.Target{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
	}, s.opts.Identify)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/live"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/metrics"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/store"
)

const maxBeaconBytes = 64 << 10

// Deps are the collaborators the HTTP layer routes to.
type Deps struct {
	Sessions agent.Persistence
	Registry *live.Registry
	Live     *live.Handler
	Log      *zap.Logger
}

// Server bundles HTTP router and dependencies.
type Server struct {
	Router *echo.Echo
	deps   Deps
	log    *zap.Logger
}

// New constructs the HTTP server with routes.
func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{Router: newRouter(), deps: deps, log: log}
	e := s.Router

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Completion is only ever recorded by the live session that produced the
	// scores, so there is no client-facing complete route.
	api := e.Group("/api/sessions/:token")
	api.POST("/start", s.start)
	api.POST("/abandon", s.abandon)

	e.GET("/ws/interview/:token", s.socket)
	return s
}

func (s *Server) start(c echo.Context) error {
	startedAt, err := s.deps.Sessions.StartSession(c.Request().Context(), c.Param("token"))
	if err != nil {
		return s.fail(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"startedAt": startedAt})
}

// abandon also serves navigator.sendBeacon, which posts text/plain. A session
// still live on this instance is terminated as a page unload so it decides
// the finalize kind itself. Otherwise only the reason is taken from the body;
// turns and scores from the client are never stored.
func (s *Server) abandon(c echo.Context) error {
	token := c.Param("token")
	if s.deps.Registry != nil {
		if sess, ok := s.deps.Registry.Get(token); ok {
			sess.Guard().PageUnload()
			return c.NoContent(http.StatusAccepted)
		}
	}
	reason, err := readReason(c.Request())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid abandon payload")
	}
	if reason == "" {
		reason = "page_unload"
	}
	if err := s.deps.Sessions.AbandonSession(c.Request().Context(), token, agent.Results{Reason: reason}); err != nil {
		return s.fail(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) socket(c echo.Context) error {
	if s.deps.Live == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "live sessions disabled")
	}
	s.deps.Live.ServeWS(c.Response(), c.Request(), c.Param("token"))
	return nil
}

func (s *Server) fail(err error) error {
	if errors.Is(err, store.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	s.log.Error("http: session backend", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "session backend unavailable")
}

const maxReasonLen = 64

// readReason accepts a JSON body regardless of content type and keeps only
// its reason; an empty body means none.
func readReason(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBeaconBytes))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(body)) == "" {
		return "", nil
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	reason := strings.TrimSpace(payload.Reason)
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	return reason, nil
}

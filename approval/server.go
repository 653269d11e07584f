package approval

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server accepts approval requests over HTTP.
type Server struct {
	echo     *echo.Echo
	verifier *Verifier
	approver Approver
	logger   *slog.Logger
	addr     string
}

// NewServer creates an approval webhook server listening on addr.
func NewServer(v *Verifier, a Approver, addr string, logger *slog.Logger) (*Server, error) {
	if v == nil || a == nil {
		return nil, errors.New("approval server needs a verifier and an approver")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = "localhost:8787"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"status", c.Response().Status,
				"duration", time.Since(start),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
			return err
		}
	})

	s := &Server{echo: e, verifier: v, approver: a, logger: logger, addr: addr}
	e.GET("/health", s.handleHealth)
	e.POST("/api/v1/approvals", s.handleApprove)
	return s, nil
}

// Response is the body returned for an approval request.
type Response struct {
	Status   string `json:"status"`
	Feature  string `json:"feature,omitempty"`
	Phase    int    `json:"phase,omitempty"`
	Approver string `json:"approver,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, Response{Status: "ok"})
}

func (s *Server) handleApprove(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ev, err := s.verifier.Verify(req)
	if err != nil {
		s.logger.Warn("rejected approval", "error", err, "remote", c.RealIP())
		status := http.StatusUnauthorized
		if errors.Is(err, ErrMalformedRequest) {
			status = http.StatusBadRequest
		}
		return c.JSON(status, Response{Status: "rejected", Error: err.Error()})
	}

	if err := s.approver.Approve(c.Request().Context(), ev); err != nil {
		s.logger.Warn("approval not applied", "feature", ev.Feature, "phase", ev.Phase, "error", err)
		return c.JSON(http.StatusConflict, Response{Status: "conflict", Feature: ev.Feature, Phase: ev.Phase, Error: err.Error()})
	}

	s.logger.Info("approval applied", "feature", ev.Feature, "phase", ev.Phase, "approver", ev.Approver, "method", ev.Method)
	return c.JSON(http.StatusOK, Response{Status: "approved", Feature: ev.Feature, Phase: ev.Phase, Approver: ev.Approver})
}

// Mount serves h for GET requests on path, e.g. a metrics handler.
func (s *Server) Mount(path string, h http.Handler) {
	s.echo.GET(path, echo.WrapHandler(h))
}

// Handler exposes the server's routes.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting approval server", "addr", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down approval server")
	return s.echo.Shutdown(ctx)
}

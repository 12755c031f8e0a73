// Package httpapi exposes the library and the reconciler over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"music-enricher/internal/core/reconcile"
	"music-enricher/internal/notify"
	"music-enricher/internal/shared"
)

const shutdownTimeout = 10 * time.Second

// Store is the read side of the library used by the handlers.
type Store interface {
	GetEntity(ctx context.Context, id int64) (*shared.LocalEntity, error)
	RecordsForEntity(ctx context.Context, entityID int64) ([]shared.ProviderRecord, error)
	Ping(ctx context.Context) error
}

// Reconciler runs identifications on request.
type Reconciler interface {
	Identify(ctx context.Context, entityID int64) (reconcile.Report, error)
	IdentifyWith(ctx context.Context, provider string, entityID int64) (reconcile.Outcome, error)
	Reconnect(ctx context.Context, provider, recordID string, entityID int64) error
}

// Options carries optional collaborators.
type Options struct {
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	Events   *notify.Bus
}

// Server wires the routes onto an echo instance.
type Server struct {
	echo   *echo.Echo
	store  Store
	rec    Reconciler
	events *notify.Bus
	logger *slog.Logger
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// EntityResponse is an entity with its connected records.
type EntityResponse struct {
	Entity  shared.LocalEntity      `json:"entity"`
	Records []shared.ProviderRecord `json:"records"`
}

type reconnectRequest struct {
	Provider string `json:"provider"`
	RecordID string `json:"record_id"`
}

// New builds the server and registers its routes.
func New(st Store, rec Reconciler, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, store: st, rec: rec, events: opts.Events, logger: logger}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("http request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency))
			return nil
		},
	}))

	e.GET("/healthz", s.health)
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api/v1")
	api.GET("/entities/:id", s.getEntity)
	api.GET("/entities/:id/records", s.getRecords)
	api.POST("/entities/:id/identify", s.identify)
	api.POST("/entities/:id/reconnect", s.reconnect)
	api.GET("/events", s.stream)
	return s
}

// Handler returns the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) fail(c echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}
	level := slog.LevelWarn
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(c.Request().Context(), level, "api error",
		slog.String("correlation_id", resp.CorrelationID),
		slog.String("message", message),
		slog.Int("code", code),
		slog.String("path", c.Request().URL.Path),
		slog.Any("error", err))
	return c.JSON(code, resp)
}

// failFor maps reconciler errors onto status codes.
func (s *Server) failFor(c echo.Context, err error) error {
	switch {
	case errors.Is(err, reconcile.ErrEntityNotFound):
		return s.fail(c, err, "Entity not found", http.StatusNotFound)
	case errors.Is(err, reconcile.ErrUnknownProvider):
		return s.fail(c, err, "Unknown provider", http.StatusBadRequest)
	case errors.Is(err, reconcile.ErrUnsupported):
		return s.fail(c, err, "Provider does not support this entity kind", http.StatusUnprocessableEntity)
	}
	return s.fail(c, err, "Identification failed", http.StatusInternalServerError)
}

// requestError reports errors caused by the request rather than a provider.
func requestError(err error) bool {
	return errors.Is(err, reconcile.ErrEntityNotFound) ||
		errors.Is(err, reconcile.ErrUnknownProvider) ||
		errors.Is(err, reconcile.ErrUnsupported)
}

func (s *Server) entityID(c echo.Context) (int64, error) {
	return shared.ParseEntityID(c.Param("id"))
}

func (s *Server) health(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return s.fail(c, err, "Database unavailable", http.StatusServiceUnavailable)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getEntity(c echo.Context) error {
	id, err := s.entityID(c)
	if err != nil {
		return s.fail(c, err, "Invalid entity id", http.StatusBadRequest)
	}
	ctx := c.Request().Context()
	entity, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return s.fail(c, err, "Failed to load entity", http.StatusInternalServerError)
	}
	if entity == nil {
		return s.fail(c, nil, "Entity not found", http.StatusNotFound)
	}
	records, err := s.store.RecordsForEntity(ctx, id)
	if err != nil {
		return s.fail(c, err, "Failed to load records", http.StatusInternalServerError)
	}
	if records == nil {
		records = []shared.ProviderRecord{}
	}
	return c.JSON(http.StatusOK, EntityResponse{Entity: *entity, Records: records})
}

func (s *Server) getRecords(c echo.Context) error {
	id, err := s.entityID(c)
	if err != nil {
		return s.fail(c, err, "Invalid entity id", http.StatusBadRequest)
	}
	records, err := s.store.RecordsForEntity(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err, "Failed to load records", http.StatusInternalServerError)
	}
	if records == nil {
		records = []shared.ProviderRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

// identify runs every supporting provider, or only ?provider=. Provider
// failures are reported in the body, not as an error status.
func (s *Server) identify(c echo.Context) error {
	id, err := s.entityID(c)
	if err != nil {
		return s.fail(c, err, "Invalid entity id", http.StatusBadRequest)
	}
	ctx := c.Request().Context()

	if name := c.QueryParam("provider"); name != "" {
		outcome, err := s.rec.IdentifyWith(ctx, name, id)
		if outcome == "" || requestError(err) {
			return s.failFor(c, err)
		}
		result := reconcile.ProviderResult{Provider: name, Outcome: outcome}
		if err != nil {
			result.Error = err.Error()
		}
		return c.JSON(http.StatusOK, result)
	}

	report, err := s.rec.Identify(ctx, id)
	if errors.Is(err, reconcile.ErrEntityNotFound) || (err != nil && len(report.Results) == 0) {
		return s.failFor(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) reconnect(c echo.Context) error {
	id, err := s.entityID(c)
	if err != nil {
		return s.fail(c, err, "Invalid entity id", http.StatusBadRequest)
	}
	var req reconnectRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.Provider == "" || req.RecordID == "" {
		return s.fail(c, nil, "provider and record_id are required", http.StatusBadRequest)
	}
	if err := s.rec.Reconnect(c.Request().Context(), req.Provider, req.RecordID, id); err != nil {
		if errors.Is(err, reconcile.ErrEntityNotFound) {
			return s.failFor(c, err)
		}
		return s.fail(c, err, "Reconnect failed", http.StatusConflict)
	}
	return c.NoContent(http.StatusNoContent)
}

// stream relays bus events as server-sent events until the client leaves.
func (s *Server) stream(c echo.Context) error {
	if s.events == nil {
		return s.fail(c, nil, "Event stream disabled", http.StatusNotFound)
	}
	events, unsubscribe := s.events.Subscribe(32)
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				s.logger.Warn("dropping unencodable event", slog.String("type", ev.Type), slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

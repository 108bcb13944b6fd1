// Package httpdebug serves device pool diagnostics and debug toggles over HTTP.
package httpdebug

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/audiopool/internal/devicepool"
	"github.com/tphakala/audiopool/internal/errors"
	"github.com/tphakala/audiopool/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a Manager through a small JSON API.
type Server struct {
	Echo *echo.Echo

	manager  *devicepool.Manager
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	done     chan error
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// ToggleResponse reports the state of a debug toggle after a request.
type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

// NameRequest carries a debug name; an empty name clears the setting.
type NameRequest struct {
	Name string `json:"name"`
}

// DevicesResponse lists the live devices and the pool focus.
type DevicesResponse struct {
	Devices    []devicepool.DeviceInfo `json:"devices"`
	Main       devicepool.Handle       `json:"main"`
	Active     devicepool.Handle       `json:"active"`
	Solo       devicepool.Handle       `json:"solo"`
	MainWorlds int                     `json:"main_worlds"`
	Debug      devicepool.DebugState   `json:"debug"`
}

// New builds a server for m. A nil gatherer disables /metrics.
func New(m *devicepool.Manager, gatherer prometheus.Gatherer) *Server {
	logger := logging.ForService("httpdebug")
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Echo:     echo.New(),
		manager:  m,
		gatherer: gatherer,
		logger:   logger,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true

	s.Echo.Use(middleware.Recover())
	s.setupRequestLogger()
	s.initRoutes()
	return s
}

func (s *Server) setupRequestLogger() {
	reqLogger := s.logger.With("component", "http.request")

	s.Echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelDebug
			switch {
			case v.Status >= http.StatusInternalServerError:
				level = slog.LevelError
			case v.Status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			reqLogger.Log(context.Background(), level, "http request", attrs...)
			return nil
		},
	}))
}

func (s *Server) initRoutes() {
	if s.gatherer != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.Echo.Group("/api/v1")
	api.GET("/devices", s.GetDevices)
	api.GET("/buffers", s.GetBuffers)
	api.POST("/devices/:handle/active", s.SetActive)
	api.POST("/devices/:handle/solo", s.SetSolo)
	api.DELETE("/solo", s.ClearSolo)

	debug := api.Group("/debug")
	debug.POST("/play-all", s.TogglePlayAll)
	debug.POST("/visualize3d", s.ToggleVisualize3d)
	debug.POST("/stats/:name", s.ToggleStat)
	debug.PUT("/solo/:kind", s.SetDebugSolo)
	debug.PUT("/mixer-sound", s.SetMixerSound)
}

// HandleError logs err and writes it as an ErrorResponse.
func (s *Server) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	s.logger.Warn("request failed",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", resp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method)

	return ctx.JSON(code, resp)
}

// GetDevices handles GET /api/v1/devices.
func (s *Server) GetDevices(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, DevicesResponse{
		Devices:    s.manager.Devices(),
		Main:       s.manager.MainDevice(),
		Active:     s.manager.ActiveDevice(),
		Solo:       s.manager.SoloDevice(),
		MainWorlds: s.manager.NumMainDeviceWorlds(),
		Debug:      s.manager.DebugState(),
	})
}

// GetBuffers handles GET /api/v1/buffers?sort=size|name&long=true.
func (s *Server) GetBuffers(ctx echo.Context) error {
	sortBy, err := devicepool.ParseSortBy(ctx.QueryParam("sort"))
	if err != nil {
		return s.HandleError(ctx, err, "Invalid sort order", http.StatusBadRequest)
	}

	longNames := false
	if raw := ctx.QueryParam("long"); raw != "" {
		longNames, err = strconv.ParseBool(raw)
		if err != nil {
			return s.HandleError(ctx, err, "Invalid long parameter", http.StatusBadRequest)
		}
	}

	return ctx.JSON(http.StatusOK, s.manager.Resources().ListSoundBuffers(sortBy, longNames))
}

// SetActive handles POST /api/v1/devices/:handle/active.
func (s *Server) SetActive(ctx echo.Context) error {
	h, code, err := s.handleParam(ctx)
	if err != nil {
		return s.handleParamError(ctx, code, err)
	}
	s.manager.SetActiveDevice(h)
	return s.GetDevices(ctx)
}

// SetSolo handles POST /api/v1/devices/:handle/solo.
func (s *Server) SetSolo(ctx echo.Context) error {
	h, code, err := s.handleParam(ctx)
	if err != nil {
		return s.handleParamError(ctx, code, err)
	}
	s.manager.SetSoloDevice(h)
	return s.GetDevices(ctx)
}

// ClearSolo handles DELETE /api/v1/solo.
func (s *Server) ClearSolo(ctx echo.Context) error {
	s.manager.SetSoloDevice(devicepool.NoHandle)
	return s.GetDevices(ctx)
}

// TogglePlayAll handles POST /api/v1/debug/play-all.
func (s *Server) TogglePlayAll(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ToggleResponse{Enabled: s.manager.TogglePlayAllDeviceAudio()})
}

// ToggleVisualize3d handles POST /api/v1/debug/visualize3d.
func (s *Server) ToggleVisualize3d(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ToggleResponse{Enabled: s.manager.ToggleVisualize3dDebug()})
}

// ToggleStat handles POST /api/v1/debug/stats/:name.
func (s *Server) ToggleStat(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ToggleResponse{Enabled: s.manager.ToggleDebugStat(ctx.Param("name"))})
}

// SetDebugSolo handles PUT /api/v1/debug/solo/:kind for class, wave and cue.
func (s *Server) SetDebugSolo(ctx echo.Context) error {
	var set func(string)
	switch ctx.Param("kind") {
	case "class":
		set = s.manager.SetDebugSoloSoundClass
	case "wave":
		set = s.manager.SetDebugSoloSoundWave
	case "cue":
		set = s.manager.SetDebugSoloSoundCue
	default:
		return s.HandleError(ctx, nil, "Unknown solo kind, expected class, wave or cue", http.StatusBadRequest)
	}

	req, err := s.bindName(ctx)
	if err != nil {
		return err
	}
	set(req.Name)
	return ctx.JSON(http.StatusOK, s.manager.DebugState())
}

// SetMixerSound handles PUT /api/v1/debug/mixer-sound.
func (s *Server) SetMixerSound(ctx echo.Context) error {
	req, err := s.bindName(ctx)
	if err != nil {
		return err
	}
	s.manager.SetAudioMixerDebugSound(req.Name)
	return ctx.JSON(http.StatusOK, s.manager.DebugState())
}

func (s *Server) bindName(ctx echo.Context) (NameRequest, error) {
	var req NameRequest
	if err := ctx.Bind(&req); err != nil {
		return req, s.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	return req, nil
}

// handleParam parses the :handle path parameter and checks it names a live
// device. On failure it returns the status code to answer with.
func (s *Server) handleParam(ctx echo.Context) (devicepool.Handle, int, error) {
	v, err := strconv.ParseUint(ctx.Param("handle"), 10, 32)
	if err != nil {
		return devicepool.NoHandle, http.StatusBadRequest, err
	}
	h := devicepool.Handle(v)
	if !s.manager.IsValidHandle(h) {
		return devicepool.NoHandle, http.StatusNotFound, ErrUnknownDevice
	}
	return h, http.StatusOK, nil
}

func (s *Server) handleParamError(ctx echo.Context, code int, err error) error {
	if code == http.StatusNotFound {
		return s.HandleError(ctx, err, "Device not found", code)
	}
	return s.HandleError(ctx, err, "Invalid device handle", code)
}

// Start listens on addr and serves in the background. The bound address is
// available from Addr once Start returns.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.New(err).
			Component(ComponentHTTPDebug).
			Category(errors.CategorySystem).
			Context("listen", addr).
			Build()
	}

	s.mu.Lock()
	s.listener = ln
	s.done = make(chan error, 1)
	done := s.done
	s.mu.Unlock()

	s.Echo.Listener = ln
	go func() {
		err := s.Echo.Start("")
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	s.logger.Info("diagnostics server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server and waits for the serve loop to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(ctx); err != nil {
		return err
	}
	return <-done
}

func correlationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

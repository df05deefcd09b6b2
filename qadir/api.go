package qadir

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	apiPrefix      = "/api"
	pprofPrefix    = "/debug"
	apiHealthCheck = "/healthz"
	apiMetrics     = "/metrics"

	apiPathEvents     = "/events"
	apiPathEvent      = "/events/:thread_id"
	apiPathProposals  = "/proposals"
	apiPathProposal   = "/proposals/:thread_id"
	apiPathActivities = "/activities"
)

const (
	xRequestIDHeader    = "X-Request-ID"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

var structValidator = validator.New()

// API is the admin HTTP server. It serves health checks, prometheus
// metrics and read-only views of the bot's records.
type API struct {
	q          *Qadir
	config     *APIConfig
	httpServer *http.Server
	listener   net.Listener
	engine     *gin.Engine
	logger     *slog.Logger
}

// newAPI builds the gin engine and HTTP server. Nothing listens until
// Serve is called.
func newAPI(q *Qadir, config *APIConfig) (*API, error) {
	if config == nil {
		return nil, fmt.Errorf("api config is nil")
	}

	if !config.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	api := &API{
		q:      q,
		config: config,
		engine: r,
		logger: slog.New(newLogHandler(config.LogLevel, "api")),
	}

	var tlsCfg *tls.Config
	if config.SSL.Cert != "" {
		var err error
		tlsCfg, err = tlsConfig(config.SSL.Cert, config.SSL.Key, config.SSL.TLSMinVersion)
		if err != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", err)
		}
	}

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		TLSConfig:         tlsCfg,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		ginLoggingMiddleware(api.logger),
		metricMiddleware(api),
	)

	corsConfig := config.CORS.GINConfig()
	if config.Development {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowOrigins = nil
	}
	if corsConfig.AllowAllOrigins || len(corsConfig.AllowOrigins) > 0 {
		r.Use(cors.New(corsConfig))
	}

	r.GET(apiHealthCheck, api.healthCheck)
	r.GET(
		apiMetrics,
		gin.WrapH(promhttp.HandlerFor(q.metrics.registry, promhttp.HandlerOpts{})),
	)

	if config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	protected := r.Group(apiPrefix)
	protected.Use(authMiddleware(config.Secret))

	protected.GET(apiPathEvents, api.getEvents)
	protected.GET(apiPathEvent, api.getEvent)
	protected.GET(apiPathProposals, api.getProposals)
	protected.GET(apiPathProposal, api.getProposal)
	protected.GET(apiPathActivities, api.getActivities)

	r.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, httpError{Error: "not found"})
	})

	return api, nil
}

// Serve listens on the configured address and serves until the server
// is shut down
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
		}
		if a.httpServer.TLSConfig != nil {
			ln = tls.NewListener(ln, a.httpServer.TLSConfig)
		}
		a.listener = ln
	}
	a.logger.InfoContext(ctx, "serving api", "address", a.listener.Addr().String())
	return a.httpServer.Serve(a.listener)
}

// Shutdown gracefully stops the server. It's a no-op if the server
// never started.
func (a *API) Shutdown(ctx context.Context) error {
	if a == nil || a.httpServer == nil {
		return nil
	}
	return a.httpServer.Shutdown(ctx)
}

// healthCheckResponse reports the state of each backing service
type healthCheckResponse struct {
	Healthy                 bool   `json:"healthy"`
	Redis                   bool   `json:"redis"`
	Database                bool   `json:"database"`
	DiscordGatewayConnected bool   `json:"discord_gateway_connected"`
	Version                 string `json:"version"`
	Uptime                  string `json:"uptime,omitempty"`
}

// httpError represents an error message returned to the client
type httpError struct {
	Error string `json:"error"`
}

type listEventsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=active completed archived"`
}

type listProposalsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=active closed"`
}

type listActivitiesQuery struct {
	UserID string `form:"user_id" binding:"required,numeric"`
}

// healthCheck pings redis and the store, and reports whether the
// discord gateway is connected. Responds 503 if anything is down.
func (a *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	logger := ginContextLogger(c)

	resp := healthCheckResponse{
		Version:                 a.q.config.App.Version,
		DiscordGatewayConnected: a.q.discord.connected.Load(),
	}
	if !a.q.startedAt.IsZero() {
		resp.Uptime = a.q.now().Sub(a.q.startedAt).Round(time.Second).String()
	}

	if a.q.cache != nil {
		if err := a.q.cache.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "redis health check failed", tint.Err(err))
		} else {
			resp.Redis = true
		}
	}
	if a.q.store != nil {
		if err := a.q.store.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database health check failed", tint.Err(err))
		} else {
			resp.Database = true
		}
	}

	resp.Healthy = resp.Redis && resp.Database && resp.DiscordGatewayConnected
	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// storeReady aborts with a 503 if the store isn't connected yet
func (a *API) storeReady(c *gin.Context) bool {
	if a.q.store == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, httpError{Error: "database not ready"})
		return false
	}
	return true
}

func (a *API) getEvents(c *gin.Context) {
	var query listEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	if !a.storeReady(c) {
		return
	}
	events, err := a.q.store.ListEvents(c.Request.Context(), EventStatus(query.Status))
	if err != nil {
		_ = c.Error(err)
		ginReplyError(c, "error listing events")
		return
	}
	if events == nil {
		events = []*Event{}
	}
	c.JSON(http.StatusOK, events)
}

func (a *API) getEvent(c *gin.Context) {
	if !a.storeReady(c) {
		return
	}
	event, err := a.q.store.EventByThread(c.Request.Context(), c.Param("thread_id"))
	switch {
	case errors.Is(err, ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, httpError{Error: "event not found"})
	case err != nil:
		_ = c.Error(err)
		ginReplyError(c, "error getting event")
	default:
		c.JSON(http.StatusOK, event)
	}
}

// getProposals lists proposals, active ones unless another status is
// requested
func (a *API) getProposals(c *gin.Context) {
	query := listProposalsQuery{Status: string(ProposalStatusActive)}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	if !a.storeReady(c) {
		return
	}
	proposals, err := a.q.store.ListProposals(c.Request.Context(), ProposalStatus(query.Status))
	if err != nil {
		_ = c.Error(err)
		ginReplyError(c, "error listing proposals")
		return
	}
	if proposals == nil {
		proposals = []*Proposal{}
	}
	c.JSON(http.StatusOK, proposals)
}

func (a *API) getProposal(c *gin.Context) {
	if !a.storeReady(c) {
		return
	}
	proposal, err := a.q.store.ProposalByThread(c.Request.Context(), c.Param("thread_id"))
	switch {
	case errors.Is(err, ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, httpError{Error: "proposal not found"})
	case err != nil:
		_ = c.Error(err)
		ginReplyError(c, "error getting proposal")
	default:
		c.JSON(http.StatusOK, proposal)
	}
}

func (a *API) getActivities(c *gin.Context) {
	var query listActivitiesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: err.Error()})
		return
	}
	if !a.storeReady(c) {
		return
	}
	activities, err := a.q.store.ListActivities(c.Request.Context(), query.UserID)
	if err != nil {
		_ = c.Error(err)
		ginReplyError(c, "error listing activities")
		return
	}
	if activities == nil {
		activities = []*Activity{}
	}
	c.JSON(http.StatusOK, activities)
}

// authMiddleware requires `Authorization: Bearer {secret}`. An empty
// secret disables the check.
func authMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		header := c.GetHeader(authorizationHeader)
		token, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			ginContextLogger(c).Warn("unauthorized api request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

// requestIDMiddleware assigns a unique request ID to each request, and
// echoes it in the response headers
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the request logger set by
// ginLoggingMiddleware, or the default logger
func ginContextLogger(c *gin.Context) *slog.Logger {
	if logger, ok := c.Get(string(loggerContextKey)); ok {
		if requestLogger, ok := logger.(*slog.Logger); ok {
			return requestLogger
		}
	}
	return slog.Default()
}

// ginLoggingMiddleware sets a request-scoped logger on the context and
// logs each request once it finishes
func ginLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID, _ := c.Get(xRequestIDHeader)
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}
		requestLogger := logger.With(
			slog.Group(
				"request",
				"method", c.Request.Method,
				"path", path,
				"remote_ip", c.RemoteIP(),
				"user_agent", c.Request.UserAgent(),
			),
			slog.Any(xRequestIDHeader, requestID),
		)
		c.Set(string(loggerContextKey), requestLogger)

		c.Next()

		response := slog.Group(
			"response",
			"status_code", c.Writer.Status(),
			"body_size", c.Writer.Size(),
		)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf("%s %s finished with errors", c.Request.Method, c.Request.URL.Path),
				"duration", time.Since(start),
				"errors", errs.Errors(),
				response,
			)
			return
		}
		requestLogger.Info(
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL.Path),
			"duration", time.Since(start),
			response,
		)
	}
}

// metricMiddleware counts requests by route and status code
func metricMiddleware(a *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		a.q.metrics.apiRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// ginReplyError aborts with HTTP 500 and a JSON error message
func ginReplyError(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: err})
}

//nolint:gochecknoinits // validator tag must be set before use
func init() {
	structValidator.SetTagName("binding")
}

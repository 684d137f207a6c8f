package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/crawlagent/config"
	"github.com/mohammad-safakhou/crawlagent/internal/agent"
	"github.com/mohammad-safakhou/crawlagent/internal/crawler"
	"github.com/mohammad-safakhou/crawlagent/internal/registry"
	"github.com/mohammad-safakhou/crawlagent/internal/runtime"
)

// Server exposes the crawl pipeline over HTTP.
type Server struct {
	cfg    *config.Config
	echo   *echo.Echo
	tools  *registry.Registry
	orch   *agent.Orchestrator
	logger *log.Logger
}

// New wires the full dependency graph from config: metrics, rate limiter,
// cache, fetcher, batch coordinator, search client, reasoning provider,
// planner and orchestrator.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	cfg.Normalize()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tools, orch := Toolset(cfg, reg)

	s := &Server{
		cfg:    cfg,
		tools:  tools,
		orch:   orch,
		logger: log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
	s.echo = s.buildEcho(reg)
	return s, nil
}

// Toolset wires the crawl pipeline from config: rate limiter, cache, fetcher,
// batch coordinator, search client, tool registry, reasoning provider and
// orchestrator. Shared by the HTTP server and the stdio transport.
func Toolset(cfg *config.Config, reg *prometheus.Registry) (*registry.Registry, *agent.Orchestrator) {
	metrics := runtime.NewMetrics(reg)

	limiter := crawler.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)
	cache := crawler.NewFreshnessCache(cfg.Cache.MaxEntries, cfg.Cache.TTL, cfg.Cache.MaxAge)

	var pages crawler.PageFetcher
	switch cfg.Fetch.Strategy {
	case "chromedp":
		pages = crawler.NewRenderedPageFetcher(cfg.Fetch.UserAgent, cfg.Fetch.Timeout)
	default:
		pages = crawler.NewHTTPPageFetcher(cfg.Fetch.UserAgent)
	}

	fetcher := crawler.NewFetcher(cfg.Fetch, limiter, cache, pages,
		crawler.ReadabilityExtractor{}, nil, metrics)
	batch := crawler.NewBatchCoordinator(fetcher, cfg.Fetch, cfg.Chunking, metrics)
	searx := crawler.NewSearxClient(cfg.Search, metrics)

	tools := registry.New(
		&registry.SearchTool{Client: searx},
		&registry.FetchTool{Fetcher: fetcher, Batch: batch},
		&registry.DateTimeTool{},
	)

	provider := agent.NewOpenAIProvider(cfg.LLM)
	planner := agent.NewPlanner(provider, tools)
	orch := agent.NewOrchestrator(planner, tools, metrics)
	return tools, orch
}

func (s *Server) buildEcho(reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	if secret, err := runtime.LoadJWTSecret(s.cfg); err == nil {
		api.Use(runtime.EchoAuthMiddleware(secret))
	}

	api.GET("/tools", s.handleTools)
	api.POST("/search", s.handleSearch)
	api.POST("/fetch", s.handleFetch)
	api.POST("/plan", s.handlePlan)
	api.GET("/datetime", s.handleDatetime)
	return e
}

func (s *Server) handleTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"tools": s.tools.Describe()})
}

func (s *Server) handleSearch(c echo.Context) error {
	return s.invokeTool(c, "search")
}

func (s *Server) handleFetch(c echo.Context) error {
	return s.invokeTool(c, "fetch_webpage")
}

func (s *Server) handleDatetime(c echo.Context) error {
	out, err := s.tools.Invoke(c.Request().Context(), "get_current_datetime", nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) invokeTool(c echo.Context, name string) error {
	var args map[string]any
	if err := c.Bind(&args); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := s.tools.Invoke(c.Request().Context(), name, args)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handlePlan(c echo.Context) error {
	req := agent.RunRequest{ExecutePlan: true, EnableRecovery: true}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.cfg.LLM.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	runID := uuid.NewString()
	s.logger.Printf("plan run %s: %q", runID, req.Query)
	c.Response().Header().Set("X-Run-ID", runID)

	env := s.orch.Run(c.Request().Context(), req)
	status := http.StatusOK
	if !env.Success {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, env)
}

// Start runs the HTTP listener until Shutdown.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s", s.cfg.Server.Address)
	return s.echo.Start(s.cfg.Server.Address)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

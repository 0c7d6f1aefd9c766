package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	config "github.com/frostwillmott/applybot/configs"
	"github.com/frostwillmott/applybot/pkg/api/middleware"
	"github.com/frostwillmott/applybot/pkg/apply"
	"github.com/frostwillmott/applybot/pkg/autoreply"
	"github.com/frostwillmott/applybot/pkg/hh"
	redisstore "github.com/frostwillmott/applybot/pkg/storage/redis"
	"github.com/frostwillmott/applybot/pkg/scheduler"
)

// Server is the thin HTTP shell over the scheduling core and the pipeline.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	log        *zap.Logger

	cfg       *config.Config
	scheduler *scheduler.Service
	applySvc  *apply.Service
	autoReply *autoreply.Service
	board     *hh.Client
	states    *redisstore.Client
}

// Config holds server dependencies.
type Config struct {
	AppConfig *config.Config
	Scheduler *scheduler.Service
	Apply     *apply.Service
	AutoReply *autoreply.Service
	Board     *hh.Client
	States    *redisstore.Client
	Logger    *zap.Logger
}

// NewServer builds the router and the HTTP server around it.
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics())

	s := &Server{
		router:    router,
		log:       cfg.Logger.With(zap.String("component", "api")),
		cfg:       cfg.AppConfig,
		scheduler: cfg.Scheduler,
		applySvc:  cfg.Apply,
		autoReply: cfg.AutoReply,
		board:     cfg.Board,
		states:    cfg.States,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.AppConfig.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
		// No WriteTimeout: the SSE stream runs for the length of a bulk run.
	}

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.log.Info("starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := s.router.Group("/auth")
	{
		auth.GET("/login", s.authLogin)
		auth.GET("/callback", s.authCallback)
	}

	sched := s.router.Group("/scheduler")
	{
		sched.GET("/settings", s.getSchedulerSettings)
		sched.POST("/settings", s.updateSchedulerSettings)
		sched.GET("/status", s.getSchedulerStatus)
		sched.POST("/run", s.triggerManualRun)
		sched.POST("/stop", s.cancelRun)
		sched.GET("/history", s.getRunHistory)
	}

	applyGroup := s.router.Group("/apply")
	{
		applyGroup.POST("/bulk/stream", s.bulkApplyStream)
		applyGroup.POST("/single/:vacancy_id", s.applySingle)
	}

	reply := s.router.Group("/auto-reply")
	{
		reply.GET("/settings", s.getAutoReplySettings)
		reply.POST("/settings", s.updateAutoReplySettings)
		reply.GET("/history", s.getAutoReplyHistory)
	}

	s.router.GET("/resumes", s.listResumes)
}

// healthCheck reports process health plus host resource usage.
func (s *Server) healthCheck(c *gin.Context) {
	resources := gin.H{}
	if v, err := mem.VirtualMemory(); err == nil {
		resources["memory_used_percent"] = v.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resources["cpu_percent"] = percents[0]
	}

	status := s.scheduler.GetStatus()
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"scheduler_running": status.SchedulerRunning,
		"resources":         resources,
		"timestamp":         time.Now().UTC(),
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/localpulse/localpulse/pkg/config"
	"github.com/localpulse/localpulse/pkg/db"
	"github.com/localpulse/localpulse/pkg/event"
	"github.com/localpulse/localpulse/pkg/handler"
	"github.com/localpulse/localpulse/pkg/models"
	"github.com/localpulse/localpulse/pkg/service"
	"github.com/localpulse/localpulse/pkg/utils"
)

type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	cfg       *config.AppConfig
	port      int
}

func NewServer(cfg *config.AppConfig) *Server {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: allow localhost dev origins for the dashboard.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// If there's no Origin header, it's not a browser CORS request.
		if origin != "" {
			allowed := strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			} else {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	server := &Server{
		ginEngine: ginEngine,
		logger:    utils.GetLogger(),
		cfg:       cfg,
	}

	server.SetupRoutes()

	return server
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen first; if the port is occupied return immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = s.cfg.Port()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	// Graceful shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}

	s.logger.Info("Server listening", "addr", addr)
	return nil
}

func (s *Server) SetupRoutes() {
	database, err := db.Open(s.cfg.DBDriver(), s.cfg.DBDSN())
	if err != nil {
		s.logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if addr := s.cfg.RedisAddr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:        addr,
			Password:    s.cfg.RedisPassword(),
			DB:          s.cfg.RedisDB(),
			DialTimeout: 10 * time.Second,
		})
	}

	modelService := service.NewModelService()

	storeConfig := service.DefaultSignalStoreConfig()
	storeConfig.EnableVectorIndex = s.cfg.VectorIndexEnabled()
	storeService, err := service.NewSignalStoreService(database, storeConfig)
	if err != nil {
		s.logger.Error("Failed to create signal store", "error", err)
		os.Exit(1)
	}
	storeService.SetModelService(modelService)

	extractionService := service.NewSignalExtractionService(modelService, service.DefaultExtractionConfig())
	aggregationService := service.NewAggregationService(database, storeService, service.DefaultAggregationConfig())
	insightService := service.NewInsightService(database, aggregationService, storeService)

	marketConfig := service.DefaultMarketConfig()
	marketConfig.RedisHotTier = rdb != nil
	marketService := service.NewMarketService(database, rdb, marketConfig)

	for name, migrate := range map[string]func() error{
		"signals":  storeService.AutoMigrate,
		"profiles": aggregationService.AutoMigrate,
		"insights": insightService.AutoMigrate,
		"market":   marketService.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			s.logger.Error("Migration failed", "store", name, "error", err)
			os.Exit(1)
		}
	}

	taskService := service.NewTaskService(2)

	chatHandler := handler.NewChatHandler(extractionService, storeService, aggregationService, taskService)
	profileHandler := handler.NewProfileHandler(aggregationService)
	insightHandler := handler.NewInsightHandler(insightService)
	signalHandler := handler.NewSignalHandler(storeService)
	marketHandler := handler.NewMarketHandler(marketService, service.StaticMarketFetcher{})
	taskHandler := handler.NewTaskHandler(taskService)

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	// Runtime info (for the dashboard to discover correct base URLs)
	apiGroup.GET("/runtime", func(c *gin.Context) {
		host := "127.0.0.1"
		port := s.port
		if port == 0 {
			port = s.cfg.Port()
		}

		c.JSON(http.StatusOK, models.RuntimeInfo{
			HTTPBaseURL: fmt.Sprintf("http://%s:%d", host, port),
			WSBaseURL:   fmt.Sprintf("ws://%s:%d", host, port),
			Port:        port,
		})
	})

	chatHandler.RegisterRoutes(apiGroup)
	profileHandler.RegisterRoutes(apiGroup)
	insightHandler.RegisterRoutes(apiGroup)
	signalHandler.RegisterRoutes(apiGroup)
	marketHandler.RegisterRoutes(apiGroup)
	taskHandler.RegisterRoutes(apiGroup)

	// Model management API routes
	// /api/models
	apiGroup.GET("/models", modelService.GetModelList)
	apiGroup.POST("/models", modelService.AddModel)
	apiGroup.PUT("/models/:id", modelService.EditModel)
	apiGroup.DELETE("/models/:id", modelService.DeleteModel)

	// Event notification stream
	// /api/events/ws
	wsHandler := event.NewWSHandler()
	apiGroup.GET("/events/ws", wsHandler.Handle)
}

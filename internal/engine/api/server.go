// Package api exposes the engine over HTTP: function registration CRUD, the
// direct-request intake, and the worker-facing task acquisition protocol.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/R3E-Network/r3e-faas-go/internal/engine"
	"github.com/R3E-Network/r3e-faas-go/internal/engine/api/handlers"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
)

type Server struct {
	router *gin.Engine
	srv    *http.Server
	logger logging.Logger
}

func NewServer(e *engine.Engine, port string, logger logging.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, If-None-Match")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	s := &Server{
		router: router,
		logger: logger,
		srv: &http.Server{
			Addr:    ":" + port,
			Handler: router,
			// Acquire long-polls can park up to a minute.
			ReadTimeout:  90 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
	}
	s.registerRoutes(e)
	return s
}

func (s *Server) registerRoutes(e *engine.Engine) {
	handler := handlers.NewHandler(e, s.logger)

	api := s.router.Group("/api")

	api.POST("/functions", handler.RegisterFunction)
	api.GET("/functions", handler.ListFunctions)
	api.GET("/functions/:id", handler.GetFunction)
	api.PUT("/functions/:id", handler.UpdateFunction)
	api.DELETE("/functions/:id", handler.DeleteFunction)
	api.GET("/functions/:id/code", handler.GetFunctionCode)
	api.GET("/functions/:id/executions", handler.ListExecutions)

	api.POST("/events", handler.SubmitEvent)
	api.GET("/events", handler.ListEvents)

	api.POST("/tasks/acquire", handler.AcquireTask)
	api.POST("/tasks/:id/ack", handler.AckTask)
	api.POST("/workers/release", handler.ReleaseWorker)

	api.GET("/health", handler.Health)
}

// Router is exposed for handler tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Infof("Starting engine API on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"

	"github.com/xplain-ai/xplain-server/internal/api/middleware"
	"github.com/xplain-ai/xplain-server/internal/config"
)

type Server struct {
	listenAddr string
	ginEngine  *gin.Engine
	inner      *http.Server
}

func NewServer(config *config.Config) (*Server, error) {
	gin.SetMode(getGinMode(config.Environment))
	r := gin.New()

	r.Use(logger.SetLogger(
		logger.WithUTC(true),
		logger.WithSkipPath([]string{}),
	))

	r.Use(cors.New(
		cors.Config{
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowOrigins:     []string{"*"},
			AllowHeaders:     []string{"*"},
			ExposeHeaders:    []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		},
	))

	r.Use(middleware.RequestIDMiddleware)
	r.Use(gin.Recovery())

	listenAddr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	return &Server{
		listenAddr: listenAddr,
		ginEngine:  r,
		inner: &http.Server{
			Handler: r,
			Addr:    listenAddr,
		},
	}, nil
}

func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return s.inner.Shutdown(ctx)
}

// Engine exposes the gin engine for httptest-driven tests.
func (s *Server) Engine() *gin.Engine {
	return s.ginEngine
}

func getGinMode(env string) string {
	switch env {
	case "dev":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}

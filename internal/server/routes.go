package server

import (
	"github.com/gin-gonic/gin"

	"github.com/xplain-ai/xplain-server/internal/api"
	"github.com/xplain-ai/xplain-server/internal/api/middleware"
	"github.com/xplain-ai/xplain-server/internal/app"
)

func (s *Server) SetupRoutes(app *app.App) {
	// Health/readiness probe; reachable before the captioner loads.
	s.ginEngine.GET("/", handlerWrapper(app, api.Health))

	// Predict endpoints are gated on startup readiness.
	predict := s.ginEngine.Group("/")
	predict.Use(handlerWrapper(app, middleware.ReadinessMiddleware))

	predict.POST("/predict", handlerWrapper(app, api.Predict))
	predict.POST("/predict_batch", handlerWrapper(app, api.PredictBatch))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}

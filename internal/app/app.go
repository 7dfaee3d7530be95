package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/xplain-ai/xplain-server/internal/config"
	"github.com/xplain-ai/xplain-server/internal/resolver"
	"github.com/xplain-ai/xplain-server/internal/startup"
	"github.com/xplain-ai/xplain-server/pkg/logger"
)

// App wires the long-lived pieces of the process together: config,
// logger, the model resolver and the startup orchestrator. Request
// handlers reach everything through it.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	orchestrator *startup.Orchestrator

	ctx        context.Context
	cancelFunc context.CancelFunc
}

type OptionFunc func(app *App) error

// WithResolverOptions replaces fetchers inside the resolver; used by
// tests to keep startup off the network.
func WithResolverOptions(opts ...resolver.Option) OptionFunc {
	return func(app *App) error {
		res := resolver.NewResolver(app.cfg, app.logger.Named("resolver"), opts...)
		app.orchestrator = startup.NewOrchestrator(app.cfg, res, app.logger.Named("startup"))
		return nil
	}
}

func NewApp(cfg *config.Config, options ...OptionFunc) (*App, error) {
	l, err := logger.InitLogger(cfg.Environment)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		cfg:        cfg,
		logger:     l,
		ctx:        ctx,
		cancelFunc: cancel,
	}

	res := resolver.NewResolver(cfg, l.Named("resolver"))
	app.orchestrator = startup.NewOrchestrator(cfg, res, l.Named("startup"))

	for _, opt := range options {
		if err := opt(app); err != nil {
			cancel()
			return nil, err
		}
	}

	return app, nil
}

func (app *App) Close() {
	app.cancelFunc()
	app.logger.Sync()
}

func (app *App) Config() *config.Config {
	return app.cfg
}

func (app *App) Logger() *zap.Logger {
	return app.logger
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) Orchestrator() *startup.Orchestrator {
	return app.orchestrator
}

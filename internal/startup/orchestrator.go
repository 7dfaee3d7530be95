package startup

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xplain-ai/xplain-server/internal/captioning"
	"github.com/xplain-ai/xplain-server/internal/config"
	"github.com/xplain-ai/xplain-server/internal/resolver"
)

// State is the observable startup phase. Transitions are strictly
// sequential and one-shot per process; FAILED is terminal and reachable
// from any non-READY state.
type State int32

const (
	StateInitializing State = iota
	StateResolvingModel
	StateValidating
	StateLoadingCaptioner
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateResolvingModel:
		return "RESOLVING_MODEL"
	case StateValidating:
		return "VALIDATING"
	case StateLoadingCaptioner:
		return "LOADING_CAPTIONER"
	case StateReady:
		return "READY"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Orchestrator sequences resolution, validation and captioner loading
// exactly once, then holds the ready captioner for the request handlers.
// There is no retry-and-continue: any failure leaves the machine in
// FAILED and the process exits non-zero, delegating recovery to the
// external supervisor.
type Orchestrator struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	logger   *zap.Logger

	state     atomic.Int32
	captioner atomic.Pointer[captioning.Captioner]
	resolved  atomic.Pointer[resolver.ResolvedModel]
}

func NewOrchestrator(cfg *config.Config, res *resolver.Resolver, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		resolver: res,
		logger:   logger,
	}
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Captioner returns the loaded captioner; ok is false until READY.
func (o *Orchestrator) Captioner() (captioning.Captioner, bool) {
	c := o.captioner.Load()
	if c == nil {
		return nil, false
	}
	return *c, true
}

// ResolvedModel reports where the served weights came from; nil before
// validation completes.
func (o *Orchestrator) ResolvedModel() *resolver.ResolvedModel {
	return o.resolved.Load()
}

// Run drives the state machine to READY or FAILED. Blocking for a long
// time here is legitimate: it happens before the service accepts
// predict traffic.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.transition(StateResolvingModel)
	if err := o.resolver.FetchRemote(ctx); err != nil {
		return o.fail(err)
	}

	o.transition(StateValidating)
	resolved, err := o.resolver.Validate(ctx)
	if err != nil {
		return o.fail(err)
	}
	o.resolved.Store(resolved)

	o.transition(StateLoadingCaptioner)
	captioner, err := captioning.Load(o.cfg.ModelFamily, resolved.Dir, captioning.DecodeParams{
		BeamSize:     o.cfg.BeamSize,
		MaxNewTokens: o.cfg.MaxNewTokens,
	}, o.logger.Named("captioner"))
	if err != nil {
		return o.fail(err)
	}

	o.captioner.Store(&captioner)
	o.transition(StateReady)
	return nil
}

func (o *Orchestrator) transition(next State) {
	prev := State(o.state.Swap(int32(next)))
	o.logger.Info("startup state transition",
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}

func (o *Orchestrator) fail(err error) error {
	o.transition(StateFailed)
	o.logger.Error("startup failed", zap.Error(err))
	return err
}

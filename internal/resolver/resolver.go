package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xplain-ai/xplain-server/internal/captioning"
	"github.com/xplain-ai/xplain-server/internal/config"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported remote model URI")
	ErrDownloadFailed    = errors.New("model download failed")
	ErrNoModel           = errors.New("no valid model directory")
)

// SourceKind records where the resolved model ultimately came from.
type SourceKind string

const (
	SourceLocal    SourceKind = "local"
	SourceRemote   SourceKind = "remote"
	SourceFallback SourceKind = "fallback"
)

// ResolvedModel is a local directory guaranteed, post-validation, to
// contain a manifest and the associated model artifacts.
type ResolvedModel struct {
	Dir    string
	Source SourceKind
}

// RemoteFetcher downloads every object under a remote URI prefix into a
// local directory.
type RemoteFetcher interface {
	Fetch(ctx context.Context, uri *SourceURI, dir string) error
}

// Resolver decides where model weights come from and materializes a
// local directory holding them. Priority is strict: a configured remote
// URI is authoritative, an already-populated local directory comes next,
// and the hosted fallback is consulted only when explicitly allowed.
type Resolver struct {
	cfg    *config.Config
	logger *zap.Logger

	remotes  map[string]RemoteFetcher
	fallback FallbackFetcher
}

type Option func(r *Resolver)

// WithRemoteFetcher overrides the fetcher for one URI scheme.
func WithRemoteFetcher(scheme string, fetcher RemoteFetcher) Option {
	return func(r *Resolver) {
		r.remotes[scheme] = fetcher
	}
}

// WithFallbackFetcher overrides the hosted-fallback fetcher.
func WithFallbackFetcher(fetcher FallbackFetcher) Option {
	return func(r *Resolver) {
		r.fallback = fetcher
	}
}

func NewResolver(cfg *config.Config, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:    cfg,
		logger: logger,
		remotes: map[string]RemoteFetcher{
			SchemeGCS: newGCSFetcher(logger),
			SchemeS3:  newS3Fetcher(logger),
		},
		fallback: newHubFetcher(logger),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// FetchRemote downloads the configured remote model into the local
// model directory. With no remote URI configured this is a no-op: the
// local directory is expected to already contain weights, and no network
// activity happens at all. A download failure is fatal and is never
// rescued by the hosted fallback; an operator who configured a remote
// source expects it to be authoritative.
func (r *Resolver) FetchRemote(ctx context.Context) error {
	if r.cfg.RemoteModelURI == "" {
		r.logger.Info("no remote model URI set, using local directory contents",
			zap.String("local_dir", r.cfg.LocalModelDir))
		return nil
	}

	uri, err := ParseSourceURI(r.cfg.RemoteModelURI)
	if err != nil {
		return err
	}

	fetcher, ok := r.remotes[uri.Scheme]
	if !ok {
		return fmt.Errorf("%w: no fetcher for scheme %q", ErrUnsupportedScheme, uri.Scheme)
	}

	r.logger.Info("downloading model from remote source",
		zap.String("uri", uri.Original),
		zap.String("local_dir", r.cfg.LocalModelDir),
	)

	if err := fetcher.Fetch(ctx, uri, r.cfg.LocalModelDir); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	return nil
}

// Validate checks that the local model directory holds a manifest for
// the configured family, falling back to the hosted snapshot only when
// nothing local matched, no remote source was configured, and the
// fallback is explicitly allowed. This keeps an operator from silently
// serving generic weights when a specific finetuned model was intended.
func (r *Resolver) Validate(ctx context.Context) (*ResolvedModel, error) {
	dir := r.findModelDir(r.cfg.LocalModelDir)
	if dir != "" {
		source := SourceLocal
		if r.cfg.RemoteModelURI != "" {
			source = SourceRemote
		}

		r.logger.Info("model directory validated",
			zap.String("dir", dir),
			zap.String("source", string(source)),
		)
		return &ResolvedModel{Dir: dir, Source: source}, nil
	}

	if r.cfg.RemoteModelURI != "" {
		return nil, fmt.Errorf("%w: downloaded contents of %s have no %s manifest for family %q",
			ErrNoModel, r.cfg.LocalModelDir, captioning.ManifestFilename, r.cfg.ModelFamily)
	}

	if !r.cfg.AllowHFFallback {
		return nil, fmt.Errorf("%w: %s has no %s manifest for family %q and the hosted fallback is disabled",
			ErrNoModel, r.cfg.LocalModelDir, captioning.ManifestFilename, r.cfg.ModelFamily)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fallbackDir, err := r.fallback.Fetch(r.cfg.HFModelName)
	if err != nil {
		return nil, fmt.Errorf("%w: hosted fallback: %v", ErrNoModel, err)
	}

	if err := captioning.ProbeManifest(fallbackDir, r.cfg.ModelFamily); err != nil {
		return nil, fmt.Errorf("%w: hosted fallback snapshot: %v", ErrNoModel, err)
	}

	r.logger.Warn("serving hosted fallback weights",
		zap.String("model", r.cfg.HFModelName),
		zap.String("dir", fallbackDir),
	)
	return &ResolvedModel{Dir: fallbackDir, Source: SourceFallback}, nil
}

// findModelDir locates the model folder under root. The root itself may
// be the model folder, or the parent of exactly one; with several
// candidates we refuse to guess.
func (r *Resolver) findModelDir(root string) string {
	if captioning.ProbeManifest(root, r.cfg.ModelFamily) == nil {
		return root
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}

	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		child := filepath.Join(root, entry.Name())
		if captioning.ProbeManifest(child, r.cfg.ModelFamily) == nil {
			candidates = append(candidates, child)
		}
	}

	if len(candidates) == 1 {
		return candidates[0]
	}
	if len(candidates) > 1 {
		r.logger.Warn("multiple model folders found, refusing to guess",
			zap.String("root", root),
			zap.Strings("candidates", candidates),
		)
	}

	return ""
}

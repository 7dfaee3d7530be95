package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xplain-ai/xplain-server/internal/captioning/captioningtest"
	"github.com/xplain-ai/xplain-server/internal/config"
)

type fakeRemote struct {
	called   bool
	err      error
	populate bool
}

func (f *fakeRemote) Fetch(_ context.Context, _ *SourceURI, dir string) error {
	f.called = true
	if f.err != nil {
		return f.err
	}
	if f.populate {
		return captioningtest.WriteManifest(dir)
	}
	return nil
}

type fakeFallback struct {
	called bool
	dir    string
	err    error
}

func (f *fakeFallback) Fetch(string) (string, error) {
	f.called = true
	return f.dir, f.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ModelFamily:   "blip",
		LocalModelDir: t.TempDir(),
		BeamSize:      3,
		MaxNewTokens:  8,
	}
}

func TestFetchRemoteSkippedWhenUnset(t *testing.T) {
	cfg := testConfig(t)
	remote := &fakeRemote{}
	r := NewResolver(cfg, zap.NewNop(), WithRemoteFetcher(SchemeGCS, remote))

	require.NoError(t, r.FetchRemote(context.Background()))
	assert.False(t, remote.called, "no download may happen without a remote URI")
}

func TestFetchRemoteDownloadFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.RemoteModelURI = "gs://bucket/models/finetuned"
	cfg.AllowHFFallback = true

	remote := &fakeRemote{err: errors.New("permission denied")}
	r := NewResolver(cfg, zap.NewNop(), WithRemoteFetcher(SchemeGCS, remote))

	err := r.FetchRemote(context.Background())
	require.ErrorIs(t, err, ErrDownloadFailed)
	assert.True(t, remote.called)
}

func TestFetchRemoteUnsupportedScheme(t *testing.T) {
	cfg := testConfig(t)
	cfg.RemoteModelURI = "ftp://bucket/models"

	r := NewResolver(cfg, zap.NewNop())
	require.ErrorIs(t, r.FetchRemote(context.Background()), ErrUnsupportedScheme)
}

func TestValidateLocalDirectory(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, captioningtest.WriteManifest(cfg.LocalModelDir))

	r := NewResolver(cfg, zap.NewNop())
	resolved, err := r.Validate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, cfg.LocalModelDir, resolved.Dir)
	assert.Equal(t, SourceLocal, resolved.Source)
}

func TestValidateRemoteDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.RemoteModelURI = "gs://bucket/models/finetuned"
	require.NoError(t, captioningtest.WriteManifest(cfg.LocalModelDir))

	r := NewResolver(cfg, zap.NewNop())
	resolved, err := r.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, resolved.Source)
}

func TestValidateSingleSubdirectory(t *testing.T) {
	cfg := testConfig(t)
	child := filepath.Join(cfg.LocalModelDir, "cxiu_blip_baseline")
	require.NoError(t, os.MkdirAll(child, 0o755))
	require.NoError(t, captioningtest.WriteManifest(child))

	r := NewResolver(cfg, zap.NewNop())
	resolved, err := r.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, child, resolved.Dir)
}

func TestValidateRefusesToGuessAmongSubdirectories(t *testing.T) {
	cfg := testConfig(t)
	for _, name := range []string{"model_a", "model_b"} {
		child := filepath.Join(cfg.LocalModelDir, name)
		require.NoError(t, os.MkdirAll(child, 0o755))
		require.NoError(t, captioningtest.WriteManifest(child))
	}

	r := NewResolver(cfg, zap.NewNop())
	_, err := r.Validate(context.Background())
	require.ErrorIs(t, err, ErrNoModel)
}

func TestValidateFallbackDisallowed(t *testing.T) {
	cfg := testConfig(t)
	fallback := &fakeFallback{}

	r := NewResolver(cfg, zap.NewNop(), WithFallbackFetcher(fallback))
	_, err := r.Validate(context.Background())

	require.ErrorIs(t, err, ErrNoModel)
	assert.False(t, fallback.called)
}

func TestValidateFallbackUsed(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowHFFallback = true

	snapshot := t.TempDir()
	require.NoError(t, captioningtest.WriteManifest(snapshot))
	fallback := &fakeFallback{dir: snapshot}

	r := NewResolver(cfg, zap.NewNop(), WithFallbackFetcher(fallback))
	resolved, err := r.Validate(context.Background())
	require.NoError(t, err)

	assert.True(t, fallback.called)
	assert.Equal(t, snapshot, resolved.Dir)
	assert.Equal(t, SourceFallback, resolved.Source)
}

func TestValidateFallbackNotConsultedForRemote(t *testing.T) {
	// A configured remote source is authoritative: a bad download result
	// must not be papered over with generic hosted weights.
	cfg := testConfig(t)
	cfg.RemoteModelURI = "gs://bucket/models/finetuned"
	cfg.AllowHFFallback = true
	fallback := &fakeFallback{dir: t.TempDir()}

	r := NewResolver(cfg, zap.NewNop(), WithFallbackFetcher(fallback))
	_, err := r.Validate(context.Background())

	require.ErrorIs(t, err, ErrNoModel)
	assert.False(t, fallback.called)
}

func TestValidateFallbackSnapshotInvalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowHFFallback = true
	fallback := &fakeFallback{dir: t.TempDir()} // empty snapshot, no manifest

	r := NewResolver(cfg, zap.NewNop(), WithFallbackFetcher(fallback))
	_, err := r.Validate(context.Background())
	require.ErrorIs(t, err, ErrNoModel)
}

func TestParseSourceURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantScheme string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{uri: "gs://bucket/models/finetuned", wantScheme: SchemeGCS, wantBucket: "bucket", wantPrefix: "models/finetuned"},
		{uri: "s3://bucket/models/", wantScheme: SchemeS3, wantBucket: "bucket", wantPrefix: "models"},
		{uri: "gs://bucket", wantScheme: SchemeGCS, wantBucket: "bucket", wantPrefix: ""},
		{uri: "https://bucket/models", wantErr: true},
		{uri: "gs:///models", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			parsed, err := ParseSourceURI(tt.uri)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedScheme)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantScheme, parsed.Scheme)
			assert.Equal(t, tt.wantBucket, parsed.Bucket)
			assert.Equal(t, tt.wantPrefix, parsed.Prefix)
		})
	}
}

func TestSourceURIRelativePath(t *testing.T) {
	uri, err := ParseSourceURI("gs://bucket/models/finetuned")
	require.NoError(t, err)

	assert.Equal(t, "config.json", uri.relativePath("models/finetuned/config.json"))
	assert.Equal(t, "", uri.relativePath("models/finetuned/"))
	assert.Equal(t, "sub/weights.bin", uri.relativePath("models/finetuned/sub/weights.bin"))
}

package resolver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

const downloadConcurrency = 4

// gcsFetcher downloads a model folder from Google Cloud Storage through
// the JSON API. Credentials are discovered from the environment if
// present (ADC); when discovery fails the client falls back to
// unauthenticated access, which still works for public buckets. The
// fetcher never prompts for or stores credentials itself.
type gcsFetcher struct {
	logger *zap.Logger
}

func newGCSFetcher(logger *zap.Logger) *gcsFetcher {
	return &gcsFetcher{logger: logger}
}

func (f *gcsFetcher) Fetch(ctx context.Context, uri *SourceURI, dir string) error {
	svc, err := storage.NewService(ctx)
	if err != nil {
		f.logger.Warn("no ambient GCS credentials, retrying unauthenticated", zap.Error(err))
		svc, err = storage.NewService(ctx, option.WithoutAuthentication())
		if err != nil {
			return fmt.Errorf("failed to create GCS client: %w", err)
		}
	}

	var objects []*storage.Object
	var totalBytes int64
	call := svc.Objects.List(uri.Bucket).Prefix(uri.Prefix).Context(ctx)
	err = call.Pages(ctx, func(page *storage.Objects) error {
		for _, obj := range page.Items {
			if uri.relativePath(obj.Name) == "" {
				continue // the prefix "folder" placeholder itself
			}
			objects = append(objects, obj)
			totalBytes += int64(obj.Size)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list objects under %s: %w", uri.Original, err)
	}

	if len(objects) == 0 {
		return fmt.Errorf("no objects found under %s", uri.Original)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	progress := newDownloadProgress(uri.Original, totalBytes)
	defer progress.Wait()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for _, obj := range objects {
		obj := obj
		g.Go(func() error {
			target := filepath.Join(dir, filepath.FromSlash(uri.relativePath(obj.Name)))
			f.logger.Info("downloading object",
				zap.String("object", obj.Name),
				zap.String("target", target),
			)

			res, err := svc.Objects.Get(uri.Bucket, obj.Name).Context(ctx).Download()
			if err != nil {
				return fmt.Errorf("failed to download gs://%s/%s: %w", uri.Bucket, obj.Name, err)
			}
			defer res.Body.Close()

			return writeObject(target, progress.Reader(res.Body))
		})
	}

	return g.Wait()
}

func writeObject(target string, body io.ReadCloser) error {
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	return out.Close()
}

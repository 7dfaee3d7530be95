package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// s3Fetcher downloads a model folder from an S3 bucket. The default AWS
// credential chain is consulted; like the GCS fetcher it never asks for
// credentials of its own.
type s3Fetcher struct {
	logger *zap.Logger
}

func newS3Fetcher(logger *zap.Logger) *s3Fetcher {
	return &s3Fetcher{logger: logger}
}

func (f *s3Fetcher) Fetch(ctx context.Context, uri *SourceURI, dir string) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)

	var keys []string
	var totalBytes int64

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(uri.Bucket),
		Prefix: aws.String(uri.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", uri.Original, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if uri.relativePath(key) == "" {
				continue
			}
			keys = append(keys, key)
			totalBytes += aws.ToInt64(obj.Size)
		}
	}

	if len(keys) == 0 {
		return fmt.Errorf("no objects found under %s", uri.Original)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	progress := newDownloadProgress(uri.Original, totalBytes)
	defer progress.Wait()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			target := filepath.Join(dir, filepath.FromSlash(uri.relativePath(key)))
			f.logger.Info("downloading object",
				zap.String("object", key),
				zap.String("target", target),
			)

			out, err := client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(uri.Bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return fmt.Errorf("failed to download s3://%s/%s: %w", uri.Bucket, key, err)
			}

			return writeObject(target, progress.Reader(out.Body))
		})
	}

	return g.Wait()
}

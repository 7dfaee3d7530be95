package resolver

import (
	"fmt"

	"github.com/cozy-creator/hf-hub/hub"
	"go.uber.org/zap"
)

// FallbackFetcher materializes a hosted pretrained snapshot locally and
// returns the directory it lives in. Production wires the Hugging Face
// hub client; tests inject fakes.
type FallbackFetcher interface {
	Fetch(modelName string) (string, error)
}

type hubFetcher struct {
	client *hub.Client
	logger *zap.Logger
}

func newHubFetcher(logger *zap.Logger) *hubFetcher {
	return &hubFetcher{
		client: hub.DefaultClient(),
		logger: logger,
	}
}

func (f *hubFetcher) Fetch(modelName string) (string, error) {
	f.logger.Info("downloading hosted fallback snapshot", zap.String("model", modelName))

	params := hub.DownloadParams{
		Repo: &hub.Repo{
			Id:       modelName,
			Type:     hub.ModelRepoType,
			Revision: hub.DefaultRevision,
		},
	}
	dir, err := f.client.Download(&params)
	if err != nil {
		return "", fmt.Errorf("failed to download %s from the hub: %w", modelName, err)
	}

	return dir, nil
}

package run

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/xplain-ai/xplain-server/internal/app"
	"github.com/xplain-ai/xplain-server/internal/config"
	"github.com/xplain-ai/xplain-server/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the xplain captioning server",
	RunE:  runApp,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", config.DefaultPort, "Port to run the server on")
	flags.String("host", config.DefaultHost, "Host to run the server on")
	flags.String("environment", config.DefaultEnvironment, "Environment configuration")
	flags.String("model-family", config.DefaultModelFamily, "Captioner model family")
	flags.String("local-model-dir", config.DefaultLocalModelDir, "Local directory holding or receiving model artifacts")
	flags.String("gcs-model-uri", "", "Remote model source (gs:// or s3://); downloaded into the local model directory")
	flags.Bool("allow-hf-fallback", false, "Permit the hosted pretrained fallback when no local model is found")
	flags.String("hf-model-name", config.DefaultHFModelName, "Hosted fallback model identifier")
	flags.Int("beam-size", config.DefaultBeamSize, "Beam width for caption decoding")
	flags.Int("max-new-tokens", config.DefaultMaxNewTokens, "Generated token budget per caption")

	viper.BindPFlag("port", flags.Lookup("port"))
	viper.BindPFlag("host", flags.Lookup("host"))
	viper.BindPFlag("environment", flags.Lookup("environment"))
	viper.BindPFlag("model_family", flags.Lookup("model-family"))
	viper.BindPFlag("local_model_dir", flags.Lookup("local-model-dir"))
	viper.BindPFlag("gcs_model_uri", flags.Lookup("gcs-model-uri"))
	viper.BindPFlag("allow_hf_fallback", flags.Lookup("allow-hf-fallback"))
	viper.BindPFlag("hf_model_name", flags.Lookup("hf-model-name"))
	viper.BindPFlag("beam_size", flags.Lookup("beam-size"))
	viper.BindPFlag("max_new_tokens", flags.Lookup("max-new-tokens"))
}

func runApp(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}
	srv.SetupRoutes(application)

	errc := make(chan error, 2)
	signalc := make(chan os.Signal, 1)

	// The listener comes up before readiness so not-ready is observable
	// as 503 instead of a connection refusal.
	go func() {
		application.Logger().Info("server listening", zap.Int("port", cfg.Port))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Resolve, validate and load exactly once. Failure exits non-zero;
	// restart is the recovery mechanism.
	go func() {
		if err := application.Orchestrator().Run(application.Context()); err != nil {
			errc <- err
		}
	}()

	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		srv.Stop(application.Context())
		return err
	case <-signalc:
		application.Logger().Info("shutting down")
		return srv.Stop(application.Context())
	}
}

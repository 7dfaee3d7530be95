package cmd

import (
	"fmt"
	"os"

	run "github.com/xplain-ai/xplain-server/cmd/xplain/run"
	"github.com/xplain-ai/xplain-server/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = &cobra.Command{
	Use:   "xplain",
	Short: "Xplain captioning server",
	Long:  "Inference server that provisions finetuned vision-language model weights and serves image-caption predictions over HTTP",

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		if err := config.LoadEnvFile(viper.GetString("env_file")); err != nil {
			return err
		}

		config.BindEnv()
		return nil
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()
	pflags.String("env-file", "", "Path to the env file")
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))

	Cmd.AddCommand(run.Cmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}

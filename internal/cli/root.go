package cli

import (
	"os"

	"live-quiz-service/internal/logging"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		log.Error().Err(err).Msg("command failed")
	}
	return err
}

func newRootCmd() *cobra.Command {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "live-quiz",
		Short:        "Live quiz session coordinator",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_PRETTY") == "true")
		},
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewSimulateCmd(&configPath))
	return cmd
}

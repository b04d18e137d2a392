package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"txwizard/application/flows"
	"txwizard/domain/fee"
	"txwizard/infrastructure/config"
	"txwizard/infrastructure/logging"
)

var (
	cfg    config.ServerConfig
	engine *config.Engine
	logger *zap.Logger

	logLevel   string
	logDev     bool
	enginePath string
)

func Execute() error {
	root := &cobra.Command{
		Use:          "txwizard",
		Short:        "Multi-step transaction wizard engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.FromEnv(); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-dev") {
				cfg.LogDevelopment = logDev
			}
			if flags.Changed("engine") {
				cfg.EngineConfig = enginePath
			}

			if logger, err = logging.New(cfg.LogLevel, cfg.LogDevelopment); err != nil {
				return err
			}
			engine, err = config.LoadEngine(cfg.EngineConfig)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logDev, "log-dev", false, "human-readable console logs")
	root.PersistentFlags().StringVar(&enginePath, "engine", "", "engine config YAML (default: built-in)")

	root.AddCommand(serveCmd(), flowsCmd(), demoCmd())
	return root.Execute()
}

// catalogFor builds the flow catalog over the engine's assets and a live
// fee table.
func catalogFor(e *config.Engine, live *fee.Live) (*flows.Catalog, error) {
	return flows.Default(flows.Options{
		Assets:          e.Assets,
		Tiers:           live.Tiers,
		Accounts:        e.Accounts,
		MinimumDeposits: e.MinimumDeposits,
	})
}

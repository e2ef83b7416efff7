package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/logging"
)

func rootCMD() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "sentiscope",
		Short:         "Cross-country news sentiment research sessions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// a missing .env is fine; real deployments use the environment
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	load := func() (*config.Config, *zap.Logger, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, nil, err
		}
		logger := logging.New(logging.Options{Level: cfg.General.LogLevel, File: cfg.General.LogFile, JSON: cfg.General.LogJSON})
		return cfg, logger, nil
	}

	root.AddCommand(serveCMD(load), migrateCMD(load), queryCMD(load))
	return root
}

// loader reads configuration and builds the process logger.
type loader func() (*config.Config, *zap.Logger, error)

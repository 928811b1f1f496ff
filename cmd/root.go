// Package cmd holds the cobra command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"zako_server/config"
	"zako_server/logger"
)

var (
	cfgFile string
	cfg     config.Config
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "zako_server",
	Short: "Visitor wall: register, like and leave a comment",
	Long: `zako_server records each visitor once, lets visitors like each other and
edit their own display name and comment. Running it without a subcommand serves HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store-driver", "", "store backend: sqlite, postgres or dynamodb")
	rootCmd.PersistentFlags().String("store-dsn", "", "SQL data source name")

	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("store.driver", rootCmd.PersistentFlags().Lookup("store-driver"))
	_ = v.BindPFlag("store.dsn", rootCmd.PersistentFlags().Lookup("store-dsn"))

	rootCmd.AddCommand(serveCmd, migrateCmd, checkCmd)
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the configured logger and installs it as the zap global.
func newLogger() (*zap.Logger, func(), error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	undo := zap.ReplaceGlobals(log)
	return log, func() {
		undo()
		_ = log.Sync()
	}, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spec-kit/evaluation-service/internal/app"
	"github.com/spec-kit/evaluation-service/internal/config"
	"github.com/spec-kit/evaluation-service/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "evalctl",
	Short: "Operate evaluation cycles from the command line",
	Long: `evalctl talks to the evaluation database directly using the same configuration as the API
(POSTGRES_DSN, REDIS_ADDR, PUBLICATION_LOCK_BACKEND, ...). Use the redis lock backend when the
API is running so publications from both sides are serialized.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("EVALCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "evalctl", "actor recorded in publication history")
	rootCmd.PersistentFlags().Duration("timeout", time.Minute, "overall command timeout")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(hierarchyCmd())
	rootCmd.AddCommand(tokenCmd())
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	cfg.Logger.Level = viper.GetString("log-level")
	cfg.Logger.Format = "console"
	cfg.Logger.Output = "stderr"
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func withContainer(ctx context.Context, fn func(context.Context, *app.Container) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if timeout := viper.GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	container, err := app.New(ctx, cfg, logger)
	defer container.Close()
	if err != nil {
		return err
	}
	return fn(ctx, container)
}

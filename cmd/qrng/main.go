package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"

	"github.com/qrandom/qrng/internal/cli"
	"github.com/qrandom/qrng/internal/config"
	"github.com/qrandom/qrng/pkg/log"
)

func main() {
	defer utilruntime.HandleCrash()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := NewQrngCommand()
	if err := command.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func NewQrngCommand() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "qrng [flags] [options]",
		Short: "qrng generates random numbers on quantum hardware, or on a local simulator.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("reading configuration: %w", err)
			}
			if !cmd.Flags().Changed("log-level") {
				logLevel = cfg.Service.LogLevel
			}

			logger := log.InitLog(log.ParseLevel(logLevel))
			zap.ReplaceGlobals(logger)
			zap.S().Debugw("using configuration", "config", cfg.String())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error. Defaults to $QRNG_LOG_LEVEL")

	cmd.AddCommand(cli.NewCmdGenerate())
	cmd.AddCommand(cli.NewCmdBackends())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}

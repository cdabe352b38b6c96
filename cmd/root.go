package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/nrepl/cmd/gen"
	"github.com/luma/nrepl/internal/env"
)

var (
	// The nREPL peer to talk to, overrides NREPL_ADDRESS
	address string

	// Per request timeout, overrides NREPL_TIMEOUT
	timeout time.Duration

	logLevel string
)

var RootCmd = &cobra.Command{
	Use:   "nrepl",
	Short: "Talk to nREPL servers",
	Long: `A client for nREPL servers.

Usage
	nrepl eval '(+ 1 2)'
	nrepl gateway

`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&address, "address", "a", "", "The nREPL server to connect to, e.g. nrepl://localhost:7888")
	flags.DurationVar(&timeout, "timeout", 0, "How long to wait for each request")
	flags.StringVar(&logLevel, "log-level", "", "The log level: debug, info, warn or error")

	RootCmd.AddCommand(EvalCmd)
	RootCmd.AddCommand(GatewayCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the config, applies any flags that were set on top of it, and
// builds the logger.
func setup(ctx context.Context, cmd *cobra.Command) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("address") {
		conf.Address = address
	}
	if flags.Changed("timeout") {
		conf.Timeout = timeout
	}
	if flags.Changed("log-level") {
		conf.LogLevel = logLevel
	}

	log, err := env.MakeLogger(conf.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	return conf, log, nil
}

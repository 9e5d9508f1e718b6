// Command registry runs the rendezvous service: a TCP prompt session
// for node onboarding and report collection, plus the run/drain timer
// that ends each run with a UDP stop broadcast. Typing "done" on stdin
// ends the current run early.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gossipnet/internal/config"
	"gossipnet/internal/registry"
	"gossipnet/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		debug   bool

		listenPort  int
		dataDir     string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:           "registry",
		Short:         "Run the rendezvous registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			r := cfg.Registry
			flags := cmd.Flags()
			if flags.Changed("port") {
				r.ListenPort = listenPort
			}
			if flags.Changed("data-dir") {
				r.DataDir = dataDir
			}
			if flags.Changed("metrics-addr") {
				r.MetricsAddr = metricsAddr
			}

			serveMetrics(r.MetricsAddr, logger)

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := registry.NewServer(r, logger)
			go watchStdin(srv, logger)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().IntVar(&listenPort, "port", 0, "TCP port to listen on")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for collected source listings and reports")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on")
	return cmd
}

// watchStdin ends the run early when the operator types "done".
func watchStdin(srv *registry.Server, logger *zap.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "done" {
			logger.Info("operator requested shutdown")
			srv.Done()
		}
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serveMetrics(addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("metrics server", zap.Error(err))
		}
	}()
}

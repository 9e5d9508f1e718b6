// Command peer runs one gossip node: it registers with the rendezvous
// registry, gossips snippets and peer announcements over UDP, and
// delivers its interaction report when the registry winds the run down.
// Snippet content is read from stdin, one line per snippet; delivered
// snippets are printed to stdout.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gossipnet/internal/config"
	"gossipnet/internal/node"
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

		registryAddr  string
		teamName      string
		advertiseHost string
		udpPort       int
		codePath      string
		metricsAddr   string
	)

	cmd := &cobra.Command{
		Use:           "peer",
		Short:         "Run a gossip node",
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
			p := cfg.Peer
			flags := cmd.Flags()
			if flags.Changed("registry") {
				p.RegistryAddr = registryAddr
			}
			if flags.Changed("team") {
				p.TeamName = teamName
			}
			if flags.Changed("advertise-host") {
				p.AdvertiseHost = advertiseHost
			}
			if flags.Changed("udp-port") {
				p.UDPPort = udpPort
			}
			if flags.Changed("code") {
				p.CodePath = codePath
			}
			if flags.Changed("metrics-addr") {
				p.MetricsAddr = metricsAddr
			}

			serveMetrics(p.MetricsAddr, logger)

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = node.New(p, logger).Run(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&registryAddr, "registry", "", "registry host:port")
	cmd.Flags().StringVar(&teamName, "team", "", "team name sent to the registry")
	cmd.Flags().StringVar(&advertiseHost, "advertise-host", "", "IPv4 address other peers reach this node at")
	cmd.Flags().IntVar(&udpPort, "udp-port", 0, "gossip UDP port (0 for ephemeral)")
	cmd.Flags().StringVar(&codePath, "code", "", "source listing sent during onboarding")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on")
	return cmd
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

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apistol78/traktor-sub009/internal/config"
	"github.com/apistol78/traktor-sub009/internal/node"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		name       string
		peerURLs   []string
		primary    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a replication node",
		Long: `Run a replication node.

The node serves WebSocket peers on /ws, Prometheus metrics on /metrics,
its connected peers on /peers and counters on /stats. It dials every
peer URL given and redials when the connection drops.

Configuration comes from replicad.json (if --config is given), then
REPLICAD_* environment variables, then flags.

Examples:
  replicad serve
  replicad serve --listen :7701 --peer ws://localhost:7700/ws
  replicad serve --config /etc/replicad/replicad.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}
			if cmd.Flags().Changed("name") {
				cfg.Name = name
			}
			if cmd.Flags().Changed("peer") {
				cfg.Peers = peerURLs
			}
			if cmd.Flags().Changed("primary") {
				cfg.Primary = primary
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to replicad.json")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Node name announced to peers")
	cmd.Flags().StringSliceVarP(&peerURLs, "peer", "p", nil, "Peer WebSocket URL to dial (repeatable)")
	cmd.Flags().BoolVar(&primary, "primary", false, "Mark this node as primary")

	return cmd
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.LogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runServe(cfg *config.Config) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	sink, err := node.NewSink(cfg.Recording)
	if err != nil {
		return err
	}
	n, err := node.New(cfg, node.Options{Logger: logger, Sink: sink})
	if err != nil {
		return err
	}

	printBanner()
	success("Node %s listening on %s", cfg.Name, cfg.Listen)
	for _, p := range cfg.Peers {
		info("Peer: %s", p)
	}
	if sink != nil {
		info("Recording every %s", cfg.Recording.Interval)
	}
	info("")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return n.Run(ctx)
}

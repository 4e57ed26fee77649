package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var seeds []string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start this node's gossip, routing, and swarm subsystems",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := buildNode(cfg)
			if err != nil {
				return err
			}
			defer n.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if len(seeds) > 0 {
				if err := n.gossip.Bootstrap(ctx, seeds); err != nil {
					return bootstrapErr(fmt.Errorf("bootstrap against seeds: %w", err))
				}
			}

			go n.gossip.Run(ctx)

			server := &http.Server{Addr: cfg.ListenAddr, Handler: n.httpRouter()}
			serveErr := make(chan error, 1)
			go func() { serveErr <- server.ListenAndServe() }()

			n.log.Info("edgecoder node started", "listen", cfg.ListenAddr)

			select {
			case <-ctx.Done():
				n.log.Info("shutting down")
			case err := <-serveErr:
				if err != nil && err != http.ErrServerClosed {
					return configErr(fmt.Errorf("http server: %w", err))
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringSliceVar(&seeds, "seed", nil, "gossip seed URLs to bootstrap against before serving")
	return cmd
}

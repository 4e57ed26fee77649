package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap <seed-url>...",
		Short: "Register with one or more gossip seeds and exit (spec §4.8)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := buildNode(cfg)
			if err != nil {
				return err
			}
			defer n.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := n.gossip.Bootstrap(ctx, args); err != nil {
				return bootstrapErr(fmt.Errorf("bootstrap against %v: %w", args, err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "bootstrapped against %d seed(s); known peers: %d\n", len(args), len(n.gossip.Peers()))
			return nil
		},
	}
}

package main

import (
	"github.com/spf13/cobra"
)

var cfg Config

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "edgecoder",
		Short: "EdgeCoder distributed runtime node",
		Long:  "edgecoder runs one node of the BLE/gossip compute mesh: routing, swarm coordination, credit accrual, and blacklist propagation.",
	}

	root.PersistentFlags().StringVar(&cfg.PeerID, "peer-id", "", "this node's peer id (required)")
	root.PersistentFlags().StringVar(&cfg.ListenAddr, "listen", ":8787", "HTTP listen address for the gossip/status surface")
	root.PersistentFlags().StringVar(&cfg.CoordinatorURL, "coordinator-url", "", "this node's own externally-reachable coordinator URL")
	root.PersistentFlags().StringVar(&cfg.MeshToken, "mesh-token", "", "shared mesh token gating gossip and BLE admission")
	root.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", "./data", "directory for the BLE and blacklist sqlite ledgers")
	root.PersistentFlags().StringVar(&cfg.DeviceClass, "device-class", "desktop", "\"desktop\" or \"mobile\", tunes routing concurrency/latency limits")
	root.PersistentFlags().StringVar(&cfg.InferenceURL, "inference-url", "http://localhost:11434", "local on-device inference backend base URL (Ollama-shaped /api/chat, /api/tags)")
	root.PersistentFlags().StringVar(&cfg.SwarmCoordinatorURL, "swarm-coordinator-url", "", "swarm coordinator base URL for the routing waterfall's swarm step; defaults to this node's own /swarm surface on its listen address")

	root.AddCommand(newStartCmd())
	root.AddCommand(newBootstrapCmd())
	root.AddCommand(newStatusCmd())
	return root
}

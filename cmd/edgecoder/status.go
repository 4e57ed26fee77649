package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func writeJSONStatus(w io.Writer, status Status) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(status)
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query a running node's /status endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get("http://" + localAddr(cfg.ListenAddr) + "/status")
			if err != nil {
				return configErr(fmt.Errorf("query status: %w", err))
			}
			defer resp.Body.Close()

			var status Status
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return configErr(fmt.Errorf("decode status response: %w", err))
			}
			writeJSONStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

// localAddr rewrites a bind address like ":8787" to a dialable
// "127.0.0.1:8787" for the status subcommand's own HTTP client.
func localAddr(listen string) string {
	if len(listen) > 0 && listen[0] == ':' {
		return "127.0.0.1" + listen
	}
	return listen
}

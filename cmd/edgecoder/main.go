// Command edgecoder runs one node of the EdgeCoder compute mesh: the
// gossip overlay, routing waterfall, swarm queue, credit/issuance
// engines, and blacklist/anomaly subsystems wired into a single process
// (spec §6). Grounded on the CLI-surface wiring idiom in cmd/inos-node's
// main.go (a single process standing up every subsystem by hand, no DI
// framework), using github.com/spf13/cobra for subcommands per the
// corpus's NikeGunn-tutu manifest.
package main

import (
	"errors"
	"fmt"
	"os"
)

// exitCodeErr lets a subcommand signal exactly which of spec §6's exit
// codes applies (0 clean, 1 fatal config error, 2 bootstrap failure)
// without cobra printing its own generic failure text twice.
type exitCodeErr struct {
	code int
	err  error
}

func (e *exitCodeErr) Error() string { return e.err.Error() }
func (e *exitCodeErr) Unwrap() error { return e.err }

func configErr(err error) error    { return &exitCodeErr{code: 1, err: err} }
func bootstrapErr(err error) error { return &exitCodeErr{code: 2, err: err} }

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "edgecoder:", err)
		var ec *exitCodeErr
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		os.Exit(1)
	}
	os.Exit(0)
}

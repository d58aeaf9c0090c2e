package main

import (
	"flag"
	"time"

	"github.com/rspd/stub/rsp"
)

// config holds everything parsed from the command line. Flag parsing
// lives here, not in the rsp package.
type config struct {
	listenAddr    string
	cores         int
	killOnExit    bool
	killBehaviour rsp.KillBehaviour
	timeout       time.Duration
	verbose       bool
}

func parseFlags(args []string) (config, error) {
	fs := flag.NewFlagSet("rspd", flag.ContinueOnError)

	addr := fs.String("listen", ":2345", "TCP address to accept a GDB connection on")
	cores := fs.Int("cores", 1, "number of simulated cores")
	killOnExit := fs.Bool("kill-core-on-exit", false, "kill a core's thread when its target process exits")
	resetOnKill := fs.Bool("reset-on-kill", true, "'k' packet resets the target instead of exiting rspd")
	timeout := fs.Duration("timeout", 0, "continue timeout; 0 disables it")
	verbose := fs.Bool("v", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	kb := rsp.ExitOnKill
	if *resetOnKill {
		kb = rsp.ResetOnKill
	}

	return config{
		listenAddr:    *addr,
		cores:         *cores,
		killOnExit:    *killOnExit,
		killBehaviour: kb,
		timeout:       *timeout,
		verbose:       *verbose,
	}, nil
}

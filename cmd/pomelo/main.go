package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vango-dev/pomelo/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┌─┐┌┬┐┌─┐┬  ┌─┐
  ├─┘│ ││││├┤ │  │ │
  ┴  └─┘┴ ┴└─┘┴─┘└─┘
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		errors.PrintError(err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &connFlags{}

	rootCmd := &cobra.Command{
		Use:   "pomelo",
		Short: "A command-line client for Pomelo game servers",
		Long: `pomelo talks to a Pomelo game server from the terminal.

It performs the Pomelo handshake over WebSocket or raw TCP, keeps the
connection alive with heartbeats and lets you:

  • Send requests and print the responses
  • Send notifies
  • Watch pushes, kicks and connection events
  • Expose client metrics for Prometheus

Connection settings come from pomelo.json (see 'pomelo init') and can be
overridden with flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor || !isTerminal(os.Stderr) {
				errors.DisableColors()
			}
		},
	}

	flags.register(rootCmd)

	rootCmd.AddCommand(
		requestCmd(flags),
		notifyCmd(flags),
		listenCmd(flags),
		initCmd(),
		versionCmd(),
	)

	return rootCmd
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// printBanner prints the ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

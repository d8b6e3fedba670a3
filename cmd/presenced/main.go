package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codelens-dev/presence/internal/server"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "presenced",
		Short: "Real-time presence relay for collaborative code tools",
		Long: `presenced keeps every connected editor aware of its peers.

Clients open a WebSocket connection, register an identity, and report
which file they are viewing. The relay broadcasts registry snapshots on
membership changes and point events on file focus changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (host:port); overrides PRESENCE_ADDR, defaults to 127.0.0.1:3030")
	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("presenced %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func run(addr string) error {
	config := server.NewConfigFromEnv()
	if addr != "" {
		config.Addr = addr
	}
	server.SetConfig(config)

	relay := server.NewRelay()
	mux := server.SetupRoutes(relay)
	httpServer := server.CreateServer(config.Addr, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-signals:
		log.Printf("Received %s, shutting down", sig)
	}

	if err := server.ShutdownServer(httpServer, 10*time.Second); err != nil {
		log.Printf("Forcing shutdown: %v", err)
	}
	relay.Shutdown()
	return nil
}

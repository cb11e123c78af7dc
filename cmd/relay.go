package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BioHazard786/Warpchat/internal/relay"
	"github.com/BioHazard786/Warpchat/internal/ui"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var flagRelayAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay",
	Long: `Run the websocket relay that pairs room creators with joiners. It
forwards one offer and one answer per room and never sees chat traffic.

Examples:
  warpchat relay
  warpchat relay --addr :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRelay(cmd.Context(), flagRelayAddr)
	},
}

func serveRelay(ctx context.Context, addr string) error {
	logger := slog.Default()

	hub := relay.NewHub(logger)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           relay.NewMux(hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	ui.PrintSuccessf("Signaling relay listening on %s", addr)
	logger.Info("relay started", "addr", addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return NewError("serve relay", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return NewError("shutdown relay", err)
	}
	fmt.Println()
	ui.PrintInfo("Relay stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVarP(&flagRelayAddr, "addr", "a", ":8080", "Listen address")
}

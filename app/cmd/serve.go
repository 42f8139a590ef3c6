package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/triagelabs/searchgate/adapters"
	"github.com/triagelabs/searchgate/persistence"
	"github.com/triagelabs/searchgate/server"
	"github.com/triagelabs/searchgate/telemetry"
)

// newServeCmd runs the bounded-search RPC server until interrupted.
func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bounded search JSON-RPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = globalCfg.Listen
			}
			logger := log.New(os.Stderr, "searchgate ", log.LstdFlags)

			var store *persistence.TrackingStore
			if globalCfg.Size.TrackingEnabled && globalCfg.Tracking.Path != "" {
				opened, err := persistence.NewTrackingStore(globalCfg.Tracking.Path)
				if err != nil {
					return err
				}
				store = opened
				defer store.Close()
			}

			sinks := []telemetry.Telemetry{telemetry.LoggerTelemetry{Logger: logger}}
			if globalCfg.Logging.File != "" {
				fileSink, err := telemetry.NewJSONFileTelemetry(globalCfg.Logging.File)
				if err != nil {
					return err
				}
				defer fileSink.Close()
				sinks = append(sinks, fileSink)
			}

			registry := adapters.NewRegistry(globalCfg.Endpoints())
			rpc := &server.RPCServer{
				Fetchers:  registry.Fetcher,
				Store:     store,
				Telemetry: telemetry.MultiplexTelemetry{Sinks: sinks},
				Logger:    logger,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rpc.Serve(ctx, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (defaults to config)")
	return cmd
}

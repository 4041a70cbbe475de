package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and WebSocket chat",
	Long: `Serve exposes fact-check sessions over HTTP:

  POST   /api/sessions               start a session {"claim": "...", "auto": false}
  GET    /api/sessions/:id           session state, draft and evaluation
  POST   /api/sessions/:id/decision  {"action": "accept|custom|stop", "question": "..."}
  DELETE /api/sessions/:id           drop a live session
  GET    /api/history                recently archived sessions
  GET    /ws                         interactive session over WebSocket
  GET    /metrics                    Prometheus metrics
  GET    /healthz                    liveness

Example:
  factloop serve --addr :8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setup(ctx, func(cfg *model.Config) {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
	})
	if err != nil {
		return err
	}
	defer deps.Close()

	opts := []server.Option{server.WithLogger(deps.logger.Named("server"))}
	if deps.archive != nil {
		opts = append(opts, server.WithHistory(deps.archive))
	}
	srv := server.New(deps.pipeline, deps.cfg.Server, opts...)

	fmt.Fprintf(os.Stderr, "✓ Listening on %s\n", deps.cfg.Server.Addr)
	if err := srv.Run(ctx); err != nil {
		deps.logger.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}

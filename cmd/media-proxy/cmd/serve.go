package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"media-proxy/internal/server"
)

const shutdownGrace = 30 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Starts the HTTP server exposing GET /download, GET|POST /formats and GET /healthz.
Every download runs in its own temporary workspace which is removed once the
file has been streamed (or the job failed).`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	svc, err := buildServices(globalConfig)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := server.New(globalConfig.ListenAddr, svc.downloads, svc.formats, svc.paths)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutting down, waiting for running downloads")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
		return err
	}
	return <-errCh
}

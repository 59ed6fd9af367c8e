package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/user/censai/pkg/api"
	"github.com/user/censai/pkg/telemetry"
)

var (
	serveAddr    string
	serveTrace   bool
	serveMutes   string
	serveRewrite bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the summarize and retrieve endpoints over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if serveTrace {
			shutdown, err := telemetry.InitTracer(os.Stderr, Version)
			if err != nil {
				return fmt.Errorf("init tracer: %w", err)
			}
			defer shutdown(context.Background())
		}

		rt, err := newRuntime(ctx, runtimeOptions{rewrite: serveRewrite, mutesPath: serveMutes})
		if err != nil {
			return err
		}
		defer rt.Close()

		gin.SetMode(rt.cfg.Server.Mode)
		addr := rt.cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           api.NewServer(rt.sum, Version, rt.log).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			rt.log.WithField("addr", addr).Info("listening")
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		rt.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveTrace, "trace", false, "Print OpenTelemetry spans to stderr")
	serveCmd.Flags().StringVar(&serveMutes, "mutes", "", "YAML file of finding mutes")
	serveCmd.Flags().BoolVar(&serveRewrite, "rewrite", false, "Enable the rewrite backend even if llm.enabled is false")
	rootCmd.AddCommand(serveCmd)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cognitodev/launchpad/pkg/api"
	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/metrics"
	"github.com/cognitodev/launchpad/pkg/param"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/cognitodev/launchpad/pkg/starter"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func ServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}

			// the API reads secrets from the environment only
			if err := param.Init(nil); err != nil {
				return fmt.Errorf("failed to init params: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServer(ctx)
		},
	}

	addGatewayFlags(serveCmd)
	addRuntimeFlags(serveCmd)
	serveCmd.Flags().String("addr", ":3000", "Address to listen on")
	serveCmd.Flags().Int("max-sessions", session.DefaultMaxSessions, "Live sessions kept before the least recently used is closed")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "Time allowed for in-flight requests on shutdown")

	return serveCmd
}

func runServer(ctx context.Context) error {
	if viper.GetString("log-level") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	gateway, classifier, err := newGateways(ctx)
	if err != nil {
		return err
	}

	catalog, err := starter.Load()
	if err != nil {
		return fmt.Errorf("failed to load starter catalog: %w", err)
	}

	sessionMetrics, err := metrics.NewSessionMetrics()
	if err != nil {
		return fmt.Errorf("failed to create session metrics: %w", err)
	}

	hub := api.NewHub()
	manager, err := session.NewManager(viper.GetInt("max-sessions"), session.Deps{
		Gateway:    gateway,
		Classifier: classifier,
		Runtime:    newLocalRuntime(catalog),
		Catalog:    catalog,
		Observer:   session.MultiObserver{hub, sessionMetrics},
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	defer manager.Close()

	server := api.NewServer(api.ServerOpts{
		Manager:     manager,
		Catalog:     catalog,
		Gateway:     gateway,
		Hub:         hub,
		BaseContext: ctx,
	})

	httpServer := &http.Server{
		Addr:              viper.GetString("addr"),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting api server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("shutdown-timeout"))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down api server: %w", err)
	}
	return nil
}

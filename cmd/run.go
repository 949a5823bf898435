package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/cognitodev/launchpad/pkg/listener"
	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/metrics"
	"github.com/cognitodev/launchpad/pkg/param"
	"github.com/cognitodev/launchpad/pkg/persistence"
	"github.com/cognitodev/launchpad/pkg/realtime"
	realtimetypes "github.com/cognitodev/launchpad/pkg/realtime/types"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/cognitodev/launchpad/pkg/slack"
	"github.com/cognitodev/launchpad/pkg/starter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func RunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the queue worker",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.GetViper()
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}

			sess, err := awssession.NewSession(aws.NewConfig().WithCredentialsChainVerboseErrors(true))
			if err != nil {
				// logging is not configured yet
				fmt.Printf("Failed to create aws session: %v\n", err)
			}

			if err := param.Init(sess); err != nil {
				return fmt.Errorf("failed to init params: %w", err)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := runWorker(ctx); err != nil {
				return fmt.Errorf("worker error: %w", err)
			}
			return nil
		},
	}

	addGatewayFlags(runCmd)
	addRuntimeFlags(runCmd)
	runCmd.Flags().Int("max-sessions", session.DefaultMaxSessions, "Live sessions kept before the least recently used is closed")
	runCmd.Flags().Int32("max-conns", 0, "Postgres pool size; 30 when 0")

	return runCmd
}

func runWorker(ctx context.Context) error {
	p := param.Get()

	if err := persistence.InitPostgres(ctx, persistence.PostgresOpts{
		URI:      p.PGURI,
		MaxConns: viper.GetInt32("max-conns"),
	}); err != nil {
		return fmt.Errorf("failed to initialize postgres connection: %w", err)
	}
	defer persistence.ClosePostgres()

	realtime.Init(ctx, &realtimetypes.Config{
		Address: p.CentrifugoAddress,
		APIKey:  p.CentrifugoAPIKey,
	})

	sessionMetrics, err := metrics.NewSessionMetrics()
	if err != nil {
		return fmt.Errorf("failed to create session metrics: %w", err)
	}

	observers := session.MultiObserver{sessionMetrics}
	if p.SlackToken != "" && p.SlackChannel != "" {
		notifier := slack.NewNotifier(p.SlackToken, p.SlackChannel)
		defer notifier.Wait()
		observers = append(observers, notifier)
	} else {
		logger.Info("slack notifications disabled")
	}

	gateway, classifier, err := newGateways(ctx)
	if err != nil {
		return err
	}

	catalog, err := starter.Load()
	if err != nil {
		return fmt.Errorf("failed to load starter catalog: %w", err)
	}

	manager, err := session.NewManager(viper.GetInt("max-sessions"), session.Deps{
		Gateway:    gateway,
		Classifier: classifier,
		Runtime:    newLocalRuntime(catalog),
		Catalog:    catalog,
		Observer:   observers,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	defer manager.Close()

	handlers := &listener.Handlers{
		Manager: manager,
		ObserverFor: func(ctx context.Context, sessionID string, userID string) session.Observer {
			if userID == "" {
				return nil
			}
			return realtime.NewObserver(ctx, realtimetypes.ForUsers(userID))
		},
	}

	logger.Info("starting worker", zap.String("provider", viper.GetString("provider")), zap.Int("maxSessions", viper.GetInt("max-sessions")))

	return listener.StartListeners(ctx, p.PGURI, handlers)
}

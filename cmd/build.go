package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cognitodev/launchpad/pkg/console"
	"github.com/cognitodev/launchpad/pkg/param"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/cognitodev/launchpad/pkg/starter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tuvistavie/securerandom"
)

func BuildCmd() *cobra.Command {
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "build [prompt]",
		Short: "Build an app locally from a prompt",
		Long: `Runs one session on this machine. The project is written to a directory under
--sandbox-root, dependencies are installed with npm and the dev server is started.

When run with a prompt, the build starts immediately. Afterwards an interactive console
accepts follow-up messages and commands, unless --non-interactive is set.

Examples:
  # Interactive mode
  build

  # Build and keep chatting
  build "a todo app with dark mode"

  # Build and exit once the preview is up or the build failed
  build --non-interactive "a landing page for a bakery"`,
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}

			// local builds always read secrets from the environment
			if err := param.Init(nil); err != nil {
				return fmt.Errorf("failed to init params: %w", err)
			}

			if nonInteractive && len(args) == 0 {
				return fmt.Errorf("a prompt is required with --non-interactive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			gateway, classifier, err := newGateways(ctx)
			if err != nil {
				return err
			}

			catalog, err := starter.Load()
			if err != nil {
				return fmt.Errorf("failed to load starter catalog: %w", err)
			}

			id, err := securerandom.Hex(6)
			if err != nil {
				return fmt.Errorf("failed to generate session id: %w", err)
			}

			o := session.NewOrchestrator(id, session.Deps{
				Gateway:    gateway,
				Classifier: classifier,
				Runtime:    newLocalRuntime(catalog),
				Catalog:    catalog,
				Observer:   console.NewPrinter(os.Stdout),
			})
			defer o.Close()

			c := console.New(ctx, o, console.Options{
				Prompt:         strings.Join(args, " "),
				NonInteractive: nonInteractive,
			})
			return c.Run()
		},
	}

	addGatewayFlags(cmd)
	addRuntimeFlags(cmd)
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Exit after the build instead of opening the console")

	return cmd
}

package cmd

import (
	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "launchpad",
		Short: "Prompt-to-app build pipeline",
		Long:  `Turns a prompt into a running web app: picks a starter template, generates files with a model, and serves them from a sandbox`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return logger.SetLevel(viper.GetString("log-level"))
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(BuildCmd())
	rootCmd.AddCommand(DecodeCmd())

	return rootCmd
}

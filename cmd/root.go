// Package cmd implements the command-line interface for the crawler.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/saurabh6354/distributed-web-crawler/cmd/crawl"
)

var rootCmd = &cobra.Command{
	Use:   "crawler",
	Short: "A distributed web crawler worker",
	Long:  `Runs a worker process against a shared frontier, politeness, and storage coordination stack.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	_ = godotenv.Load()
	if err := bindConfigFlag(); err != nil {
		return fmt.Errorf("bind config flag: %w", err)
	}
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./config.yml, or $CONFIG_PATH)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(os.Stdout, "crawler version 1.0.0")
		},
	})

	rootCmd.AddCommand(crawl.Command(resolvedConfigPath))
}

// bindConfigFlag binds --config to Viper so CONFIG_PATH and the flag both
// resolve through one lookup, matching the rest of this process's
// env-overrides-file convention.
func bindConfigFlag() error {
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		return err
	}
	return viper.BindEnv("config", "CONFIG_PATH")
}

// resolvedConfigPath returns the --config flag or CONFIG_PATH value, or
// "config.yml" if neither was set.
func resolvedConfigPath() string {
	if path := viper.GetString("config"); path != "" {
		return path
	}
	return "config.yml"
}

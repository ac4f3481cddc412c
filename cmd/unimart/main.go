package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adeilh/unimart/config"
)

var (
	configPath string
	serverURL  string
	authToken  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "unimart",
		Short:         "unimart - student marketplace backend",
		Long:          "Runs the unimart API server and talks to a running one.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (overrides client.base_url)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token for write and admin commands")

	rootCmd.AddCommand(
		serveCmd(),
		healthCmd(),
		cacheCmd(),
		productCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if serverURL != "" {
		cfg.Client.BaseURL = serverURL
	}
	if authToken != "" {
		cfg.Client.Token = authToken
	}
	return cfg, nil
}

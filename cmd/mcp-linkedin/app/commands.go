// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the mcp-linkedin command-line application.
package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcp-linkedin/pkg/config"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
	"github.com/stacklok/mcp-linkedin/pkg/versions"
)

// NewRootCmd creates a new root command for the mcp-linkedin CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "mcp-linkedin",
		DisableAutoGenTag: true,
		Short:             "OAuth 2.1 authorization server and session layer for the LinkedIn MCP server",
		Long: `mcp-linkedin issues and validates the tokens MCP clients use to reach the LinkedIn
MCP server. It provides:

- OAuth 2.1 authorization code flow with PKCE and dynamic client registration
- Delegated sign-in with LinkedIn and brokered LinkedIn API tokens
- Session-scoped drafts and artifacts with presigned preview URLs
- Memory or Redis session storage; memory, filesystem or S3 artifact storage`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}
	if err := viper.BindEnv("debug", "DEBUG"); err != nil {
		logger.Errorf("Error binding DEBUG: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to an optional YAML configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mcp-linkedin %s\nCommit: %s\nBuilt: %s\nGo: %s\nPlatform: %s\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version information as JSON")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load the configuration from the environment and the optional --config file
and report the first problem found, without starting the server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(newServerViper(cmd))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"Configuration is valid\n  Issuer: %s\n  Sessions: %s\n  Artifacts: %s\n  LinkedIn sign-in: %t\n",
				cfg.ServerURL, cfg.SessionProvider, cfg.ArtifactProvider, cfg.UpstreamEnabled())
			return err
		},
	}
}

// newServerViper returns a viper instance with every server key bound to
// its environment variable and, when set, the serve flags.
func newServerViper(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	for _, key := range []string{config.KeyHost, config.KeyPort} {
		if f := cmd.Flags().Lookup(key); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				logger.Errorf("Error binding %s flag: %v", key, err)
			}
		}
	}
	return v
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		logger.Infof("Loading configuration from: %s", path)
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gantz-ai/gantz/internal/config"
	"github.com/gantz-ai/gantz/internal/logging"
	"github.com/gantz-ai/gantz/internal/telemetry"
	"github.com/gantz-ai/gantz/internal/version"
)

var (
	cfgFile          string
	telemetryService *telemetry.Service
	rootCmd          = &cobra.Command{
		Use:   "gantz",
		Short: "Gantz - MCP tool-serving gateway",
		Long: `Gantz is a secure multi-tenant gateway that serves versioned tools to MCP
agents. It authenticates callers with scoped bearer tokens, resolves tool
versions, enforces timeout budgets, and caches results.`,
		Version: version.GetVersion(),
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initLogging)
	cobra.OnInitialize(initTelemetry)

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/gantz/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)

	tokenCmd.AddCommand(tokenCreateCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)

	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsValidateCmd)

	runsCmd.AddCommand(runsListCmd)

	// Serve command flags
	serveCmd.Flags().Int("api-port", 8585, "HTTP API server port")
	serveCmd.Flags().Int("mcp-port", 8586, "MCP server port")
	serveCmd.Flags().String("database", "", "Database file path")
	serveCmd.Flags().String("manifest", "gantz.yaml", "Tool manifest path")
	serveCmd.Flags().Bool("local", false, "Run in local mode (single user, MCP over stdio, no authentication)")

	// Token command flags
	tokenCreateCmd.Flags().StringSlice("scopes", []string{"tools:call"}, "Scopes to grant (e.g. tools:call, tools:read, tools:call:<name>, admin)")
	tokenCreateCmd.Flags().Duration("ttl", 0, "Token lifetime (0 means the token never expires)")

	// Runs command flags
	runsListCmd.Flags().Int("limit", 50, "Maximum number of runs to display")
	runsListCmd.Flags().String("status", "", "Filter by terminal state (completed, failed)")
	runsListCmd.Flags().String("tool", "", "Filter by tool name")

	// Tools command flags
	toolsCmd.PersistentFlags().String("manifest", "", "Tool manifest path (default from config)")

	// Bind flags to viper
	viper.BindPFlag("api_port", serveCmd.Flags().Lookup("api-port"))
	viper.BindPFlag("mcp_port", serveCmd.Flags().Lookup("mcp-port"))
	viper.BindPFlag("database_url", serveCmd.Flags().Lookup("database"))
	viper.BindPFlag("manifest", serveCmd.Flags().Lookup("manifest"))
	viper.BindPFlag("local_mode", serveCmd.Flags().Lookup("local"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Use XDG config directory
		configDir := config.GetWorkspacePath()
		viper.AddConfigPath(configDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read environment variables
	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)

	// Read config file if it exists. The notice goes to stderr because
	// stdout is the protocol channel when serving MCP over stdio.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func initLogging() {
	// Load config to check debug settings
	cfg, err := config.Load()
	if err != nil {
		// If config fails to load, default to info level (debug disabled)
		logging.Initialize(false)
		return
	}

	logging.Initialize(cfg.Debug)
}

func initTelemetry() {
	// Load config to check telemetry settings. The service is constructed
	// here but exporters only spin up once serve calls Initialize.
	cfg, err := config.Load()
	if err != nil {
		telemetryService = telemetry.New(&telemetry.Config{Enabled: false})
		return
	}

	telemetryService = telemetry.New(&telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		OTLPEndpoint: cfg.Telemetry.Endpoint,
		Environment:  cfg.Environment,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantz-ai/gantz/internal/config"
	"github.com/gantz-ai/gantz/internal/db"
	"github.com/gantz-ai/gantz/internal/db/repositories"
	"github.com/gantz-ai/gantz/internal/version"
)

// Command definitions
var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the Gantz gateway",
		Long:  "Start the gateway services: HTTP API and MCP tool server",
		RunE:  runServe,
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
		Long:  "Issue, list, and revoke the bearer tokens agents authenticate with",
	}

	tokenCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Issue a new token",
		Long: `Issue a new scoped bearer token.

The secret is printed exactly once; only its digest is stored. Scopes
control what the token can do:

  tools:call         invoke any tool without a required scope
  tools:call:<name>  invoke one specific tool
  tools:read         list the catalog without invoking anything
  admin              manage tokens and read run history
  *                  everything

Examples:
  gantz token create ci-runner
  gantz token create reporting --scopes tools:call:generate_report --ttl 720h
  gantz token create ops --scopes admin`,
		Args: cobra.ExactArgs(1),
		RunE: runTokenCreate,
	}

	tokenListCmd = &cobra.Command{
		Use:   "list",
		Short: "List tokens",
		Long:  "List issued tokens with their scopes and status. Secrets are never shown.",
		RunE:  runTokenList,
	}

	tokenRevokeCmd = &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a token",
		Long:  "Revoke a token by ID. Revocation is permanent and takes effect immediately.",
		Args:  cobra.ExactArgs(1),
		RunE:  runTokenRevoke,
	}

	toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool manifest",
		Long:  "List and validate the tools the gateway serves",
	}

	toolsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List tools from the manifest",
		Long:  "List every tool version the manifest declares, as the gateway would serve them",
		RunE:  runToolsList,
	}

	toolsValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Validate the manifest",
		Long:  "Check the tool manifest for errors without starting the gateway",
		RunE:  runToolsValidate,
	}

	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
		Long:  "List recorded tool invocations",
	}

	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Long:  "List recent tool invocations, newest first",
		RunE:  runRunsList,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetFullVersionString())
		},
	}
)

// openDatabase connects to the configured database for the management
// commands. Migrations run here too so `gantz token create` works on a
// fresh workspace before the first serve.
func openDatabase() (*db.DB, *repositories.Repositories, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	return database, repositories.New(database), nil
}

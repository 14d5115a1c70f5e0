package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantz-ai/gantz/internal/db/repositories"
	"github.com/gantz-ai/gantz/internal/dispatch"
)

// runRunsList lists recent tool invocations, newest first.
func runRunsList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	status, _ := cmd.Flags().GetString("status")
	tool, _ := cmd.Flags().GetString("tool")

	database, repos, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if limit <= 0 {
		limit = 50
	}

	runs, err := repos.Runs.List(context.Background(), repositories.RunFilter{
		Tool:  tool,
		State: status,
		Limit: limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("• No runs found")
		return nil
	}

	fmt.Printf("Found %d recent run(s):\n", len(runs))
	for _, run := range runs {
		fmt.Printf("• %s %s %s@%s", run.ID, stateIcon(run.State), run.ToolName, run.ToolVersion)
		fmt.Printf(" [%s]", run.CreatedAt.Format("Jan 2 15:04:05"))
		fmt.Printf(" (%dms)", run.DurationMS)
		if run.Cached {
			fmt.Printf(" cached")
		}
		fmt.Println()
		if run.ErrorKind != nil {
			msg := ""
			if run.ErrorMessage != nil {
				msg = ": " + *run.ErrorMessage
			}
			fmt.Printf("  Error: %s%s\n", *run.ErrorKind, msg)
		}
	}
	return nil
}

func stateIcon(state string) string {
	switch dispatch.State(state) {
	case dispatch.StateCompleted:
		return "✅"
	case dispatch.StateFailed:
		return "❌"
	default:
		return "•"
	}
}

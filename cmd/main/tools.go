package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gantz-ai/gantz/internal/config"
	"github.com/gantz-ai/gantz/internal/manifest"
	"github.com/gantz-ai/gantz/internal/registry"
)

// manifestPath resolves the manifest path from the --manifest flag with
// the configured path as fallback.
func manifestPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("manifest"); path != "" {
		return path, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.ManifestPath, nil
}

// runToolsList registers the manifest into a scratch registry and lists
// every version, exactly as the gateway would serve them.
func runToolsList(cmd *cobra.Command, args []string) error {
	path, err := manifestPath(cmd)
	if err != nil {
		return err
	}

	file, err := manifest.NewLoader(nil).Load(path)
	if err != nil {
		return err
	}

	reg := registry.New()
	if _, err := manifest.Apply(reg, file); err != nil {
		return fmt.Errorf("manifest %s: %w (run 'gantz tools validate' for details)", path, err)
	}

	if reg.Len() == 0 {
		fmt.Println("• No tools declared")
		return nil
	}

	fmt.Printf("Found %d tool(s) in %s:\n", reg.Len(), path)
	for tool := range reg.List() {
		fmt.Printf("• %s@%s", tool.Name, tool.Version)
		if tool.Deprecated {
			fmt.Printf(" [deprecated]")
		}
		fmt.Println()
		if tool.Description != "" {
			fmt.Printf("  %s\n", tool.Description)
		}
		fmt.Printf("  Handler: %s\n", describeHandler(tool))
		if len(tool.Params) > 0 {
			names := make([]string, 0, len(tool.Params))
			for _, p := range tool.Params {
				name := p.Name
				if p.Required {
					name += "*"
				}
				names = append(names, name)
			}
			fmt.Printf("  Params: %s\n", strings.Join(names, ", "))
		}
		if tool.Cacheable {
			fmt.Printf("  Cache: %s\n", tool.CacheTTL)
		}
		if tool.Timeout > 0 {
			fmt.Printf("  Timeout: %s\n", tool.Timeout)
		}
		if tool.RequiredScope != "" {
			fmt.Printf("  Scope: %s\n", tool.RequiredScope)
		}
	}
	return nil
}

// runToolsValidate checks the manifest and prints every diagnostic.
func runToolsValidate(cmd *cobra.Command, args []string) error {
	path, err := manifestPath(cmd)
	if err != nil {
		return err
	}

	file, err := manifest.NewLoader(nil).Load(path)
	if err != nil {
		return err
	}

	diags := manifest.Validate(file)
	for _, d := range diags {
		marker := "warning"
		if d.Severity == manifest.SeverityError {
			marker = "error"
		}
		fmt.Fprintf(os.Stderr, "%s: %s: %s [%s]\n", marker, d.Path, d.Message, d.Code)
	}

	if manifest.HasErrors(diags) {
		return fmt.Errorf("manifest %s has validation errors", path)
	}

	fmt.Printf("Manifest OK: %d tool(s)", len(file.Tools))
	if warnings := len(diags); warnings > 0 {
		fmt.Printf(", %d warning(s)", warnings)
	}
	fmt.Println()
	return nil
}

func describeHandler(tool registry.Tool) string {
	if tool.Handler.InProcess() {
		return fmt.Sprintf("builtin %s", tool.Handler.Builtin)
	}
	parts := append([]string{tool.Handler.Command}, tool.Handler.Args...)
	return fmt.Sprintf("run %s", strings.Join(parts, " "))
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantz-ai/gantz/internal/tokens"
	"github.com/gantz-ai/gantz/pkg/models"
)

// runTokenCreate issues a new token and prints the secret once.
func runTokenCreate(cmd *cobra.Command, args []string) error {
	name := args[0]
	scopes, _ := cmd.Flags().GetStringSlice("scopes")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	database, repos, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	store := tokens.NewStore(repos.Tokens)
	secret, token, err := store.Issue(context.Background(), name, scopes, ttl)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Printf("Issued token %q (id %s)\n", token.Name, token.ID)
	fmt.Printf("Scopes: %s\n", strings.Join(token.Scopes, ", "))
	if token.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", token.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Printf("Expires: never\n")
	}
	fmt.Printf("\n  %s\n\n", secret)
	fmt.Printf("Store it now. The secret is not shown again.\n")
	return nil
}

// runTokenList lists tokens without their secrets.
func runTokenList(cmd *cobra.Command, args []string) error {
	database, repos, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	store := tokens.NewStore(repos.Tokens)
	list, err := store.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list tokens: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("• No tokens found")
		return nil
	}

	fmt.Printf("Found %d token(s):\n", len(list))
	for _, t := range list {
		fmt.Printf("• %s  %s [%s]\n", t.ID, t.Name, tokenStatus(t))
		fmt.Printf("  Scopes: %s\n", strings.Join(t.Scopes, ", "))
		fmt.Printf("  Created: %s", t.CreatedAt.Format("Jan 2, 2006 15:04"))
		if t.ExpiresAt != nil {
			fmt.Printf("  Expires: %s", t.ExpiresAt.Format("Jan 2, 2006 15:04"))
		}
		if t.LastUsedAt != nil {
			fmt.Printf("  Last used: %s", t.LastUsedAt.Format("Jan 2, 2006 15:04"))
		}
		fmt.Println()
	}
	return nil
}

// runTokenRevoke revokes a token by ID.
func runTokenRevoke(cmd *cobra.Command, args []string) error {
	id := args[0]

	database, repos, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	store := tokens.NewStore(repos.Tokens)
	if err := store.Revoke(context.Background(), id); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	fmt.Printf("Revoked token %s\n", id)
	return nil
}

func tokenStatus(t *models.Token) string {
	switch {
	case t.Revoked():
		return "revoked"
	case t.Expired(time.Now().UTC()):
		return "expired"
	default:
		return "active"
	}
}

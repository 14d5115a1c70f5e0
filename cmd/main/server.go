package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gantz-ai/gantz/internal/api"
	"github.com/gantz-ai/gantz/internal/cache"
	"github.com/gantz-ai/gantz/internal/config"
	"github.com/gantz-ai/gantz/internal/db"
	"github.com/gantz-ai/gantz/internal/db/repositories"
	"github.com/gantz-ai/gantz/internal/dispatch"
	"github.com/gantz-ai/gantz/internal/executor"
	"github.com/gantz-ai/gantz/internal/logging"
	"github.com/gantz-ai/gantz/internal/manifest"
	"github.com/gantz-ai/gantz/internal/mcp"
	"github.com/gantz-ai/gantz/internal/registry"
	"github.com/gantz-ai/gantz/internal/services"
	"github.com/gantz-ai/gantz/internal/tokens"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	repos := repositories.New(database)

	store := tokens.NewStore(repos.Tokens)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load token store: %w", err)
	}

	// Local mode never checks tokens, so bootstrapping one would only
	// print a secret nobody needs.
	if !cfg.LocalMode {
		if err := bootstrapAdminToken(ctx, store, cfg.AdminTokenName); err != nil {
			return err
		}
	}

	reg := registry.New()
	if err := loadManifest(reg, cfg.ManifestPath); err != nil {
		return err
	}

	cacheStore, memCache, err := buildCache(ctx, cfg)
	if err != nil {
		return err
	}
	if cacheStore != nil {
		defer cacheStore.Close()
	}

	exec := executor.New(executor.Options{
		Concurrency:   cfg.ExecConcurrency,
		QueueWhenFull: cfg.ExecQueueWhenFull,
	})

	if err := telemetryService.Initialize(ctx); err != nil {
		logging.Error("Telemetry initialization failed, continuing without it: %v", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer flushCancel()
		telemetryService.Shutdown(flushCtx)
	}()

	recorder := services.NewRunRecorder(repos, 256)
	if err := recorder.Start(); err != nil {
		return fmt.Errorf("failed to start run recorder: %w", err)
	}
	defer recorder.Stop()

	sweeper := services.NewSweeper(repos, memCache, cfg.RunRetentionDays)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	defer sweeper.Stop()

	dispatcher := dispatch.New(dispatch.Options{
		Registry:        reg,
		Tokens:          store,
		Executor:        exec,
		Telemetry:       telemetryService,
		Cache:           cacheStore,
		Recorder:        recorder,
		DefaultBudget:   cfg.DefaultBudget(),
		MaxBudget:       cfg.MaxBudget(),
		DefaultCacheTTL: cfg.Cache.DefaultTTL,
		LocalMode:       cfg.LocalMode,
	})

	mcpServer := mcp.NewServer(reg, dispatcher, store, cfg.LocalMode)

	// Local mode serves MCP over stdio in the foreground. Stdout belongs
	// to the protocol, so no banner.
	if cfg.LocalMode {
		logging.Info("Serving MCP over stdio (local mode, %d tools)", reg.Len())
		return mcpServer.StartStdio(ctx)
	}

	apiServer := api.New(cfg, database, repos, dispatcher, reg, store, cfg.LocalMode)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		log.Printf("Starting API server on port %d", cfg.APIPort)
		if err := apiServer.Start(ctx); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	go func() {
		defer wg.Done()
		log.Printf("Starting MCP server on port %d", cfg.MCPPort)
		if err := mcpServer.Start(ctx, cfg.MCPPort); err != nil {
			log.Printf("MCP server error: %v", err)
		}
	}()

	fmt.Printf("\nGantz gateway is running\n")
	fmt.Printf("  API: http://localhost:%d/api/v1\n", cfg.APIPort)
	fmt.Printf("  MCP: http://localhost:%d/mcp\n", cfg.MCPPort)
	fmt.Printf("  Tools: %d\n", reg.Len())
	fmt.Printf("\nPress Ctrl+C to stop\n\n")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c
	fmt.Println("\nReceived shutdown signal, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Signal both servers to start shutdown immediately
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		fmt.Println("All servers stopped gracefully")
	case <-shutdownCtx.Done():
		fmt.Println("Shutdown timeout exceeded (5s), forcing exit")
	}

	return nil
}

// bootstrapAdminToken issues the initial admin token when no tokens exist
// yet. The secret is printed exactly once and cannot be recovered later.
func bootstrapAdminToken(ctx context.Context, store *tokens.Store, name string) error {
	existing, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tokens: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	secret, token, err := store.Issue(ctx, name, []string{tokens.ScopeWildcard}, 0)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin token: %w", err)
	}

	fmt.Printf("First run: issued admin token %q (id %s)\n", name, token.ID)
	fmt.Printf("\n  %s\n\n", secret)
	fmt.Printf("Store it now. The secret is not shown again.\n")
	return nil
}

// loadManifest registers the manifest's tools. A missing manifest is not
// fatal so the gateway can come up with an empty catalog, but a manifest
// that exists and fails to parse or validate is.
func loadManifest(reg *registry.Registry, path string) error {
	file, err := manifest.NewLoader(nil).Load(path)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			logging.Info("No manifest at %s; serving an empty catalog", path)
			return nil
		}
		return err
	}

	diags, err := manifest.Apply(reg, file)
	for _, d := range diags {
		if d.Severity == manifest.SeverityWarning {
			logging.Info("manifest: %s: %s [%s]", d.Path, d.Message, d.Code)
		}
	}
	if err != nil {
		for _, d := range diags {
			if d.Severity == manifest.SeverityError {
				fmt.Fprintf(os.Stderr, "  %s: %s [%s]\n", d.Path, d.Message, d.Code)
			}
		}
		return fmt.Errorf("manifest %s: %w", path, err)
	}

	logging.Info("Loaded %d tool(s) from %s", reg.Len(), path)
	return nil
}

// buildCache selects the configured cache backend. The memory store comes
// back separately because the sweeper expires its entries in-process;
// Redis handles its own TTLs.
func buildCache(ctx context.Context, cfg *config.Config) (cache.Store, *cache.MemoryStore, error) {
	if !cfg.Cache.Enabled {
		logging.Info("Result caching disabled")
		return nil, nil, nil
	}

	if cfg.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Cache.Redis.Addr, err)
		}
		logging.Info("Cache backend: redis (%s)", cfg.Cache.Redis.Addr)
		return cache.NewRedisStore(client, cache.WithPrefix(cfg.Cache.Redis.Prefix)), nil, nil
	}

	mem := cache.NewMemoryStore()
	return mem, mem, nil
}

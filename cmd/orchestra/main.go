package main

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/orchestra-mcp/orchestra/internal/activity"
	"github.com/orchestra-mcp/orchestra/internal/catalogue"
	"github.com/orchestra-mcp/orchestra/internal/config"
	"github.com/orchestra-mcp/orchestra/internal/conversation"
	"github.com/orchestra-mcp/orchestra/internal/fileio"
	"github.com/orchestra-mcp/orchestra/internal/handler"
	"github.com/orchestra-mcp/orchestra/internal/prompts"
	"github.com/orchestra-mcp/orchestra/internal/provider"
	"github.com/orchestra-mcp/orchestra/internal/server"
	"github.com/orchestra-mcp/orchestra/internal/tokens"
	"github.com/orchestra-mcp/orchestra/internal/tools"
)

func main() {
	config.LoadEnv()

	// stdio transport owns stdout for the protocol; everything human-facing
	// goes to stderr.
	log.SetOutput(os.Stderr)
	log.Printf("[Main] Orchestra MCP server v%s starting", config.Version)

	ctx := context.Background()
	providers, err := provider.NewRegistryFromEnv(ctx)
	if err != nil {
		if errors.Is(err, provider.ErrNoProviders) {
			log.Fatalf("[Main] %v", err)
		}
		log.Fatalf("[Main] Provider initialisation failed: %v", err)
	}
	for _, p := range providers.Providers() {
		log.Printf("[Main] Provider configured: %s (%d models)", p.FriendlyName(), len(p.ListModels()))
	}

	serverDir := ""
	if exe, err := os.Executable(); err == nil {
		serverDir = filepath.Dir(exe)
	}

	store := conversation.NewStore()
	defer store.Close()

	activityLog, err := activity.New(config.ActivityLogPath())
	if err != nil {
		log.Printf("[Main] Activity log disabled: %v", err)
	}
	defer activityLog.Close()

	reg := catalogue.NewRegistry(config.DisabledTools())
	tools.Register(reg)

	h := handler.New(handler.Config{
		Version:   config.Version,
		Catalogue: reg,
		Providers: providers,
		Resolver:  provider.NewResolver(providers, config.DefaultModel()),
		Store:     store,
		Estimator: tokens.NewEstimator(),
		Files:     fileio.NewValidator(serverDir),
		Prompts:   prompts.NewLoaderFromEnv(),
		Activity:  activityLog,
	})
	defer h.Close()

	if err := server.New(h, reg, providers, store).Run(); err != nil {
		log.Fatalf("[Main] Server error: %v", err)
	}
}

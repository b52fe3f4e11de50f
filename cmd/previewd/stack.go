package main

import (
	"context"
	"fmt"

	"github.com/roseram/previewd/internal/events"
	"github.com/roseram/previewd/internal/preview"
	"github.com/roseram/previewd/internal/repohost"
	"github.com/roseram/previewd/internal/sandbox"
	"github.com/roseram/previewd/internal/setup"
	"github.com/roseram/previewd/internal/storage"
	"github.com/roseram/previewd/internal/types"
)

// stack bundles the wired application, shared by every command that
// talks to the provider directly.
type stack struct {
	store    storage.Storage
	client   sandbox.Client
	host     repohost.Host
	events   events.Publisher
	previews *preview.Manager
	setup    *setup.Manager
}

// buildStack wires managers from the loaded config. The dryRun flag
// swaps the Fly client for the in-memory fake, which makes every
// command runnable without provider credentials.
func buildStack(ctx context.Context, dryRun bool) (*stack, error) {
	var client sandbox.Client
	if dryRun {
		client = sandbox.NewFake()
	} else {
		if cfg.FlyAPIToken == "" {
			return nil, fmt.Errorf("no Fly API token configured (set FLY_API_TOKEN or fly_api_token, or pass --dry-run)")
		}
		client = sandbox.NewFly(cfg.FlyAPIToken, cfg.FlyOrg, sandbox.WithFlyLogger(logger))
	}

	host := repohost.NewGitHub(repohost.WithLogger(logger))

	store, err := storage.NewStorage(ctx, &storage.Config{Path: cfg.DatabasePath})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		nats, err := events.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			// Events are advisory. Keep provisioning available when the
			// broker is down.
			logger.Warn().Err(err).Str("url", cfg.NATSURL).Msg("NATS unavailable, events disabled")
		} else {
			publisher = nats
		}
	}

	var registry preview.Registry = preview.NewMemoryRegistry()
	if cfg.DurableRegistry {
		registry = preview.NewStoreRegistry(store)
	}

	previews, err := preview.NewManager(preview.Config{
		Client:      client,
		Registry:    registry,
		Host:        host,
		Events:      publisher,
		Region:      cfg.Sandbox.Region,
		RAMMB:       cfg.Sandbox.RAMMB,
		CPUs:        cfg.Sandbox.CPUs,
		BootTimeout: cfg.Sandbox.BootTimeout,
		Logger:      logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	setupMgr, err := setup.NewManager(setup.Config{
		Store:       store,
		Client:      client,
		Host:        host,
		Events:      publisher,
		Region:      cfg.Sandbox.Region,
		RAMMB:       cfg.Sandbox.RAMMB,
		CPUs:        cfg.Sandbox.CPUs,
		BootTimeout: cfg.Sandbox.BootTimeout,
		Logger:      logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &stack{
		store:    store,
		client:   client,
		host:     host,
		events:   publisher,
		previews: previews,
		setup:    setupMgr,
	}, nil
}

func (s *stack) close() {
	s.events.Close()
	if err := s.store.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing database")
	}
}

// defaultCredential is the config-level GitHub token, used when a
// command has no per-request credential.
func defaultCredential() types.Credential {
	return types.Credential{Token: cfg.GitHubToken}
}

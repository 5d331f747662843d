// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// loom-agent executes one conversational turn against an LLM
// provider. It reads a turn request (the conversation's canonical
// messages plus a leaf to respond to) as JSON, plans the context
// budget, assembles attachment content blocks, drives the staged
// agent run, and emits JSONL events on stdout: the response parts as
// they complete, the aggregated token usage, and the persistence
// payload for the finished turn.
//
// Configuration comes from a YAML file named by the LOOM_CONFIG
// environment variable or the --config flag. The provider API key is
// read from the environment variable named by provider.api_key_env
// and never appears in the file.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/philippgille/chromem-go"
	"github.com/spf13/pflag"

	"github.com/loomchat/loom/lib/agentrun"
	"github.com/loomchat/loom/lib/attachment"
	"github.com/loomchat/loom/lib/capability"
	"github.com/loomchat/loom/lib/clock"
	"github.com/loomchat/loom/lib/config"
	"github.com/loomchat/loom/lib/contentstore"
	"github.com/loomchat/loom/lib/ledger"
	"github.com/loomchat/loom/lib/llm"
	"github.com/loomchat/loom/lib/llm/budget"
	"github.com/loomchat/loom/lib/memorystore"
	"github.com/loomchat/loom/lib/payload"
	"github.com/loomchat/loom/lib/process"
	"github.com/loomchat/loom/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var turnPath string
	var modelFlag string

	flagSet := pflag.NewFlagSet("loom-agent", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to loom.yaml (default: $LOOM_CONFIG)")
	flagSet.StringVar(&turnPath, "turn", "-", "turn request JSON file, or - for stdin")
	flagSet.StringVar(&modelFlag, "model", "", "override the configured model for this turn")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("loom-agent " + version.Info())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	model := cfg.Provider.Model
	if modelFlag != "" {
		model = modelFlag
	}
	if model == "" {
		return fmt.Errorf("no model configured; set provider.model or pass --model")
	}

	runner, err := buildRunner(cfg, model, logger, os.Stdout)
	if err != nil {
		return err
	}
	defer runner.close()

	request, err := readTurnRequest(turnPath)
	if err != nil {
		return err
	}

	return runner.executeTurn(context.Background(), request)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildRunner wires the full turn pipeline from configuration:
// provider, capability registry, attachment resolution backed by the
// content store, budget strategy, memory, ledger, and orchestrator.
func buildRunner(cfg *config.Config, model string, logger *slog.Logger, eventOutput io.Writer) (*turnRunner, error) {
	registry := capability.Builtin()
	if cfg.Provider.CapabilityFile != "" {
		loaded, err := capability.Load(cfg.Provider.CapabilityFile)
		if err != nil {
			return nil, fmt.Errorf("loading capability registry: %w", err)
		}
		registry = loaded
	}
	caps := registry.Resolve(cfg.Provider.Family, model)

	var provider llm.Provider
	switch cfg.Provider.Family {
	case "anthropic":
		provider = llm.NewAnthropic(http.DefaultClient, cfg.Provider.BaseURL, cfg.APIKey())
	case "openai":
		provider = llm.NewOpenAI(http.DefaultClient, cfg.Provider.BaseURL, cfg.APIKey())
	default:
		return nil, fmt.Errorf("unknown provider family %q", cfg.Provider.Family)
	}

	blobStore, err := contentstore.NewStore(cfg.Paths.ContentStore, logger)
	if err != nil {
		return nil, fmt.Errorf("opening content store: %w", err)
	}

	resolver := attachment.NewResolver(attachment.ResolverConfig{
		Store:         readThrough{blobStore},
		UploadsRoot:   cfg.Paths.Uploads,
		ExtraRoots:    cfg.Attachment.ExtraRoots,
		ServerBaseURL: cfg.Attachment.ServerBaseURL,
		Logger:        logger,
	})

	assembler := payload.NewAssembler(payload.AssemblerConfig{
		Loader:           resolver,
		Caps:             caps,
		CitationsEnabled: caps.SupportsCitations,
		Logger:           logger,
	})

	contextWindow := cfg.Budget.ContextWindow
	if contextWindow <= 0 {
		contextWindow = budget.ContextWindowForModel(model)
	}
	strategy := budget.NewStrategy(budget.StrategyConfig{
		Budget: budget.Budget{
			ContextWindow:   contextWindow,
			MaxOutputTokens: cfg.Budget.MaxOutputTokens,
			OverheadTokens:  cfg.Budget.OverheadTokens,
		},
		Mode:   budget.TrimMode(cfg.Budget.TrimMode),
		Logger: logger,
	})

	ledgerStore, err := ledger.OpenStore(ledger.StoreConfig{
		Path:   cfg.Paths.Ledger,
		Clock:  clock.Real(),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening usage ledger: %w", err)
	}

	var memory *memorystore.Store
	var extractor agentrun.MemoryExtractor
	if cfg.Run.MemoryEnabled {
		embed := chromem.NewEmbeddingFuncOpenAICompat(
			cfg.Run.EmbeddingBaseURL, cfg.EmbeddingAPIKey(), cfg.Run.EmbeddingModel, nil)
		memory, err = memorystore.OpenStore(memorystore.StoreConfig{
			Path:   cfg.Paths.Memory,
			Embed:  embed,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening memory store: %w", err)
		}
		extractor = memorystore.NewExtractor(provider, model, memory, logger)
	}

	orchestrator := agentrun.NewOrchestrator(agentrun.OrchestratorConfig{
		Provider:         provider,
		Caps:             caps,
		CitationsEnabled: caps.SupportsCitations,
		Ledger:           ledgerStore,
		Memory:           memory,
		Extractor:        extractor,
		Clock:            clock.Real(),
		Logger:           logger,
		MaxRecursion:     cfg.Run.MaxRecursion,
		MemoryTimeout:    memoryTimeout(cfg),
		MaxOutputTokens:  cfg.Budget.MaxOutputTokens,
	})

	return &turnRunner{
		strategy:     strategy,
		assembler:    assembler,
		orchestrator: orchestrator,
		ledger:       ledgerStore,
		defaultModel: model,
		logger:       logger,
		events:       newEventWriter(eventOutput),
	}, nil
}

// readThrough serves attachment path candidates from the
// content-addressed store when the candidate's basename is a digest
// (files ingested into the CAS keep their digest as the on-disk
// name), falling back to the plain filesystem for everything else.
type readThrough struct {
	store *contentstore.Store
}

func (reader readThrough) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := reader.store.ReadFile(ctx, path)
	if err == nil {
		return data, nil
	}
	return attachment.DiskReader{}.ReadFile(ctx, path)
}

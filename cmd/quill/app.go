package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nugget/quill/internal/agent"
	"github.com/nugget/quill/internal/command"
	"github.com/nugget/quill/internal/config"
	"github.com/nugget/quill/internal/events"
	"github.com/nugget/quill/internal/llm"
	"github.com/nugget/quill/internal/memory"
	"github.com/nugget/quill/internal/mqtt"
	"github.com/nugget/quill/internal/paths"
	"github.com/nugget/quill/internal/tools"
)

// app holds the wired components for subcommands that talk to a model.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	loop    *agent.Loop
	journal *memory.Journal

	stopForwarder func()
}

// loadConfig locates and parses the YAML configuration file. When no
// file is found the built-in defaults are used and the returned path is
// empty.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	if cfgPath == "" {
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newLogger builds the process logger. The --log-level flag wins over
// the config file.
func newLogger(w io.Writer, g *globalFlags, cfg *config.Config) (*slog.Logger, error) {
	lvl := cfg.LogLevel
	if g.logLevel != "" {
		lvl = g.logLevel
	}
	level, err := config.ParseLogLevel(lvl)
	if err != nil {
		return nil, err
	}
	return config.NewLogger(w, level), nil
}

// createLLMClient returns the provider selected by models.provider.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	switch cfg.Models.Provider {
	case config.ProviderAnthropic:
		return llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
	default:
		return llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	}
}

// openApp loads configuration and wires the sandbox, effectors, router,
// journal, event bus, optional MQTT forwarder and turn loop. Callers
// must call Close.
func openApp(ctx context.Context, g *globalFlags, logOut io.Writer) (*app, error) {
	cfg, cfgPath, err := loadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(logOut, g, cfg)
	if err != nil {
		return nil, err
	}
	if cfgPath == "" {
		logger.Debug("no config file found, using defaults")
	} else {
		logger.Debug("config loaded", "path", cfgPath)
	}

	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	sandbox, err := paths.NewSandbox(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("storage sandbox: %w", err)
	}
	store, err := memory.NewConversationStore(cfg.ConversationsDir)
	if err != nil {
		return nil, fmt.Errorf("conversation store: %w", err)
	}
	journal, err := memory.OpenJournal(cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	files := tools.NewFileTools(sandbox, logger)
	convs := tools.NewConversationTools(store, logger)
	router := command.NewRouter(command.DefaultRegistry(), files, convs, logger)

	a := &app{
		cfg:           cfg,
		logger:        logger,
		journal:       journal,
		stopForwarder: func() {},
	}

	var bus *events.Bus
	if cfg.MQTT.Configured() {
		bus = events.New()
		if err := a.startForwarder(ctx, bus); err != nil {
			logger.Warn("mqtt forwarding disabled", "error", err)
			bus = nil
		}
	}

	a.loop = agent.NewLoop(agent.Options{
		Client:        createLLMClient(cfg, logger),
		Model:         cfg.Models.Default,
		Router:        router,
		Conversations: convs,
		Journal:       journal,
		Bus:           bus,
		Logger:        logger,
		MaxAutoRounds: cfg.Agent.MaxAutoRounds,
	})

	logger.Info("quill ready",
		"provider", cfg.Models.Provider,
		"model", cfg.Models.Default,
		"storage", sandbox.Root(),
	)
	return a, nil
}

func (a *app) startForwarder(ctx context.Context, bus *events.Bus) error {
	clientID, err := mqtt.ClientID(a.cfg.DataDir, a.cfg.MQTT.ClientID)
	if err != nil {
		return err
	}
	fwd := mqtt.New(a.cfg.MQTT, clientID, bus, a.logger)

	fwdCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := fwd.Start(fwdCtx); err != nil {
			a.logger.Warn("mqtt forwarder stopped", "error", err)
		}
	}()

	a.stopForwarder = func() {
		cancel()
		<-done
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := fwd.Stop(stopCtx); err != nil {
			a.logger.Debug("mqtt disconnect failed", "error", err)
		}
	}
	return nil
}

// Close stops background work and releases the journal.
func (a *app) Close() {
	a.stopForwarder()
	if err := a.journal.Close(); err != nil {
		a.logger.Warn("journal close failed", "error", err)
	}
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/tbxark/talkform/agent"
	"github.com/tbxark/talkform/aiquery"
	"github.com/tbxark/talkform/bot"
	"github.com/tbxark/talkform/catalog"
	"github.com/tbxark/talkform/config"
	"github.com/tbxark/talkform/dialogue"
	"github.com/tbxark/talkform/intent"
	"github.com/tbxark/talkform/query"
)

// app holds the wired runtime shared by the serve and chat commands.
type app struct {
	env    *config.EnvVars
	loader *catalog.Loader
	db     *sql.DB
	runner *bot.Runner
}

func newApp(ctx context.Context, env *config.EnvVars) (*app, error) {
	loader := catalog.NewLoader(env.CatalogDir)
	if _, err := loader.Load(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	db, err := query.Open(ctx, env.DatabasePath)
	if err != nil {
		return nil, err
	}
	tr, err := query.DefaultTranslations()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	executor := bot.NewCachedExecutor(query.NewSQLExecutor(db, tr), env.QueryCacheSize)

	var chatModel *openai.ChatModel
	if env.LLMEnabled() {
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  env.LLMApiKey,
			Model:   env.LLMModel,
			BaseURL: env.LLMBaseURL,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create chat model: %w", err)
		}
	}

	ai, err := newAIAgent(env, chatModel)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	cities := bot.Cities(loader)
	manager := agent.WithFormManager(logFormManager{})
	controller := agent.NewLocalController(cities, manager)
	runnerOpts := []bot.Option{bot.WithStateReadWriter(agent.NewMemoryStateReadWriter())}
	if chatModel != nil {
		if controller, err = agent.NewToolBasedController(cities, chatModel, manager); err != nil {
			_ = db.Close()
			return nil, err
		}
		rec, err := intent.NewToolBasedRecognizer(chatModel, intent.ChoicesFromButtons(loader.Current().Menu()))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		runnerOpts = append(runnerOpts, bot.WithRecognizer(intent.NewFailbackRecognizer(intent.NewLocalRecognizer(nil), rec)))
	}

	opts := []bot.ActionsOption{bot.WithExecutor(executor)}
	if ai != nil {
		opts = append(opts, bot.WithAIAgent(ai))
	}
	actions := bot.NewActions(dialogue.NewLocalRenderer(cities), opts...)
	runner := bot.NewRunner(loader, controller, actions, runnerOpts...)

	slog.Info("Runtime ready",
		"forms", len(loader.Current().Forms()),
		"innohub", env.InnohubEnabled(),
		"llm", env.LLMEnabled(),
		"database", env.DatabasePath,
	)
	return &app{env: env, loader: loader, db: db, runner: runner}, nil
}

// newAIAgent prefers Innohub and falls back to the chat model. It returns nil when neither
// is configured.
func newAIAgent(env *config.EnvVars, chatModel *openai.ChatModel) (aiquery.Agent, error) {
	var agents []aiquery.Agent
	if env.InnohubEnabled() {
		agents = append(agents, aiquery.NewInnohubClient(aiquery.InnohubConfig{
			BaseURL:   env.InnohubURL,
			APIKey:    env.InnohubAPIKey,
			Assistant: env.InnohubAssistant,
			Timeout:   env.InnohubTimeout,
		}))
	}
	if chatModel != nil {
		a, err := aiquery.NewChatModelAgent(chatModel, agent.NewMemoryHistoryStore(env.HistoryLimit))
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	switch len(agents) {
	case 0:
		return nil, nil
	case 1:
		return agents[0], nil
	default:
		return aiquery.NewFailbackAgent(agents...), nil
	}
}

func (a *app) watchCatalog(ctx context.Context) {
	if !a.env.CatalogWatch {
		return
	}
	if a.env.CatalogDir == "" {
		slog.Warn("CATALOG_WATCH ignored for the embedded catalog")
		return
	}
	go func() {
		if err := a.loader.WatchAndReload(ctx.Done()); err != nil {
			slog.Error("Catalog watcher stopped", "error", err)
		}
	}()
}

func (a *app) Close() error {
	return a.db.Close()
}

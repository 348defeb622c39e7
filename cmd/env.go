package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/social-listener/internal/analyze"
	"github.com/sells-group/social-listener/internal/collect"
	"github.com/sells-group/social-listener/internal/config"
	"github.com/sells-group/social-listener/internal/fetcher"
	"github.com/sells-group/social-listener/internal/outreach"
	"github.com/sells-group/social-listener/internal/store"
	"github.com/sells-group/social-listener/internal/task"
	"github.com/sells-group/social-listener/pkg/anthropic"
	"github.com/sells-group/social-listener/pkg/notion"
)

// env bundles the wired pipeline for a command invocation.
type env struct {
	Store     store.Store
	Tracker   *task.Tracker
	Collector *collect.Runner
	Analyzer  *analyze.Runner
	Drafter   *outreach.Drafter
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// initEnv opens the store and wires the collectors, analyzer and drafter
// from the loaded config.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	tracker := task.NewTracker(task.DefaultExpiry)

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:      cfg.Collect.UserAgent,
		Timeout:        time.Duration(cfg.Collect.TimeoutSecs) * time.Second,
		RequestsPerSec: cfg.Collect.RequestsPerSec,
	})
	collector := collect.NewRunner(st, tracker,
		collect.NewRedditSource(httpFetcher, cfg.Collect.PageLimit),
		collect.NewHackerNewsSource(httpFetcher, cfg.Collect.PageLimit),
		collect.NewMastodonSource(httpFetcher, cfg.Collect.PageLimit),
		collect.NewDevToSource(httpFetcher, cfg.Collect.PageLimit),
	)

	ai := anthropic.NewClient(cfg.Anthropic.Key)
	var notionClient notion.Client
	if cfg.Notion.Token != "" {
		notionClient = notion.NewClient(cfg.Notion.Token)
	}
	notifier := analyze.NewNotifier(notionClient, cfg.Notion.LeadDB)
	analyzer := analyze.NewRunner(st,
		analyze.NewClassifier(ai, cfg.Anthropic.MaxTokens),
		tracker, notifier, cfg.Analyze.MaxConcurrent)

	templates, err := outreach.LoadTemplates(cfg.Outreach.TemplatesPath)
	if err != nil {
		st.Close()
		return nil, err
	}
	drafter := outreach.NewDrafter(st, ai, templates)

	return &env{
		Store:     st,
		Tracker:   tracker,
		Collector: collector,
		Analyzer:  analyzer,
		Drafter:   drafter,
	}, nil
}

// openStore picks the backend from config. SQLite is the default for
// single-box runs; postgres for shared deployments.
func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "", "sqlite":
		return store.NewSQLite(sc.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", sc.Driver)
	}
}

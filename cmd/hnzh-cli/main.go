// Command hnzh-cli is the operator tool for the hnzh pipeline: trigger
// a single fetch cycle on demand, inspect collaborator health, and
// view or override the persisted prompt set and scheduler settings.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackc/pgx/v5/pgxpool"

	"hnzh/internal/config"
	"hnzh/internal/eventbus"
	"hnzh/internal/health"
	"hnzh/internal/infra/feedhn"
	"hnzh/internal/infra/llmclient"
	"hnzh/internal/infra/pgcache"
	"hnzh/internal/infra/reader"
	"hnzh/internal/logging"
	"hnzh/internal/metrics"
	"hnzh/internal/pipeline"
	"hnzh/internal/prompts"
	"hnzh/internal/xerrors"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "hnzh-cli",
		Short: "Operator tool for the HN-to-Chinese translation pipeline",
	}
	root.AddCommand(newRunOnceCommand())
	root.AddCommand(newStatsCommand())
	root.AddCommand(newPromptsCommand())
	root.AddCommand(newConfigCommand())
	return root
}

func buildDeps(ctx context.Context) (pipeline.Deps, *pgxpool.Pool, error) {
	logger := logging.NewComponentLogger("hnzh-cli")

	cfg, err := config.Load()
	if err != nil {
		return pipeline.Deps{}, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return pipeline.Deps{}, nil, err
	}

	cache := pgcache.New(pool, logger)
	if err := cache.EnsureSchema(ctx); err != nil {
		pool.Close()
		return pipeline.Deps{}, nil, err
	}

	upstream := feedhn.New(feedhn.Config{
		BaseURL:        cfg.UpstreamBaseURL,
		RequestTimeout: cfg.HTTPTimeout,
		Retry:          xerrors.DefaultRetryConfig(),
	}, logger)
	articleFetcher := reader.New(reader.Config{
		ReaderBase:     cfg.ReaderBaseURL,
		RequestTimeout: cfg.HTTPTimeout,
		WithImages:     cfg.ReaderWithImage,
		Retry:          xerrors.DefaultRetryConfig(),
	}, logger)

	providers := make([]llmclient.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, llmclient.Provider{
			Name:          p.Name,
			BaseURL:       p.BaseURL,
			Model:         p.Model,
			APIKey:        p.APIKey,
			ThinkingModel: p.ThinkingModel,
		})
	}
	translator := llmclient.New(providers, cfg.CurrentProvider, logger)

	promptRegistry := prompts.NewRegistry()
	if home, err := os.UserHomeDir(); err == nil {
		_ = prompts.LoadSeed(promptRegistry, home+"/prompts.yaml")
	}
	if err := prompts.LoadFromSettings(ctx, cache, promptRegistry); err != nil {
		logger.Warn("load prompt overrides: %v", err)
	}

	noopMetrics, _ := metrics.New(metrics.Config{Enabled: false})

	deps := pipeline.Deps{
		Upstream:   upstream,
		Reader:     articleFetcher,
		Translator: translator,
		Cache:      cache,
		Prompts:    promptRegistry,
		Settings:   cache,
		Bus:        eventbus.New(),
		Metrics:    noopMetrics,
		Health:     health.NewRegistry(),
		Logger:     logger,
	}
	return deps, pool, nil
}

func newRunOnceCommand() *cobra.Command {
	var storyLimit, articleConcurrency, maxCommentTranslations int
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Run a single fetch-and-translate cycle synchronously",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, pool, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			sched := pipeline.NewFetchScheduler(deps, pipeline.FetchConfig{
				StoryLimit:             storyLimit,
				ArticleConcurrency:     articleConcurrency,
				MaxCommentTranslations: maxCommentTranslations,
			})
			start := time.Now()
			if err := sched.RunOnce(ctx); err != nil {
				return err
			}
			fmt.Printf("cycle completed in %s\n", time.Since(start))
			return nil
		},
	}
	cmd.Flags().IntVar(&storyLimit, "story-limit", 30, "number of top stories to consider")
	cmd.Flags().IntVar(&articleConcurrency, "article-concurrency", 5, "max in-flight article tasks")
	cmd.Flags().IntVar(&maxCommentTranslations, "max-comment-translations", 50, "max comments translated per item")
	return cmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the last recorded scheduler status and collaborator health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, pool, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			status, err := deps.Settings.GetSchedulerStatus(ctx)
			if err != nil {
				return err
			}
			if status.LastRunAt == nil {
				fmt.Println("no scheduler runs recorded yet")
			} else {
				fmt.Printf("last run: %v\nstories fetched: %d\ntitles translated: %d\n",
					formatOptionalUnix(status.LastRunAt), status.StoriesFetched, status.TitlesTranslated)
			}

			for _, snap := range deps.Health.Snapshot() {
				fmt.Printf("%-10s last_success=%v last_failure=%v last_error=%q\n",
					snap.Collaborator, snap.LastSuccess, snap.LastFailure, snap.LastError)
			}
			return nil
		},
	}
}

func formatOptionalUnix(sec *int64) string {
	if sec == nil {
		return "never"
	}
	return time.Unix(*sec, 0).Format(time.RFC3339)
}

func newPromptsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect or override the live prompt set",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show [article|tldr|comment]",
		Short: "Print the current prompt text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, pool, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := prompts.LoadFromSettings(ctx, deps.Settings, deps.Prompts); err != nil {
				return err
			}
			fmt.Println(deps.Prompts.GetPrompt(prompts.Type(args[0])))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set [article|tldr|comment] [text]",
		Short: "Persist a prompt override; the pipeline picks it up on its next start",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, pool, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := prompts.SaveToSettings(ctx, deps.Settings, prompts.Type(args[0]), args[1]); err != nil {
				return err
			}
			fmt.Println("updated")
			return nil
		},
	})
	return cmd
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or write a runtime scheduler setting",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get [key]",
		Short: "Print a stored setting value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, pool, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			value, ok, err := deps.Settings.GetSetting(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("(unset)")
				return nil
			}
			fmt.Println(value)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set [key] [value]",
		Short: "Persist a setting value; the pipeline picks it up on its next start",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, pool, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := deps.Settings.SetSetting(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("updated")
			return nil
		},
	})
	return cmd
}

// Package pipeline implements the three background schedulers: the
// central fetch-and-translate cycle, the independent comment refresh
// cycle, and the retention sweeper. Each shares the same
// Start/Stop/Done timer-driven lifecycle built on a plain time.Timer
// loop; the cadence is always a fixed interval, never a cron expression.
package pipeline

import (
	"context"

	"hnzh/internal/domain/content"
	"hnzh/internal/domain/feed"
	"hnzh/internal/domain/jobs"
	"hnzh/internal/domain/llm"
	"hnzh/internal/domain/settings"
	"hnzh/internal/domain/translation"
	"hnzh/internal/eventbus"
	"hnzh/internal/health"
	"hnzh/internal/logging"
	"hnzh/internal/metrics"
	"hnzh/internal/prompts"
	"hnzh/internal/queue"
)

// Deps bundles every collaborator the schedulers need. All three
// schedulers share one Deps value so they observe the same cache,
// prompts, and bus.
type Deps struct {
	Upstream   feed.UpstreamClient
	Reader     content.ArticleFetcher
	Translator llm.Translator
	Cache      translation.Cache
	Prompts    *prompts.Registry
	Settings   settings.Store
	Bus        *eventbus.Bus
	Metrics    *metrics.Collector
	Health     *health.Registry
	Logger     logging.Logger

	// Queue is the admission-control layer: when set, article tasks are
	// submitted through it (creating Job rows the operator CLI can
	// inspect) instead of running unmanaged goroutines. Title batches and
	// comment work never go through it. Nil is valid; schedulers run the
	// work directly in that case.
	Queue *queue.Queue
}

// submitOrRun runs task through deps.Queue if present (recording a Job row
// of the given kind), or directly otherwise. It blocks until task has
// actually run, regardless of path, so callers can WaitGroup around it.
func submitOrRun(ctx context.Context, deps Deps, itemID int, kind jobs.Kind, task queue.Task) error {
	if deps.Queue == nil {
		return task(ctx)
	}
	done := make(chan error, 1)
	if _, err := deps.Queue.Submit(ctx, itemID, kind, func(ctx context.Context) error {
		err := task(ctx)
		done <- err
		return err
	}); err != nil {
		return err
	}
	return <-done
}

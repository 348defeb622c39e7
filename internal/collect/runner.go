package collect

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/internal/resilience"
	"github.com/sells-group/social-listener/internal/store"
	"github.com/sells-group/social-listener/internal/task"
)

// Summary tallies one collection run.
type Summary struct {
	SourcesChecked int `json:"sources_checked"`
	SourcesFailed  int `json:"sources_failed"`
	PostsScanned   int `json:"posts_scanned"`
	PostsMatched   int `json:"posts_matched"`
	PostsInserted  int `json:"posts_inserted"`
	Duplicates     int `json:"duplicates_skipped"`
}

func (s Summary) String() string {
	return fmt.Sprintf("scanned %d, matched %d, inserted %d, %d duplicates (%d/%d sources ok)",
		s.PostsScanned, s.PostsMatched, s.PostsInserted, s.Duplicates,
		s.SourcesChecked-s.SourcesFailed, s.SourcesChecked)
}

// Runner executes collection runs across all registered sources. It is
// long-lived: per-source circuit breakers carry across runs, so a platform
// that keeps failing gets skipped until its reset window passes.
type Runner struct {
	store    store.Store
	tracker  *task.Tracker
	sources  []Source
	breakers *resilience.ServiceBreakers
}

// NewRunner creates a collection runner over the given sources.
func NewRunner(st store.Store, tr *task.Tracker, sources ...Source) *Runner {
	return &Runner{
		store:    st,
		tracker:  tr,
		sources:  sources,
		breakers: resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
}

// Platforms reports the platform ids of the registered sources.
func (r *Runner) Platforms() []model.Platform {
	out := make([]model.Platform, len(r.sources))
	for i, src := range r.sources {
		out[i] = src.Platform()
	}
	return out
}

// Run performs one collection pass over the requested platforms, or over
// every registered source when none are named. The caller must already
// hold the collect task slot (task.Tracker.Start); Run reports progress
// against it and completes or fails it.
func (r *Runner) Run(ctx context.Context, platforms ...model.Platform) (Summary, error) {
	sources, err := r.selectSources(platforms)
	if err != nil {
		r.tracker.Fail(task.TypeCollect, err.Error())
		return Summary{}, err
	}

	raw, err := r.store.GetSettings(ctx)
	if err != nil {
		r.tracker.Fail(task.TypeCollect, "loading settings failed")
		return Summary{}, err
	}
	set, err := model.ParseSettings(raw)
	if err != nil {
		r.tracker.Fail(task.TypeCollect, err.Error())
		return Summary{}, err
	}

	r.tracker.SetTotal(task.TypeCollect, len(sources))

	var summary Summary
	for i, src := range sources {
		summary.SourcesChecked++
		r.tracker.Update(task.TypeCollect, i,
			fmt.Sprintf("collecting %s (%d of %d sources)", src.Platform(), i+1, len(sources)))

		if err := r.collectSource(ctx, src, set, &summary); err != nil {
			summary.SourcesFailed++
			srcErr := &SourceError{Platform: src.Platform(), Err: err}
			zap.L().Error("source collection failed",
				zap.String("platform", string(src.Platform())),
				zap.Error(srcErr))
		}

		if ctx.Err() != nil {
			r.tracker.Fail(task.TypeCollect, "collection cancelled")
			return summary, eris.Wrap(ctx.Err(), "collect: cancelled")
		}
	}

	if summary.SourcesFailed == summary.SourcesChecked && summary.SourcesChecked > 0 {
		msg := "all sources failed"
		r.tracker.Fail(task.TypeCollect, msg)
		return summary, eris.New("collect: " + msg)
	}

	r.tracker.Complete(task.TypeCollect, summary.String())
	zap.L().Info("collection complete",
		zap.Int("scanned", summary.PostsScanned),
		zap.Int("matched", summary.PostsMatched),
		zap.Int("inserted", summary.PostsInserted),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("sources_failed", summary.SourcesFailed),
	)
	return summary, nil
}

// selectSources resolves the requested platform ids against the registered
// sources. An empty request means every source; an unknown id is an error.
func (r *Runner) selectSources(platforms []model.Platform) ([]Source, error) {
	if len(platforms) == 0 {
		return r.sources, nil
	}
	byPlatform := make(map[model.Platform]Source, len(r.sources))
	for _, src := range r.sources {
		byPlatform[src.Platform()] = src
	}
	var out []Source
	seen := make(map[model.Platform]bool, len(platforms))
	for _, p := range platforms {
		if seen[p] {
			continue
		}
		seen[p] = true
		src, ok := byPlatform[p]
		if !ok {
			return nil, eris.Errorf("unknown source %q", p)
		}
		out = append(out, src)
	}
	return out, nil
}

func (r *Runner) collectSource(ctx context.Context, src Source, set model.Settings, summary *Summary) error {
	breaker := r.breakers.Get(string(src.Platform()))

	posts, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) ([]model.RawPost, error) {
		return src.Fetch(ctx, set)
	})
	if err != nil {
		return err
	}

	for _, post := range posts {
		summary.PostsScanned++
		if !MatchesKeywords(post.Text(), set.Keywords) {
			continue
		}
		summary.PostsMatched++

		_, wasNew, err := r.store.UpsertPost(ctx, post)
		if err != nil {
			// Store failures are systemic, not a source problem.
			return eris.Wrap(err, "store post")
		}
		if wasNew {
			summary.PostsInserted++
		} else {
			summary.Duplicates++
		}
	}
	return nil
}

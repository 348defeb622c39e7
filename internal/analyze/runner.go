package analyze

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/social-listener/internal/collect"
	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/internal/sentiment"
	"github.com/sells-group/social-listener/internal/store"
	"github.com/sells-group/social-listener/internal/task"
)

const defaultConcurrency = 4

// Summary reports what a single analysis run did.
type Summary struct {
	PostsProcessed   int `json:"posts_processed"`
	SentimentSkipped int `json:"sentiment_skipped"`
	Classified       int `json:"classified"`
	LeadsPromoted    int `json:"leads_promoted"`
	Failures         int `json:"failures"`
}

func (s Summary) String() string {
	return fmt.Sprintf("processed %d posts (%d sentiment-skipped, %d classified), %d leads promoted, %d failures",
		s.PostsProcessed, s.SentimentSkipped, s.Classified, s.LeadsPromoted, s.Failures)
}

// Runner drives the analysis pipeline over the unanalyzed backlog.
type Runner struct {
	store       store.Store
	classifier  *Classifier
	tracker     *task.Tracker
	notifier    *Notifier
	concurrency int
}

// NewRunner wires an analysis runner. concurrency bounds the number of
// posts classified in parallel; zero or negative picks a default.
func NewRunner(st store.Store, classifier *Classifier, tr *task.Tracker, notifier *Notifier, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Runner{
		store:       st,
		classifier:  classifier,
		tracker:     tr,
		notifier:    notifier,
		concurrency: concurrency,
	}
}

// Run analyzes the oldest unanalyzed posts, records verdicts and promotes
// qualifying ones to leads. The caller must already hold the analyze task
// slot (task.Tracker.Start); Run reports progress against it and completes
// or fails it.
//
// Per-post failures leave that post unanalyzed, so the next run retries
// it; only settings or listing errors abort the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	raw, err := r.store.GetSettings(ctx)
	if err != nil {
		r.tracker.Fail(task.TypeAnalyze, "loading settings failed")
		return Summary{}, eris.Wrap(err, "load settings")
	}
	set, err := model.ParseSettings(raw)
	if err != nil {
		r.tracker.Fail(task.TypeAnalyze, "invalid settings")
		return Summary{}, err
	}

	posts, err := r.store.ListUnanalyzed(ctx, set.AnalyzeBatchSize)
	if err != nil {
		r.tracker.Fail(task.TypeAnalyze, "listing unanalyzed posts failed")
		return Summary{}, eris.Wrap(err, "list unanalyzed")
	}
	if len(posts) == 0 {
		r.tracker.Complete(task.TypeAnalyze, "no posts to analyze")
		return Summary{}, nil
	}
	r.tracker.SetTotal(task.TypeAnalyze, len(posts))

	var (
		mu      sync.Mutex
		summary Summary
		done    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, post := range posts {
		post := post
		g.Go(func() error {
			outcome, err := r.analyzeOne(gctx, post, set)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			summary.PostsProcessed++
			switch {
			case err != nil:
				summary.Failures++
				zap.L().Warn("post analysis failed",
					zap.String("post_id", post.ID),
					zap.Error(err))
			case outcome.sentimentSkipped:
				summary.SentimentSkipped++
			default:
				summary.Classified++
			}
			if outcome.promoted {
				summary.LeadsPromoted++
			}
			done++
			r.tracker.Update(task.TypeAnalyze, done,
				fmt.Sprintf("analyzed %d of %d posts", done, len(posts)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.tracker.Fail(task.TypeAnalyze, "analysis cancelled")
		return summary, err
	}

	if summary.Failures == len(posts) {
		r.tracker.Fail(task.TypeAnalyze, "every post failed to analyze")
		return summary, eris.New("analyze: every post failed")
	}

	r.tracker.Complete(task.TypeAnalyze, summary.String())
	zap.L().Info("analysis run finished",
		zap.Int("processed", summary.PostsProcessed),
		zap.Int("sentiment_skipped", summary.SentimentSkipped),
		zap.Int("leads_promoted", summary.LeadsPromoted),
		zap.Int("failures", summary.Failures))
	return summary, nil
}

type postOutcome struct {
	sentimentSkipped bool
	promoted         bool
}

// analyzeOne takes a post through the stages and records exactly one
// verdict, or returns an error leaving the post unanalyzed.
func (r *Runner) analyzeOne(ctx context.Context, post model.RawPost, set model.Settings) (postOutcome, error) {
	text := post.Text()
	if strings.TrimSpace(text) == "" {
		verdict := model.Verdict{
			Reason:           "Post has no text content",
			SuggestedService: "none",
		}
		_, err := r.store.UpsertAnalysis(ctx, post.ID, verdict, 0)
		return postOutcome{sentimentSkipped: true}, err
	}

	// Keyword matching happened at collection time; imported posts bypass
	// it, so a miss here is worth noting but not acting on.
	if !collect.MatchesKeywords(text, set.Keywords) {
		zap.L().Debug("post matches no keywords", zap.String("post_id", post.ID))
	}

	score := sentiment.Score(text)
	if set.SkipNeutral && !sentiment.Passes(score, set.SentimentThreshold) {
		verdict := model.Verdict{
			Reason:           fmt.Sprintf("Filtered by sentiment (score: %.3f)", score),
			SuggestedService: "none",
		}
		_, err := r.store.UpsertAnalysis(ctx, post.ID, verdict, score)
		return postOutcome{sentimentSkipped: true}, err
	}

	verdict, err := r.classifier.Classify(ctx, post, set)
	if err != nil {
		return postOutcome{}, err
	}

	analyzed, err := r.store.UpsertAnalysis(ctx, post.ID, verdict, score)
	if err != nil {
		return postOutcome{}, err
	}

	if !verdict.Qualifies(set.ConfidenceThreshold) {
		return postOutcome{}, nil
	}

	lead := model.NewLead(*analyzed, post)
	id, created, err := r.store.PromoteLead(ctx, lead)
	if err != nil {
		return postOutcome{}, err
	}
	if !created {
		return postOutcome{}, nil
	}

	zap.L().Info("lead promoted",
		zap.String("lead_id", id),
		zap.String("platform", string(post.Platform)),
		zap.Float64("confidence", verdict.Confidence))
	if r.notifier != nil {
		lead.ID = id
		r.notifier.LeadCreated(ctx, set.LeadWebhookURL, lead)
	}
	return postOutcome{promoted: true}, nil
}

// Package collect polls public social platforms for posts matching the
// configured frustration keywords and feeds them into the dedup store.
package collect

import (
	"context"

	"github.com/sells-group/social-listener/internal/model"
)

// Source is a platform adapter. Fetch returns normalized candidate posts;
// keyword filtering and dedup happen in the Runner.
type Source interface {
	Platform() model.Platform
	Fetch(ctx context.Context, set model.Settings) ([]model.RawPost, error)
}

// SourceError marks a failure to reach or parse one platform. A failing
// source never aborts the run; the Runner records the error and moves on.
type SourceError struct {
	Platform model.Platform
	Err      error
}

func (e *SourceError) Error() string {
	return "source " + string(e.Platform) + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() error { return e.Err }

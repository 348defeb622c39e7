package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/pkg/notion"
)

// Notifier announces freshly promoted leads. Delivery is best effort:
// failures are logged, never propagated, so a down webhook cannot stall
// the analysis run.
type Notifier struct {
	httpClient *http.Client
	notion     notion.Client
	notionDB   string
}

// NewNotifier builds a notifier. The notion client may be nil when Notion
// sync is not configured.
func NewNotifier(nc notion.Client, notionDB string) *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		notion:     nc,
		notionDB:   notionDB,
	}
}

// LeadCreated pushes the lead to the configured webhook and, when enabled,
// creates a Notion page for it.
func (n *Notifier) LeadCreated(ctx context.Context, webhookURL string, lead model.Lead) {
	if webhookURL != "" {
		n.postWebhook(ctx, webhookURL, lead.ID)
	}
	if n.notion != nil && n.notionDB != "" {
		if _, err := n.notion.CreatePage(ctx, notion.BuildLeadPage(n.notionDB, lead)); err != nil {
			zap.L().Warn("notion lead page failed",
				zap.String("lead_id", lead.ID),
				zap.Error(err))
		}
	}
}

func (n *Notifier) postWebhook(ctx context.Context, url, leadID string) {
	body, _ := json.Marshal(map[string]string{"lead_id": leadID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		zap.L().Warn("lead webhook failed", zap.String("lead_id", leadID), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		zap.L().Warn("lead webhook failed", zap.String("lead_id", leadID), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		zap.L().Warn("lead webhook rejected",
			zap.String("lead_id", leadID),
			zap.Int("status", resp.StatusCode))
		return
	}
	zap.L().Debug("lead webhook delivered", zap.String("lead_id", leadID))
}

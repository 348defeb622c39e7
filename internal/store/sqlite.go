package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/social-listener/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS raw_posts (
	id           TEXT PRIMARY KEY,
	platform     TEXT NOT NULL,
	post_id      TEXT NOT NULL,
	author       TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	score        INTEGER NOT NULL DEFAULT 0,
	num_comments INTEGER NOT NULL DEFAULT 0,
	collected_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (platform, post_id)
);

CREATE TABLE IF NOT EXISTS analyzed_posts (
	id                TEXT PRIMARY KEY,
	raw_post_id       TEXT NOT NULL UNIQUE REFERENCES raw_posts(id) ON DELETE CASCADE,
	is_frustrated     INTEGER NOT NULL DEFAULT 0,
	confidence        REAL NOT NULL DEFAULT 0,
	reason            TEXT NOT NULL DEFAULT '',
	suggested_service TEXT NOT NULL DEFAULT '',
	sentiment_score   REAL NOT NULL DEFAULT 0,
	analyzed_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	id                TEXT PRIMARY KEY,
	analyzed_post_id  TEXT NOT NULL UNIQUE REFERENCES analyzed_posts(id) ON DELETE CASCADE,
	raw_post_id       TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL DEFAULT 0,
	reason            TEXT NOT NULL DEFAULT '',
	suggested_service TEXT NOT NULL DEFAULT '',
	sentiment_score   REAL NOT NULL DEFAULT 0,
	platform          TEXT NOT NULL DEFAULT '',
	author            TEXT NOT NULL DEFAULT '',
	post_title        TEXT NOT NULL DEFAULT '',
	post_content      TEXT NOT NULL DEFAULT '',
	post_url          TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'new',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS outreach (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	channel    TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	response   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	sent_at    DATETIME,
	UNIQUE (lead_id, channel)
);

CREATE INDEX IF NOT EXISTS idx_raw_posts_collected_at ON raw_posts(collected_at DESC);
CREATE INDEX IF NOT EXISTS idx_raw_posts_platform ON raw_posts(platform);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_outreach_status ON outreach(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Settings ---

func (s *SQLiteStore) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get settings")
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan setting")
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: settings iterate")
	}

	// Seed missing defaults so edits always start from a full key set.
	for key, def := range model.DefaultSettings {
		if _, ok := settings[key]; !ok {
			if err := s.UpdateSetting(ctx, key, def); err != nil {
				return nil, err
			}
			settings[key] = def
		}
	}
	return settings, nil
}

func (s *SQLiteStore) UpdateSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return eris.Wrapf(err, "sqlite: update setting %s", key)
}

// --- Raw posts ---

func (s *SQLiteStore) UpsertPost(ctx context.Context, post model.RawPost) (string, bool, error) {
	collectedAt := post.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}

	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM raw_posts WHERE platform = ? AND post_id = ?`,
		string(post.Platform), post.PostID,
	).Scan(&existing)
	switch {
	case err == nil:
		if err := s.refreshPost(ctx, existing, post.Score, post.NumComments, collectedAt); err != nil {
			return "", false, err
		}
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, eris.Wrap(err, "sqlite: check duplicate post")
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_posts (id, platform, post_id, author, title, content, url, source, score, num_comments, collected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(post.Platform), post.PostID, post.Author, post.Title, post.Content,
		post.URL, post.Source, post.Score, post.NumComments, collectedAt,
	)
	if err != nil {
		// A racing writer got there first: the unique index degrades this
		// insert to an engagement refresh of the winner's row.
		if isUniqueViolation(err) {
			if err := s.db.QueryRowContext(ctx,
				`SELECT id FROM raw_posts WHERE platform = ? AND post_id = ?`,
				string(post.Platform), post.PostID,
			).Scan(&existing); err != nil {
				return "", false, eris.Wrap(err, "sqlite: resolve duplicate post")
			}
			if err := s.refreshPost(ctx, existing, post.Score, post.NumComments, collectedAt); err != nil {
				return "", false, err
			}
			return existing, false, nil
		}
		return "", false, eris.Wrap(err, "sqlite: insert post")
	}
	return id, true, nil
}

func (s *SQLiteStore) refreshPost(ctx context.Context, id string, score, numComments int, collectedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE raw_posts SET score = ?, num_comments = ?, collected_at = ? WHERE id = ?`,
		score, numComments, collectedAt, id,
	)
	return eris.Wrapf(err, "sqlite: refresh post %s", id)
}

const rawPostColumns = `id, platform, post_id, author, title, content, url, source, score, num_comments, collected_at`

func scanRawPost(row interface{ Scan(...any) error }) (model.RawPost, error) {
	var p model.RawPost
	var platform string
	err := row.Scan(&p.ID, &platform, &p.PostID, &p.Author, &p.Title, &p.Content,
		&p.URL, &p.Source, &p.Score, &p.NumComments, &p.CollectedAt)
	p.Platform = model.Platform(platform)
	return p, err
}

func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*model.RawPost, error) {
	p, err := scanRawPost(s.db.QueryRowContext(ctx,
		`SELECT `+rawPostColumns+` FROM raw_posts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get post %s", id)
	}
	return &p, nil
}

func (s *SQLiteStore) ListPosts(ctx context.Context, filter PostFilter) ([]model.RawPost, error) {
	query := `SELECT ` + rawPostColumns + ` FROM raw_posts`
	var args []any
	if filter.Platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, string(filter.Platform))
	}
	query += ` ORDER BY collected_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list posts")
	}
	defer rows.Close()

	var posts []model.RawPost
	for rows.Next() {
		p, err := scanRawPost(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan post")
		}
		posts = append(posts, p)
	}
	return posts, eris.Wrap(rows.Err(), "sqlite: list posts iterate")
}

// ListUnanalyzed returns posts without a stored verdict, oldest first so a
// backlog drains in collection order.
func (s *SQLiteStore) ListUnanalyzed(ctx context.Context, limit int) ([]model.RawPost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rawPostColumns+` FROM raw_posts p
		 WHERE NOT EXISTS (SELECT 1 FROM analyzed_posts a WHERE a.raw_post_id = p.id)
		 ORDER BY collected_at ASC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unanalyzed")
	}
	defer rows.Close()

	var posts []model.RawPost
	for rows.Next() {
		p, err := scanRawPost(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unanalyzed post")
		}
		posts = append(posts, p)
	}
	return posts, eris.Wrap(rows.Err(), "sqlite: list unanalyzed iterate")
}

func (s *SQLiteStore) DeletePost(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM raw_posts WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete post %s", id)
}

// --- Analyses ---

func (s *SQLiteStore) UpsertAnalysis(ctx context.Context, rawPostID string, verdict model.Verdict, sentimentScore float64) (*model.AnalyzedPost, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyzed_posts (id, raw_post_id, is_frustrated, confidence, reason, suggested_service, sentiment_score, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (raw_post_id) DO UPDATE SET
			is_frustrated = excluded.is_frustrated,
			confidence = excluded.confidence,
			reason = excluded.reason,
			suggested_service = excluded.suggested_service,
			sentiment_score = excluded.sentiment_score,
			analyzed_at = excluded.analyzed_at`,
		id, rawPostID, verdict.IsFrustrated, verdict.Confidence, verdict.Reason,
		verdict.SuggestedService, sentimentScore, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert analysis for %s", rawPostID)
	}

	// The conflict path keeps the original row id; read it back.
	analyzed := &model.AnalyzedPost{
		RawPostID:      rawPostID,
		Verdict:        verdict,
		SentimentScore: sentimentScore,
		AnalyzedAt:     now,
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM analyzed_posts WHERE raw_post_id = ?`, rawPostID,
	).Scan(&analyzed.ID); err != nil {
		return nil, eris.Wrapf(err, "sqlite: read analysis id for %s", rawPostID)
	}
	return analyzed, nil
}

// --- Leads ---

func (s *SQLiteStore) PromoteLead(ctx context.Context, lead model.Lead) (string, bool, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, analyzed_post_id, raw_post_id, confidence, reason, suggested_service, sentiment_score,
			platform, author, post_title, post_content, post_url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (analyzed_post_id) DO NOTHING`,
		id, lead.AnalyzedPostID, lead.RawPostID, lead.Confidence, lead.Reason,
		lead.SuggestedService, lead.SentimentScore, string(lead.Platform), lead.Author,
		lead.PostTitle, lead.PostContent, lead.PostURL, string(model.LeadStatusNew), now, now,
	)
	if err != nil {
		return "", false, eris.Wrapf(err, "sqlite: promote lead for %s", lead.AnalyzedPostID)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: promote lead rows affected")
	}
	if affected > 0 {
		return id, true, nil
	}

	// Conflict: a lead for this verdict already exists. Idempotent success.
	var existing string
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM leads WHERE analyzed_post_id = ?`, lead.AnalyzedPostID,
	).Scan(&existing); err != nil {
		return "", false, eris.Wrapf(err, "sqlite: resolve existing lead for %s", lead.AnalyzedPostID)
	}
	return existing, false, nil
}

const leadColumns = `id, analyzed_post_id, raw_post_id, confidence, reason, suggested_service, sentiment_score,
	platform, author, post_title, post_content, post_url, status, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (model.Lead, error) {
	var l model.Lead
	var platform, status string
	err := row.Scan(&l.ID, &l.AnalyzedPostID, &l.RawPostID, &l.Confidence, &l.Reason,
		&l.SuggestedService, &l.SentimentScore, &platform, &l.Author, &l.PostTitle,
		&l.PostContent, &l.PostURL, &status, &l.CreatedAt, &l.UpdatedAt)
	l.Platform = model.Platform(platform)
	l.Status = model.LeadStatus(status)
	return l, err
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	l, err := scanLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return &l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, id string, status model.LeadStatus) error {
	lead, err := s.GetLead(ctx, id)
	if err != nil {
		return err
	}
	if lead == nil {
		return eris.Errorf("lead not found: %s", id)
	}
	if err := model.CheckTransition(lead.Status, status); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: update lead status %s", id)
}

// --- Outreach ---

func (s *SQLiteStore) UpsertOutreach(ctx context.Context, rec model.Outreach) (*model.Outreach, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outreach (id, lead_id, channel, subject, message, response, status, created_at)
		 VALUES (?, ?, ?, ?, ?, '', ?, ?)
		 ON CONFLICT (lead_id, channel) DO UPDATE SET
			subject = excluded.subject,
			message = excluded.message,
			sent_at = NULL
		 WHERE outreach.status = ?`,
		id, rec.LeadID, string(rec.Channel), rec.Subject, rec.Message,
		string(model.OutreachStatusPending), now,
		string(model.OutreachStatusPending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert outreach for lead %s", rec.LeadID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrOutreachNotPending
	}
	return s.GetOutreach(ctx, rec.LeadID, rec.Channel)
}

const outreachColumns = `id, lead_id, channel, subject, message, response, status, created_at, sent_at`

func scanOutreach(row interface{ Scan(...any) error }) (model.Outreach, error) {
	var o model.Outreach
	var channel, status string
	var sentAt sql.NullTime
	err := row.Scan(&o.ID, &o.LeadID, &channel, &o.Subject, &o.Message, &o.Response,
		&status, &o.CreatedAt, &sentAt)
	o.Channel = model.OutreachChannel(channel)
	o.Status = model.OutreachStatus(status)
	if sentAt.Valid {
		o.SentAt = &sentAt.Time
	}
	return o, err
}

func (s *SQLiteStore) GetOutreach(ctx context.Context, leadID string, channel model.OutreachChannel) (*model.Outreach, error) {
	o, err := scanOutreach(s.db.QueryRowContext(ctx,
		`SELECT `+outreachColumns+` FROM outreach WHERE lead_id = ? AND channel = ?`,
		leadID, string(channel)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get outreach for lead %s", leadID)
	}
	return &o, nil
}

func (s *SQLiteStore) ListOutreach(ctx context.Context, filter OutreachFilter) ([]model.Outreach, error) {
	query := `SELECT ` + outreachColumns + ` FROM outreach`
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, string(filter.Status))
	}
	if filter.LeadID != "" {
		conds = append(conds, `lead_id = ?`)
		args = append(args, filter.LeadID)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outreach")
	}
	defer rows.Close()

	var recs []model.Outreach
	for rows.Next() {
		o, err := scanOutreach(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outreach")
		}
		recs = append(recs, o)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list outreach iterate")
}

func (s *SQLiteStore) UpdateOutreachStatus(ctx context.Context, id string, status model.OutreachStatus, response string) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM outreach WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Errorf("outreach not found: %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get outreach status %s", id)
	}
	if err := model.CheckOutreachTransition(model.OutreachStatus(current), status); err != nil {
		return err
	}

	query := `UPDATE outreach SET status = ?`
	args := []any{string(status)}
	if status == model.OutreachStatusSent {
		query += `, sent_at = ?`
		args = append(args, time.Now().UTC())
	}
	if response != "" {
		query += `, response = ?`
		args = append(args, response)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	_, err = s.db.ExecContext(ctx, query, args...)
	return eris.Wrapf(err, "sqlite: update outreach status %s", id)
}

// --- Stats ---

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{}
	var replied int

	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM raw_posts`, &stats.TotalPosts},
		{`SELECT COUNT(*) FROM analyzed_posts`, &stats.TotalAnalyzed},
		{`SELECT COUNT(*) FROM leads`, &stats.TotalLeads},
		{`SELECT COUNT(*) FROM outreach`, &stats.TotalOutreach},
		{`SELECT COUNT(*) FROM outreach WHERE status = 'replied'`, &replied},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, eris.Wrap(err, "sqlite: stats")
		}
	}
	stats.ResponseRate = responseRate(replied, stats.TotalOutreach)
	return stats, nil
}

// responseRate returns replied/total as a percentage with one decimal.
func responseRate(replied, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(replied)/float64(total)*1000) / 10
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}

package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/social-listener/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS raw_posts (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	platform     TEXT NOT NULL,
	post_id      TEXT NOT NULL,
	author       TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	score        INTEGER NOT NULL DEFAULT 0,
	num_comments INTEGER NOT NULL DEFAULT 0,
	collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (platform, post_id)
);

CREATE TABLE IF NOT EXISTS analyzed_posts (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	raw_post_id       TEXT NOT NULL UNIQUE REFERENCES raw_posts(id) ON DELETE CASCADE,
	is_frustrated     BOOLEAN NOT NULL DEFAULT false,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason            TEXT NOT NULL DEFAULT '',
	suggested_service TEXT NOT NULL DEFAULT '',
	sentiment_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	analyzed_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	analyzed_post_id  TEXT NOT NULL UNIQUE REFERENCES analyzed_posts(id) ON DELETE CASCADE,
	raw_post_id       TEXT NOT NULL DEFAULT '',
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason            TEXT NOT NULL DEFAULT '',
	suggested_service TEXT NOT NULL DEFAULT '',
	sentiment_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	platform          TEXT NOT NULL DEFAULT '',
	author            TEXT NOT NULL DEFAULT '',
	post_title        TEXT NOT NULL DEFAULT '',
	post_content      TEXT NOT NULL DEFAULT '',
	post_url          TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'new',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outreach (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	channel    TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	response   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	sent_at    TIMESTAMPTZ,
	UNIQUE (lead_id, channel)
);

CREATE INDEX IF NOT EXISTS idx_raw_posts_collected_at ON raw_posts(collected_at DESC);
CREATE INDEX IF NOT EXISTS idx_raw_posts_platform ON raw_posts(platform);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_outreach_status ON outreach(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Settings ---

func (s *PostgresStore) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get settings")
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan setting")
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: settings iterate")
	}

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

func (s *PostgresStore) UpdateSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	return eris.Wrapf(err, "postgres: update setting %s", key)
}

// --- Raw posts ---

func (s *PostgresStore) UpsertPost(ctx context.Context, post model.RawPost) (string, bool, error) {
	collectedAt := post.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}

	// xmax = 0 distinguishes a fresh insert from a conflict-update: updated
	// rows carry the deleting transaction id of their previous version.
	var id string
	var wasNew bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO raw_posts (id, platform, post_id, author, title, content, url, source, score, num_comments, collected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (platform, post_id) DO UPDATE SET
			score = EXCLUDED.score,
			num_comments = EXCLUDED.num_comments,
			collected_at = EXCLUDED.collected_at
		 RETURNING id, (xmax = 0)`,
		uuid.New().String(), string(post.Platform), post.PostID, post.Author, post.Title,
		post.Content, post.URL, post.Source, post.Score, post.NumComments, collectedAt,
	).Scan(&id, &wasNew)
	if err != nil {
		return "", false, eris.Wrapf(err, "postgres: upsert post %s/%s", post.Platform, post.PostID)
	}
	return id, wasNew, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (*model.RawPost, error) {
	p, err := scanRawPost(s.pool.QueryRow(ctx,
		`SELECT `+rawPostColumns+` FROM raw_posts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get post %s", id)
	}
	return &p, nil
}

func (s *PostgresStore) ListPosts(ctx context.Context, filter PostFilter) ([]model.RawPost, error) {
	query := `SELECT ` + rawPostColumns + ` FROM raw_posts`
	var args []any
	if filter.Platform != "" {
		args = append(args, string(filter.Platform))
		query += ` WHERE platform = $1`
	}
	query += ` ORDER BY collected_at DESC`
	query += ` LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, listLimit(filter.Limit))
	query += ` OFFSET $` + strconv.Itoa(len(args)+1)
	args = append(args, max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list posts")
	}
	defer rows.Close()

	var posts []model.RawPost
	for rows.Next() {
		p, err := scanRawPost(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan post")
		}
		posts = append(posts, p)
	}
	return posts, eris.Wrap(rows.Err(), "postgres: list posts iterate")
}

func (s *PostgresStore) ListUnanalyzed(ctx context.Context, limit int) ([]model.RawPost, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rawPostColumns+` FROM raw_posts p
		 WHERE NOT EXISTS (SELECT 1 FROM analyzed_posts a WHERE a.raw_post_id = p.id)
		 ORDER BY collected_at ASC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unanalyzed")
	}
	defer rows.Close()

	var posts []model.RawPost
	for rows.Next() {
		p, err := scanRawPost(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan unanalyzed post")
		}
		posts = append(posts, p)
	}
	return posts, eris.Wrap(rows.Err(), "postgres: list unanalyzed iterate")
}

func (s *PostgresStore) DeletePost(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM raw_posts WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete post %s", id)
}

// --- Analyses ---

func (s *PostgresStore) UpsertAnalysis(ctx context.Context, rawPostID string, verdict model.Verdict, sentimentScore float64) (*model.AnalyzedPost, error) {
	now := time.Now().UTC()

	analyzed := &model.AnalyzedPost{
		RawPostID:      rawPostID,
		Verdict:        verdict,
		SentimentScore: sentimentScore,
		AnalyzedAt:     now,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO analyzed_posts (id, raw_post_id, is_frustrated, confidence, reason, suggested_service, sentiment_score, analyzed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (raw_post_id) DO UPDATE SET
			is_frustrated = EXCLUDED.is_frustrated,
			confidence = EXCLUDED.confidence,
			reason = EXCLUDED.reason,
			suggested_service = EXCLUDED.suggested_service,
			sentiment_score = EXCLUDED.sentiment_score,
			analyzed_at = EXCLUDED.analyzed_at
		 RETURNING id`,
		uuid.New().String(), rawPostID, verdict.IsFrustrated, verdict.Confidence,
		verdict.Reason, verdict.SuggestedService, sentimentScore, now,
	).Scan(&analyzed.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert analysis for %s", rawPostID)
	}
	return analyzed, nil
}

// --- Leads ---

func (s *PostgresStore) PromoteLead(ctx context.Context, lead model.Lead) (string, bool, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, analyzed_post_id, raw_post_id, confidence, reason, suggested_service, sentiment_score,
			platform, author, post_title, post_content, post_url, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (analyzed_post_id) DO NOTHING`,
		id, lead.AnalyzedPostID, lead.RawPostID, lead.Confidence, lead.Reason,
		lead.SuggestedService, lead.SentimentScore, string(lead.Platform), lead.Author,
		lead.PostTitle, lead.PostContent, lead.PostURL, string(model.LeadStatusNew), now, now,
	)
	if err != nil {
		return "", false, eris.Wrapf(err, "postgres: promote lead for %s", lead.AnalyzedPostID)
	}
	if tag.RowsAffected() > 0 {
		return id, true, nil
	}

	var existing string
	if err := s.pool.QueryRow(ctx,
		`SELECT id FROM leads WHERE analyzed_post_id = $1`, lead.AnalyzedPostID,
	).Scan(&existing); err != nil {
		return "", false, eris.Wrapf(err, "postgres: resolve existing lead for %s", lead.AnalyzedPostID)
	}
	return existing, false, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return &l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` WHERE status = $1`
	}
	query += ` ORDER BY created_at DESC`
	query += ` LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, listLimit(filter.Limit))
	query += ` OFFSET $` + strconv.Itoa(len(args)+1)
	args = append(args, max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id string, status model.LeadStatus) error {
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

	_, err = s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: update lead status %s", id)
}

// --- Outreach ---

func (s *PostgresStore) UpsertOutreach(ctx context.Context, rec model.Outreach) (*model.Outreach, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO outreach (id, lead_id, channel, subject, message, response, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, '', $6, $7)
		 ON CONFLICT (lead_id, channel) DO UPDATE SET
			subject = EXCLUDED.subject,
			message = EXCLUDED.message,
			sent_at = NULL
		 WHERE outreach.status = $6`,
		uuid.New().String(), rec.LeadID, string(rec.Channel), rec.Subject, rec.Message,
		string(model.OutreachStatusPending), time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert outreach for lead %s", rec.LeadID)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrOutreachNotPending
	}
	return s.GetOutreach(ctx, rec.LeadID, rec.Channel)
}

func (s *PostgresStore) GetOutreach(ctx context.Context, leadID string, channel model.OutreachChannel) (*model.Outreach, error) {
	o, err := scanOutreach(s.pool.QueryRow(ctx,
		`SELECT `+outreachColumns+` FROM outreach WHERE lead_id = $1 AND channel = $2`,
		leadID, string(channel)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get outreach for lead %s", leadID)
	}
	return &o, nil
}

func (s *PostgresStore) ListOutreach(ctx context.Context, filter OutreachFilter) ([]model.Outreach, error) {
	query := `SELECT ` + outreachColumns + ` FROM outreach`
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, `status = $`+strconv.Itoa(len(args)))
	}
	if filter.LeadID != "" {
		args = append(args, filter.LeadID)
		conds = append(conds, `lead_id = $`+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC`
	query += ` LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, listLimit(filter.Limit))
	query += ` OFFSET $` + strconv.Itoa(len(args)+1)
	args = append(args, max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outreach")
	}
	defer rows.Close()

	var recs []model.Outreach
	for rows.Next() {
		o, err := scanOutreach(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan outreach")
		}
		recs = append(recs, o)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list outreach iterate")
}

func (s *PostgresStore) UpdateOutreachStatus(ctx context.Context, id string, status model.OutreachStatus, response string) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM outreach WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("outreach not found: %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get outreach status %s", id)
	}
	if err := model.CheckOutreachTransition(model.OutreachStatus(current), status); err != nil {
		return err
	}

	query := `UPDATE outreach SET status = $1`
	args := []any{string(status)}
	if status == model.OutreachStatusSent {
		args = append(args, time.Now().UTC())
		query += `, sent_at = $` + strconv.Itoa(len(args))
	}
	if response != "" {
		args = append(args, response)
		query += `, response = $` + strconv.Itoa(len(args))
	}
	args = append(args, id)
	query += ` WHERE id = $` + strconv.Itoa(len(args))

	_, err = s.pool.Exec(ctx, query, args...)
	return eris.Wrapf(err, "postgres: update outreach status %s", id)
}

// --- Stats ---

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{}
	var replied int

	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM raw_posts),
			(SELECT COUNT(*) FROM analyzed_posts),
			(SELECT COUNT(*) FROM leads),
			(SELECT COUNT(*) FROM outreach),
			(SELECT COUNT(*) FROM outreach WHERE status = 'replied')`,
	).Scan(&stats.TotalPosts, &stats.TotalAnalyzed, &stats.TotalLeads, &stats.TotalOutreach, &replied)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	stats.ResponseRate = responseRate(replied, stats.TotalOutreach)
	return stats, nil
}

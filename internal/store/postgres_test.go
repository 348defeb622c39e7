package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/social-listener/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_UpsertPost_New(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO raw_posts`).
		WithArgs(pgxmock.AnyArg(), "reddit", "abc123", "dev_in_distress", pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 41, 12, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "?column?"}).AddRow("post-1", true))

	id, wasNew, err := s.UpsertPost(context.Background(), samplePost("abc123"))
	require.NoError(t, err)
	assert.Equal(t, "post-1", id)
	assert.True(t, wasNew)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPost_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// The conflict path updates engagement fields and reports the winner's id.
	mock.ExpectQuery(`INSERT INTO raw_posts`).
		WithArgs(pgxmock.AnyArg(), "reddit", "abc123", "dev_in_distress", pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 41, 12, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "?column?"}).AddRow("post-1", false))

	id, wasNew, err := s.UpsertPost(context.Background(), samplePost("abc123"))
	require.NoError(t, err)
	assert.Equal(t, "post-1", id)
	assert.False(t, wasNew)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPost_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM raw_posts WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	post, err := s.GetPost(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, post)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PromoteLead_New(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, created, err := s.PromoteLead(context.Background(), model.Lead{AnalyzedPostID: "ap-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PromoteLead_Existing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`SELECT id FROM leads WHERE analyzed_post_id = \$1`).
		WithArgs("ap-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("lead-1"))

	id, created, err := s.PromoteLead(context.Background(), model.Lead{AnalyzedPostID: "ap-1"})
	require.NoError(t, err)
	assert.Equal(t, "lead-1", id)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLeadStatus_InvalidTransition(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM leads WHERE id = \$1`).
		WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "analyzed_post_id", "raw_post_id", "confidence", "reason", "suggested_service",
			"sentiment_score", "platform", "author", "post_title", "post_content", "post_url",
			"status", "created_at", "updated_at",
		}).AddRow("lead-1", "ap-1", "post-1", 0.9, "", "", -0.4, "reddit", "", "", "", "",
			"new", now, now))

	// new -> converted is not a legal transition; no UPDATE is issued.
	err := s.UpdateLeadStatus(context.Background(), "lead-1", model.LeadStatusConverted)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateOutreachStatus_Sent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM outreach WHERE id = \$1`).
		WithArgs("out-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE outreach SET status = \$1, sent_at = \$2 WHERE id = \$3`).
		WithArgs("sent", pgxmock.AnyArg(), "out-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateOutreachStatus(context.Background(), "out-1", model.OutreachStatusSent, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertOutreach_RefusesSentRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// The conflict update is guarded on status = pending; a sent record
	// touches zero rows.
	mock.ExpectExec(`INSERT INTO outreach`).
		WithArgs(pgxmock.AnyArg(), "lead-1", "email", "Second draft", "v2",
			"pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := s.UpsertOutreach(context.Background(), model.Outreach{
		LeadID: "lead-1", Channel: model.ChannelEmail, Subject: "Second draft", Message: "v2",
	})
	require.ErrorIs(t, err, ErrOutreachNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT`).
		WillReturnRows(pgxmock.NewRows([]string{"c1", "c2", "c3", "c4", "c5"}).
			AddRow(10, 8, 3, 4, 1))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalPosts)
	assert.Equal(t, 8, stats.TotalAnalyzed)
	assert.Equal(t, 3, stats.TotalLeads)
	assert.Equal(t, 4, stats.TotalOutreach)
	assert.Equal(t, 25.0, stats.ResponseRate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSetting(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO settings`).
		WithArgs(model.SettingConfidenceThreshold, "0.9").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpdateSetting(context.Background(), model.SettingConfidenceThreshold, "0.9")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/infra/adapter/persistence/postgres"
)

/* ──────────────────────────────── helpers ──────────────────────────────── */

func newMock(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return postgres.NewStore(db), mock
}

var statsQuery = entity.StalenessQuery{
	Collection: entity.RepositoryURLs,
	Filters:    []entity.Filter{entity.Eq("code_platform", "github")},
	Field:      entity.FreshnessField{ScrapedAtColumn: "basic_data_scraped_at", ErrorColumn: "basic_data_last_error"},
	Limit:      3,
}

/* ──────────────────────────────── 1. ListStale ──────────────────────────────── */

func TestStore_ListStale(t *testing.T) {
	store, mock := newMock(t)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT software, url::text FROM repository_url WHERE code_platform = $1 ORDER BY basic_data_scraped_at ASC NULLS FIRST LIMIT 3`)).
		WithArgs("github").
		WillReturnRows(sqlmock.NewRows([]string{"software", "url"}).
			AddRow(a.String(), "https://github.com/a/a").
			AddRow(b.String(), nil))

	got, err := store.ListStale(context.Background(), statsQuery)
	require.NoError(t, err)
	assert.Equal(t, []entity.Target{
		{ID: a, Reference: "https://github.com/a/a"},
		{ID: b, Reference: ""},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListStale_NotNullFilter(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, doi::text FROM mention WHERE doi IS NOT NULL ORDER BY citations_scraped_at ASC NULLS FIRST LIMIT 10`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "doi"}))

	got, err := store.ListStale(context.Background(), entity.StalenessQuery{
		Collection: entity.Mentions,
		Filters:    []entity.Filter{entity.NotNull("doi")},
		Field:      entity.FreshnessField{ScrapedAtColumn: "citations_scraped_at"},
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListStale_RejectsUnsafeIdentifiers(t *testing.T) {
	store, mock := newMock(t)

	q := statsQuery
	q.Filters = []entity.Filter{entity.Eq("code_platform; DROP TABLE mention", "x")}
	_, err := store.ListStale(context.Background(), q)

	assert.ErrorIs(t, err, entity.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListStale_QueryError(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`FROM repository_url`).WillReturnError(errors.New("connection refused"))

	_, err := store.ListStale(context.Background(), statsQuery)
	assert.ErrorContains(t, err, "connection refused")
}

/* ──────────────────────────────── 2. Patch ──────────────────────────────── */

func TestStore_Patch(t *testing.T) {
	store, mock := newMock(t)
	id := uuid.New()
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE repository_url SET basic_data_last_error = $1, basic_data_scraped_at = $2, languages = $3 WHERE software = $4`)).
		WithArgs(nil, at, `{"Go":100}`, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Patch(context.Background(), entity.RepositoryURLs, id, map[string]any{
		"basic_data_scraped_at": at,
		"basic_data_last_error": nil,
		"languages":             map[string]float64{"Go": 100},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Patch_MissingRow(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(`UPDATE organisation`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Patch(context.Background(), entity.Organisations, uuid.New(), map[string]any{"ror_scraped_at": time.Now()})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

/* ──────────────────────────────── 3. Mentions ──────────────────────────────── */

func TestStore_Upsert(t *testing.T) {
	store, mock := newMock(t)
	id := uuid.New()
	doi := "10.1000/x"

	mock.ExpectQuery(`INSERT INTO mention \(.+\) VALUES \(.+\) ON CONFLICT \(doi\) DO UPDATE SET authors = EXCLUDED.authors, .+ RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))

	got, err := store.Upsert(context.Background(), &entity.MentionRecord{DOI: &doi, Title: "T", Source: "Crossref"}, []string{"doi"})
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Upsert_ExternalIDConflict(t *testing.T) {
	store, mock := newMock(t)
	ext := "W42"

	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (external_id, source) DO UPDATE SET`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))

	_, err := store.Upsert(context.Background(), &entity.MentionRecord{ExternalID: &ext, Source: "OpenAlex"}, []string{"external_id", "source"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindIDByDOI(t *testing.T) {
	store, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM mention WHERE doi = $1 LIMIT 1`)).
		WithArgs("10.1000/ABC").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
	mock.ExpectQuery(`SELECT id FROM mention`).
		WithArgs("10.1000/none").
		WillReturnError(sql.ErrNoRows)

	got, err := store.FindIDByDOI(context.Background(), "10.1000/ABC")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = store.FindIDByDOI(context.Background(), "10.1000/none")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LinkCitations(t *testing.T) {
	store, mock := newMock(t)
	paper, c1, c2 := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO citation_for_mention (mention,citation) VALUES ($1,$2),($3,$4) ON CONFLICT (mention, citation) DO NOTHING`)).
		WithArgs(paper, c1, paper, c2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.LinkCitations(context.Background(), paper, []uuid.UUID{c1, c2}))
	require.NoError(t, store.LinkCitations(context.Background(), paper, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

/* ──────────────────────────────── 4. Errors ──────────────────────────────── */

func TestStore_Append(t *testing.T) {
	store, mock := newMock(t)
	id := uuid.New()
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO backend_log (service_name,table_name,reference_id,message,stack_trace,created_at) VALUES ($1,$2,$3,$4,$5,$6)`)).
		WithArgs("GitHub scraper", "repository_url", sqlmock.AnyArg(), "HTTP 502", "trace", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Append(context.Background(), &entity.ErrorRecord{
		ServiceName: "GitHub scraper",
		TableName:   "repository_url",
		ReferenceID: &id,
		Message:     "HTTP 502",
		StackTrace:  "trace",
		CreatedAt:   at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

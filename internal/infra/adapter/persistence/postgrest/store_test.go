package postgrest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/infra/adapter/persistence/postgrest"
	"rsd-scraper/internal/infra/auth"
	"rsd-scraper/internal/resilience/retry"
)

// captured is one request seen by the fake PostgREST server.
type captured struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   []byte
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []captured
	status   int
	body     string
}

func newFakeAPI(t *testing.T, status int, body string) (*fakeAPI, *postgrest.Store) {
	t.Helper()
	f := &fakeAPI{status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, captured{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   b,
		})
		status, body := f.status, f.body
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return f, postgrest.NewStore(srv.URL+"/", srv.Client(), auth.StaticToken("store-token"))
}

func (f *fakeAPI) last(t *testing.T) captured {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeAPI) setBody(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body = body
}

func TestStore_ListStale(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	api, store := newFakeAPI(t, http.StatusOK,
		`[{"id":"`+a.String()+`","reference":"https://github.com/a/a"},{"id":"`+b.String()+`","reference":null}]`)

	got, err := store.ListStale(context.Background(), entity.StalenessQuery{
		Collection: entity.RepositoryURLs,
		Filters:    []entity.Filter{entity.Eq("code_platform", "github")},
		Field:      entity.FreshnessField{ScrapedAtColumn: "languages_scraped_at"},
		Limit:      5,
	})
	require.NoError(t, err)
	assert.Equal(t, []entity.Target{{ID: a, Reference: "https://github.com/a/a"}, {ID: b}}, got)

	req := api.last(t)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/repository_url", req.Path)
	assert.Equal(t, []string{"id:software,reference:url"}, req.Query["select"])
	assert.Equal(t, []string{"eq.github"}, req.Query["code_platform"])
	assert.Equal(t, []string{"languages_scraped_at.asc.nullsfirst"}, req.Query["order"])
	assert.Equal(t, []string{"5"}, req.Query["limit"])
	assert.Equal(t, "Bearer store-token", req.Header.Get("Authorization"))
}

func TestStore_ListStale_NotNullFilter(t *testing.T) {
	api, store := newFakeAPI(t, http.StatusOK, `[]`)

	got, err := store.ListStale(context.Background(), entity.StalenessQuery{
		Collection: entity.Organisations,
		Filters:    []entity.Filter{entity.NotNull("ror_id")},
		Field:      entity.FreshnessField{ScrapedAtColumn: "ror_scraped_at"},
		Limit:      1,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []string{"not.is.null"}, api.last(t).Query["ror_id"])
}

func TestStore_ListStale_InvalidQuery(t *testing.T) {
	api, store := newFakeAPI(t, http.StatusOK, `[]`)

	_, err := store.ListStale(context.Background(), entity.StalenessQuery{
		Collection: entity.Organisations,
		Field:      entity.FreshnessField{ScrapedAtColumn: "ror_scraped_at"},
	})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
	assert.Zero(t, api.count())
}

func TestStore_ErrorStatusCarriesHTTPError(t *testing.T) {
	_, store := newFakeAPI(t, http.StatusServiceUnavailable, `{"message":"down"}`)

	_, err := store.ListStale(context.Background(), entity.StalenessQuery{
		Collection: entity.Mentions,
		Field:      entity.FreshnessField{ScrapedAtColumn: "scraped_at"},
		Limit:      1,
	})
	require.Error(t, err)
	code, ok := retry.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.ErrorContains(t, err, "down")
}

func TestStore_Patch(t *testing.T) {
	id := uuid.New()
	api, store := newFakeAPI(t, http.StatusOK, `[{"software":"`+id.String()+`"}]`)
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	err := store.Patch(context.Background(), entity.RepositoryURLs, id, map[string]any{
		"languages_scraped_at": at,
		"languages_last_error": nil,
		"languages":            map[string]float64{"Go": 1200},
	})
	require.NoError(t, err)

	req := api.last(t)
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.Equal(t, []string{"eq." + id.String()}, req.Query["software"])
	assert.Equal(t, "return=representation", req.Header.Get("Prefer"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "2026-10-18T09:00:00Z", body["languages_scraped_at"])
	assert.Nil(t, body["languages_last_error"])
	assert.Equal(t, map[string]any{"Go": float64(1200)}, body["languages"])
}

func TestStore_Patch_MissingRow(t *testing.T) {
	_, store := newFakeAPI(t, http.StatusOK, `[]`)

	err := store.Patch(context.Background(), entity.Organisations, uuid.New(), map[string]any{"ror_scraped_at": time.Now()})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestStore_Patch_EmptyFieldsSendsNothing(t *testing.T) {
	api, store := newFakeAPI(t, http.StatusOK, `[]`)

	require.NoError(t, store.Patch(context.Background(), entity.Organisations, uuid.New(), nil))
	assert.Zero(t, api.count())
}

func TestStore_Upsert(t *testing.T) {
	id := uuid.New()
	api, store := newFakeAPI(t, http.StatusCreated, `[{"id":"`+id.String()+`"}]`)
	doi := "10.1000/x"

	got, err := store.Upsert(context.Background(), &entity.MentionRecord{DOI: &doi, Title: "T", Source: "Crossref"}, []string{"doi"})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	req := api.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/mention", req.Path)
	assert.Equal(t, []string{"doi"}, req.Query["on_conflict"])
	assert.Equal(t, []string{"id"}, req.Query["select"])
	assert.Equal(t, "resolution=merge-duplicates,return=representation", req.Header.Get("Prefer"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "10.1000/x", body["doi"])
	assert.NotContains(t, body, "id")
}

func TestStore_Upsert_ExternalID(t *testing.T) {
	api, store := newFakeAPI(t, http.StatusCreated, `[{"id":"`+uuid.NewString()+`"}]`)
	ext := "W1"

	_, err := store.Upsert(context.Background(), &entity.MentionRecord{ExternalID: &ext, Source: "OpenAlex"}, []string{"external_id", "source"})
	require.NoError(t, err)
	assert.Equal(t, []string{"external_id,source"}, api.last(t).Query["on_conflict"])
}

func TestStore_Upsert_Conflict(t *testing.T) {
	_, store := newFakeAPI(t, http.StatusConflict, `{"code":"23505"}`)
	doi := "10.1000/x"

	_, err := store.Upsert(context.Background(), &entity.MentionRecord{DOI: &doi}, []string{"doi"})
	code, ok := retry.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, code)
}

func TestStore_FindIDByDOI(t *testing.T) {
	id := uuid.New()
	api, store := newFakeAPI(t, http.StatusOK, `[{"id":"`+id.String()+`"}]`)

	got, err := store.FindIDByDOI(context.Background(), "10.1000/abc")
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, []string{"eq.10.1000/abc"}, api.last(t).Query["doi"])

	api.setBody(`[]`)
	_, err = store.FindIDByDOI(context.Background(), "10.1000/none")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestStore_LinkCitations(t *testing.T) {
	api, store := newFakeAPI(t, http.StatusCreated, ``)
	paper, c1, c2 := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, store.LinkCitations(context.Background(), paper, []uuid.UUID{c1, c2}))

	req := api.last(t)
	assert.Equal(t, "/citation_for_mention", req.Path)
	assert.Equal(t, []string{"mention,citation"}, req.Query["on_conflict"])
	assert.Equal(t, "resolution=ignore-duplicates,return=minimal", req.Header.Get("Prefer"))

	var links []map[string]string
	require.NoError(t, json.Unmarshal(req.Body, &links))
	assert.Equal(t, []map[string]string{
		{"mention": paper.String(), "citation": c1.String()},
		{"mention": paper.String(), "citation": c2.String()},
	}, links)

	require.NoError(t, store.LinkCitations(context.Background(), paper, nil))
	assert.Equal(t, 1, api.count())
}

func TestStore_Append(t *testing.T) {
	api, store := newFakeAPI(t, http.StatusCreated, ``)
	id := uuid.New()

	err := store.Append(context.Background(), &entity.ErrorRecord{
		ServiceName: "ROR scraper",
		TableName:   "organisation",
		ReferenceID: &id,
		Message:     "HTTP 500",
		CreatedAt:   time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	req := api.last(t)
	assert.Equal(t, "/backend_log", req.Path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "ROR scraper", body["service_name"])
	assert.Equal(t, "organisation", body["table_name"])
	assert.Equal(t, id.String(), body["reference_id"])
	assert.Equal(t, "HTTP 500", body["message"])
}

func TestStore_NoTokenSendsNoAuthorization(t *testing.T) {
	var authz []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz = r.Header.Values("Authorization")
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	store := postgrest.NewStore(srv.URL, srv.Client(), nil)
	_, err := store.FindIDByDOI(context.Background(), "10.1/x")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.Empty(t, authz)
}

func TestStore_AdminJWT(t *testing.T) {
	var authz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tokens, err := auth.NewAdminJWT("secret", time.Hour)
	require.NoError(t, err)
	store := postgrest.NewStore(srv.URL, srv.Client(), tokens)

	require.NoError(t, store.Append(context.Background(), &entity.ErrorRecord{Message: "x"}))
	assert.Regexp(t, `^Bearer [\w-]+\.[\w-]+\.[\w-]+$`, authz)
}

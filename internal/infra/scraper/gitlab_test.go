package scraper_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/infra/scraper"
	"rsd-scraper/internal/usecase/scrape"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitLabScraper_Stats(t *testing.T) {
	var gotPath, gotQuery, gotToken string
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotToken = r.URL.EscapedPath(), r.URL.RawQuery, r.Header.Get("PRIVATE-TOKEN")
		jsonResponse(http.StatusOK, `{
			"star_count": 12, "forks_count": 4, "open_issues_count": 2, "archived": true,
			"license": {"key": "mit", "name": "MIT License", "nickname": ""}
		}`)(w, r)
	})

	gl := scraper.NewGitLabScraper(testClient(), "glpat-secret", nil)
	payload, err := gl.Stats(context.Background(), srv.URL+"/group/subgroup/project/-/tree/main")
	require.NoError(t, err)

	stats, ok := payload.(entity.RepositoryStats)
	require.True(t, ok)
	assert.Equal(t, int64(12), stats.StarCount)
	assert.Equal(t, int64(4), stats.ForkCount)
	assert.Equal(t, int64(2), stats.OpenIssueCount)
	require.NotNil(t, stats.License)
	assert.Equal(t, "MIT License", *stats.License)
	assert.True(t, *stats.Archived)

	assert.Equal(t, "/api/v4/projects/group%2Fsubgroup%2Fproject", gotPath)
	assert.Equal(t, "license=true", gotQuery)
	assert.Equal(t, "glpat-secret", gotToken)
}

func TestGitLabScraper_Languages(t *testing.T) {
	srv, _ := newServer(t, jsonResponse(http.StatusOK, `{"Python": 80.5, "Shell": 19.5}`))
	gl := scraper.NewGitLabScraper(testClient(), "", nil)

	payload, err := gl.Languages(context.Background(), srv.URL+"/group/project.git")
	require.NoError(t, err)
	assert.Equal(t, entity.Languages{"Python": 80.5, "Shell": 19.5}, payload)
}

func TestGitLabScraper_InvalidReference(t *testing.T) {
	gl := scraper.NewGitLabScraper(testClient(), "", nil)
	for _, ref := range []string{"", "ftp://gitlab.com/a/b", "https://gitlab.com/just-a-group", "gitlab.com/a/b"} {
		_, err := gl.Stats(context.Background(), ref)
		assert.ErrorIs(t, err, scrape.ErrInvalidReference, ref)
	}
}

func TestGitLabScraper_CommitHistory(t *testing.T) {
	pages := map[string]string{
		"1": `[
			{"id": "a1", "committed_date": "2026-03-02T10:15:00.000+01:00"},
			{"id": "a2", "committed_date": "2026-03-07T23:59:00.000+00:00"},
			{"id": "a3", "committed_date": "2026-03-01T00:30:00.000+02:00"}
		]`,
		"2": `[{"id": "b1", "committed_date": "2026-03-17T08:00:00.000Z"}]`,
	}
	var paths []string
	var queries []url.Values
	srv, hits := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		queries = append(queries, r.URL.Query())
		page := r.URL.Query().Get("page")
		if page == "1" {
			w.Header().Set("X-Next-Page", "2")
		} else {
			w.Header().Set("X-Next-Page", "")
		}
		jsonResponse(http.StatusOK, pages[page])(w, r)
	})
	gl := scraper.NewGitLabScraper(testClient(), "", nil)

	payload, err := gl.CommitHistory(context.Background(), srv.URL+"/group/project")
	require.NoError(t, err)

	// Weeks start on Sunday 00:00 UTC; the empty week of 8 March is filled in.
	assert.Equal(t, entity.CommitHistory{
		1771718400: 1, // 22 Feb: Saturday 22:30 UTC
		1772323200: 2, // 1 Mar
		1772928000: 0, // 8 Mar
		1773532800: 1, // 15 Mar
	}, payload)

	require.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "/api/v4/projects/group%2Fproject/repository/commits", paths[0])
	assert.Equal(t, "1", queries[0].Get("page"))
	assert.Equal(t, "2", queries[1].Get("page"))
	assert.Equal(t, "100", queries[0].Get("per_page"))
	since, err := time.Parse(time.RFC3339, queries[0].Get("since"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().AddDate(-1, 0, 0), since, time.Hour)
}

func TestGitLabScraper_CommitHistoryWithoutCommits(t *testing.T) {
	srv, _ := newServer(t, jsonResponse(http.StatusOK, `[]`))
	gl := scraper.NewGitLabScraper(testClient(), "", nil)

	payload, err := gl.CommitHistory(context.Background(), srv.URL+"/group/project")
	require.NoError(t, err)
	assert.Equal(t, entity.CommitHistory{}, payload)
}

func TestGitLabScraper_CommitHistoryStopsAtPageLimit(t *testing.T) {
	srv, hits := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Next-Page", "next")
		jsonResponse(http.StatusOK, `[{"committed_date": "2026-03-02T10:15:00Z"}]`)(w, r)
	})
	gl := scraper.NewGitLabScraper(testClient(), "", nil)

	payload, err := gl.CommitHistory(context.Background(), srv.URL+"/group/project")
	require.NoError(t, err)
	assert.Equal(t, int32(50), hits.Load())
	assert.Equal(t, entity.CommitHistory{1772323200: 50}, payload)
}

func TestGitLabScraper_CommitHistoryUnknownProject(t *testing.T) {
	srv, _ := newServer(t, jsonResponse(http.StatusNotFound, `{"message": "404 Project Not Found"}`))
	gl := scraper.NewGitLabScraper(testClient(), "", nil)

	_, err := gl.CommitHistory(context.Background(), srv.URL+"/group/project")
	assert.ErrorIs(t, err, scrape.ErrNoData)

	_, err = gl.CommitHistory(context.Background(), "https://gitlab.com/only-group")
	assert.ErrorIs(t, err, scrape.ErrInvalidReference)
}

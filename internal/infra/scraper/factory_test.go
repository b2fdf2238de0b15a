package scraper_test

import (
	"testing"

	"rsd-scraper/internal/infra/scraper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobNames(f *scraper.ScraperFactory) map[string]bool {
	names := map[string]bool{}
	for _, j := range f.CreateJobs() {
		names[j.Name] = true
	}
	return names
}

func TestScraperFactory_CreateJobs(t *testing.T) {
	f := scraper.NewScraperFactory(testClient(), scraper.Config{GitHubToken: "t", LibrariesIOKey: "k"}, nil)

	jobs := f.CreateJobs()
	require.Len(t, jobs, 16)

	seen := map[string]bool{}
	for _, j := range jobs {
		assert.False(t, seen[j.Name], "duplicate job %s", j.Name)
		seen[j.Name] = true
		assert.NotEmpty(t, j.Origin, j.Name)
		assert.NotNil(t, j.Fetcher, j.Name)
		assert.NoError(t, j.Query(10).Validate(), j.Name)
	}
}

func TestScraperFactory_SkipsLibrariesIOWithoutKey(t *testing.T) {
	names := jobNames(scraper.NewScraperFactory(testClient(), scraper.Config{}, nil))

	assert.True(t, names[scraper.JobGitHubStats])
	assert.True(t, names[scraper.JobCRANReverseDependencies])
	assert.True(t, names[scraper.JobGitLabCommits])
	assert.False(t, names[scraper.JobPyPIReverseDependencies])
	assert.False(t, names[scraper.JobNPMReverseDependencies])
}

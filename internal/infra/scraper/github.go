package scraper

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/usecase/scrape"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

var (
	githubRepoPattern = regexp.MustCompile(`^https?://(?:www\.)?github\.com/([A-Za-z0-9_.\-]+)/([A-Za-z0-9_.\-]+?)(?:\.git)?/?$`)
	lastPagePattern   = regexp.MustCompile(`[?&]page=(\d+)[^>]*>;\s*rel="last"`)
)

// GitHubScraper fetches repository data from the GitHub REST API.
type GitHubScraper struct {
	api     *apiClient
	baseURL string
}

// NewGitHubScraper creates a GitHubScraper. token may be empty, in which case
// requests are anonymous and subject to a much lower quota.
func NewGitHubScraper(client *http.Client, baseURL, token string, limiter *RateLimiter) *GitHubScraper {
	header := http.Header{}
	header.Set("X-GitHub-Api-Version", "2022-11-28")
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if baseURL == "" {
		baseURL = DefaultGitHubAPI
	}
	return &GitHubScraper{
		api:     newAPIClient("github", client, limiter, header),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// parseGitHubRepo extracts owner and repository name from a repository URL.
func parseGitHubRepo(reference string) (owner, repo string, err error) {
	m := githubRepoPattern.FindStringSubmatch(strings.TrimSpace(reference))
	if m == nil {
		return "", "", fmt.Errorf("%w: not a GitHub repository URL: %q", scrape.ErrInvalidReference, reference)
	}
	return m[1], m[2], nil
}

func (g *GitHubScraper) repoURL(reference, suffix string) (string, error) {
	owner, repo, err := parseGitHubRepo(reference)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/repos/%s/%s%s", g.baseURL, owner, repo, suffix), nil
}

type githubRepository struct {
	License *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
	StargazersCount int64 `json:"stargazers_count"`
	ForksCount      int64 `json:"forks_count"`
	OpenIssuesCount int64 `json:"open_issues_count"`
	Archived        bool  `json:"archived"`
}

// Stats fetches license, star, fork and open issue counts.
func (g *GitHubScraper) Stats(ctx context.Context, reference string) (entity.Payload, error) {
	u, err := g.repoURL(reference, "")
	if err != nil {
		return nil, err
	}
	var repo githubRepository
	if _, err := g.api.getJSON(ctx, u, &repo); err != nil {
		return nil, err
	}

	stats := entity.RepositoryStats{
		StarCount:      repo.StargazersCount,
		ForkCount:      repo.ForksCount,
		OpenIssueCount: repo.OpenIssuesCount,
		Archived:       &repo.Archived,
	}
	if repo.License != nil && repo.License.SPDXID != "" {
		license := repo.License.SPDXID
		stats.License = &license
	}
	return stats, nil
}

// Languages fetches the number of bytes per programming language.
func (g *GitHubScraper) Languages(ctx context.Context, reference string) (entity.Payload, error) {
	u, err := g.repoURL(reference, "/languages")
	if err != nil {
		return nil, err
	}
	langs := entity.Languages{}
	if _, err := g.api.getJSON(ctx, u, &langs); err != nil {
		return nil, err
	}
	return langs, nil
}

type githubWeek struct {
	Total int64 `json:"total"`
	Week  int64 `json:"week"`
}

// CommitActivity fetches the weekly commit counts of the last year. GitHub
// answers 202 while it computes the statistics; that is reported as
// unavailable so the repository is tried again on a later run.
func (g *GitHubScraper) CommitActivity(ctx context.Context, reference string) (entity.Payload, error) {
	u, err := g.repoURL(reference, "/stats/commit_activity")
	if err != nil {
		return nil, err
	}
	resp, err := g.api.get(ctx, u, "application/json")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusAccepted {
		return nil, fmt.Errorf("%w: github: commit statistics are being computed", scrape.ErrProviderUnavailable)
	}

	history := entity.CommitHistory{}
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return history, nil
	}

	var weeks []githubWeek
	if err := decodeBody(g.api.name, resp.Body, &weeks); err != nil {
		return nil, err
	}
	for _, w := range weeks {
		history[w.Week] = w.Total
	}
	history.AddMissingZeros()
	return history, nil
}

// Contributors counts contributors, anonymous ones included. One contributor
// is requested per page so the last page number in the Link header is the
// total.
func (g *GitHubScraper) Contributors(ctx context.Context, reference string) (entity.Payload, error) {
	u, err := g.repoURL(reference, "/contributors?per_page=1&anon=true")
	if err != nil {
		return nil, err
	}
	resp, err := g.api.get(ctx, u, "application/json")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return entity.ContributorCount(0), nil
	}

	if m := lastPagePattern.FindStringSubmatch(resp.Header.Get("Link")); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return entity.ContributorCount(n), nil
		}
	}

	var page []map[string]any
	if err := decodeBody(g.api.name, resp.Body, &page); err != nil {
		return nil, err
	}
	return entity.ContributorCount(len(page)), nil
}

package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/observability/logging"
	"rsd-scraper/internal/usecase/scrape"
)

// maxCommitPages bounds the commit history of one project to 5000 commits.
const maxCommitPages = 50

// GitLabScraper fetches project data from the REST API of the GitLab
// instance hosting each repository, gitlab.com or self-hosted.
type GitLabScraper struct {
	api *apiClient
}

// NewGitLabScraper creates a GitLabScraper. token, when set, is sent as a
// private token and should only be configured for a single instance.
func NewGitLabScraper(client *http.Client, token string, limiter *RateLimiter) *GitLabScraper {
	header := http.Header{}
	if token != "" {
		header.Set("PRIVATE-TOKEN", token)
	}
	return &GitLabScraper{api: newAPIClient("gitlab", client, limiter, header)}
}

// projectURL turns https://host/group/sub/project into the API URL of the
// project on the same host.
func (g *GitLabScraper) projectURL(reference, suffix string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(reference))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: not a GitLab repository URL: %q", scrape.ErrInvalidReference, reference)
	}

	path := strings.Trim(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	if i := strings.Index(path, "/-/"); i >= 0 {
		path = path[:i]
	}
	if strings.Count(path, "/") < 1 {
		return "", fmt.Errorf("%w: GitLab URL has no project path: %q", scrape.ErrInvalidReference, reference)
	}

	return fmt.Sprintf("%s://%s/api/v4/projects/%s%s", u.Scheme, u.Host, url.PathEscape(path), suffix), nil
}

type gitlabProject struct {
	StarCount       int64 `json:"star_count"`
	ForksCount      int64 `json:"forks_count"`
	OpenIssuesCount int64 `json:"open_issues_count"`
	Archived        bool  `json:"archived"`
	License         *struct {
		Key      string `json:"key"`
		Name     string `json:"name"`
		Nickname string `json:"nickname"`
	} `json:"license"`
}

// Stats fetches license, star, fork and open issue counts.
func (g *GitLabScraper) Stats(ctx context.Context, reference string) (entity.Payload, error) {
	u, err := g.projectURL(reference, "?license=true")
	if err != nil {
		return nil, err
	}
	var p gitlabProject
	if _, err := g.api.getJSON(ctx, u, &p); err != nil {
		return nil, err
	}

	stats := entity.RepositoryStats{
		StarCount:      p.StarCount,
		ForkCount:      p.ForksCount,
		OpenIssueCount: p.OpenIssuesCount,
		Archived:       &p.Archived,
	}
	if p.License != nil {
		license := p.License.Nickname
		if license == "" {
			license = p.License.Name
		}
		if license != "" {
			stats.License = &license
		}
	}
	return stats, nil
}

// Languages fetches the share in percent of each programming language.
func (g *GitLabScraper) Languages(ctx context.Context, reference string) (entity.Payload, error) {
	u, err := g.projectURL(reference, "/languages")
	if err != nil {
		return nil, err
	}
	langs := entity.Languages{}
	if _, err := g.api.getJSON(ctx, u, &langs); err != nil {
		return nil, err
	}
	return langs, nil
}

type gitlabCommit struct {
	CommittedDate time.Time `json:"committed_date"`
}

// CommitHistory counts the commits of the last year per week. Weeks start on
// Sunday 00:00 UTC, the same buckets github-commits stores. The commits API is
// paged; X-Next-Page is empty on the last page.
func (g *GitLabScraper) CommitHistory(ctx context.Context, reference string) (entity.Payload, error) {
	q := url.Values{}
	q.Set("since", time.Now().UTC().AddDate(-1, 0, 0).Format(time.RFC3339))
	q.Set("per_page", "100")

	history := entity.CommitHistory{}
	for page := 1; ; page++ {
		q.Set("page", strconv.Itoa(page))
		u, err := g.projectURL(reference, "/repository/commits?"+q.Encode())
		if err != nil {
			return nil, err
		}

		var commits []gitlabCommit
		resp, err := g.api.getJSON(ctx, u, &commits)
		if err != nil {
			return nil, err
		}
		for _, c := range commits {
			history[weekStart(c.CommittedDate)]++
		}

		if resp.Header.Get("X-Next-Page") == "" {
			break
		}
		if page == maxCommitPages {
			logging.FromContext(ctx).Warn("commit history truncated",
				slog.String("reference", reference),
				slog.Int("pages", maxCommitPages))
			break
		}
	}

	history.AddMissingZeros()
	return history, nil
}

// weekStart returns the unix time of the Sunday 00:00 UTC starting t's week.
func weekStart(t time.Time) int64 {
	day := t.UTC().Truncate(24 * time.Hour)
	return day.AddDate(0, 0, -int(day.Weekday())).Unix()
}

package scraper

import (
	"log/slog"
	"net/http"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/usecase/scrape"
)

// Job names accepted on the command line and in the jobs file.
const (
	JobGitHubStats             = "github-stats"
	JobGitHubLanguages         = "github-languages"
	JobGitHubCommits           = "github-commits"
	JobGitHubContributors      = "github-contributors"
	JobGitLabStats             = "gitlab-stats"
	JobGitLabLanguages         = "gitlab-languages"
	JobGitLabCommits           = "gitlab-commits"
	JobRORLocations            = "ror-locations"
	JobCrossrefMentions        = "mentions-crossref"
	JobOpenAlexCitations       = "citations-openalex"
	JobPyPIDownloads           = "pypi-downloads"
	JobPyPIReverseDependencies = "pypi-reverse-dependencies"
	JobNPMDownloads            = "npm-downloads"
	JobNPMReverseDependencies  = "npm-reverse-dependencies"
	JobCRANDownloads           = "cran-downloads"
	JobCRANReverseDependencies = "cran-reverse-dependencies"
)

// Freshness fields of the scraped tables.
var (
	BasicDataField         = entity.FreshnessField{ScrapedAtColumn: "basic_data_scraped_at", ErrorColumn: "basic_data_last_error"}
	LanguagesField         = entity.FreshnessField{ScrapedAtColumn: "languages_scraped_at", ErrorColumn: "languages_last_error"}
	CommitHistoryField     = entity.FreshnessField{ScrapedAtColumn: "commit_history_scraped_at", ErrorColumn: "commit_history_last_error"}
	ContributorCountField  = entity.FreshnessField{ScrapedAtColumn: "contributor_count_scraped_at", ErrorColumn: "contributor_count_last_error"}
	RORField               = entity.FreshnessField{ScrapedAtColumn: "ror_scraped_at", ErrorColumn: "ror_last_error"}
	MentionField           = entity.FreshnessField{ScrapedAtColumn: "scraped_at"}
	CitationsField         = entity.FreshnessField{ScrapedAtColumn: "citations_scraped_at"}
	DownloadCountField     = entity.FreshnessField{ScrapedAtColumn: "download_count_scraped_at", ErrorColumn: "download_count_last_error"}
	ReverseDependencyField = entity.FreshnessField{ScrapedAtColumn: "reverse_dependency_count_scraped_at", ErrorColumn: "reverse_dependency_count_last_error"}
)

// Config holds provider credentials and endpoints. Empty endpoints use the
// public APIs.
type Config struct {
	GitHubToken    string
	GitLabToken    string
	LibrariesIOKey string
	// ContactEmail is sent to Crossref and OpenAlex to use their polite pools.
	ContactEmail string

	GitHubAPI   string
	RORAPI      string
	CrossrefAPI string
	OpenAlexAPI string
	Packages    PackageEndpoints
}

// ScraperFactory creates the scrape jobs of every supported provider.
type ScraperFactory struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// NewScraperFactory creates a new ScraperFactory with the given HTTP client.
// The HTTP client should be configured with a timeout and a tracing transport.
func NewScraperFactory(client *http.Client, cfg Config, logger *slog.Logger) *ScraperFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScraperFactory{client: client, cfg: cfg, logger: logger}
}

// CreateJobs returns every job whose provider is usable with the configured
// credentials. Fetchers of the same provider share one rate limiter.
func (f *ScraperFactory) CreateJobs() []*scrape.Job {
	githubLimiter := NewRateLimiter(1.0/60, 1) // 60 req/h anonymous
	if f.cfg.GitHubToken != "" {
		githubLimiter = NewRateLimiter(1.3, 5) // 5000 req/h
	} else {
		f.logger.Warn("no GitHub token configured, GitHub jobs are limited to 60 requests per hour")
	}

	github := NewGitHubScraper(f.client, f.cfg.GitHubAPI, f.cfg.GitHubToken, githubLimiter)
	gitlab := NewGitLabScraper(f.client, f.cfg.GitLabToken, NewRateLimiter(5, 10))
	ror := NewRORScraper(f.client, f.cfg.RORAPI, NewRateLimiter(5, 10))
	crossref := NewCrossrefScraper(f.client, f.cfg.CrossrefAPI, f.cfg.ContactEmail, NewRateLimiter(10, 10))
	openalex := NewOpenAlexScraper(f.client, f.cfg.OpenAlexAPI, f.cfg.ContactEmail, NewRateLimiter(8, 10))
	packages := NewPackageScraper(f.client, f.cfg.Packages, f.cfg.LibrariesIOKey, PackageLimiters{
		PyPIStats:   NewRateLimiter(1, 5),
		NPM:         NewRateLimiter(5, 10),
		CRANLogs:    NewRateLimiter(2, 5),
		CRAN:        NewRateLimiter(1, 5),
		LibrariesIO: NewRateLimiter(1, 1), // 60 req/min
	})

	githubFilter := []entity.Filter{entity.Eq("code_platform", "github")}
	gitlabFilter := []entity.Filter{entity.Eq("code_platform", "gitlab")}
	doiFilter := []entity.Filter{entity.NotNull("doi")}
	platform := func(p string) []entity.Filter {
		return []entity.Filter{entity.Eq("package_manager", p)}
	}

	jobs := []*scrape.Job{
		{Name: JobGitHubStats, Origin: "GitHub scraper", Collection: entity.RepositoryURLs, Filters: githubFilter, Field: BasicDataField, Fetcher: scrape.FetcherFunc(github.Stats)},
		{Name: JobGitHubLanguages, Origin: "GitHub scraper", Collection: entity.RepositoryURLs, Filters: githubFilter, Field: LanguagesField, Fetcher: scrape.FetcherFunc(github.Languages)},
		{Name: JobGitHubCommits, Origin: "GitHub scraper", Collection: entity.RepositoryURLs, Filters: githubFilter, Field: CommitHistoryField, Fetcher: scrape.FetcherFunc(github.CommitActivity)},
		{Name: JobGitHubContributors, Origin: "GitHub scraper", Collection: entity.RepositoryURLs, Filters: githubFilter, Field: ContributorCountField, Fetcher: scrape.FetcherFunc(github.Contributors)},
		{Name: JobGitLabStats, Origin: "GitLab scraper", Collection: entity.RepositoryURLs, Filters: gitlabFilter, Field: BasicDataField, Fetcher: scrape.FetcherFunc(gitlab.Stats)},
		{Name: JobGitLabLanguages, Origin: "GitLab scraper", Collection: entity.RepositoryURLs, Filters: gitlabFilter, Field: LanguagesField, Fetcher: scrape.FetcherFunc(gitlab.Languages)},
		{Name: JobGitLabCommits, Origin: "GitLab scraper", Collection: entity.RepositoryURLs, Filters: gitlabFilter, Field: CommitHistoryField, Fetcher: scrape.FetcherFunc(gitlab.CommitHistory)},
		{Name: JobRORLocations, Origin: "ROR location scraper", Collection: entity.Organisations, Filters: []entity.Filter{entity.NotNull("ror_id")}, Field: RORField, Fetcher: scrape.FetcherFunc(ror.Location)},
		{Name: JobCrossrefMentions, Origin: "Crossref mention scraper", Collection: entity.Mentions, Filters: doiFilter, Field: MentionField, Fetcher: scrape.FetcherFunc(crossref.Mention)},
		{Name: JobOpenAlexCitations, Origin: "OpenAlex citation scraper", Collection: entity.Mentions, Filters: doiFilter, Field: CitationsField, Fetcher: scrape.FetcherFunc(openalex.Citations)},
		{Name: JobPyPIDownloads, Origin: "PyPI scraper", Collection: entity.PackageManager, Filters: platform(PlatformPyPI), Field: DownloadCountField, Fetcher: scrape.FetcherFunc(packages.PyPIDownloads)},
		{Name: JobNPMDownloads, Origin: "npm scraper", Collection: entity.PackageManager, Filters: platform(PlatformNPM), Field: DownloadCountField, Fetcher: scrape.FetcherFunc(packages.NPMDownloads)},
		{Name: JobCRANDownloads, Origin: "CRAN scraper", Collection: entity.PackageManager, Filters: platform(PlatformCRAN), Field: DownloadCountField, Fetcher: scrape.FetcherFunc(packages.CRANDownloads)},
		{Name: JobCRANReverseDependencies, Origin: "CRAN scraper", Collection: entity.PackageManager, Filters: platform(PlatformCRAN), Field: ReverseDependencyField, Fetcher: scrape.FetcherFunc(packages.CRANReverseDependencies)},
	}

	if f.cfg.LibrariesIOKey == "" {
		f.logger.Warn("no libraries.io key configured, skipping reverse dependency jobs",
			slog.String("skipped", JobPyPIReverseDependencies+","+JobNPMReverseDependencies))
		return jobs
	}
	return append(jobs,
		&scrape.Job{Name: JobPyPIReverseDependencies, Origin: "PyPI scraper", Collection: entity.PackageManager, Filters: platform(PlatformPyPI), Field: ReverseDependencyField, Fetcher: packages.ReverseDependencies(PlatformPyPI)},
		&scrape.Job{Name: JobNPMReverseDependencies, Origin: "npm scraper", Collection: entity.PackageManager, Filters: platform(PlatformNPM), Field: ReverseDependencyField, Fetcher: packages.ReverseDependencies(PlatformNPM)},
	)
}

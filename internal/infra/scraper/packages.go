package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/usecase/scrape"

	"github.com/PuerkitoBio/goquery"
)

// Package manager platforms, as stored in package_manager.package_manager.
const (
	PlatformPyPI = "pypi"
	PlatformNPM  = "npm"
	PlatformCRAN = "cran"
)

// Default package manager endpoints.
const (
	DefaultPyPIStatsAPI   = "https://pypistats.org"
	DefaultNPMAPI         = "https://api.npmjs.org"
	DefaultCRANLogsAPI    = "https://cranlogs.r-pkg.org"
	DefaultCRAN           = "https://cran.r-project.org"
	DefaultLibrariesIOAPI = "https://libraries.io"
)

var packagePatterns = map[string]*regexp.Regexp{
	PlatformPyPI: regexp.MustCompile(`^https://pypi\.org/project/([^/]+)/?$`),
	PlatformNPM:  regexp.MustCompile(`^https?://(?:www\.)?npmjs\.com/package/((?:@[^/]+/)?[^/]+)/?$`),
	PlatformCRAN: regexp.MustCompile(`(?i)^https?://cran\.r-project\.org/(?:web/packages/([A-Za-z0-9.]+)(?:/(?:index\.html)?)?|package=([A-Za-z0-9.]+))/?$`),
}

// reverseDependencyLabels are the rows of a CRAN package page listing
// packages that depend on it.
var reverseDependencyLabels = []string{
	"Reverse depends:",
	"Reverse imports:",
	"Reverse linking to:",
	"Reverse suggests:",
	"Reverse enhances:",
}

// PackageName extracts the package name from a package page URL of platform.
func PackageName(platform, reference string) (string, error) {
	pattern, ok := packagePatterns[platform]
	if !ok {
		return "", fmt.Errorf("%w: unsupported package manager %q", scrape.ErrInvalidReference, platform)
	}
	m := pattern.FindStringSubmatch(strings.TrimSpace(reference))
	if m == nil {
		return "", fmt.Errorf("%w: not a %s package URL: %q", scrape.ErrInvalidReference, platform, reference)
	}
	for _, name := range m[1:] {
		if name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no package name in %q", scrape.ErrInvalidReference, reference)
}

// PackageEndpoints holds the base URLs of the package manager APIs.
type PackageEndpoints struct {
	PyPIStats   string
	NPM         string
	CRANLogs    string
	CRAN        string
	LibrariesIO string
}

func (e PackageEndpoints) withDefaults() PackageEndpoints {
	def := func(v, d string) string {
		if v == "" {
			return d
		}
		return strings.TrimRight(v, "/")
	}
	return PackageEndpoints{
		PyPIStats:   def(e.PyPIStats, DefaultPyPIStatsAPI),
		NPM:         def(e.NPM, DefaultNPMAPI),
		CRANLogs:    def(e.CRANLogs, DefaultCRANLogsAPI),
		CRAN:        def(e.CRAN, DefaultCRAN),
		LibrariesIO: def(e.LibrariesIO, DefaultLibrariesIOAPI),
	}
}

// PackageScraper fetches download and reverse dependency counts from package
// managers and libraries.io.
type PackageScraper struct {
	endpoints      PackageEndpoints
	librariesIOKey string

	pypistats   *apiClient
	npm         *apiClient
	cranlogs    *apiClient
	cran        *apiClient
	librariesIO *apiClient
}

// PackageLimiters holds one rate limiter per package data provider.
type PackageLimiters struct {
	PyPIStats   *RateLimiter
	NPM         *RateLimiter
	CRANLogs    *RateLimiter
	CRAN        *RateLimiter
	LibrariesIO *RateLimiter
}

// NewPackageScraper creates a PackageScraper. librariesIOKey is required for
// reverse dependency counts of PyPI and npm packages.
func NewPackageScraper(client *http.Client, endpoints PackageEndpoints, librariesIOKey string, limiters PackageLimiters) *PackageScraper {
	return &PackageScraper{
		endpoints:      endpoints.withDefaults(),
		librariesIOKey: librariesIOKey,
		pypistats:      newAPIClient("pypistats", client, limiters.PyPIStats, nil),
		npm:            newAPIClient("npm", client, limiters.NPM, nil),
		cranlogs:       newAPIClient("cranlogs", client, limiters.CRANLogs, nil),
		cran:           newAPIClient("cran", client, limiters.CRAN, nil),
		librariesIO:    newAPIClient("librariesio", client, limiters.LibrariesIO, nil),
	}
}

// PyPIDownloads fetches the downloads of the last month from pypistats.
func (p *PackageScraper) PyPIDownloads(ctx context.Context, reference string) (entity.Payload, error) {
	name, err := PackageName(PlatformPyPI, reference)
	if err != nil {
		return nil, err
	}
	var body struct {
		Data struct {
			LastMonth *int64 `json:"last_month"`
		} `json:"data"`
	}
	u := fmt.Sprintf("%s/api/packages/%s/recent", p.endpoints.PyPIStats, url.PathEscape(strings.ToLower(name)))
	if _, err := p.pypistats.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	if body.Data.LastMonth == nil {
		return nil, fmt.Errorf("%w: pypistats: no download count for %s", scrape.ErrNoData, name)
	}
	return entity.DownloadCount(*body.Data.LastMonth), nil
}

// NPMDownloads fetches the downloads of the last month from the npm registry.
func (p *PackageScraper) NPMDownloads(ctx context.Context, reference string) (entity.Payload, error) {
	name, err := PackageName(PlatformNPM, reference)
	if err != nil {
		return nil, err
	}
	var body struct {
		Downloads *int64 `json:"downloads"`
	}
	u := fmt.Sprintf("%s/downloads/point/last-month/%s", p.endpoints.NPM, name)
	if _, err := p.npm.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	if body.Downloads == nil {
		return nil, fmt.Errorf("%w: npm: no download count for %s", scrape.ErrNoData, name)
	}
	return entity.DownloadCount(*body.Downloads), nil
}

// CRANDownloads fetches the downloads of the last month from cranlogs.
func (p *PackageScraper) CRANDownloads(ctx context.Context, reference string) (entity.Payload, error) {
	name, err := PackageName(PlatformCRAN, reference)
	if err != nil {
		return nil, err
	}
	var body []struct {
		Downloads int64 `json:"downloads"`
	}
	u := fmt.Sprintf("%s/downloads/total/last-month/%s", p.endpoints.CRANLogs, url.PathEscape(name))
	if _, err := p.cranlogs.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: cranlogs: no download count for %s", scrape.ErrNoData, name)
	}
	return entity.DownloadCount(body[0].Downloads), nil
}

// ReverseDependencies returns a fetcher counting the dependents of a package
// of platform as reported by libraries.io.
func (p *PackageScraper) ReverseDependencies(platform string) scrape.FetcherFunc {
	return func(ctx context.Context, reference string) (entity.Payload, error) {
		name, err := PackageName(platform, reference)
		if err != nil {
			return nil, err
		}
		var body struct {
			DependentsCount *int64 `json:"dependents_count"`
		}
		u := fmt.Sprintf("%s/api/%s/%s?api_key=%s",
			p.endpoints.LibrariesIO, platform, url.PathEscape(name), url.QueryEscape(p.librariesIOKey))
		if _, err := p.librariesIO.getJSON(ctx, u, &body); err != nil {
			return nil, err
		}
		if body.DependentsCount == nil {
			return nil, fmt.Errorf("%w: libraries.io: no dependents count for %s", scrape.ErrNoData, name)
		}
		return entity.ReverseDependencyCount(*body.DependentsCount), nil
	}
}

// CRANReverseDependencies counts the distinct packages listed in the reverse
// dependency rows of the package's CRAN page.
func (p *PackageScraper) CRANReverseDependencies(ctx context.Context, reference string) (entity.Payload, error) {
	name, err := PackageName(PlatformCRAN, reference)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/web/packages/%s/index.html", p.endpoints.CRAN, url.PathEscape(name))
	resp, err := p.cran.get(ctx, u, "text/html")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: cran: parse HTML: %w", scrape.ErrProvider, err)
	}
	return entity.ReverseDependencyCount(countReverseDependencies(doc)), nil
}

func countReverseDependencies(doc *goquery.Document) int {
	seen := map[string]struct{}{}
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		label := strings.TrimSpace(strings.ReplaceAll(row.Find("td").First().Text(), "\u00a0", " "))
		if !isReverseDependencyLabel(label) {
			return
		}
		row.Find("td").Eq(1).Find("a").Each(func(_ int, a *goquery.Selection) {
			if pkg := strings.TrimSpace(a.Text()); pkg != "" {
				seen[pkg] = struct{}{}
			}
		})
	})
	return len(seen)
}

func isReverseDependencyLabel(label string) bool {
	for _, l := range reverseDependencyLabels {
		if strings.EqualFold(label, l) {
			return true
		}
	}
	return false
}

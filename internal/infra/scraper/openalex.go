package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/observability/logging"
	"rsd-scraper/internal/usecase/scrape"
)

const (
	// DefaultOpenAlexAPI is the public OpenAlex endpoint.
	DefaultOpenAlexAPI = "https://api.openalex.org"

	openAlexPageSize = 200
	openAlexMaxPages = 50
)

// OpenAlexScraper collects the works citing a reference paper.
type OpenAlexScraper struct {
	api     *apiClient
	baseURL string
	mailto  string
}

// NewOpenAlexScraper creates an OpenAlexScraper.
func NewOpenAlexScraper(client *http.Client, baseURL, mailto string, limiter *RateLimiter) *OpenAlexScraper {
	if baseURL == "" {
		baseURL = DefaultOpenAlexAPI
	}
	return &OpenAlexScraper{
		api:     newAPIClient("openalex", client, limiter, nil),
		baseURL: strings.TrimRight(baseURL, "/"),
		mailto:  mailto,
	}
}

type openAlexWork struct {
	ID              string `json:"id"`
	DOI             string `json:"doi"`
	DisplayName     string `json:"display_name"`
	PublicationYear *int   `json:"publication_year"`
	Type            string `json:"type"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation *openAlexLocation  `json:"primary_location"`
	Locations       []openAlexLocation `json:"locations"`
}

type openAlexLocation struct {
	LandingPageURL *string `json:"landing_page_url"`
	Source         *struct {
		DisplayName          string `json:"display_name"`
		HostOrganizationName string `json:"host_organization_name"`
	} `json:"source"`
}

type openAlexPage struct {
	Meta struct {
		NextCursor *string `json:"next_cursor"`
	} `json:"meta"`
	Results []openAlexWork `json:"results"`
}

// Citations fetches every work citing the paper identified by a DOI.
func (o *OpenAlexScraper) Citations(ctx context.Context, reference string) (entity.Payload, error) {
	doi, err := normalizeDOI(reference)
	if err != nil {
		return nil, err
	}

	var paper openAlexWork
	if _, err := o.api.getJSON(ctx, o.withMailto(o.baseURL+"/works/doi:"+escapeDOI(doi), url.Values{}), &paper); err != nil {
		return nil, err
	}
	workID := paper.ID[strings.LastIndex(paper.ID, "/")+1:]
	if workID == "" {
		return nil, fmt.Errorf("%w: openalex: work for %s has no id", scrape.ErrProvider, doi)
	}

	citations := entity.Citations{}
	cursor := "*"
	for page := 0; page < openAlexMaxPages && cursor != ""; page++ {
		q := url.Values{}
		q.Set("filter", "cites:"+workID)
		q.Set("per-page", fmt.Sprint(openAlexPageSize))
		q.Set("cursor", cursor)

		var p openAlexPage
		if _, err := o.api.getJSON(ctx, o.withMailto(o.baseURL+"/works", q), &p); err != nil {
			return nil, fmt.Errorf("citations of %s: %w", doi, err)
		}
		for i := range p.Results {
			citations = append(citations, p.Results[i].mention())
		}

		cursor = ""
		if p.Meta.NextCursor != nil && len(p.Results) > 0 {
			cursor = *p.Meta.NextCursor
		}
		if page == openAlexMaxPages-1 && cursor != "" {
			logging.FromContext(ctx).Warn("citation list truncated",
				slog.String("doi", doi),
				slog.Int("citations", len(citations)))
		}
	}
	return citations, nil
}

func (o *OpenAlexScraper) withMailto(base string, q url.Values) string {
	if o.mailto != "" {
		q.Set("mailto", o.mailto)
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

func (w *openAlexWork) mention() *entity.MentionRecord {
	m := &entity.MentionRecord{
		Title:           w.DisplayName,
		PublicationYear: w.PublicationYear,
		MentionType:     mentionTypeOf(w.Type),
		Source:          "OpenAlex",
		ExternalID:      nonEmpty(w.ID[strings.LastIndex(w.ID, "/")+1:]),
	}
	if doi, err := normalizeDOI(w.DOI); err == nil {
		m.DOI = &doi
	}

	authors := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			authors = append(authors, a.Author.DisplayName)
		}
	}
	m.Authors = nonEmpty(strings.Join(authors, ", "))

	if w.PrimaryLocation != nil && w.PrimaryLocation.Source != nil {
		m.Journal = nonEmpty(w.PrimaryLocation.Source.DisplayName)
		m.Publisher = nonEmpty(w.PrimaryLocation.Source.HostOrganizationName)
	}
	m.URL = landingPageURL(w.Locations)
	return m
}

// landingPageURL returns the first landing page of locations. Some landing
// pages contain backslashes, which are not valid in a URL and are escaped.
func landingPageURL(locations []openAlexLocation) *string {
	for _, l := range locations {
		if l.LandingPageURL == nil || *l.LandingPageURL == "" {
			continue
		}
		u := strings.ReplaceAll(*l.LandingPageURL, `\`, "%5C")
		if _, err := url.Parse(u); err != nil {
			continue
		}
		return &u
	}
	return nil
}

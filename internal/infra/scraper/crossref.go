package scraper

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"rsd-scraper/internal/domain/entity"
)

// DefaultCrossrefAPI is the public Crossref REST endpoint.
const DefaultCrossrefAPI = "https://api.crossref.org"

// CrossrefScraper refreshes mention metadata from Crossref.
type CrossrefScraper struct {
	api     *apiClient
	baseURL string
	mailto  string
}

// NewCrossrefScraper creates a CrossrefScraper. mailto, when set, routes
// requests to Crossref's polite pool.
func NewCrossrefScraper(client *http.Client, baseURL, mailto string, limiter *RateLimiter) *CrossrefScraper {
	if baseURL == "" {
		baseURL = DefaultCrossrefAPI
	}
	return &CrossrefScraper{
		api:     newAPIClient("crossref", client, limiter, nil),
		baseURL: strings.TrimRight(baseURL, "/"),
		mailto:  mailto,
	}
}

type crossrefWork struct {
	Message struct {
		DOI            string   `json:"DOI"`
		URL            string   `json:"URL"`
		Title          []string `json:"title"`
		Publisher      string   `json:"publisher"`
		ContainerTitle []string `json:"container-title"`
		Page           string   `json:"page"`
		Type           string   `json:"type"`
		Author         []struct {
			Given  string `json:"given"`
			Family string `json:"family"`
			Name   string `json:"name"`
		} `json:"author"`
		Issued struct {
			DateParts [][]*int `json:"date-parts"`
		} `json:"issued"`
	} `json:"message"`
}

// Mention fetches the metadata of the work identified by a DOI.
func (c *CrossrefScraper) Mention(ctx context.Context, reference string) (entity.Payload, error) {
	doi, err := normalizeDOI(reference)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + "/works/" + escapeDOI(doi)
	if c.mailto != "" {
		u += "?mailto=" + url.QueryEscape(c.mailto)
	}

	var work crossrefWork
	if _, err := c.api.getJSON(ctx, u, &work); err != nil {
		return nil, err
	}
	msg := work.Message

	m := &entity.MentionRecord{
		DOI:         &doi,
		Title:       firstOr(msg.Title, doi),
		Publisher:   nonEmpty(msg.Publisher),
		Journal:     nonEmpty(firstOr(msg.ContainerTitle, "")),
		Page:        nonEmpty(msg.Page),
		URL:         nonEmpty(msg.URL),
		MentionType: mentionTypeOf(msg.Type),
		Source:      "Crossref",
	}
	if len(msg.Issued.DateParts) > 0 && len(msg.Issued.DateParts[0]) > 0 {
		m.PublicationYear = msg.Issued.DateParts[0][0]
	}

	authors := make([]string, 0, len(msg.Author))
	for _, a := range msg.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name == "" {
			name = a.Name
		}
		if name != "" {
			authors = append(authors, name)
		}
	}
	m.Authors = nonEmpty(strings.Join(authors, ", "))
	return m, nil
}

func firstOr(values []string, fallback string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return fallback
}

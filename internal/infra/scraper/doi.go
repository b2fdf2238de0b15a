package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/usecase/scrape"
)

var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// normalizeDOI strips resolver prefixes and checks the DOI syntax.
func normalizeDOI(reference string) (string, error) {
	doi := strings.TrimSpace(reference)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:"} {
		if len(doi) >= len(prefix) && strings.EqualFold(doi[:len(prefix)], prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	if !doiPattern.MatchString(doi) {
		return "", fmt.Errorf("%w: not a DOI: %q", scrape.ErrInvalidReference, reference)
	}
	return doi, nil
}

// escapeDOI escapes a DOI for use in a URL path, keeping its slashes.
func escapeDOI(doi string) string {
	return (&url.URL{Path: doi}).EscapedPath()
}

// mentionTypeOf maps Crossref and OpenAlex work types to mention types.
func mentionTypeOf(workType string) string {
	switch strings.ToLower(workType) {
	case "book", "monograph", "edited-book", "reference-book":
		return entity.MentionTypeBook
	case "book-chapter", "book-section", "book-part":
		return entity.MentionTypeBookSection
	case "proceedings-article", "conference-paper":
		return entity.MentionTypeConferencePaper
	case "dataset":
		return entity.MentionTypeDataset
	case "journal-article", "article", "review", "letter", "editorial":
		return entity.MentionTypeJournalArticle
	case "report", "report-component":
		return entity.MentionTypeReport
	case "dissertation":
		return entity.MentionTypeThesis
	case "software":
		return entity.MentionTypeComputerProgram
	default:
		return entity.MentionTypeOther
	}
}

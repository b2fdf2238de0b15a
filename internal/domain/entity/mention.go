package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MentionType values accepted by the mention table.
const (
	MentionTypeBook            = "book"
	MentionTypeBookSection     = "book_section"
	MentionTypeComputerProgram = "computer_program"
	MentionTypeConferencePaper = "conference_paper"
	MentionTypeDataset         = "dataset"
	MentionTypeJournalArticle  = "journal_article"
	MentionTypePresentation    = "presentation"
	MentionTypeReport          = "report"
	MentionTypeThesis          = "thesis"
	MentionTypeOther           = "other"
)

// MentionRecord is a citation or mention of research software. A record is
// identified by its DOI when it has one, otherwise by ExternalID within Source.
type MentionRecord struct {
	ID              uuid.UUID  `json:"id"`
	DOI             *string    `json:"doi"`
	URL             *string    `json:"url"`
	Title           string     `json:"title"`
	Authors         *string    `json:"authors"`
	Publisher       *string    `json:"publisher"`
	PublicationYear *int       `json:"publication_year"`
	Journal         *string    `json:"journal"`
	Page            *string    `json:"page"`
	ImageURL        *string    `json:"image_url"`
	MentionType     string     `json:"mention_type"`
	Source          string     `json:"source"`
	Version         *string    `json:"version"`
	Note            *string    `json:"note"`
	ExternalID      *string    `json:"external_id"`
	ScrapedAt       *time.Time `json:"scraped_at"`
}

// HasDOI reports whether the record carries a non-empty DOI.
func (m *MentionRecord) HasDOI() bool {
	return m.DOI != nil && strings.TrimSpace(*m.DOI) != ""
}

// Validate checks that the record has an identifier usable for merging.
func (m *MentionRecord) Validate() error {
	if m.HasDOI() {
		return nil
	}
	if m.ExternalID == nil || *m.ExternalID == "" {
		return &ValidationError{Field: "external_id", Message: "required when doi is absent"}
	}
	if m.Source == "" {
		return &ValidationError{Field: "source", Message: "required when doi is absent"}
	}
	return nil
}

// Columns implements Payload. The id is assigned by the store and never written.
func (m *MentionRecord) Columns() map[string]any {
	return map[string]any{
		"doi":              m.DOI,
		"url":              m.URL,
		"title":            m.Title,
		"authors":          m.Authors,
		"publisher":        m.Publisher,
		"publication_year": m.PublicationYear,
		"journal":          m.Journal,
		"page":             m.Page,
		"image_url":        m.ImageURL,
		"mention_type":     m.MentionType,
		"source":           m.Source,
		"version":          m.Version,
		"note":             m.Note,
		"external_id":      m.ExternalID,
		"scraped_at":       m.ScrapedAt,
	}
}

package entity_test

import (
	"testing"

	"rsd-scraper/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestMentionRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mention entity.MentionRecord
		field   string
	}{
		{name: "doi only", mention: entity.MentionRecord{DOI: str("10.1000/x")}},
		{name: "external id and source", mention: entity.MentionRecord{ExternalID: str("W1"), Source: "OpenAlex"}},
		{name: "blank doi without external id", mention: entity.MentionRecord{DOI: str("  ")}, field: "external_id"},
		{name: "external id without source", mention: entity.MentionRecord{ExternalID: str("W1")}, field: "source"},
		{name: "nothing", mention: entity.MentionRecord{Title: "untitled"}, field: "external_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mention.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *entity.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestMentionRecord_ColumnsOmitID(t *testing.T) {
	m := &entity.MentionRecord{DOI: str("10.1000/x"), Title: "A paper", MentionType: entity.MentionTypeJournalArticle, Source: "Crossref"}
	cols := m.Columns()

	assert.NotContains(t, cols, "id")
	assert.Equal(t, "A paper", cols["title"])
	assert.Equal(t, "journal_article", cols["mention_type"])
	assert.True(t, m.HasDOI())
}

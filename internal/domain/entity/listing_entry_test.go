package entity

import (
	"testing"

	"github.com/LouYuanbo1/authorharvest/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBookID(t *testing.T) {
	tests := []struct {
		name string
		link string
		want *string
	}{
		{name: "id with slug", link: "https://allauthor.com/book/1234/the-long-night/", want: ptr("1234")},
		{name: "id at end", link: "https://allauthor.com/book/99", want: ptr("99")},
		{name: "marker at end", link: "https://allauthor.com/book/", want: ptr("")},
		{name: "no marker", link: "https://allauthor.com/author/jane-doe/", want: nil},
		{name: "empty link", link: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractBookID(tt.link, "/book/")
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestToRecordColumnOrder(t *testing.T) {
	entry := ListingEntry{
		BookID:     ptr("42"),
		BookTitle:  "Dune",
		BookLink:   "https://allauthor.com/book/42/dune/",
		AuthorName: "Frank Herbert",
		AuthorLink: "https://allauthor.com/author/frank-herbert/",
	}
	fields := model.NewAuthorFields("https://dunenovels.com")
	fields.Platforms[model.Twitter] = "https://twitter.com/x"
	fields.Platforms[model.Newsletter] = "https://news.example.com"

	row := entry.ToRecord(&fields).Row()

	require.Len(t, row, len(model.Columns))
	assert.Equal(t, []string{
		"42", "Dune", "https://allauthor.com/book/42/dune/", "Frank Herbert",
		"https://allauthor.com/author/frank-herbert/", "https://dunenovels.com",
		"", "https://twitter.com/x", "", "", "", "", "", "", "https://news.example.com",
	}, row)
}

func TestToRecordDefaults(t *testing.T) {
	entry := ListingEntry{BookTitle: "Untitled", BookLink: "https://allauthor.com/books/x"}

	t.Run("nil book id renders empty", func(t *testing.T) {
		fields := model.NewAuthorFields("N/A")
		record := entry.ToRecord(&fields)
		assert.Equal(t, "", record.BookID)
		assert.Equal(t, "N/A", record.AuthorWebsite)
	})

	t.Run("sparse platform map", func(t *testing.T) {
		fields := &model.AuthorFields{Website: "N/A", Platforms: map[model.Platform]string{model.Amazon: "https://amazon.com/a"}}
		record := entry.ToRecord(fields)
		assert.Equal(t, "https://amazon.com/a", record.Amazon)
		assert.Equal(t, "", record.Facebook)
		assert.Len(t, record.Row(), 15)
	})

	t.Run("nil fields", func(t *testing.T) {
		record := entry.ToRecord(nil)
		assert.Len(t, record.Row(), 15)
		assert.Equal(t, "", record.AuthorWebsite)
	})
}

func ptr(s string) *string { return &s }

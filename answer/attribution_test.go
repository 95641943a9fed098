package answer

import (
	"strings"
	"testing"

	"github.com/poiesic/dossier/core"
	"github.com/stretchr/testify/assert"
)

func TestAttributeDocument_News(t *testing.T) {
	tests := []struct {
		name    string
		content string
		title   string
		url     string
	}{
		{
			name:    "headline and url",
			content: "Headline text http://example.com/a",
			title:   "Headline text",
			url:     "http://example.com/a",
		},
		{
			name:    "https url",
			content: "Chipmaker beats estimates https://news.example.com/chips?id=7",
			title:   "Chipmaker beats estimates",
			url:     "https://news.example.com/chips?id=7",
		},
		{
			name:    "earliest url wins",
			content: "Two links https://a.example.com then http://b.example.com",
			title:   "Two links",
			url:     "https://a.example.com then http://b.example.com",
		},
		{
			name:    "no url",
			content: "Headline without a link",
			title:   "Headline without a link",
			url:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := core.NewDocument(tt.content, map[string]string{core.MetaSource: core.SourceNews})
			ref := AttributeDocument(doc)
			assert.Equal(t, tt.title, ref.Title)
			assert.Equal(t, tt.url, ref.URL)
			assert.Equal(t, core.SourceTypeNews, ref.Type)
			assert.Equal(t, "News", ref.Source)
		})
	}
}

func TestAttributeDocument_Generic(t *testing.T) {
	long := strings.Repeat("0123456789", 15)
	doc := core.NewDocument(long, nil)

	ref := AttributeDocument(doc)
	assert.Equal(t, long[:100]+"...", ref.Title)
	assert.Equal(t, long, ref.Content)
	assert.Equal(t, core.SourceTypeDocument, ref.Type)
	assert.Empty(t, ref.URL)
}

func TestAttributeDocument_GenericShortAndBoundary(t *testing.T) {
	exact := strings.Repeat("a", 100)
	assert.Equal(t, exact, AttributeDocument(core.NewDocument(exact, nil)).Title)

	short := "Operating margin expanded"
	assert.Equal(t, short, AttributeDocument(core.NewDocument(short, nil)).Title)

	// Characters, not bytes
	wide := strings.Repeat("€", 101)
	assert.Equal(t, strings.Repeat("€", 100)+"...", AttributeDocument(core.NewDocument(wide, nil)).Title)
}

func TestAttributeDocument_UnknownSourceIsGeneric(t *testing.T) {
	meta := map[string]string{core.MetaSource: "sec-filing", core.MetaCompany: "ACME"}
	doc := core.NewDocument("Item 1A. Risk Factors", meta)

	ref := AttributeDocument(doc)
	assert.Equal(t, "Item 1A. Risk Factors", ref.Title)
	assert.Equal(t, meta, ref.Metadata)
	assert.Equal(t, core.SourceTypeDocument, ref.Type)

	// The reference must not alias the document's metadata
	ref.Metadata["extra"] = "x"
	assert.NotContains(t, doc.Metadata, "extra")
}

func TestAttributeDocument_Transcript(t *testing.T) {
	meta := map[string]string{
		core.MetaSource:  core.SourceTranscript,
		core.MetaCompany: "ACME Corp",
		core.MetaQuarter: "Q3",
		core.MetaYear:    "2024",
	}
	ref := AttributeDocument(core.NewDocument("Operator: Good afternoon...", meta))
	assert.Equal(t, "ACME Corp Q3 2024 earnings call", ref.Title)
	assert.Equal(t, core.SourceTypeTranscript, ref.Type)
	assert.Equal(t, "Operator: Good afternoon...", ref.Content)

	bare := AttributeDocument(core.NewDocument("transcript", map[string]string{core.MetaSource: core.SourceTranscript}))
	assert.Equal(t, "Earnings call", bare.Title)
}

func TestAttribute_PreservesOrder(t *testing.T) {
	docs := []core.Document{
		core.NewDocument("first", nil),
		core.NewDocument("Second http://x.example", map[string]string{core.MetaSource: core.SourceNews}),
	}
	refs := Attribute(docs)
	assert.Len(t, refs, 2)
	assert.Equal(t, "first", refs[0].Title)
	assert.Equal(t, "Second", refs[1].Title)
}

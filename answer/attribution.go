package answer

import (
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/dossier/core"
)

const (
	// TitleLimit is the number of characters kept in a generic source title.
	TitleLimit = 100

	newsLabel       = "News"
	transcriptLabel = "Earnings Call Transcript"
)

// Attribute builds one SourceRef per document, in order.
func Attribute(docs []core.Document) []core.SourceRef {
	refs := make([]core.SourceRef, len(docs))
	for i, doc := range docs {
		refs[i] = AttributeDocument(doc)
	}
	return refs
}

// AttributeDocument builds the SourceRef for a single document according to
// its provenance tag.
func AttributeDocument(doc core.Document) core.SourceRef {
	switch doc.Source() {
	case core.SourceNews:
		title, url := splitHeadline(doc.Content)
		return core.SourceRef{
			Title:  title,
			URL:    url,
			Type:   core.SourceTypeNews,
			Source: newsLabel,
		}
	case core.SourceTranscript:
		return core.SourceRef{
			Title:    transcriptTitle(doc.Metadata),
			Type:     core.SourceTypeTranscript,
			Source:   transcriptLabel,
			Content:  doc.Content,
			Metadata: maps.Clone(doc.Metadata),
		}
	default:
		return core.SourceRef{
			Title:    previewTitle(doc.Content),
			Type:     core.SourceTypeDocument,
			Content:  doc.Content,
			Metadata: maps.Clone(doc.Metadata),
		}
	}
}

// splitHeadline splits news content at the earliest URL. Everything before
// it is the headline; the URL runs to the end of the content.
func splitHeadline(content string) (string, string) {
	at := -1
	for _, prefix := range []string{"http://", "https://"} {
		if i := strings.Index(content, prefix); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at < 0 {
		return strings.TrimSpace(content), ""
	}
	return strings.TrimSpace(content[:at]), strings.TrimSpace(content[at:])
}

func transcriptTitle(meta map[string]string) string {
	var parts []string
	for _, key := range []string{core.MetaCompany, core.MetaQuarter, core.MetaYear} {
		if v := strings.TrimSpace(meta[key]); v != "" {
			parts = append(parts, v)
		}
	}
	parts = append(parts, "earnings call")
	title := strings.Join(parts, " ")
	if len(parts) == 1 {
		title = "Earnings call"
	}
	return title
}

// previewTitle keeps the first TitleLimit characters of content and marks
// the cut with an ellipsis.
func previewTitle(content string) string {
	if utf8.RuneCountInString(content) <= TitleLimit {
		return content
	}
	return truncateRunes(content, TitleLimit) + "..."
}

package ingestion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/poiesic/dossier/core"
)

// Payload is a caller-supplied document before normalization.
// Content and metadata values may be of any type.
type Payload struct {
	Content  any            `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Text returns a payload with string content and metadata.
func Text(content string, metadata map[string]string) Payload {
	p := Payload{Content: content}
	if len(metadata) > 0 {
		p.Metadata = make(map[string]any, len(metadata))
		for k, v := range metadata {
			p.Metadata[k] = v
		}
	}
	return p
}

// normalize turns a payload into a document. The source tag is attached
// when the payload does not name one.
func normalize(p Payload, source string) (core.Document, error) {
	content, ok, err := stringify(p.Content)
	if err != nil {
		return core.Document{}, fmt.Errorf("%w: content: %w", core.ErrInvalidDocument, err)
	}
	if !ok || strings.TrimSpace(content) == "" {
		return core.Document{}, fmt.Errorf("%w: %w", core.ErrInvalidDocument, core.ErrEmptyContent)
	}

	metadata := make(map[string]string, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		s, ok, err := stringify(v)
		if err != nil {
			return core.Document{}, fmt.Errorf("%w: metadata %q: %w", core.ErrInvalidDocument, k, err)
		}
		if ok {
			metadata[k] = s
		}
	}
	if metadata[core.MetaSource] == "" && source != "" {
		metadata[core.MetaSource] = source
	}

	doc := core.NewDocument(content, metadata)
	if err := core.ValidateDocument(&doc); err != nil {
		return core.Document{}, err
	}
	return doc, nil
}

// stringify renders a value as text. It reports false for values that have
// no text form, such as nil.
func stringify(v any) (string, bool, error) {
	switch x := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return x, true, nil
	case []byte:
		return string(x), true, nil
	case bool:
		return strconv.FormatBool(x), true, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), true, nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true, nil
	case time.Time:
		return x.Format(time.RFC3339), true, nil
	case *time.Time:
		if x == nil {
			return "", false, nil
		}
		return x.Format(time.RFC3339), true, nil
	case fmt.Stringer:
		return x.String(), true, nil
	case error:
		return x.Error(), true, nil
	}

	// Structured values are rendered as JSON with sorted keys
	s, err := sonic.ConfigStd.MarshalToString(v)
	if err != nil {
		return "", false, fmt.Errorf("%w: %T: %w", ErrUnsupportedContent, v, err)
	}
	if s == "null" {
		return "", false, nil
	}
	return s, true, nil
}

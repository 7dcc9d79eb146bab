package elastic

import (
	"encoding/json"
	"fmt"

	"github.com/ariadne-io/ariadne/internal/storage/model"
)

// DocumentID keys a span document so that retried deliveries collide with
// the first write instead of duplicating it.
func DocumentID(span model.Span) string {
	return span.TraceID + "-" + span.SpanID
}

func ToDocument(span model.Span) (map[string]interface{}, error) {
	data, err := json.Marshal(span)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal span to JSON: %w", err)
	}
	var document map[string]interface{}
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to document: %w", err)
	}
	return document, nil
}

func ConvertFromDocuments(documents []map[string]interface{}) ([]model.Span, error) {
	spans := make([]model.Span, 0, len(documents))
	for _, document := range documents {
		data, err := json.Marshal(document)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document to JSON: %w", err)
		}
		var span model.Span
		if err := json.Unmarshal(data, &span); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document to span: %w", err)
		}
		spans = append(spans, span)
	}
	return spans, nil
}

package proxy

import (
	"strings"

	"github.com/dukex/flowscribe/pkg/models"
	"github.com/goccy/go-json"
)

const (
	DefaultTagFilter = "explain my automation"

	workflowsRoute = "/api/v1/workflows"
)

// normalize unwraps the automation server reply so that every relay answer
// has the shape {data: ...}. List replies are reduced to the definitions
// tagged with tagFilter; an empty tagFilter keeps all of them.
func normalize(endpoint string, body []byte, tagFilter string) (json.RawMessage, error) {
	if !json.Valid(body) {
		return nil, ErrNotJSON
	}

	data := json.RawMessage(body)

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}

	if json.Unmarshal(body, &envelope) == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		data = envelope.Data
	}

	if tagFilter != "" && isListRoute(endpoint) {
		return filterByTag(data, tagFilter)
	}

	return data, nil
}

func isListRoute(endpoint string) bool {
	path, _, _ := strings.Cut(endpoint, "?")

	return strings.TrimRight(path, "/") == workflowsRoute
}

func filterByTag(data json.RawMessage, tagFilter string) (json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return data, nil //nolint:nilerr // not a list, nothing to filter
	}

	kept := make([]json.RawMessage, 0, len(items))

	for _, item := range items {
		var tagged struct {
			Tags []models.Tag `json:"tags"`
		}

		if json.Unmarshal(item, &tagged) != nil {
			continue
		}

		for _, tag := range tagged.Tags {
			if strings.EqualFold(strings.TrimSpace(tag.Name), tagFilter) {
				kept = append(kept, item)

				break
			}
		}
	}

	return json.Marshal(kept)
}

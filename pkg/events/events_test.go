package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/flowscribe/pkg/docdiff"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(SelectionChangedEvent, models.PanelExplain, "wf-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, SelectionChangedEvent, event.Type)
	assert.Equal(t, models.PanelExplain, event.Panel)
	assert.Equal(t, "wf-1", event.WorkflowID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event interface{ GetType() EventType }
		want  EventType
	}{
		{SelectionChanged{}, SelectionChangedEvent},
		{DocumentReplaced{}, DocumentReplacedEvent},
		{ChatExchanged{}, ChatExchangedEvent},
		{RequestFailed{}, RequestFailedEvent},
		{ResultDiscarded{}, ResultDiscardedEvent},
		{CatalogRefreshed{}, CatalogRefreshedEvent},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.event.GetType())
	}
}

func TestDocumentReplaced_JSON(t *testing.T) {
	original := &DocumentReplaced{
		BaseEvent: NewBaseEvent(DocumentReplacedEvent, models.PanelDocs, "wf-1"),
		Source:    SourceChat,
		Action:    "docs_chat",
		Diff:      docdiff.Stats{Added: 3, Removed: 1},
		Length:    42,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"document.replaced"`)
	assert.Contains(t, string(data), `"panel":"docs"`)
	assert.Contains(t, string(data), `"diff":{"added":3,"removed":1}`)

	var decoded DocumentReplaced

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Diff, decoded.Diff)
	assert.Equal(t, SourceChat, decoded.Source)
}

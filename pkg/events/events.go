// Package events defines the notifications a conversation session emits.
package events

import (
	"time"

	"github.com/dukex/flowscribe/pkg/docdiff"
	"github.com/dukex/flowscribe/pkg/failures"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "flowscribe.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	SelectionChangedEvent EventType = "selection.changed"
	DocumentReplacedEvent EventType = "document.replaced"
	ChatExchangedEvent    EventType = "chat.exchanged"
	RequestFailedEvent    EventType = "request.failed"
	ResultDiscardedEvent  EventType = "result.discarded"
	CatalogRefreshedEvent EventType = "catalog.refreshed"
)

// DocumentSource tells what replaced a Document.
type DocumentSource string

const (
	SourceGeneration DocumentSource = "generation"
	SourceChat       DocumentSource = "chat"
	SourceUserEdit   DocumentSource = "user_edit"
)

type BaseEvent struct {
	ID         string       `json:"id"`
	Type       EventType    `json:"type"`
	Timestamp  time.Time    `json:"timestamp"`
	Panel      models.Panel `json:"panel,omitempty"`
	WorkflowID string       `json:"workflow_id,omitempty"`
}

func NewBaseEvent(eventType EventType, panel models.Panel, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		Panel:      panel,
		WorkflowID: workflowID,
	}
}

func (e BaseEvent) GetWorkflowID() string {
	return e.WorkflowID
}

type SelectionChanged struct {
	BaseEvent

	PreviousWorkflowID string `json:"previous_workflow_id,omitempty"`
	WorkflowName       string `json:"workflow_name,omitempty"`
	Error              string `json:"error,omitempty"`
}

func (e SelectionChanged) GetType() EventType {
	return SelectionChangedEvent
}

type DocumentReplaced struct {
	BaseEvent

	Source DocumentSource `json:"source"`
	Action string         `json:"action,omitempty"`
	Diff   docdiff.Stats  `json:"diff"`
	Length int            `json:"length"`
}

func (e DocumentReplaced) GetType() EventType {
	return DocumentReplacedEvent
}

type ChatExchanged struct {
	BaseEvent

	Input            string `json:"input"`
	Reply            string `json:"reply"`
	DocumentReplaced bool   `json:"document_replaced"`
	TranscriptLength int    `json:"transcript_length"`
}

func (e ChatExchanged) GetType() EventType {
	return ChatExchangedEvent
}

type RequestFailed struct {
	BaseEvent

	Action  string        `json:"action"`
	Kind    failures.Kind `json:"kind,omitempty"`
	Message string        `json:"message"`
	Details string        `json:"details,omitempty"`
}

func (e RequestFailed) GetType() EventType {
	return RequestFailedEvent
}

// ResultDiscarded reports a reply that arrived after the selection moved on.
type ResultDiscarded struct {
	BaseEvent

	Action            string `json:"action"`
	CurrentWorkflowID string `json:"current_workflow_id,omitempty"`
}

func (e ResultDiscarded) GetType() EventType {
	return ResultDiscardedEvent
}

type CatalogRefreshed struct {
	BaseEvent

	Count int `json:"count"`
}

func (e CatalogRefreshed) GetType() EventType {
	return CatalogRefreshedEvent
}

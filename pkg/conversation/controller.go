// Package conversation sequences selection, generation and chat-edits for one
// panel, keeping the Document and transcript intact when a step fails.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukex/flowscribe/pkg/credentials"
	"github.com/dukex/flowscribe/pkg/docdiff"
	"github.com/dukex/flowscribe/pkg/eventbus"
	"github.com/dukex/flowscribe/pkg/events"
	"github.com/dukex/flowscribe/pkg/failures"
	"github.com/dukex/flowscribe/pkg/gateway"
	"github.com/dukex/flowscribe/pkg/models"
)

var (
	// ErrBusy is returned when a request is already in flight for the panel.
	ErrBusy = errors.New("a request is already in flight")

	// ErrNoSelection is returned when no definition is selected.
	ErrNoSelection = errors.New("no workflow selected")

	// ErrEmptyInput is returned for a blank chat message.
	ErrEmptyInput = errors.New("chat message is empty")

	// ErrEmptyDocument is returned when a docs chat-edit has nothing to edit.
	ErrEmptyDocument = errors.New("generate documentation before editing it via chat")

	// ErrStale is returned when a reply arrives after the selection changed.
	// The reply has been discarded.
	ErrStale = errors.New("result discarded: selection changed")
)

const (
	documentUpdatedMessage      = "Document updated."
	documentationUpdatedMessage = "Documentation updated successfully."
)

// State is the controller's position in the select/generate/chat loop.
type State string

const (
	StateIdle        State = "idle"
	StateSelecting   State = "selecting"
	StateReady       State = "ready"
	StateGenerating  State = "generating"
	StateChatPending State = "chat_pending"
)

// DefinitionSource fetches definitions and their execution history.
type DefinitionSource interface {
	FetchDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	FetchExecutionHistory(ctx context.Context, id string, limit int) *models.ExecutionHistorySummary
}

// CredentialSource reads the stored credentials.
type CredentialSource interface {
	Snapshot(ctx context.Context) credentials.Snapshot
}

type Config struct {
	Panel          models.Panel
	KeyMode        models.LLMKeyMode
	ExecutionLimit int
	Options        Options
}

// Controller owns the Document and transcript of one panel. Its methods are
// safe to call from different goroutines; at most one generation or chat-edit
// runs at a time.
type Controller struct {
	panel          models.Panel
	keyMode        models.LLMKeyMode
	executionLimit int

	definitions DefinitionSource
	generator   gateway.Generator
	credentials CredentialSource
	publisher   eventbus.EventPublisher
	logger      *slog.Logger

	mu           sync.Mutex
	state        State
	selectedID   string
	selectedName string
	definition   *models.WorkflowDefinition
	document     string
	transcript   Transcript
	options      Options
	epoch        uint64
	busy         bool
	cancel       context.CancelFunc
	cancelSelect context.CancelFunc
	lastErr      error
	outbox       []outgoing

	// publishMu orders flushes; it is never taken while mu is held.
	publishMu sync.Mutex
}

type outgoing struct {
	key   string
	event eventbus.Event
}

// New builds a controller. publisher may be nil.
func New(
	config Config,
	definitions DefinitionSource,
	generator gateway.Generator,
	credentialSource CredentialSource,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Controller {
	panel := config.Panel
	if panel == "" {
		panel = models.PanelExplain
	}

	options := config.Options
	if options == (Options{}) {
		options = DefaultOptions()
	}

	return &Controller{
		panel:          panel,
		keyMode:        config.KeyMode,
		executionLimit: config.ExecutionLimit,
		definitions:    definitions,
		generator:      generator,
		credentials:    credentialSource,
		publisher:      publisher,
		logger:         logger.With("module", "conversation", "panel", panel),
		state:          StateIdle,
		options:        options,
	}
}

// Select switches to definition id. Any in-flight request for the previous
// selection is canceled and its late result discarded; the Document and
// transcript are cleared before the fetch. On fetch failure the controller
// returns to Idle but keeps the id so Generate can retry.
func (c *Controller) Select(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNoSelection
	}

	c.mu.Lock()

	previous := c.selectedID
	c.epoch++
	epoch := c.epoch

	c.abortLocked()

	c.selectedID = id
	c.selectedName = ""
	c.definition = nil
	c.document = ""
	c.transcript.Reset()
	c.lastErr = nil
	c.state = StateSelecting

	selectCtx, cancel := context.WithCancel(ctx)
	c.cancelSelect = cancel

	c.unlock(ctx)

	defer cancel()

	c.logger.InfoContext(ctx, "Selecting workflow", "workflow_id", id, "previous_workflow_id", previous)

	definition, err := c.definitions.FetchDefinition(selectCtx, id)

	c.mu.Lock()
	defer c.unlock(ctx)

	if epoch != c.epoch {
		return ErrStale
	}

	c.cancelSelect = nil

	event := events.SelectionChanged{
		BaseEvent:          events.NewBaseEvent(events.SelectionChangedEvent, c.panel, id),
		PreviousWorkflowID: previous,
	}

	if err != nil {
		c.state = StateIdle
		c.lastErr = err
		event.Error = failures.SummaryOf(err)
		c.publish(ctx, event)

		c.logger.ErrorContext(ctx, "Failed to load workflow", "workflow_id", id, "error", err)

		return err
	}

	c.definition = definition
	c.selectedName = definition.Name
	c.state = StateReady
	event.WorkflowName = definition.Name
	c.publish(ctx, event)

	return nil
}

// Generate requests a fresh Document for the selected definition. On success
// the Document is replaced wholesale; on failure it is left byte-identical.
func (c *Controller) Generate(ctx context.Context) error {
	action := generateAction(c.panel)

	c.mu.Lock()

	if err := c.checkLocked(ctx, action); err != nil {
		c.unlock(ctx)

		return err
	}

	snapshot := c.credentials.Snapshot(ctx)
	id := c.selectedID
	options := c.options
	document := c.document
	epoch := c.epoch

	reqCtx := c.beginLocked(ctx, StateGenerating)

	c.unlock(ctx)

	c.logger.InfoContext(ctx, "Generating", "action", action, "workflow_id", id)

	definition, err := c.definitions.FetchDefinition(reqCtx, id)

	var result gateway.Result

	if err == nil {
		var history *models.ExecutionHistorySummary
		if c.panel == models.PanelExplain && options.Mode.NeedsExecutions() {
			history = c.definitions.FetchExecutionHistory(reqCtx, id, c.executionLimit)
		}

		result, err = c.generator.Generate(reqCtx, c.request(action, id, definition.Name, options, snapshot,
			generateContext(c.panel, options, document, definition, history), nil))
	}

	c.mu.Lock()
	defer c.unlock(ctx)

	if epoch != c.epoch {
		c.discardLocked(ctx, action, id)

		return ErrStale
	}

	c.finishLocked()

	if err == nil {
		c.definition = definition
		c.selectedName = definition.Name
		c.state = StateReady
		err = c.applyGenerateLocked(ctx, action, result)
	}

	if err != nil {
		return c.failLocked(ctx, action, err)
	}

	return nil
}

// SendChat sends a chat-edit. The user message is appended optimistically
// and removed again if the call fails; on success exactly one assistant
// message follows it.
func (c *Controller) SendChat(ctx context.Context, input string) error {
	action := chatAction(c.panel)

	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()

	if err := c.checkLocked(ctx, action); err != nil {
		c.unlock(ctx)

		return err
	}

	if c.panel == models.PanelDocs && strings.TrimSpace(c.document) == "" {
		c.unlock(ctx)

		return ErrEmptyDocument
	}

	history, err := c.transcript.Begin(models.UserMessage(input))
	if err != nil {
		c.unlock(ctx)

		return ErrBusy
	}

	snapshot := c.credentials.Snapshot(ctx)
	id := c.selectedID
	name := c.selectedName
	options := c.options
	epoch := c.epoch
	panelContext := chatContext(c.panel, options, c.document)

	reqCtx := c.beginLocked(ctx, StateChatPending)

	c.unlock(ctx)

	c.logger.InfoContext(ctx, "Sending chat message", "action", action, "workflow_id", id, "history", len(history))

	result, err := c.generator.Generate(reqCtx, c.request(action, id, name, options, snapshot, panelContext,
		&gateway.Chat{Input: &input, History: history}))

	c.mu.Lock()
	defer c.unlock(ctx)

	if epoch != c.epoch {
		c.discardLocked(ctx, action, id)

		return ErrStale
	}

	c.finishLocked()

	if err == nil {
		err = c.applyChatLocked(ctx, action, input, result)
	}

	if err != nil {
		c.transcript.Rollback()

		return c.failLocked(ctx, action, err)
	}

	return nil
}

// EditDocument replaces the Document with text typed by the user.
func (c *Controller) EditDocument(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.unlock(ctx)

	if c.busyLocked() {
		return ErrBusy
	}

	if c.selectedID == "" {
		return ErrNoSelection
	}

	c.replaceDocumentLocked(ctx, text, events.SourceUserEdit, "")

	return nil
}

// Cancel aborts the in-flight request, if any. The request then fails with a
// canceled network error and leaves the Document untouched.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) SetOptions(options Options) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.options = options
}

func (c *Controller) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.options
}

func (c *Controller) Panel() models.Panel {
	return c.panel
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Controller) Document() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.document
}

func (c *Controller) Transcript() []models.ConversationMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.transcript.Messages()
}

// Selection returns the selected id and, once loaded, its name.
func (c *Controller) Selection() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.selectedID, c.selectedName
}

// Definition returns the last loaded definition, or nil.
func (c *Controller) Definition() *models.WorkflowDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.definition
}

// LastError returns the error surfaced by the most recent failed step.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// Busy reports whether a request is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.busy
}

func (c *Controller) checkLocked(ctx context.Context, action string) error {
	if c.busyLocked() {
		return ErrBusy
	}

	if c.selectedID == "" {
		return ErrNoSelection
	}

	snapshot := c.credentials.Snapshot(ctx)

	var missing error

	switch {
	case !snapshot.HasAutomation():
		missing = failures.ConfigMissing("conversation."+action, "automation server URL and API key are required")
	case !snapshot.N8nValid:
		missing = failures.ConfigMissing("conversation."+action, "automation server credentials have not been validated")
	case c.keyMode == models.LLMKeyClient && !snapshot.HasLLM():
		missing = failures.ConfigMissing("conversation."+action, "an OpenRouter API key is required")
	case c.keyMode == models.LLMKeyClient && !snapshot.LLMValid:
		missing = failures.ConfigMissing("conversation."+action, "the OpenRouter API key has not been validated")
	}

	if missing != nil {
		c.lastErr = missing
		c.logger.WarnContext(ctx, "Configuration required", "action", action, "reason", failures.SummaryOf(missing))
	}

	return missing
}

// busyLocked reports whether a request or a selection fetch owns the panel.
func (c *Controller) busyLocked() bool {
	return c.busy || c.state == StateSelecting
}

func (c *Controller) beginLocked(ctx context.Context, state State) context.Context {
	reqCtx, cancel := context.WithCancel(ctx)

	c.busy = true
	c.cancel = cancel
	c.state = state
	c.lastErr = nil

	return reqCtx
}

func (c *Controller) finishLocked() {
	if c.cancel != nil {
		c.cancel()
	}

	c.cancel = nil
	c.busy = false

	if c.definition == nil {
		c.state = StateIdle
	} else {
		c.state = StateReady
	}
}

// abortLocked cancels any in-flight request or selection fetch and frees the
// panel for the new epoch.
func (c *Controller) abortLocked() {
	if c.cancel != nil {
		c.cancel()
	}

	if c.cancelSelect != nil {
		c.cancelSelect()
	}

	c.cancel = nil
	c.cancelSelect = nil
	c.busy = false
}

func (c *Controller) discardLocked(ctx context.Context, action, id string) {
	c.logger.InfoContext(ctx, "Discarding stale result",
		"action", action, "workflow_id", id, "current_workflow_id", c.selectedID)

	c.publish(ctx, events.ResultDiscarded{
		BaseEvent:         events.NewBaseEvent(events.ResultDiscardedEvent, c.panel, id),
		Action:            action,
		CurrentWorkflowID: c.selectedID,
	})
}

func (c *Controller) failLocked(ctx context.Context, action string, err error) error {
	c.lastErr = err

	c.logger.ErrorContext(ctx, "Request failed", "action", action, "workflow_id", c.selectedID, "error", err)

	c.publish(ctx, events.RequestFailed{
		BaseEvent: events.NewBaseEvent(events.RequestFailedEvent, c.panel, c.selectedID),
		Action:    action,
		Kind:      failures.KindOf(err),
		Message:   failures.SummaryOf(err),
		Details:   failures.DetailsOf(err),
	})

	return err
}

func (c *Controller) applyGenerateLocked(ctx context.Context, action string, result gateway.Result) error {
	if result.Kind == gateway.KindStructured {
		message := replyMessage(result)

		updated := result.ResponseType.UpdatesDocument() && result.SummaryUpdate != nil
		if !updated && message == "" {
			return malformed(action, "structured reply carries neither a document nor a message")
		}

		if updated {
			c.replaceDocumentLocked(ctx, *result.SummaryUpdate, events.SourceGeneration, action)
		}

		if message != "" {
			c.transcript.Append(models.AssistantMessage(message))
		}

		return nil
	}

	text, err := resultText(action, result)
	if err != nil {
		return err
	}

	c.replaceDocumentLocked(ctx, text, events.SourceGeneration, action)

	return nil
}

func (c *Controller) applyChatLocked(ctx context.Context, action, input string, result gateway.Result) error {
	var (
		reply    string
		replaced bool
	)

	if result.Kind == gateway.KindStructured {
		reply = replyMessage(result)

		if result.ResponseType.UpdatesDocument() && result.SummaryUpdate != nil {
			if reply == "" {
				reply = documentUpdatedMessage
			}

			c.replaceDocumentLocked(ctx, *result.SummaryUpdate, events.SourceChat, action)
			replaced = true
		}

		if reply == "" {
			return malformed(action, "structured reply carries no message")
		}
	} else {
		text, err := resultText(action, result)
		if err != nil {
			return err
		}

		reply = text

		if c.panel == models.PanelDocs {
			c.replaceDocumentLocked(ctx, text, events.SourceChat, action)
			reply = documentationUpdatedMessage
			replaced = true
		}
	}

	c.transcript.Commit(models.AssistantMessage(reply))

	c.publish(ctx, events.ChatExchanged{
		BaseEvent:        events.NewBaseEvent(events.ChatExchangedEvent, c.panel, c.selectedID),
		Input:            input,
		Reply:            reply,
		DocumentReplaced: replaced,
		TranscriptLength: c.transcript.Len(),
	})

	return nil
}

func (c *Controller) replaceDocumentLocked(ctx context.Context, text string, source events.DocumentSource, action string) {
	diff := docdiff.Compute(c.document, text)
	c.document = text

	c.publish(ctx, events.DocumentReplaced{
		BaseEvent: events.NewBaseEvent(events.DocumentReplacedEvent, c.panel, c.selectedID),
		Source:    source,
		Action:    action,
		Diff:      diff.Stats(),
		Length:    len(text),
	})
}

func (c *Controller) request(
	action, id, name string,
	options Options,
	snapshot credentials.Snapshot,
	panelContext map[string]any,
	chat *gateway.Chat,
) gateway.Request {
	model := options.Model
	if model == "" {
		model = snapshot.LLMModel
	}

	if model == "" {
		model = models.DefaultModel
	}

	creds := gateway.Credentials{
		N8nBaseURL: snapshot.N8nBaseURL,
		N8nAPIKey:  snapshot.N8nAPIKey,
	}

	if c.keyMode == models.LLMKeyClient {
		key := snapshot.LLMKey
		creds.LLMKey = &key
	}

	return gateway.Request{
		Action:       action,
		SourceTab:    c.panel,
		WorkflowID:   id,
		WorkflowName: name,
		Model:        model,
		Credentials:  creds,
		PanelContext: panelContext,
		Chat:         chat,
	}
}

// publish queues event under the current selection. Queued events go out in
// order once mu is released.
func (c *Controller) publish(_ context.Context, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	c.outbox = append(c.outbox, outgoing{key: c.selectedID, event: event})
}

// unlock releases mu and then delivers whatever publish queued meanwhile, so
// a slow broker never stalls readers.
func (c *Controller) unlock(ctx context.Context) {
	pending := len(c.outbox) > 0
	c.mu.Unlock()

	if pending {
		c.flush(ctx)
	}
}

func (c *Controller) flush(ctx context.Context) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	outbox := c.outbox
	c.outbox = nil
	c.mu.Unlock()

	for _, out := range outbox {
		err := c.publisher.Publish(ctx, out.key, out.event)
		if err != nil {
			c.logger.WarnContext(ctx, "Failed to publish event", "type", out.event.GetType(), "error", err)
		}
	}
}

func replyMessage(result gateway.Result) string {
	switch {
	case result.ChatMessage != nil && *result.ChatMessage != "":
		return *result.ChatMessage
	case result.SystemMessage != nil && *result.SystemMessage != "":
		return *result.SystemMessage
	default:
		return ""
	}
}

func resultText(action string, result gateway.Result) (string, error) {
	text, ok := result.Text()
	if !ok {
		return "", malformed(action, "unrecognized reply format")
	}

	if strings.TrimSpace(text) == "" {
		return "", malformed(action, "empty reply")
	}

	return text, nil
}

func malformed(action, message string) error {
	return failures.New(failures.KindMalformed, "conversation."+action, message)
}

package conversation_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowscribe/pkg/conversation"
	"github.com/dukex/flowscribe/pkg/credentials"
	"github.com/dukex/flowscribe/pkg/credentials/memory"
	"github.com/dukex/flowscribe/pkg/eventbus"
	"github.com/dukex/flowscribe/pkg/events"
	"github.com/dukex/flowscribe/pkg/failures"
	"github.com/dukex/flowscribe/pkg/gateway"
	"github.com/dukex/flowscribe/pkg/log"
	"github.com/dukex/flowscribe/pkg/mocks"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var invoiceSync = &models.WorkflowDefinition{
	ID:     "wf-1",
	Name:   "Invoice Sync",
	Active: true,
	Nodes: []models.Node{
		{Name: "Webhook", Type: "n8n-nodes-base.webhook"},
		{Name: "Create Invoice", Type: "n8n-nodes-base.httpRequest"},
	},
}

var leadRouter = &models.WorkflowDefinition{ID: "wf-2", Name: "Lead Router"}

type fakeDefinitions struct {
	mu          sync.Mutex
	definitions map[string]*models.WorkflowDefinition
	err         error
	history     *models.ExecutionHistorySummary
	fetches     int
	histories   int
	// gate, when set, holds every fetch until it is closed.
	gate    chan struct{}
	started chan struct{}
}

func newFakeDefinitions() *fakeDefinitions {
	return &fakeDefinitions{definitions: map[string]*models.WorkflowDefinition{
		invoiceSync.ID: invoiceSync,
		leadRouter.ID:  leadRouter,
	}}
}

func (f *fakeDefinitions) FetchDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	f.mu.Lock()
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if gate != nil {
		started <- struct{}{}

		select {
		case <-gate:
		case <-ctx.Done():
			return nil, failures.Canceled("catalog.FetchDefinition", ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches++

	if f.err != nil {
		return nil, f.err
	}

	definition, ok := f.definitions[id]
	if !ok {
		return nil, failures.New(failures.KindNotFound, "catalog.FetchDefinition", "no data returned")
	}

	return definition, nil
}

func (f *fakeDefinitions) FetchExecutionHistory(context.Context, string, int) *models.ExecutionHistorySummary {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.histories++

	return f.history
}

func (f *fakeDefinitions) hold() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 10)
}

func (f *fakeDefinitions) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.err = err
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []gateway.Request
	handler  func(ctx context.Context, req gateway.Request) (gateway.Result, error)
}

func replying(result gateway.Result, err error) *fakeGenerator {
	return &fakeGenerator{handler: func(context.Context, gateway.Request) (gateway.Result, error) {
		return result, err
	}}
}

func (f *fakeGenerator) Generate(ctx context.Context, req gateway.Request) (gateway.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handler := f.handler
	f.mu.Unlock()

	return handler(ctx, req)
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.requests)
}

func (f *fakeGenerator) last() gateway.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests[len(f.requests)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

type harness struct {
	controller  *conversation.Controller
	definitions *fakeDefinitions
	generator   *fakeGenerator
	store       *credentials.Store
	publisher   *recordingPublisher
}

type harnessOption func(*conversation.Config)

func withPanel(panel models.Panel) harnessOption {
	return func(c *conversation.Config) { c.Panel = panel }
}

func withKeyMode(mode models.LLMKeyMode) harnessOption {
	return func(c *conversation.Config) { c.KeyMode = mode }
}

func configuredStore(t *testing.T) *credentials.Store {
	t.Helper()

	ctx := context.Background()
	store := credentials.NewStore(memory.New(), log.Discard())

	require.NoError(t, store.Put(ctx, credentials.KeyN8nBaseURL, "https://n8n.example.com"))
	require.NoError(t, store.Put(ctx, credentials.KeyN8nAPIKey, "n8n-key"))
	require.NoError(t, store.PutFlag(ctx, credentials.KeyN8nValid, true))

	return store
}

func newHarness(t *testing.T, generator gateway.Generator, store *credentials.Store, opts ...harnessOption) *harness {
	t.Helper()

	config := conversation.Config{Panel: models.PanelExplain, KeyMode: models.LLMKeyOrchestrator}
	for _, opt := range opts {
		opt(&config)
	}

	h := &harness{
		definitions: newFakeDefinitions(),
		store:       store,
		publisher:   &recordingPublisher{},
	}

	if fake, ok := generator.(*fakeGenerator); ok {
		h.generator = fake
	}

	h.controller = conversation.New(config, h.definitions, generator, store, h.publisher, log.Discard())

	return h
}

func ptr(value string) *string {
	return &value
}

func TestController_InitialState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, replying(gateway.Content("x"), nil), configuredStore(t))

	assert.Equal(t, conversation.StateIdle, h.controller.State())
	assert.Empty(t, h.controller.Document())
	assert.Empty(t, h.controller.Transcript())

	id, _ := h.controller.Selection()
	assert.Empty(t, id)

	assert.ErrorIs(t, h.controller.Generate(context.Background()), conversation.ErrNoSelection)
	assert.ErrorIs(t, h.controller.SendChat(context.Background(), "hi"), conversation.ErrNoSelection)
	assert.Equal(t, 0, h.generator.calls())
}

func TestController_SelectLoadsDefinition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, replying(gateway.Content("x"), nil), configuredStore(t))

	require.NoError(t, h.controller.Select(context.Background(), "wf-1"))

	id, name := h.controller.Selection()
	assert.Equal(t, "wf-1", id)
	assert.Equal(t, "Invoice Sync", name)
	assert.Equal(t, conversation.StateReady, h.controller.State())
	assert.Equal(t, invoiceSync, h.controller.Definition())
	assert.Equal(t, []events.EventType{events.SelectionChangedEvent}, h.publisher.types())
}

func TestController_SelectFailureKeepsIDForRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, replying(gateway.Content("## Invoice Sync"), nil), configuredStore(t))
	ctx := context.Background()

	h.definitions.setErr(failures.Network("catalog.FetchDefinition", errors.New("connection refused")))

	err := h.controller.Select(ctx, "wf-1")
	require.Error(t, err)
	assert.True(t, failures.IsNetwork(err))

	id, _ := h.controller.Selection()
	assert.Equal(t, "wf-1", id)
	assert.Equal(t, conversation.StateIdle, h.controller.State())
	assert.Equal(t, err, h.controller.LastError())

	h.definitions.setErr(nil)

	require.NoError(t, h.controller.Generate(ctx))
	assert.Equal(t, "## Invoice Sync", h.controller.Document())
	assert.Equal(t, conversation.StateReady, h.controller.State())
}

func TestController_SelectClearsDocumentAndTranscript(t *testing.T) {
	t.Parallel()

	generator := replying(gateway.Result{
		Kind:         gateway.KindStructured,
		ResponseType: gateway.ResponseChatOnly,
		ChatMessage:  ptr("Sure."),
	}, nil)
	h := newHarness(t, generator, configuredStore(t))
	ctx := context.Background()

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.EditDocument(ctx, "notes"))
	require.NoError(t, h.controller.SendChat(ctx, "question"))
	require.Len(t, h.controller.Transcript(), 2)

	require.NoError(t, h.controller.Select(ctx, "wf-2"))

	assert.Empty(t, h.controller.Document())
	assert.Empty(t, h.controller.Transcript())
}

// select wf-1, generate in Explanation mode, endpoint replies with the legacy
// array encoding.
func TestController_EndToEndGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"output":"## Invoice Sync\n..."}]`)
	}))
	defer server.Close()

	h := newHarness(t, gateway.New(server.URL, log.Discard()), configuredStore(t))
	h.controller.SetOptions(conversation.Options{
		Audience: models.AudienceEngineer,
		Mode:     models.ModeExplanation,
	})

	ctx := context.Background()
	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.Generate(ctx))

	assert.Equal(t, "## Invoice Sync\n...", h.controller.Document())
	assert.Empty(t, h.controller.Transcript())
}

// chat-edit "shorten section 2" against a non-empty Document, endpoint replies
// with a structured summary_update.
func TestController_EndToEndChatEdit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"responseType":"summary_update","chatMessage":"Done.","summaryUpdate":"## Shortened\n..."}`)
	}))
	defer server.Close()

	h := newHarness(t, gateway.New(server.URL, log.Discard()), configuredStore(t))

	ctx := context.Background()
	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.EditDocument(ctx, "## Invoice Sync\nsection 1\nsection 2\n"))

	require.NoError(t, h.controller.SendChat(ctx, "shorten section 2"))

	assert.Equal(t, []models.ConversationMessage{
		{Role: models.RoleUser, Content: "shorten section 2"},
		{Role: models.RoleAssistant, Content: "Done."},
	}, h.controller.Transcript())
	assert.Equal(t, "## Shortened\n...", h.controller.Document())
}

func TestController_GenerateWithoutCredentialsNeverCallsGateway(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	unvalidated := credentials.NewStore(memory.New(), log.Discard())
	require.NoError(t, unvalidated.Put(ctx, credentials.KeyN8nBaseURL, "https://n8n.example.com"))
	require.NoError(t, unvalidated.Put(ctx, credentials.KeyN8nAPIKey, "n8n-key"))

	tests := []struct {
		name  string
		store *credentials.Store
	}{
		{"nothing stored", credentials.NewStore(memory.New(), log.Discard())},
		{"stored but not validated", unvalidated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, replying(gateway.Content("x"), nil), tt.store)

			require.NoError(t, h.controller.Select(ctx, "wf-1"))

			err := h.controller.Generate(ctx)
			require.Error(t, err)
			assert.True(t, failures.IsConfigMissing(err))
			assert.Equal(t, 0, h.generator.calls())
			assert.False(t, h.controller.Busy())
		})
	}
}

func TestController_ClientKeyModeRequiresLLMKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := configuredStore(t)
	h := newHarness(t, replying(gateway.Content("x"), nil), store, withKeyMode(models.LLMKeyClient))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))

	err := h.controller.Generate(ctx)
	require.Error(t, err)
	assert.True(t, failures.IsConfigMissing(err))
	assert.Equal(t, 0, h.generator.calls())

	require.NoError(t, store.Put(ctx, credentials.KeyOpenRouterKey, "sk-or-key"))
	require.NoError(t, store.PutFlag(ctx, credentials.KeyOpenRouterValid, true))

	require.NoError(t, h.controller.Generate(ctx))

	req := h.generator.last()
	require.NotNil(t, req.Credentials.LLMKey)
	assert.Equal(t, "sk-or-key", *req.Credentials.LLMKey)
}

func TestController_GenerateRequest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := configuredStore(t)
	require.NoError(t, store.Put(ctx, credentials.KeyOpenRouterModel, "openai/gpt-5"))

	h := newHarness(t, replying(gateway.Content("## Invoice Sync"), nil), store)
	h.definitions.history = &models.ExecutionHistorySummary{Total: 3, Successful: 2, Failed: 1}
	h.controller.SetOptions(conversation.Options{
		Audience: models.AudienceManager,
		Mode:     models.ModeExecutionsSummary,
	})

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.Generate(ctx))

	req := h.generator.last()
	assert.Equal(t, conversation.ActionExplainWorkflow, req.Action)
	assert.Equal(t, models.PanelExplain, req.SourceTab)
	assert.Equal(t, "wf-1", req.WorkflowID)
	assert.Equal(t, "Invoice Sync", req.WorkflowName)
	assert.Equal(t, "openai/gpt-5", req.Model)
	assert.Nil(t, req.Credentials.LLMKey)
	assert.Equal(t, "https://n8n.example.com", req.Credentials.N8nBaseURL)
	assert.Equal(t, "n8n-key", req.Credentials.N8nAPIKey)
	assert.Nil(t, req.Chat)

	assert.Equal(t, "manager", req.PanelContext["audience"])
	assert.Equal(t, "executions_summary", req.PanelContext["mode"])
	assert.Nil(t, req.PanelContext["existingExplanation"])
	assert.Equal(t, h.definitions.history, req.PanelContext["executionsSummary"])
	assert.Equal(t, 2, req.PanelContext["nodeCount"])
	assert.Equal(t, true, req.PanelContext["active"])

	// Definitions are fetched fresh before every generation.
	assert.Equal(t, 2, h.definitions.fetches)
	assert.Equal(t, 1, h.definitions.histories)

	require.NoError(t, h.controller.Generate(ctx))
	assert.Equal(t, "## Invoice Sync", h.generator.last().PanelContext["existingExplanation"])
}

func TestController_ExecutionHistoryOnlyWhenNeeded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, replying(gateway.Content("text"), nil), configuredStore(t))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.Generate(ctx))

	assert.Equal(t, 0, h.definitions.histories)
	assert.NotContains(t, h.generator.last().PanelContext, "executionsSummary")
}

func TestController_MissingHistoryDoesNotAbortGeneration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, replying(gateway.Content("text"), nil), configuredStore(t))
	h.controller.SetOptions(conversation.Options{Audience: models.AudienceEngineer, Mode: models.ModeExecutionsSummary})

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.Generate(ctx))

	assert.Equal(t, "text", h.controller.Document())
	assert.NotContains(t, h.generator.last().PanelContext, "executionsSummary")
}

func TestController_GenerateFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result gateway.Result
		err    error
		check  func(error) bool
	}{
		{"upstream 500", gateway.Result{}, failures.Upstream("gateway.Generate", 500, "boom"), failures.IsUpstream},
		{"timeout", gateway.Result{}, failures.Timeout("gateway.Generate", context.DeadlineExceeded), failures.IsTimeout},
		{"empty content", gateway.Content("  "), nil, failures.IsMalformed},
		{"raw without text", gateway.Result{Kind: gateway.KindRaw, Raw: map[string]any{"foo": 1}}, nil, failures.IsMalformed},
		{"structured without payload", gateway.Result{Kind: gateway.KindStructured, ResponseType: gateway.ResponseSummaryUpdate}, nil, failures.IsMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			h := newHarness(t, replying(tt.result, tt.err), configuredStore(t))

			require.NoError(t, h.controller.Select(ctx, "wf-1"))
			require.NoError(t, h.controller.EditDocument(ctx, "## Before\nkept as is"))
			before := h.controller.Document()
			transcript := h.controller.Transcript()

			err := h.controller.Generate(ctx)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)

			assert.Equal(t, before, h.controller.Document())
			assert.Equal(t, transcript, h.controller.Transcript())
			assert.Equal(t, err, h.controller.LastError())
			assert.Equal(t, conversation.StateReady, h.controller.State())
			assert.Contains(t, h.publisher.types(), events.RequestFailedEvent)
		})
	}
}

func TestController_GenerateFetchFailureLeavesDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, replying(gateway.Content("new"), nil), configuredStore(t))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.EditDocument(ctx, "old"))

	h.definitions.setErr(failures.New(failures.KindNotFound, "catalog.FetchDefinition", "no data returned"))

	err := h.controller.Generate(ctx)
	require.Error(t, err)
	assert.True(t, failures.IsNotFound(err))
	assert.Equal(t, "old", h.controller.Document())
	assert.Equal(t, 0, h.generator.calls())
}

func TestController_GenerateStructuredReply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, replying(gateway.Result{
		Kind:          gateway.KindStructured,
		ResponseType:  gateway.ResponseSummaryUpdate,
		SummaryUpdate: ptr("## Structured"),
	}, nil), configuredStore(t))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.Generate(ctx))

	assert.Equal(t, "## Structured", h.controller.Document())
	assert.Empty(t, h.controller.Transcript())
}

func TestController_ChatFailureRollsBackTranscript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result gateway.Result
		err    error
	}{
		{"network error", gateway.Result{}, failures.Network("gateway.Generate", errors.New("connection reset"))},
		{"upstream error", gateway.Result{}, failures.Upstream("gateway.Generate", 502, "bad gateway")},
		{"empty reply", gateway.Content(""), nil},
		{"chat_only without message", gateway.Result{Kind: gateway.KindStructured, ResponseType: gateway.ResponseChatOnly}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			generator := replying(gateway.Result{
				Kind:         gateway.KindStructured,
				ResponseType: gateway.ResponseChatOnly,
				ChatMessage:  ptr("first answer"),
			}, nil)
			h := newHarness(t, generator, configuredStore(t))

			require.NoError(t, h.controller.Select(ctx, "wf-1"))
			require.NoError(t, h.controller.EditDocument(ctx, "## Doc"))
			require.NoError(t, h.controller.SendChat(ctx, "first question"))

			before := h.controller.Transcript()

			generator.mu.Lock()
			generator.handler = func(context.Context, gateway.Request) (gateway.Result, error) {
				return tt.result, tt.err
			}
			generator.mu.Unlock()

			require.Error(t, h.controller.SendChat(ctx, "second question"))

			assert.Equal(t, before, h.controller.Transcript())
			assert.Equal(t, "## Doc", h.controller.Document())
			assert.False(t, h.controller.Busy())
		})
	}
}

func TestController_ChatOnlyLeavesDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, replying(gateway.Result{
		Kind:          gateway.KindStructured,
		ResponseType:  gateway.ResponseChatOnly,
		ChatMessage:   ptr("It runs hourly."),
		SummaryUpdate: ptr("ignored"),
	}, nil), configuredStore(t))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.EditDocument(ctx, "## Doc"))

	require.NoError(t, h.controller.SendChat(ctx, "how often does it run?"))

	transcript := h.controller.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, models.AssistantMessage("It runs hourly."), transcript[1])
	assert.Equal(t, "## Doc", h.controller.Document())
}

func TestController_ChatRequest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	generator := replying(gateway.Content("answer"), nil)
	h := newHarness(t, generator, configuredStore(t))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.EditDocument(ctx, "## Doc"))
	require.NoError(t, h.controller.SendChat(ctx, "first"))
	require.NoError(t, h.controller.SendChat(ctx, "second"))

	req := generator.last()
	assert.Equal(t, conversation.ActionExplainChat, req.Action)
	require.NotNil(t, req.Chat)
	require.NotNil(t, req.Chat.Input)
	assert.Equal(t, "second", *req.Chat.Input)
	assert.Equal(t, []models.ConversationMessage{
		models.UserMessage("first"),
		models.AssistantMessage("answer"),
	}, req.Chat.History)
	assert.Equal(t, map[string]any{
		"currentExplanation":       "## Doc",
		"currentWeakPoints":        nil,
		"currentExecutionsSummary": nil,
	}, req.PanelContext)

	// Plain replies in the explain panel only answer.
	assert.Equal(t, "## Doc", h.controller.Document())
	assert.Len(t, h.controller.Transcript(), 4)
}

func TestController_DocsPanel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	generator := replying(gateway.Content("# Runbook"), nil)
	h := newHarness(t, generator, configuredStore(t), withPanel(models.PanelDocs))
	h.controller.SetOptions(conversation.Options{DocType: models.DocTypeOpsRunbook})

	require.NoError(t, h.controller.Select(ctx, "wf-1"))

	assert.ErrorIs(t, h.controller.SendChat(ctx, "add a section"), conversation.ErrEmptyDocument)
	assert.Empty(t, h.controller.Transcript())

	require.NoError(t, h.controller.Generate(ctx))
	assert.Equal(t, "# Runbook", h.controller.Document())

	req := generator.last()
	assert.Equal(t, conversation.ActionGenerateDocumentation, req.Action)
	assert.Equal(t, models.PanelDocs, req.SourceTab)
	assert.Equal(t, "ops_runbook", req.PanelContext["docType"])
	assert.Nil(t, req.PanelContext["existingDoc"])

	generator.mu.Lock()
	generator.handler = func(context.Context, gateway.Request) (gateway.Result, error) {
		return gateway.Content("# Runbook\n## Rollback"), nil
	}
	generator.mu.Unlock()

	require.NoError(t, h.controller.SendChat(ctx, "add a rollback section"))

	req = generator.last()
	assert.Equal(t, conversation.ActionDocsChat, req.Action)
	assert.Equal(t, map[string]any{"docType": "ops_runbook", "currentDoc": "# Runbook"}, req.PanelContext)

	assert.Equal(t, "# Runbook\n## Rollback", h.controller.Document())
	assert.Equal(t, []models.ConversationMessage{
		models.UserMessage("add a rollback section"),
		models.AssistantMessage("Documentation updated successfully."),
	}, h.controller.Transcript())
}

func TestController_DocUpdateFallsBackToDefaultMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, replying(gateway.Result{
		Kind:          gateway.KindStructured,
		ResponseType:  gateway.ResponseDocUpdate,
		SummaryUpdate: ptr("# New"),
	}, nil), configuredStore(t), withPanel(models.PanelDocs))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.EditDocument(ctx, "# Old"))
	require.NoError(t, h.controller.SendChat(ctx, "rewrite"))

	assert.Equal(t, "# New", h.controller.Document())
	assert.Equal(t, models.AssistantMessage("Document updated."), h.controller.Transcript()[1])
}

// blockingGenerator signals when a call starts and replies only once released,
// regardless of cancellation.
type blockingGenerator struct {
	started chan gateway.Request
	release chan gateway.Result
}

func newBlockingGenerator() *blockingGenerator {
	return &blockingGenerator{
		started: make(chan gateway.Request, 4),
		release: make(chan gateway.Result, 4),
	}
}

func (b *blockingGenerator) Generate(_ context.Context, req gateway.Request) (gateway.Result, error) {
	b.started <- req

	return <-b.release, nil
}

func TestController_StaleResultIsDiscarded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	generator := newBlockingGenerator()
	h := newHarness(t, generator, configuredStore(t))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))

	done := make(chan error, 1)

	go func() {
		done <- h.controller.Generate(ctx)
	}()

	req := <-generator.started
	assert.Equal(t, "wf-1", req.WorkflowID)
	assert.Equal(t, conversation.StateGenerating, h.controller.State())

	require.NoError(t, h.controller.Select(ctx, "wf-2"))

	generator.release <- gateway.Content("## Invoice Sync (late)")

	select {
	case err := <-done:
		assert.ErrorIs(t, err, conversation.ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("generate did not return")
	}

	assert.Empty(t, h.controller.Document())

	id, name := h.controller.Selection()
	assert.Equal(t, "wf-2", id)
	assert.Equal(t, "Lead Router", name)
	assert.Equal(t, conversation.StateReady, h.controller.State())
	assert.False(t, h.controller.Busy())
	assert.Contains(t, h.publisher.types(), events.ResultDiscardedEvent)
}

func TestController_StaleChatDoesNotTouchNewTranscript(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	generator := newBlockingGenerator()
	h := newHarness(t, generator, configuredStore(t))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))

	done := make(chan error, 1)

	go func() {
		done <- h.controller.SendChat(ctx, "question about wf-1")
	}()

	<-generator.started
	require.Len(t, h.controller.Transcript(), 1)

	require.NoError(t, h.controller.Select(ctx, "wf-2"))
	assert.Empty(t, h.controller.Transcript())

	generator.release <- gateway.Content("late answer")
	assert.ErrorIs(t, <-done, conversation.ErrStale)

	assert.Empty(t, h.controller.Transcript())
	assert.Empty(t, h.controller.Document())
}

func TestController_OneRequestInFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	generator := newBlockingGenerator()
	h := newHarness(t, generator, configuredStore(t))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))

	done := make(chan error, 1)

	go func() {
		done <- h.controller.Generate(ctx)
	}()

	<-generator.started
	assert.True(t, h.controller.Busy())

	assert.ErrorIs(t, h.controller.Generate(ctx), conversation.ErrBusy)
	assert.ErrorIs(t, h.controller.SendChat(ctx, "hello"), conversation.ErrBusy)
	assert.ErrorIs(t, h.controller.EditDocument(ctx, "typed"), conversation.ErrBusy)
	assert.Empty(t, h.controller.Transcript())

	generator.release <- gateway.Content("## Done")
	require.NoError(t, <-done)

	assert.Equal(t, "## Done", h.controller.Document())
	assert.False(t, h.controller.Busy())
}

func TestController_Cancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := make(chan struct{})
	generator := &fakeGenerator{handler: func(ctx context.Context, _ gateway.Request) (gateway.Result, error) {
		close(started)
		<-ctx.Done()

		return gateway.Result{}, failures.Canceled("gateway.Generate", ctx.Err())
	}}
	h := newHarness(t, generator, configuredStore(t))

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.EditDocument(ctx, "## Kept"))

	done := make(chan error, 1)

	go func() {
		done <- h.controller.Generate(ctx)
	}()

	<-started
	h.controller.Cancel()

	err := <-done
	require.Error(t, err)
	assert.True(t, failures.IsCanceled(err))
	assert.Equal(t, "## Kept", h.controller.Document())
	assert.False(t, h.controller.Busy())
}

func TestController_EditDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, replying(gateway.Content("x"), nil), configuredStore(t))

	assert.ErrorIs(t, h.controller.EditDocument(ctx, "text"), conversation.ErrNoSelection)

	require.NoError(t, h.controller.Select(ctx, "wf-1"))
	require.NoError(t, h.controller.EditDocument(ctx, "line one\nline two\n"))

	assert.Equal(t, "line one\nline two\n", h.controller.Document())

	h.publisher.mu.Lock()
	last := h.publisher.events[len(h.publisher.events)-1]
	h.publisher.mu.Unlock()

	replaced, ok := last.(events.DocumentReplaced)
	require.True(t, ok)
	assert.Equal(t, events.SourceUserEdit, replaced.Source)
	assert.Equal(t, 2, replaced.Diff.Added)
}

func TestController_EmptyChatInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, replying(gateway.Content("x"), nil), configuredStore(t))

	assert.ErrorIs(t, h.controller.SendChat(context.Background(), "   "), conversation.ErrEmptyInput)
	assert.Equal(t, 0, h.generator.calls())
}

func TestController_PublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	generator := &mocks.MockGenerator{}
	generator.On("Generate", mock.Anything, mock.MatchedBy(func(req gateway.Request) bool {
		return req.Action == conversation.ActionExplainWorkflow && req.WorkflowID == "wf-1"
	})).Return(gateway.Content("## Invoice Sync"), nil).Once()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "wf-1", mock.Anything).Return(errors.New("broker down"))

	controller := conversation.New(
		conversation.Config{Panel: models.PanelExplain},
		newFakeDefinitions(), generator, configuredStore(t), bus, log.Discard(),
	)

	require.NoError(t, controller.Select(ctx, "wf-1"))
	require.NoError(t, controller.Generate(ctx))

	assert.Equal(t, "## Invoice Sync", controller.Document())
	generator.AssertExpectations(t)
	bus.AssertCalled(t, "Publish", mock.Anything, "wf-1", mock.AnythingOfType("events.DocumentReplaced"))
}

func TestController_SelectingRejectsRequests(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, replying(gateway.Content("## Invoice Sync"), nil), configuredStore(t))

	require.NoError(t, h.controller.Select(ctx, "wf-2"))
	h.definitions.hold()

	done := make(chan error, 1)

	go func() {
		done <- h.controller.Select(ctx, "wf-1")
	}()

	<-h.definitions.started
	assert.Equal(t, conversation.StateSelecting, h.controller.State())

	assert.ErrorIs(t, h.controller.Generate(ctx), conversation.ErrBusy)
	assert.ErrorIs(t, h.controller.SendChat(ctx, "hello"), conversation.ErrBusy)
	assert.ErrorIs(t, h.controller.EditDocument(ctx, "typed"), conversation.ErrBusy)

	close(h.definitions.gate)
	require.NoError(t, <-done)

	assert.Equal(t, conversation.StateReady, h.controller.State())
	assert.Equal(t, 0, h.generator.calls())
	assert.Empty(t, h.controller.Document())
}

// readingPublisher reads controller state from inside Publish, as a
// synchronous broker hook would.
type readingPublisher struct {
	controller *conversation.Controller
	documents  chan string
}

func (p *readingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	if event.GetType() == events.DocumentReplacedEvent {
		p.documents <- p.controller.Document()
	}

	return nil
}

func TestController_PublishesOutsideTheLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	publisher := &readingPublisher{documents: make(chan string, 1)}
	publisher.controller = conversation.New(
		conversation.Config{Panel: models.PanelExplain},
		newFakeDefinitions(), replying(gateway.Content("## Invoice Sync"), nil), configuredStore(t), publisher, log.Discard(),
	)

	done := make(chan error, 1)

	go func() {
		if err := publisher.controller.Select(ctx, "wf-1"); err != nil {
			done <- err

			return
		}

		done <- publisher.controller.Generate(ctx)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("publishing while holding the controller lock")
	}

	assert.Equal(t, "## Invoice Sync", <-publisher.documents)
}

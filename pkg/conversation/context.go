package conversation

import (
	"github.com/dukex/flowscribe/pkg/models"
)

// Action names understood by the orchestration endpoint.
const (
	ActionExplainWorkflow       = "explain_workflow"
	ActionExplainChat           = "explain_chat"
	ActionGenerateDocumentation = "generate_documentation"
	ActionDocsChat              = "docs_chat"
)

// Options are the per-panel generation parameters.
type Options struct {
	Audience models.Audience
	Mode     models.Mode
	DocType  models.DocType
	Model    string
}

// DefaultOptions matches what a fresh panel shows.
func DefaultOptions() Options {
	return Options{
		Audience: models.AudienceEngineer,
		Mode:     models.ModeExplanation,
		DocType:  models.DocTypeBasicTech,
	}
}

func generateAction(panel models.Panel) string {
	if panel == models.PanelDocs {
		return ActionGenerateDocumentation
	}

	return ActionExplainWorkflow
}

func chatAction(panel models.Panel) string {
	if panel == models.PanelDocs {
		return ActionDocsChat
	}

	return ActionExplainChat
}

// generateContext builds the panel context of a generate request.
func generateContext(
	panel models.Panel,
	options Options,
	document string,
	definition *models.WorkflowDefinition,
	history *models.ExecutionHistorySummary,
) map[string]any {
	panelContext := map[string]any{}

	switch panel {
	case models.PanelDocs:
		panelContext["docType"] = options.DocType.Wire()
		panelContext["existingDoc"] = orNil(document)
	default:
		panelContext["audience"] = options.Audience.Wire()
		panelContext["mode"] = options.Mode.Wire()
		panelContext["existingExplanation"] = orNil(document)

		if options.Mode.NeedsExecutions() && history != nil {
			panelContext["executionsSummary"] = history
		}
	}

	if definition != nil {
		panelContext["nodeCount"] = len(definition.Nodes)
		panelContext["active"] = definition.Active
	}

	return panelContext
}

// chatContext builds the panel context of a chat-edit request.
func chatContext(panel models.Panel, options Options, document string) map[string]any {
	if panel == models.PanelDocs {
		return map[string]any{
			"docType":    options.DocType.Wire(),
			"currentDoc": document,
		}
	}

	return map[string]any{
		"currentExplanation":       orNil(document),
		"currentWeakPoints":        nil,
		"currentExecutionsSummary": nil,
	}
}

func orNil(value string) any {
	if value == "" {
		return nil
	}

	return value
}

package models

import (
	"fmt"
	"strings"
)

// Panel is the UI surface a request originates from. Its value is sent as
// the sourceTab field of every generation request.
type Panel string

const (
	PanelExplain Panel = "explain"
	PanelDocs    Panel = "docs"
)

func ParsePanel(value string) (Panel, error) {
	switch Panel(strings.ToLower(strings.TrimSpace(value))) {
	case PanelExplain:
		return PanelExplain, nil
	case PanelDocs:
		return PanelDocs, nil
	default:
		return "", fmt.Errorf("unknown panel %q", value)
	}
}

// Audience selects the register of an explanation.
type Audience string

const (
	AudienceEngineer Audience = "Engineer"
	AudienceManager  Audience = "Manager"
	AudienceNewbie   Audience = "Newbie"
)

var Audiences = []Audience{AudienceEngineer, AudienceManager, AudienceNewbie}

// Wire is the representation sent in panelContext.
func (a Audience) Wire() string {
	return strings.ToLower(string(a))
}

func ParseAudience(value string) (Audience, error) {
	for _, audience := range Audiences {
		if strings.EqualFold(string(audience), strings.TrimSpace(value)) {
			return audience, nil
		}
	}

	return "", fmt.Errorf("unknown audience %q", value)
}

// Mode selects the kind of analysis requested from the explain panel.
type Mode string

const (
	ModeExplanation       Mode = "Explanation"
	ModeWeakPoints        Mode = "Weak Points"
	ModeExecutionsSummary Mode = "Executions Summary"
	ModeQAOnly            Mode = "Q&A Only"
)

var Modes = []Mode{ModeExplanation, ModeWeakPoints, ModeExecutionsSummary, ModeQAOnly}

// Wire lower-cases the mode and replaces spaces with underscores.
func (m Mode) Wire() string {
	return strings.ReplaceAll(strings.ToLower(string(m)), " ", "_")
}

// NeedsExecutions reports whether the mode uses execution history.
func (m Mode) NeedsExecutions() bool {
	return m == ModeExecutionsSummary
}

// ParseMode accepts either the display name or the wire form.
func ParseMode(value string) (Mode, error) {
	value = strings.TrimSpace(value)
	for _, mode := range Modes {
		if strings.EqualFold(string(mode), value) || mode.Wire() == strings.ToLower(value) {
			return mode, nil
		}
	}

	return "", fmt.Errorf("unknown mode %q", value)
}

// DocType selects the documentation template of the docs panel.
type DocType string

const (
	DocTypeBasicTech    DocType = "Basic Tech Doc"
	DocTypeExtendedTech DocType = "Extended Tech Doc"
	DocTypeOpsRunbook   DocType = "Ops Runbook"
	DocTypeQAChecklist  DocType = "QA Checklist"
)

var DocTypes = []DocType{DocTypeBasicTech, DocTypeExtendedTech, DocTypeOpsRunbook, DocTypeQAChecklist}

var docTypeWire = map[DocType]string{
	DocTypeBasicTech:    "basic_tech_doc",
	DocTypeExtendedTech: "extended_tech_doc",
	DocTypeOpsRunbook:   "ops_runbook",
	DocTypeQAChecklist:  "qa_checklist",
}

func (d DocType) Wire() string {
	return docTypeWire[d]
}

// ParseDocType accepts either the display name or the wire form.
func ParseDocType(value string) (DocType, error) {
	value = strings.TrimSpace(value)
	for _, docType := range DocTypes {
		if strings.EqualFold(string(docType), value) || docType.Wire() == strings.ToLower(value) {
			return docType, nil
		}
	}

	return "", fmt.Errorf("unknown documentation type %q", value)
}

// Package models defines the domain models shared by the flowscribe client,
// the intermediary service and the CLI.
package models

// Tag is an n8n workflow tag. The intermediary uses tags to decide which
// definitions are eligible for explanation.
type Tag struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// WorkflowSummary is one entry of the catalog list.
type WorkflowSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// WorkflowDefinition is the full structure of a remote workflow. It is fetched
// fresh before each generation and never mutated locally.
type WorkflowDefinition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Active      bool           `json:"active"`
	Nodes       []Node         `json:"nodes"`
	Connections map[string]any `json:"connections"`
	Settings    map[string]any `json:"settings"`
	Tags        []Tag          `json:"tags,omitempty"`
}

// Summary returns the catalog view of the definition.
func (d *WorkflowDefinition) Summary() WorkflowSummary {
	return WorkflowSummary{ID: d.ID, Name: d.Name, Active: d.Active}
}

// Node is a single step of a workflow definition.
type Node struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	TypeVersion float64        `json:"typeVersion,omitempty"`
	Position    []float64      `json:"position,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Disabled    bool           `json:"disabled,omitempty"`
}

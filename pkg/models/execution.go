package models

import "time"

// ExecutionStatus mirrors the n8n execution status values.
type ExecutionStatus string

const (
	ExecutionStatusSuccess  ExecutionStatus = "success"
	ExecutionStatusError    ExecutionStatus = "error"
	ExecutionStatusCrashed  ExecutionStatus = "crashed"
	ExecutionStatusCanceled ExecutionStatus = "canceled"
	ExecutionStatusRunning  ExecutionStatus = "running"
	ExecutionStatusWaiting  ExecutionStatus = "waiting"
)

// Execution is a raw execution record as returned by the automation server.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflowId,omitempty"`
	Status     ExecutionStatus `json:"status,omitempty"`
	Finished   bool            `json:"finished"`
	Mode       string          `json:"mode,omitempty"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	StoppedAt  *time.Time      `json:"stoppedAt,omitempty"`
}

// ExecutionHistorySummary aggregates recent executions of one workflow.
// Durations are expressed in milliseconds.
type ExecutionHistorySummary struct {
	Total            int    `json:"total"`
	Successful       int    `json:"successful"`
	Failed           int    `json:"failed"`
	AvgDuration      int64  `json:"avgDuration"`
	LongestDuration  int64  `json:"longestDuration"`
	ShortestDuration int64  `json:"shortestDuration"`
	TimeRange        string `json:"timeRange"`
}

package catalog

import (
	"time"

	"github.com/dukex/flowscribe/pkg/models"
)

const timeRangeLayout = "2006-01-02"

// Summarize aggregates raw execution records. Durations cover only records
// with both start and stop times; the time range spans the start dates.
func Summarize(executions []models.Execution) *models.ExecutionHistorySummary {
	summary := &models.ExecutionHistorySummary{Total: len(executions)}

	var (
		total       int64
		timed       int64
		first, last time.Time
	)

	for _, execution := range executions {
		switch execution.Status {
		case models.ExecutionStatusSuccess:
			summary.Successful++
		case models.ExecutionStatusError, models.ExecutionStatusCrashed:
			summary.Failed++
		}

		if execution.StartedAt == nil {
			continue
		}

		started := *execution.StartedAt
		if first.IsZero() || started.Before(first) {
			first = started
		}

		if last.IsZero() || started.After(last) {
			last = started
		}

		if execution.StoppedAt == nil {
			continue
		}

		duration := execution.StoppedAt.Sub(started).Milliseconds()
		if duration < 0 {
			continue
		}

		if timed == 0 || duration > summary.LongestDuration {
			summary.LongestDuration = duration
		}

		if timed == 0 || duration < summary.ShortestDuration {
			summary.ShortestDuration = duration
		}

		total += duration
		timed++
	}

	if timed > 0 {
		summary.AvgDuration = total / timed
	}

	if !first.IsZero() {
		summary.TimeRange = first.UTC().Format(timeRangeLayout) + " .. " + last.UTC().Format(timeRangeLayout)
	}

	return summary
}

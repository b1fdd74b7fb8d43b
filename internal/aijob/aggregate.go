// Package aijob implements the deep-search / AI job orchestrator (C6): the
// AiJob/AiSubTask DAG, parent aggregation, static routing table, and
// retry policy.
package aijob

import "github.com/newsintel/searchcore/internal/storage"

// AggregateStatus computes an AiJob's overall status from the current
// multiset of its sub-tasks' statuses, per spec.md §3's parent
// aggregation rule. Called after every sub-task transition.
func AggregateStatus(subStatuses []storage.AiSubTaskStatus) storage.AiJobStatus {
	if len(subStatuses) == 0 {
		return storage.AiJobPending
	}

	var (
		completed     int
		otherTerminal int
		pending       int
	)

	for _, s := range subStatuses {
		switch {
		case s == storage.AiSubTaskCompleted:
			completed++
		case s.IsTerminal():
			otherTerminal++
		case s == storage.AiSubTaskPending:
			pending++
		}
	}

	total := len(subStatuses)
	allTerminal := completed+otherTerminal == total

	switch {
	case allTerminal && otherTerminal == 0:
		return storage.AiJobCompleted
	case allTerminal && completed == 0:
		return storage.AiJobFailed
	case allTerminal:
		return storage.AiJobPartialSuccess
	case pending == total:
		return storage.AiJobPending
	default:
		return storage.AiJobInProgress
	}
}

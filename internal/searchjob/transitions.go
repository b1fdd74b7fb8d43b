// Package searchjob implements the search job manager (C5): the state
// machine, persistence, and Journal ownership for a /search/jobs run.
package searchjob

import (
	"errors"
	"fmt"

	"github.com/newsintel/searchcore/internal/storage"
)

// Sentinel errors for state transition validation, mirroring the
// terminal-immutability / no-backward-transition checks this domain's
// event-lifecycle state machine uses.
var (
	ErrInvalidTransition      = errors.New("invalid search job state transition")
	ErrTerminalStateImmutable = errors.New("search job is in a terminal state")
)

// validTransitions lists every allowed (from, to) pair per spec.md §4.5.
// CANCELLED and TIMEOUT are reachable from any non-terminal status, so
// they're added to every non-terminal source's set below rather than
// listed per-row.
var validTransitions = map[storage.SearchJobStatus]map[storage.SearchJobStatus]bool{
	storage.SearchJobPending: {
		storage.SearchJobRunning: true,
	},
	storage.SearchJobRunning: {
		storage.SearchJobCompleted: true,
		storage.SearchJobFailed:    true,
	},
}

func init() {
	for from, tos := range validTransitions {
		if from.IsTerminal() {
			continue
		}

		tos[storage.SearchJobCancelled] = true
		tos[storage.SearchJobTimeout] = true
	}
}

// ValidateTransition checks whether a SearchJob may move from "from" to
// "to". Terminal states are absorbing: they can only "transition" to
// themselves, and even that is rejected here since the manager's CAS
// update already behaves idempotently via ErrVersionConflict, not via a
// repeated identical transition.
func ValidateTransition(from, to storage.SearchJobStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalStateImmutable, from, to)
	}

	if validTransitions[from][to] {
		return nil
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

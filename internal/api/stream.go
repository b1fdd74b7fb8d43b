package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/newsintel/searchcore/internal/eventbus"
)

// heartbeatInterval is how often a comment line is written to keep
// intermediate proxies from timing out an idle SSE connection.
const heartbeatInterval = 15 * time.Second

// streamJournal implements the SSE contract shared by
// GET /search/jobs/{jobId}/stream and GET /deep/jobs/{jobId}/stream:
// replay from ?lastEventId=N, then live events until the Journal goes
// terminal or the client disconnects.
func (s *Server) streamJournal(w http.ResponseWriter, r *http.Request, jobID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErrorResponse(w, r, s.logger, InternalServerError("streaming unsupported"))

		return
	}

	lastSeq := parseLastEventID(r)

	events, unsubscribe, err := s.bus.Subscribe(jobID, lastSeq)
	if err != nil {
		if errors.Is(err, eventbus.ErrJournalNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("job not found"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to open stream"))

		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSEComment(w, "connected")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}

			if err := writeSSEEvent(w, ev); err != nil {
				s.logger.Error("write sse event failed", slog.String("jobId", jobID), slog.String("error", err.Error()))

				return
			}

			flusher.Flush()

		case <-heartbeat.C:
			writeSSEComment(w, "heartbeat")
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev eventbus.Event) error {
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\n", ev.Seq, ev.EventType); err != nil {
		return err
	}

	data := ev.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	_, err := fmt.Fprintf(w, "data: %s\n\n", data)

	return err
}

func writeSSEComment(w http.ResponseWriter, comment string) {
	_, _ = fmt.Fprintf(w, ": %s\n\n", comment)
}

package server

import (
	"fmt"
	"net/http"
	"time"
)

// handleJobLogs handles GET /build/{id}/logs and GET /test/{id}/logs. It
// streams log lines as server-sent events: one data event per line, each line
// delivered exactly once, and a final "complete" event carrying the terminal
// status. The handler returns when the job finishes, the record disappears, or
// the client goes away.
func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Reject unknown jobs before committing to a streaming response.
	if _, err := s.jobs.Status(id); err != nil {
		s.writeDriverError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	cursor := 0
	for {
		snap, err := s.jobs.Status(id)
		if err != nil {
			// Record evicted mid-stream; nothing more will arrive.
			return
		}

		for ; cursor < len(snap.Logs); cursor++ {
			fmt.Fprintf(w, "data: %s\n\n", snap.Logs[cursor])
		}
		flusher.Flush()

		if snap.State.Terminal() {
			fmt.Fprintf(w, "event: complete\ndata: %s\n\n", snap.State)
			flusher.Flush()
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

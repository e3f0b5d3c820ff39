package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/kidz-gpt/internal/pipeline"
)

// handleExplainerStream pushes the poll payload as server-sent events until
// the explainer reaches a terminal status or the client goes away.
func (s *Server) handleExplainerStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID := r.URL.Query().Get("job_id")
	first, err := s.pipeline.Poll(r.Context(), jobID)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send reports whether the stream should continue.
	send := func(state *pipeline.ExplainerState) bool {
		payload, err := json.Marshal(state)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return !state.Status.Terminal()
	}

	if !send(first) {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			state, err := s.pipeline.Poll(r.Context(), jobID)
			if err != nil {
				return
			}
			if !send(state) {
				return
			}
		}
	}
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter wraps an http.ResponseWriter and sends Server-Sent Events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter sets SSE response headers and returns a writer.
// Returns an error if the underlying ResponseWriter does not support flushing.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

// Send marshals data to JSON and writes a single SSE event.
func (sw *sseWriter) Send(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE data: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", b); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// handleCacheProgress streams cache population progress. A run still in
// progress has its latest event replayed on connect; the stream ends after a
// complete or error event.
func (s *Server) handleCacheProgress(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "progress stream unavailable")
		return
	}

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	sw, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	s.logger.Debug("SSE client connected for cache progress")

	if last, ok := s.hub.Last(); ok && !last.IsFinal() {
		if err := sw.Send(last); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := sw.Send(ev); err != nil {
				s.logger.Warn("failed to send progress event", "error", err)
				return
			}
			if ev.IsFinal() {
				return
			}
		}
	}
}

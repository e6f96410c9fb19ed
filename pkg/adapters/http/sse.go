package http

import (
	"fmt"
	"net/http"
	"strings"
)

// SubscribeEvents handles GET /events?map_id=... (SSE). It streams every
// broadcast of the map to read-only watchers. The optional events parameter
// is a comma separated list of event names to keep.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	mapID := r.URL.Query().Get("map_id")
	if mapID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "map_id is required"})
		return
	}

	var filter map[string]bool
	if raw := r.URL.Query().Get("events"); raw != "" {
		filter = make(map[string]bool)
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter[name] = true
			}
		}
	}

	ch, cancel, err := s.Broker.Subscribe(r.Context(), mapID)
	if err != nil {
		s.writeError(w, r, "subscribe", err)
		return
	}
	defer cancel()
	if s.metrics != nil {
		defer s.metrics.Connected("sse")()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: watcher subscribed", "map_id", mapID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: watcher disconnected", "map_id", mapID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env := msg.Envelope
			if filter != nil && !filter[env.Event] {
				continue
			}
			data := env.Data
			if len(data) == 0 {
				data = []byte("null")
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Event, data)
			flusher.Flush()
		}
	}
}

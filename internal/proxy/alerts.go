package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/shadow-gate/internal/notify"
)

// handleAlerts streams notifications to an open page as server-sent events
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	subscriber := notify.NewChanSubscriber(16)
	id, unsubscribe := s.alerts.Subscribe(subscriber)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case n := <-subscriber.C:
			data, err := json.Marshal(n)
			if err != nil {
				logrus.Errorf("Failed to encode notification for %s: %v", id, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				logrus.Debugf("Alerts stream %s closed: %v", id, err)
				return
			}
			flusher.Flush()
		}
	}
}

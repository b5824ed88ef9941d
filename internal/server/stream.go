package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayusman/eightball/internal/app"
)

// DefaultStreamInterval is how often the stream checks for a new frame (~15 FPS).
const DefaultStreamInterval = 66 * time.Millisecond

// StreamHandler serves the latest annotated frames as MJPEG.
type StreamHandler struct {
	app      *app.App
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler over the app's snapshots.
func NewStreamHandler(a *app.App) *StreamHandler {
	return &StreamHandler{app: a, interval: DefaultStreamInterval}
}

// ServeHTTP streams each new snapshot until the client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		if snap, ok := h.app.Latest(); ok && snap.Sequence != lastSeq && len(snap.JPEG) > 0 {
			lastSeq = snap.Sequence

			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(snap.JPEG))
			if _, err := w.Write(snap.JPEG); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")

			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/onnwee/discord-archiver/archive"
)

type handlers struct {
	status  Status
	started time.Time
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz reports ready once history is drained and live delivery is on.
func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if !h.status.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "history drain in progress",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	Ready         bool            `json:"ready"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Failed        int             `json:"failed_channels"`
	Report        *archive.Report `json:"report,omitempty"`
}

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Ready:         h.status.Ready(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	if rep := h.status.Report(); rep != nil {
		resp.Report = rep
		resp.Failed = rep.Failed()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package api

import (
	"net/http"
	"time"

	"github.com/loradex/loradex/internal/events"
	"github.com/loradex/loradex/internal/store"
)

// HealthHandler provides the health endpoint.
type HealthHandler struct {
	db        *store.DB
	nats      *events.Client
	device    string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db *store.DB, natsClient *events.Client, device string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		nats:      natsClient,
		device:    device,
		startTime: time.Now(),
	}
}

// Health returns the service health status.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if err := h.db.HealthCheck(r.Context()); err != nil {
		dbStatus = "disconnected"
	}

	natsStatus := "disconnected"
	if h.nats != nil && h.nats.IsConnected() {
		natsStatus = "connected"
	}

	resp := map[string]any{
		"status":         "healthy",
		"database":       dbStatus,
		"nats":           natsStatus,
		"device":         h.device,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}
	if dbStatus == "disconnected" {
		resp["status"] = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

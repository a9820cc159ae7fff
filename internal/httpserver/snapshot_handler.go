package httpserver

import (
	"net/http"

	"github.com/leaseos/leaseline/internal/snapshot"
)

const (
	defaultSnapshotLimit = 50
	minSnapshotLimit     = 1
	maxSnapshotLimit     = 500
)

// SnapshotHandler exposes the in-memory admin snapshot over HTTP.
type SnapshotHandler struct {
	agg *snapshot.Aggregator
}

// NewSnapshotHandler creates a SnapshotHandler.
func NewSnapshotHandler(agg *snapshot.Aggregator) *SnapshotHandler {
	return &SnapshotHandler{agg: agg}
}

// GetSnapshot handles GET /v1/admin/snapshot?limit=N.
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	limit := snapshot.ParsePositiveInt(r.URL.Query().Get("limit"), defaultSnapshotLimit, minSnapshotLimit, maxSnapshotLimit)
	Respond(w, http.StatusOK, h.agg.Snapshot(limit))
}

package api

import (
	"net/http"

	"threads/internal/db"
	"threads/internal/ws"
)

type HealthHandler struct {
	database *db.DB
	hub      *ws.Hub
}

func NewHealthHandler(database *db.DB, hub *ws.Hub) *HealthHandler {
	return &HealthHandler{database: database, hub: hub}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK

	if err := h.database.PingContext(r.Context()); err != nil {
		dbStatus = "error"
		status = http.StatusServiceUnavailable
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}

	snapshot := h.hub.Snapshot()
	writeJSON(w, status, map[string]any{
		"status": result,
		"checks": map[string]string{
			"database": dbStatus,
		},
		"realtime": map[string]int{
			"connections":   snapshot.Connections,
			"personalRooms": len(snapshot.PersonalRooms),
			"chatRooms":     len(snapshot.ChatRooms),
		},
	})
}

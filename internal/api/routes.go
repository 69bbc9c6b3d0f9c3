package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Observe(h.logger, h.metrics),
		Recovery(h.logger),
	)

	// Requests
	mux.Handle("GET /api/v1/requests", chain(http.HandlerFunc(h.ListRequests)))
	mux.Handle("GET /api/v1/requests/{id}", chain(http.HandlerFunc(h.GetRequest)))
	mux.Handle("GET /api/v1/requests/{id}/history", chain(http.HandlerFunc(h.ListRequestHistory)))
	mux.Handle("POST /api/v1/requests/{id}/actions", chain(http.HandlerFunc(h.ApplyAction)))

	// Configuration
	mux.Handle("GET /api/v1/connectors", chain(http.HandlerFunc(h.ListConnectors)))
	mux.Handle("GET /api/v1/processes", chain(http.HandlerFunc(h.ListProcesses)))
	mux.Handle("GET /api/v1/plugins", chain(http.HandlerFunc(h.ListPlugins)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("GET /api/v1/schedules/{kind}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{kind}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("GET /api/v1/sync", chain(http.HandlerFunc(h.GetSync)))
	mux.Handle("PUT /api/v1/sync", chain(http.HandlerFunc(h.UpdateSync)))

	// Jobs
	mux.Handle("POST /api/v1/jobs/{kind}/trigger", chain(http.HandlerFunc(h.TriggerJob)))
}

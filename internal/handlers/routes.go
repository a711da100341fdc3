package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register mounts ingress, health and the admin API on router. auth guards /api and may be nil.
func (h *Handlers) Register(router *mux.Router, auth func(http.Handler) http.Handler) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	// Method checks belong to the trigger, so every method reaches the handler
	router.HandleFunc("/webhooks/{webhook_id}", h.HandleWebhook)

	api := router.PathPrefix("/api").Subrouter()
	if auth != nil {
		api.Use(auth)
	}
	api.HandleFunc("/triggers", h.GetTriggers).Methods(http.MethodGet)
	api.HandleFunc("/triggers", h.CreateTrigger).Methods(http.MethodPost)
	api.HandleFunc("/triggers/{id}", h.GetTrigger).Methods(http.MethodGet)
	api.HandleFunc("/triggers/{id}", h.UpdateTrigger).Methods(http.MethodPatch)
	api.HandleFunc("/triggers/{id}", h.DeleteTrigger).Methods(http.MethodDelete)
	api.HandleFunc("/triggers/{id}/enable", h.EnableTrigger).Methods(http.MethodPost)
	api.HandleFunc("/triggers/{id}/disable", h.DisableTrigger).Methods(http.MethodPost)
	api.HandleFunc("/triggers/{id}/execute", h.ExecuteTrigger).Methods(http.MethodPost)
	api.HandleFunc("/triggers/{id}/safety", h.GetTriggerSafety).Methods(http.MethodGet)
	api.HandleFunc("/triggers/{id}/reset-failures", h.ResetTriggerFailures).Methods(http.MethodPost)
	api.HandleFunc("/triggers/{id}/executions", h.GetTriggerExecutions).Methods(http.MethodGet)
}

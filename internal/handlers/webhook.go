package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/webhooks"
)

// MsgBodyTooLarge is returned when a webhook body exceeds the configured limit
const MsgBodyTooLarge = "request body too large"

// HandleWebhook handles incoming webhook requests
// @Summary Process incoming webhook
// @Description Validates the request against the webhook trigger bound to webhook_id and executes it.
// @Description Failures are reported as 400 with {"status":"error","message":...}; this endpoint never answers 5xx.
// @Tags webhooks
// @Accept json,plain
// @Produce json
// @Param webhook_id path string true "Webhook ID"
// @Param payload body object false "Webhook payload"
// @Success 200 {object} map[string]interface{} "Execution result or accepted"
// @Failure 400 {object} map[string]interface{} "Unknown webhook, inactive trigger, disallowed method, validation or execution failure"
// @Router /webhooks/{webhook_id} [post]
// @Router /webhooks/{webhook_id} [get]
// @Router /webhooks/{webhook_id} [put]
// @Router /webhooks/{webhook_id} [patch]
// @Router /webhooks/{webhook_id} [delete]
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := mux.Vars(r)["webhook_id"]
	logger := h.logger.WithContext(r.Context()).WithFields(logging.Field{"webhook_id", webhookID})

	if !h.limiter.Allow(webhookID) {
		logger.Debug("Webhook request rate limited")
		h.writeWebhookResponse(w, webhooks.ErrorResponse(http.StatusBadRequest, webhooks.MsgRateLimited))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.options.MaxBodyBytes))
	if err != nil {
		logger.Debug("Failed to read webhook body", logging.Err(err))
		h.writeWebhookResponse(w, webhooks.ErrorResponse(http.StatusBadRequest, MsgBodyTooLarge))
		return
	}

	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	resp, err := h.dispatcher.HandleRequest(r.Context(), webhooks.Request{
		WebhookID:   webhookID,
		Method:      r.Method,
		Headers:     webhooks.FlattenHeaders(r.Header),
		Body:        body,
		QueryParams: query,
	})
	if err != nil {
		logger.Warn("Webhook rejected", logging.Err(err))
		resp = webhooks.ErrorResponse(http.StatusBadRequest, webhooks.MsgInvalidRules)
	}
	h.writeWebhookResponse(w, resp)
}

func (h *Handlers) writeWebhookResponse(w http.ResponseWriter, resp *webhooks.Response) {
	if h.observer != nil {
		h.observer.ObserveWebhookResponse(resp.StatusCode)
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if err := json.NewEncoder(w).Encode(resp.Body); err != nil {
		h.logger.Error("Failed to encode webhook response", err)
	}
}

package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	apperrors "trigger-engine/internal/common/errors"
	"trigger-engine/internal/middleware"
	"trigger-engine/internal/models"
)

// Trigger management handlers

// StatusBody answers lifecycle calls that return a changed flag
type StatusBody struct {
	ID      string `json:"id"`
	Changed bool   `json:"changed"`
}

// CreateTrigger creates a new trigger
// @Summary Create trigger
// @Description Creates a cron or webhook trigger bound to an agent. created_by is taken from the token subject.
// @Tags triggers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param trigger body models.CreateTriggerRequest true "Trigger definition"
// @Success 201 {object} models.Trigger "Created trigger"
// @Failure 400 {object} ErrorBody "Invalid definition"
// @Failure 503 {object} ErrorBody "Dependency unavailable"
// @Router /api/triggers [post]
func (h *Handlers) CreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTriggerRequest
	if err := decodeJSON(w, r, h.options.MaxBodyBytes, &req); err != nil {
		h.sendError(w, r, err)
		return
	}
	if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
		req.CreatedBy = subject
	}

	trigger, err := h.triggers.CreateTrigger(r.Context(), &req)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusCreated, trigger)
}

// GetTriggers lists triggers
// @Summary List triggers
// @Tags triggers
// @Produce json
// @Security BearerAuth
// @Param agent_id query string false "Filter by agent"
// @Param type query string false "Filter by trigger type (cron, webhook)"
// @Param active query boolean false "Only active triggers"
// @Success 200 {array} models.Trigger
// @Failure 400 {object} ErrorBody
// @Router /api/triggers [get]
func (h *Handlers) GetTriggers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.TriggerFilter{
		AgentID:     strings.TrimSpace(q.Get("agent_id")),
		TriggerType: models.TriggerType(strings.ToLower(q.Get("type"))),
	}
	switch filter.TriggerType {
	case "", models.TriggerTypeCron, models.TriggerTypeWebhook:
	default:
		h.sendError(w, r, apperrors.ValidationError("type must be cron or webhook"))
		return
	}
	if active := q.Get("active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			h.sendError(w, r, apperrors.ValidationError("active must be a boolean"))
			return
		}
		filter.ActiveOnly = parsed
	}

	triggers, err := h.triggers.ListTriggers(r.Context(), filter)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	if triggers == nil {
		triggers = []*models.Trigger{}
	}
	h.sendJSONResponse(w, http.StatusOK, triggers)
}

// GetTrigger returns one trigger
// @Summary Get trigger
// @Tags triggers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trigger ID"
// @Success 200 {object} models.Trigger
// @Failure 404 {object} ErrorBody "Trigger not found"
// @Router /api/triggers/{id} [get]
func (h *Handlers) GetTrigger(w http.ResponseWriter, r *http.Request) {
	trigger, err := h.triggers.GetTrigger(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, trigger)
}

// UpdateTrigger applies a partial update
// @Summary Update trigger
// @Description Only the fields present are changed. Type-specific fields must match the trigger type.
// @Tags triggers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trigger ID"
// @Param update body models.UpdateTriggerRequest true "Fields to change"
// @Success 200 {object} models.Trigger
// @Failure 400 {object} ErrorBody
// @Failure 404 {object} ErrorBody
// @Router /api/triggers/{id} [patch]
func (h *Handlers) UpdateTrigger(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateTriggerRequest
	if err := decodeJSON(w, r, h.options.MaxBodyBytes, &req); err != nil {
		h.sendError(w, r, err)
		return
	}
	trigger, err := h.triggers.UpdateTrigger(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, trigger)
}

// DeleteTrigger removes a trigger; its webhook id is never reused
// @Summary Delete trigger
// @Tags triggers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trigger ID"
// @Success 200 {object} StatusBody
// @Failure 404 {object} ErrorBody
// @Router /api/triggers/{id} [delete]
func (h *Handlers) DeleteTrigger(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleted, err := h.triggers.DeleteTrigger(r.Context(), id)
	h.sendStatus(w, r, id, deleted, err)
}

// EnableTrigger activates a trigger
// @Summary Enable trigger
// @Tags triggers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trigger ID"
// @Success 200 {object} StatusBody
// @Failure 404 {object} ErrorBody
// @Router /api/triggers/{id}/enable [post]
func (h *Handlers) EnableTrigger(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	changed, err := h.triggers.EnableTrigger(r.Context(), id)
	h.sendStatus(w, r, id, changed, err)
}

// DisableTrigger deactivates a trigger
// @Summary Disable trigger
// @Tags triggers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trigger ID"
// @Success 200 {object} StatusBody
// @Failure 404 {object} ErrorBody
// @Router /api/triggers/{id}/disable [post]
func (h *Handlers) DisableTrigger(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	changed, err := h.triggers.DisableTrigger(r.Context(), id)
	h.sendStatus(w, r, id, changed, err)
}

// ExecuteTrigger runs a trigger now
// @Summary Execute trigger manually
// @Description Runs the full execution pipeline. The optional JSON body is passed as execution data under "data".
// @Tags triggers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trigger ID"
// @Param data body object false "Execution data"
// @Success 200 {object} models.TriggerExecution
// @Failure 404 {object} ErrorBody
// @Router /api/triggers/{id}/execute [post]
func (h *Handlers) ExecuteTrigger(w http.ResponseWriter, r *http.Request) {
	var data map[string]interface{}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.options.MaxBodyBytes))
	if err != nil {
		h.sendError(w, r, apperrors.ValidationError("failed to read request body"))
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &data); err != nil {
			h.sendError(w, r, apperrors.ValidationError("execution data must be a JSON object"))
			return
		}
	}

	executionData := map[string]interface{}{"source": "manual"}
	if data != nil {
		executionData["data"] = data
	}
	if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
		executionData["requested_by"] = subject
	}

	execution, err := h.triggers.ExecuteTrigger(r.Context(), mux.Vars(r)["id"], executionData)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, execution)
}

// GetTriggerSafety reports how close a trigger is to being auto-disabled
// @Summary Trigger safety status
// @Tags triggers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trigger ID"
// @Success 200 {object} models.SafetyStatus
// @Failure 404 {object} ErrorBody
// @Router /api/triggers/{id}/safety [get]
func (h *Handlers) GetTriggerSafety(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := h.triggers.GetTriggerSafetyStatus(r.Context(), id)
	if err == nil && status == nil {
		err = apperrors.TriggerNotFoundError(id)
	}
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, status)
}

// ResetTriggerFailures clears the consecutive failure counter
// @Summary Reset failure count
// @Description Sets consecutive_failures to zero. Does not reactivate the trigger.
// @Tags triggers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trigger ID"
// @Success 200 {object} StatusBody
// @Failure 404 {object} ErrorBody
// @Router /api/triggers/{id}/reset-failures [post]
func (h *Handlers) ResetTriggerFailures(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	reset, err := h.triggers.ResetTriggerFailureCount(r.Context(), id)
	h.sendStatus(w, r, id, reset, err)
}

// GetTriggerExecutions pages through the execution history of a trigger
// @Summary List executions
// @Tags triggers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Trigger ID"
// @Param status query string false "SUCCESS, FAILED, TIMEOUT or SKIPPED"
// @Param limit query int false "Page size (default 50, max 500)"
// @Param offset query int false "Offset"
// @Success 200 {object} models.ExecutionPage
// @Failure 400 {object} ErrorBody
// @Failure 404 {object} ErrorBody
// @Router /api/triggers/{id}/executions [get]
func (h *Handlers) GetTriggerExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := models.ExecutionStatus(strings.ToUpper(q.Get("status")))
	switch status {
	case "", models.ExecutionSuccess, models.ExecutionFailed, models.ExecutionTimeout, models.ExecutionSkipped:
	default:
		h.sendError(w, r, apperrors.ValidationError("unknown execution status "+q.Get("status")))
		return
	}

	var page models.Page
	var err error
	if page.Limit, err = intParam(q.Get("limit")); err != nil {
		h.sendError(w, r, apperrors.ValidationError("limit must be an integer"))
		return
	}
	if page.Offset, err = intParam(q.Get("offset")); err != nil {
		h.sendError(w, r, apperrors.ValidationError("offset must be an integer"))
		return
	}

	result, err := h.triggers.ListExecutions(r.Context(), mux.Vars(r)["id"], status, page.Normalize())
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, result)
}

// sendStatus answers lifecycle calls; the service reports unknown ids as false
func (h *Handlers) sendStatus(w http.ResponseWriter, r *http.Request, id string, changed bool, err error) {
	if err == nil && !changed {
		err = apperrors.TriggerNotFoundError(id)
	}
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, StatusBody{ID: id, Changed: changed})
}

func intParam(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

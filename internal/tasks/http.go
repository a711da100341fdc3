// Package tasks creates and submits agent tasks for trigger executions
package tasks

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"trigger-engine/internal/circuitbreaker"
	"trigger-engine/internal/common/errors"
	commonhttp "trigger-engine/internal/common/http"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/models"
)

const dependencyName = "task_service"

type createTaskRequest struct {
	AgentID    string                 `json:"agent_id"`
	Parameters map[string]interface{} `json:"parameters"`
}

type createTaskResponse struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// HTTPService talks to a remote task service:
//
//	POST {base}/tasks                 {agent_id, parameters} -> {id, workflow_id, run_id}
//	POST {base}/tasks/{id}/submit
type HTTPService struct {
	client *commonhttp.JSONClient
	logger logging.Logger
}

func NewHTTPService(baseURL, token string, timeout time.Duration, logger logging.Logger) *HTTPService {
	logger = logging.OrGlobal(logger).WithFields(logging.Field{"component", "task_service_client"})
	breaker := circuitbreaker.New(dependencyName, circuitbreaker.TaskServiceConfig, logger)
	return &HTTPService{
		client: commonhttp.NewJSONClient(dependencyName, baseURL, token,
			commonhttp.NewHTTPClient(commonhttp.WithTimeout(timeout)), breaker, logger),
		logger: logger,
	}
}

func (s *HTTPService) CreateTaskFromParams(ctx context.Context, agentID string, params map[string]interface{}) (*models.Task, error) {
	var resp createTaskResponse
	err := s.client.Do(ctx, http.MethodPost, "/tasks", createTaskRequest{AgentID: agentID, Parameters: params}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, errors.DependencyUnavailableError(dependencyName, errors.InternalError("task service returned no task id", nil))
	}

	createdAt := resp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &models.Task{
		ID:         resp.ID,
		AgentID:    agentID,
		Parameters: params,
		WorkflowID: resp.WorkflowID,
		RunID:      resp.RunID,
		CreatedAt:  createdAt,
	}, nil
}

func (s *HTTPService) SubmitTask(ctx context.Context, task *models.Task) error {
	if task == nil {
		return errors.ValidationError("task is required")
	}
	return s.client.Do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(task.ID)+"/submit", nil, nil)
}

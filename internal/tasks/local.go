package tasks

import (
	"context"
	"sync"
	"time"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/common/utils"
	"trigger-engine/internal/models"
)

const defaultLocalHistory = 100

// LocalService accepts every task in-process and logs it. It keeps the most recent
// submissions so a local run can be inspected.
type LocalService struct {
	mu      sync.Mutex
	recent  []*models.Task
	history int
	logger  logging.Logger
}

func NewLocalService(history int, logger logging.Logger) *LocalService {
	if history <= 0 {
		history = defaultLocalHistory
	}
	return &LocalService{
		history: history,
		logger:  logging.OrGlobal(logger).WithFields(logging.Field{"component", "local_task_service"}),
	}
}

func (s *LocalService) CreateTaskFromParams(ctx context.Context, agentID string, params map[string]interface{}) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	task := &models.Task{
		ID:         utils.GenerateID("task"),
		AgentID:    agentID,
		Parameters: params,
		WorkflowID: utils.GenerateID("wf"),
		RunID:      utils.GenerateCorrelationID(),
		CreatedAt:  time.Now().UTC(),
	}
	s.logger.WithContext(ctx).Debug("Task created",
		logging.Field{"task_id", task.ID},
		logging.Field{"agent_id", agentID},
	)
	return task, nil
}

func (s *LocalService) SubmitTask(ctx context.Context, task *models.Task) error {
	if task == nil {
		return errors.ValidationError("task is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.recent = append(s.recent, task)
	if len(s.recent) > s.history {
		s.recent = s.recent[len(s.recent)-s.history:]
	}
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Task submitted",
		logging.Field{"task_id", task.ID},
		logging.Field{"agent_id", task.AgentID},
		logging.Field{"workflow_id", task.WorkflowID},
		logging.Field{"parameters", len(task.Parameters)},
	)
	return nil
}

// Recent returns the retained submissions, oldest first
func (s *LocalService) Recent() []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Task(nil), s.recent...)
}

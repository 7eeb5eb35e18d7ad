// In-memory background task queue for detached pipeline work.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localpulse/localpulse/pkg/event"
	"github.com/localpulse/localpulse/pkg/utils"
)

type TaskType string

const (
	TaskTypeAggregation TaskType = "profile.aggregation"
	TaskTypeExtraction  TaskType = "signal.extraction"
)

type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCanceled  TaskStatus = "canceled"
)

// Task is one background job. A task either completes or is dropped with a
// log entry; failures never surface to the end user.
type Task struct {
	ID        string     `json:"id"`
	Type      TaskType   `json:"type"`
	Status    TaskStatus `json:"status"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
	Meta      any        `json:"meta,omitempty"`
}

type taskRuntime struct {
	task   *Task
	ctx    context.Context
	cancel context.CancelFunc
	runner TaskRunner
}

// TaskRunner is the work a task performs. The context is canceled when the
// task is canceled or the service shuts down.
type TaskRunner func(ctx context.Context) error

// TaskService is an in-memory worker queue. Tasks are per-process and not
// durable; a task lost to a restart is re-triggered by the next natural
// trigger, e.g. the next chat message.
type TaskService struct {
	mu sync.Mutex

	maxWorkers int
	queue      []*taskRuntime
	running    map[string]*taskRuntime
	history    []*Task
}

func NewTaskService(maxWorkers int) *TaskService {
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	return &TaskService{
		maxWorkers: maxWorkers,
		running:    make(map[string]*taskRuntime),
	}
}

// Enqueue submits a job and returns immediately. Workers are started
// opportunistically up to maxWorkers.
func (s *TaskService) Enqueue(tt TaskType, title string, meta any, runner TaskRunner) *Task {
	s.mu.Lock()

	t := &Task{
		ID:        uuid.NewString(),
		Type:      tt,
		Status:    TaskStatusQueued,
		Title:     title,
		CreatedAt: time.Now(),
		Meta:      meta,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.queue = append(s.queue, &taskRuntime{task: t, ctx: ctx, cancel: cancel, runner: runner})
	s.mu.Unlock()

	event.Emit(event.TaskCreatedEvent{TaskID: t.ID, Type: string(tt)})

	go s.drainQueue()
	return t
}

func (s *TaskService) drainQueue() {
	for {
		s.mu.Lock()
		if len(s.running) >= s.maxWorkers || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}

		rt := s.queue[0]
		s.queue = s.queue[1:]

		now := time.Now()
		rt.task.Status = TaskStatusRunning
		rt.task.StartedAt = &now
		s.running[rt.task.ID] = rt
		s.mu.Unlock()

		err := rt.runner(rt.ctx)

		s.mu.Lock()
		delete(s.running, rt.task.ID)

		end := time.Now()
		rt.task.EndedAt = &end

		switch {
		case errors.Is(err, context.Canceled):
			rt.task.Status = TaskStatusCanceled
			if rt.task.Error == "" {
				rt.task.Error = "canceled"
			}
		case err != nil:
			rt.task.Status = TaskStatusFailed
			rt.task.Error = err.Error()
			utils.GetLogger().Warn("Background task failed",
				"taskID", rt.task.ID,
				"type", rt.task.Type,
				"error", err)
		default:
			rt.task.Status = TaskStatusSucceeded
		}

		s.history = append([]*Task{rt.task}, s.history...)
		if len(s.history) > 200 {
			s.history = s.history[:200]
		}
		s.mu.Unlock()

		event.Emit(event.TaskCompletedEvent{
			TaskID: rt.task.ID,
			Type:   string(rt.task.Type),
			Status: string(rt.task.Status),
		})
	}
}

// ListActive returns queued and running tasks.
func (s *TaskService) ListActive() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.queue)+len(s.running))
	for _, rt := range s.queue {
		out = append(out, *rt.task)
	}
	for _, rt := range s.running {
		out = append(out, *rt.task)
	}
	return out
}

// ListHistory returns finished tasks, newest first.
func (s *TaskService) ListHistory(limit int) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]Task, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, *s.history[i])
	}
	return out
}

// Cancel cancels a queued or running task.
func (s *TaskService) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rt := range s.queue {
		if rt.task.ID == id {
			rt.cancel()
			now := time.Now()
			rt.task.Status = TaskStatusCanceled
			rt.task.EndedAt = &now
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.history = append([]*Task{rt.task}, s.history...)
			return nil
		}
	}

	if rt, ok := s.running[id]; ok {
		rt.cancel()
		return nil
	}

	return errors.New("task not found")
}

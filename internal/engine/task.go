package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/realtime"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/schema"
)

// TaskDraft carries the caller-supplied fields of a new task.
type TaskDraft struct {
	Name        string
	Description string
	Status      string
	Priority    string
	SpaceID     string
	ListID      string
	Assignee    string
	StartDate   string
	DueDate     string
}

// AddTask creates a task, applies it optimistically, broadcasts it, and
// persists the tree.
func (e *Engine) AddTask(ctx context.Context, draft TaskDraft) (*schema.Task, error) {
	if draft.Name == "" {
		return nil, fmt.Errorf("task name is required")
	}
	if draft.SpaceID == "" {
		return nil, fmt.Errorf("task spaceId is required")
	}

	now := e.config.Now()
	task := &schema.Task{
		ID:          e.config.NewID(),
		Name:        draft.Name,
		Description: draft.Description,
		Status:      draft.Status,
		Priority:    draft.Priority,
		SpaceID:     draft.SpaceID,
		ListID:      draft.ListID,
		Assignee:    draft.Assignee,
		StartDate:   draft.StartDate,
		DueDate:     draft.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Status == "" {
		task.Status = "TO DO"
	}
	if task.Priority == "" {
		task.Priority = schema.PriorityMedium
	}

	var owner string
	var shared bool
	_ = e.mutate(ctx, func(s *schema.State) {
		s.Tasks[task.ID] = task
		owner, shared = e.ownerFor(task.SharedMeta, task.SpaceID)
	})

	out := *task
	e.broadcast(realtime.UpdateTask, out.SpaceID, &out)
	if shared {
		e.propagate(owner, realtime.UpdateTask, &out)
	}
	return &out, nil
}

// UpdateTask applies the caller's changes to a task and stamps its
// updatedAt. Returns ErrNotFound for an unknown id.
func (e *Engine) UpdateTask(ctx context.Context, id string, apply func(t *schema.Task)) (*schema.Task, error) {
	var out schema.Task
	var found, shared bool
	var owner string

	_ = e.mutate(ctx, func(s *schema.State) {
		t, ok := s.Tasks[id]
		if !ok {
			return
		}
		found = true
		apply(t)
		t.UpdatedAt = e.config.Now()
		out = *t
		owner, shared = e.ownerFor(t.SharedMeta, t.SpaceID)
	})
	if !found {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	e.broadcast(realtime.UpdateTask, out.SpaceID, &out)
	if shared {
		e.propagate(owner, realtime.UpdateTask, &out)
	}
	return &out, nil
}

// DeleteTask removes a task and broadcasts a tombstone.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	var found, shared bool
	var owner, spaceID string

	_ = e.mutate(ctx, func(s *schema.State) {
		t, ok := s.Tasks[id]
		if !ok {
			return
		}
		found = true
		spaceID = t.SpaceID
		owner, shared = e.ownerFor(t.SharedMeta, t.SpaceID)
		delete(s.Tasks, id)
	})
	if !found {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	e.broadcastDelete(realtime.UpdateTask, spaceID, id)
	if shared {
		e.propagate(owner, realtime.UpdateTaskDelete, map[string]string{"id": id})
	}
	return nil
}

// DuplicateTask copies a task (and its subtasks) under fresh ids.
func (e *Engine) DuplicateTask(ctx context.Context, id string) (*schema.Task, error) {
	var out schema.Task
	var found, shared bool
	var owner string
	now := e.config.Now()

	_ = e.mutate(ctx, func(s *schema.State) {
		src, ok := s.Tasks[id]
		if !ok {
			return
		}
		found = true

		dup := *src
		dup.ID = e.config.NewID()
		dup.Name = src.Name + " (Copy)"
		dup.CreatedAt = now
		dup.UpdatedAt = now
		dup.Subtasks = make([]schema.Subtask, len(src.Subtasks))
		for i, st := range src.Subtasks {
			st.ID = e.config.NewID()
			dup.Subtasks[i] = st
		}
		s.Tasks[dup.ID] = &dup
		out = dup
		owner, shared = e.ownerFor(dup.SharedMeta, dup.SpaceID)
	})
	if !found {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	e.broadcast(realtime.UpdateTask, out.SpaceID, &out)
	if shared {
		e.propagate(owner, realtime.UpdateTask, &out)
	}
	return &out, nil
}

// ArchiveTask marks a task done.
func (e *Engine) ArchiveTask(ctx context.Context, id string) error {
	_, err := e.UpdateTask(ctx, id, func(t *schema.Task) {
		t.Status = "COMPLETED"
	})
	return err
}

// SubtaskDraft carries the caller-supplied fields of a new subtask.
type SubtaskDraft struct {
	Name     string
	Status   string
	Priority string
	Assignee string
	DueDate  string
}

// AddSubtask appends a subtask to a task. The containing task is the
// unit of synchronization, so this counts as a task update.
func (e *Engine) AddSubtask(ctx context.Context, taskID string, draft SubtaskDraft) (*schema.Task, error) {
	now := e.config.Now()
	return e.UpdateTask(ctx, taskID, func(t *schema.Task) {
		status := draft.Status
		if status == "" {
			status = "TO DO"
		}
		t.Subtasks = append(t.Subtasks, schema.Subtask{
			ID:        e.config.NewID(),
			Name:      draft.Name,
			Status:    status,
			Priority:  draft.Priority,
			Assignee:  draft.Assignee,
			DueDate:   draft.DueDate,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
}

// UpdateSubtask applies changes to one subtask of a task.
func (e *Engine) UpdateSubtask(ctx context.Context, taskID, subtaskID string, apply func(st *schema.Subtask)) (*schema.Task, error) {
	now := e.config.Now()
	return e.UpdateTask(ctx, taskID, func(t *schema.Task) {
		for i := range t.Subtasks {
			if t.Subtasks[i].ID == subtaskID {
				apply(&t.Subtasks[i])
				t.Subtasks[i].UpdatedAt = now
				return
			}
		}
	})
}

// AddComment appends a comment authored by the local user.
func (e *Engine) AddComment(ctx context.Context, taskID, text string) (*schema.Task, error) {
	return e.UpdateTask(ctx, taskID, func(t *schema.Task) {
		t.Comments = append(t.Comments, schema.Comment{
			ID:        e.config.NewID(),
			UserID:    e.me.UserID,
			UserName:  e.me.UserName,
			Text:      text,
			CreatedAt: e.config.Now(),
		})
	})
}

// AddTimeEntry records tracked minutes against a task.
func (e *Engine) AddTimeEntry(ctx context.Context, taskID string, minutes int, description, date string) (*schema.Task, error) {
	return e.UpdateTask(ctx, taskID, func(t *schema.Task) {
		t.TimeEntries = append(t.TimeEntries, schema.TimeEntry{
			ID:          e.config.NewID(),
			Duration:    minutes,
			Description: description,
			Date:        date,
			UserID:      e.me.UserID,
		})
	})
}

// AddRelationship links a task to another task.
func (e *Engine) AddRelationship(ctx context.Context, taskID, relType, otherTaskID string) (*schema.Task, error) {
	return e.UpdateTask(ctx, taskID, func(t *schema.Task) {
		t.Relationships = append(t.Relationships, schema.Relationship{
			ID:     e.config.NewID(),
			Type:   relType,
			TaskID: otherTaskID,
		})
	})
}

// RemoveRelationship unlinks a relationship by id.
func (e *Engine) RemoveRelationship(ctx context.Context, taskID, relationshipID string) (*schema.Task, error) {
	return e.UpdateTask(ctx, taskID, func(t *schema.Task) {
		out := t.Relationships[:0]
		for _, r := range t.Relationships {
			if r.ID != relationshipID {
				out = append(out, r)
			}
		}
		t.Relationships = out
	})
}

// StartTimer begins tracking time against a task. Any running timer is
// stopped (and recorded) first. The timer itself is device-local.
func (e *Engine) StartTimer(ctx context.Context, taskID string) error {
	e.mu.Lock()
	running := e.state.ActiveTimer
	e.mu.Unlock()
	if running != nil {
		if err := e.StopTimer(ctx); err != nil {
			e.config.Logger.Printf("Failed to stop previous timer: %v", err)
		}
	}
	return e.mutate(ctx, func(s *schema.State) {
		s.ActiveTimer = &schema.ActiveTimer{TaskID: taskID, StartTime: e.config.Now()}
	})
}

// StopTimer ends the running timer and records a time entry of at least
// one minute. A no-op when no timer runs.
func (e *Engine) StopTimer(ctx context.Context) error {
	e.mu.Lock()
	timer := e.state.ActiveTimer
	e.mu.Unlock()
	if timer == nil {
		return nil
	}

	end := e.config.Now()
	minutes := int(end.Sub(timer.StartTime).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	if err := e.mutate(ctx, func(s *schema.State) {
		s.ActiveTimer = nil
	}); err != nil {
		return err
	}
	_, err := e.AddTimeEntry(ctx, timer.TaskID, minutes, "", end.Format(time.RFC3339))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

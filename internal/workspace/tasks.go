package workspace

import (
	"context"
	"fmt"

	"github.com/adamavenir/aioffice/internal/api"
	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/metrics"
	"github.com/adamavenir/aioffice/internal/types"
)

// Tasks returns the board of the active project.
func (w *Workspace) Tasks() []types.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]types.Task(nil), w.tasks...)
}

// RefreshTasks reloads the board from the server.
func (w *Workspace) RefreshTasks(ctx context.Context) error {
	p := w.Project()
	f := api.TaskFilter{}
	if p != nil {
		f.Project, f.Branch = p.Project, p.Branch
	}
	tasks, err := w.client.ListTasks(metrics.WithTag(ctx, jobTasks), f)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.tasks = tasks
	w.mu.Unlock()
	w.changed(jobTasks)
	return nil
}

// CreateTask adds a task to the active project and reloads the board.
func (w *Workspace) CreateTask(ctx context.Context, in types.TaskInput) (types.Task, error) {
	if p := w.Project(); p != nil {
		if in.Project == "" {
			in.Project = p.Project
		}
		if in.Branch == "" {
			in.Branch = p.Branch
		}
	}
	t, err := w.client.CreateTask(ctx, in)
	if err != nil {
		return types.Task{}, err
	}
	if err := w.RefreshTasks(ctx); err != nil {
		w.log.WarnContext(ctx, "task reload failed", "err", err)
	}
	return t, nil
}

// MoveTask moves a task to status right away, then reconciles with the
// server. When the move fails the board is reloaded; if that also fails
// the local change is rolled back.
func (w *Workspace) MoveTask(ctx context.Context, id int64, status types.TaskStatus) error {
	const op = "workspace.move_task"
	if !status.Valid() {
		return apperr.Validation(op, fmt.Sprintf("unknown status %q", status))
	}
	w.mu.Lock()
	idx := -1
	for i, t := range w.tasks {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		w.mu.Unlock()
		return apperr.State(op, fmt.Sprintf("task %d is not on the board", id))
	}
	prev := w.tasks[idx].Status
	w.tasks[idx].Status = status
	w.mu.Unlock()
	w.changed(jobTasks)

	_, moveErr := w.client.SetTaskStatus(ctx, id, status)
	reloadErr := w.RefreshTasks(ctx)
	if reloadErr != nil && moveErr != nil {
		w.mu.Lock()
		for i := range w.tasks {
			if w.tasks[i].ID == id && w.tasks[i].Status == status {
				w.tasks[i].Status = prev
			}
		}
		w.mu.Unlock()
		w.changed(jobTasks)
	}
	if moveErr != nil {
		w.setBanner(moveErr)
		return moveErr
	}
	return nil
}

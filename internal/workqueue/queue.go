// Package workqueue manages the durable, dependency-aware shared task
// list in work_queue.json: add, claim, complete, release, remove, a
// stale-claim sweep, and automatic unblocking of dependents.
//
// Mutating operations return a (success, message) pair mirrored to the
// CLI; the error return carries only real persistence failures. A task
// is blocked if and only if it has a dependency that is not completed;
// completing a task re-scans blocked tasks in the same transaction so
// dependents become available immediately, not on the next poll.
package workqueue

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fenwick/warren/internal/config"
	"github.com/fenwick/warren/internal/logging"
	"github.com/fenwick/warren/internal/store"
)

// Queue provides operations on the shared work queue document.
type Queue struct {
	cfg    *config.Config
	logger *logging.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a Queue over the configured state directory. The logger
// may be nil.
func New(cfg *config.Config, logger *logging.Logger) *Queue {
	return &Queue{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID: func() string {
			id := uuid.New()
			return fmt.Sprintf("task-%x", id[:4])
		},
	}
}

// update runs fn on the queue document inside its lock scope.
func (q *Queue) update(fn func(doc *Document) (bool, error)) error {
	return store.Update(q.cfg.QueueFile(), q.cfg.LockTimeout(), q.logger,
		func(doc Document) (Document, bool, error) {
			commit, err := fn(&doc)
			return doc, commit, err
		})
}

// Add appends a new task. The task starts blocked if any named
// dependency exists and is not completed; dependency ids that do not
// exist are recorded as MissingDeps but never block.
func (q *Queue) Add(description string, priority int, context string, dependsOn []string, estimate string) (*Task, error) {
	if priority < PriorityHigh || priority > PriorityLow {
		priority = PriorityNormal
	}
	if dependsOn == nil {
		dependsOn = []string{}
	}

	var added *Task
	err := q.update(func(doc *Document) (bool, error) {
		now := q.now()
		task := &Task{
			ID:          q.newID(),
			Description: description,
			Priority:    priority,
			Status:      StatusAvailable,
			CreatedAt:   now,
			Context:     context,
			DependsOn:   dependsOn,
			Estimate:    estimate,
		}
		task.record("created", "system", now, "")

		for _, depID := range dependsOn {
			dep := doc.find(depID)
			if dep == nil {
				task.MissingDeps = append(task.MissingDeps, depID)
			} else if dep.Status != StatusCompleted {
				task.Status = StatusBlocked
			}
		}

		doc.Tasks = append(doc.Tasks, task)
		doc.touch(now)
		added = task
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	q.logger.Info("task added", "task_id", added.ID, "priority", added.Priority, "status", string(added.Status))
	return added, nil
}

// Claim marks an available task as claimed by the given session tag.
func (q *Queue) Claim(taskID, sessionTag string) (bool, string, error) {
	ok, msg := false, "Task not found"
	err := q.update(func(doc *Document) (bool, error) {
		task := doc.find(taskID)
		if task == nil {
			return false, nil
		}
		switch task.Status {
		case StatusClaimed:
			msg = fmt.Sprintf("Task already claimed by @%s", task.ClaimedBy)
			return false, nil
		case StatusCompleted:
			msg = "Task already completed"
			return false, nil
		case StatusBlocked:
			msg = fmt.Sprintf("Task is blocked by dependencies: %s", strings.Join(task.DependsOn, ", "))
			return false, nil
		}

		now := q.now()
		task.Status = StatusClaimed
		task.ClaimedBy = sessionTag
		task.ClaimedAt = &now
		task.record("claimed", sessionTag, now, "")
		doc.touch(now)

		ok, msg = true, fmt.Sprintf("Task claimed by @%s", sessionTag)
		return true, nil
	})
	return ok, msg, err
}

// Release returns a claimed task to available. releasedBy names who
// triggered the release for the history log; empty falls back to the
// previous claimant.
func (q *Queue) Release(taskID, releasedBy string) (bool, string, error) {
	ok, msg := false, "Task not found"
	err := q.update(func(doc *Document) (bool, error) {
		task := doc.find(taskID)
		if task == nil {
			return false, nil
		}
		if task.Status != StatusClaimed {
			msg = "Task is not claimed"
			return false, nil
		}

		by := releasedBy
		if by == "" {
			by = task.ClaimedBy
		}
		if by == "" {
			by = "system"
		}

		now := q.now()
		task.Status = StatusAvailable
		task.ClaimedBy = ""
		task.ClaimedAt = nil
		task.record("released", by, now, "")
		doc.touch(now)

		ok, msg = true, "Task released"
		return true, nil
	})
	return ok, msg, err
}

// Complete marks a task completed. Completion always succeeds once,
// even when the task is claimed by a different session (logged, not
// blocked). Repeat completions are rejected without touching the
// completion counter. In the same transaction, every blocked task
// whose dependencies are now all completed becomes available.
func (q *Queue) Complete(taskID, sessionTag string) (bool, string, error) {
	ok, msg := false, "Task not found"
	err := q.update(func(doc *Document) (bool, error) {
		task := doc.find(taskID)
		if task == nil {
			return false, nil
		}
		if task.Status == StatusCompleted {
			msg = "Task already completed"
			return false, nil
		}

		if task.ClaimedBy != "" && task.ClaimedBy != sessionTag {
			q.logger.Warn("task completed by a different session than claimed it",
				"task_id", taskID,
				"claimed_by", task.ClaimedBy,
				"completed_by", sessionTag,
			)
		}

		now := q.now()
		task.Status = StatusCompleted
		task.CompletedBy = sessionTag
		task.CompletedAt = &now
		if task.ClaimedAt != nil {
			task.ActualDuration = int(now.Sub(*task.ClaimedAt).Minutes())
		}
		task.record("completed", sessionTag, now, "")
		doc.Metadata.TotalCompleted++

		q.unblockDependents(doc, taskID, now)

		doc.touch(now)
		ok, msg = true, "Task completed"
		return true, nil
	})
	return ok, msg, err
}

// unblockDependents flips every blocked task whose dependencies are
// now all completed to available. One scan per completion suffices:
// a newly available task cannot unblock anything further until it is
// itself completed.
func (q *Queue) unblockDependents(doc *Document, completedID string, now time.Time) {
	for _, task := range doc.Tasks {
		if task.Status != StatusBlocked || len(task.DependsOn) == 0 {
			continue
		}
		allDone := true
		for _, depID := range task.DependsOn {
			dep := doc.find(depID)
			if dep != nil && dep.Status != StatusCompleted {
				allDone = false
				break
			}
		}
		if allDone {
			task.Status = StatusAvailable
			task.record("unblocked", "system", now, fmt.Sprintf("dependency %s completed", completedID))
		}
	}
}

// Remove deletes a task from the queue entirely.
func (q *Queue) Remove(taskID string) (bool, string, error) {
	ok, msg := false, "Task not found"
	err := q.update(func(doc *Document) (bool, error) {
		for i, task := range doc.Tasks {
			if task.ID == taskID {
				doc.Tasks = append(doc.Tasks[:i], doc.Tasks[i+1:]...)
				doc.touch(q.now())
				ok, msg = true, "Task removed"
				return true, nil
			}
		}
		return false, nil
	})
	return ok, msg, err
}

// StaleRelease reports one claim returned to available by the sweep.
type StaleRelease struct {
	TaskID string
	Was    string // previous claimant's tag
}

// ReleaseStaleClaims returns every task claimed longer ago than the
// configured threshold to available, recording the reason in each
// task's history. The sweep is pull-based: it runs only when invoked,
// so the threshold is a lower bound on how long a stale claim lives.
func (q *Queue) ReleaseStaleClaims() ([]StaleRelease, error) {
	var released []StaleRelease
	err := q.update(func(doc *Document) (bool, error) {
		now := q.now()
		threshold := q.cfg.StaleQueueClaimAfter()

		for _, task := range doc.Tasks {
			if task.Status != StatusClaimed || task.ClaimedAt == nil {
				continue
			}
			if now.Sub(*task.ClaimedAt) <= threshold {
				continue
			}
			was := task.ClaimedBy
			task.Status = StatusAvailable
			task.ClaimedBy = ""
			task.ClaimedAt = nil
			task.record("released", "system", now, fmt.Sprintf("stale claim (was @%s)", was))
			released = append(released, StaleRelease{TaskID: task.ID, Was: was})
		}

		if len(released) == 0 {
			return false, nil
		}
		doc.touch(now)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	for _, rel := range released {
		q.logger.Info("released stale claim", "task_id", rel.TaskID, "was", rel.Was)
	}
	return released, nil
}

// List returns tasks sorted by priority then creation time, optionally
// filtered by status. Stale claims are swept first so listings do not
// advertise abandoned work as claimed.
func (q *Queue) List(status Status) ([]*Task, error) {
	if _, err := q.ReleaseStaleClaims(); err != nil {
		return nil, err
	}

	doc := store.LoadOrDefault[Document](q.cfg.QueueFile())
	tasks := doc.Tasks
	if status != "" {
		filtered := make([]*Task, 0, len(tasks))
		for _, t := range tasks {
			if t.Status == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Get returns the task with the given id, or nil. The read takes no
// lock.
func (q *Queue) Get(taskID string) *Task {
	doc := store.LoadOrDefault[Document](q.cfg.QueueFile())
	return doc.find(taskID)
}

// History returns a task's event log and whether the task exists.
func (q *Queue) History(taskID string) ([]HistoryEntry, bool) {
	task := q.Get(taskID)
	if task == nil {
		return nil, false
	}
	return task.History, true
}

// GetStats summarizes the queue. The read takes no lock.
func (q *Queue) GetStats() Stats {
	doc := store.LoadOrDefault[Document](q.cfg.QueueFile())

	stats := Stats{
		Total:          len(doc.Tasks),
		TotalCompleted: doc.Metadata.TotalCompleted,
	}
	for _, t := range doc.Tasks {
		switch t.Status {
		case StatusAvailable:
			stats.Available++
		case StatusBlocked:
			stats.Blocked++
		case StatusClaimed:
			stats.Claimed++
		case StatusCompleted:
			stats.Completed++
		}
	}
	return stats
}

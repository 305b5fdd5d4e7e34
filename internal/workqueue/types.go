package workqueue

import "time"

// Status represents the current state of a queued task.
type Status string

const (
	// StatusAvailable indicates the task is waiting to be claimed.
	StatusAvailable Status = "available"

	// StatusBlocked indicates the task has incomplete dependencies.
	StatusBlocked Status = "blocked"

	// StatusClaimed indicates a session is working on the task.
	StatusClaimed Status = "claimed"

	// StatusCompleted indicates the task is done. Terminal: completed
	// tasks persist in the queue rather than being deleted.
	StatusCompleted Status = "completed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Task priorities, high to low.
const (
	PriorityHigh   = 1
	PriorityNormal = 2
	PriorityLow    = 3
)

// HistoryEntry is one event in a task's append-only history log.
type HistoryEntry struct {
	Action string    `json:"action"`
	By     string    `json:"by"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Task is one entry in the shared work queue.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`

	// Priority is 1 (high) through 3 (low).
	Priority int `json:"priority"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	ClaimedBy string     `json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	// Context is optional free-form guidance for whoever claims the task.
	Context string `json:"context,omitempty"`

	// DependsOn lists task ids that must complete before this task
	// becomes available.
	DependsOn []string `json:"depends_on"`

	// Estimate is an optional size hint: small, medium, or large.
	Estimate string `json:"estimate,omitempty"`

	// MissingDeps records dependency ids that did not exist at add
	// time. Informational: unknown dependencies never block.
	MissingDeps []string `json:"missing_deps,omitempty"`

	CompletedBy string     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ActualDuration is the claim-to-completion time in minutes.
	ActualDuration int `json:"actual_duration,omitempty"`

	History []HistoryEntry `json:"history"`
}

// record appends an event to the task's history log.
func (t *Task) record(action, by string, at time.Time, reason string) {
	t.History = append(t.History, HistoryEntry{
		Action: action,
		By:     by,
		At:     at,
		Reason: reason,
	})
}

// Metadata is the queue-level bookkeeping block.
type Metadata struct {
	LastUpdated *time.Time `json:"last_updated"`

	// TotalCompleted counts completions monotonically, surviving
	// task removal.
	TotalCompleted int `json:"total_completed"`
}

// Document is the persisted work_queue.json shape.
type Document struct {
	Tasks    []*Task  `json:"tasks"`
	Metadata Metadata `json:"metadata"`
}

// find returns the task with the given id, or nil.
func (d *Document) find(id string) *Task {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// touch stamps the metadata with the time of the current mutation.
func (d *Document) touch(now time.Time) {
	d.Metadata.LastUpdated = &now
}

// Stats summarizes the queue's current state counts.
type Stats struct {
	Total          int `json:"total"`
	Available      int `json:"available"`
	Blocked        int `json:"blocked"`
	Claimed        int `json:"claimed"`
	Completed      int `json:"completed"`
	TotalCompleted int `json:"total_completed"`
}

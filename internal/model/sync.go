package model

import (
	"encoding/json"
	"time"
)

// Operation is the kind of remote mutation a queue item carries.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

func (o Operation) Valid() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

const (
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// TasksTable is the logical name of the remote task table.
const TasksTable = "tasks"

// SyncQueueItem is a pending mutation against the remote store.
type SyncQueueItem struct {
	ID         string          `json:"id"`
	Operation  Operation       `json:"operation"`
	Table      string          `json:"table"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	RetryCount int             `json:"retryCount"`
	Status     string          `json:"status"`
	LastError  string          `json:"lastError,omitempty"`
}

// DeadLetterItem is a queue item that exhausted its retries.
type DeadLetterItem struct {
	SyncQueueItem
	FailedAt time.Time `json:"failedAt"`
}

// UpdatePayload is the payload of an UPDATE item.
type UpdatePayload struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"familyId"`
	Patch     TaskPatch `json:"patch"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeletePayload is the payload of a DELETE item.
type DeletePayload struct {
	ID       string `json:"id"`
	FamilyID string `json:"familyId"`
}

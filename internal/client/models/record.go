// Package models defines the client records: queued mutations, cached
// entities and the signed-in session.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is the kind of change a MutationRecord carries.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction validates a user-supplied action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// SyncStatus is the synchronization state of a MutationRecord.
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusInFlight SyncStatus = "in-flight"
	StatusSynced   SyncStatus = "synced"
	StatusFailed   SyncStatus = "failed"
)

// CanTransition reports whether a record may move from s to next.
//
//	pending   -> in-flight
//	in-flight -> synced | pending | failed
//	failed    -> pending   (user resubmits)
//
// synced is terminal.
func (s SyncStatus) CanTransition(next SyncStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusInFlight
	case StatusInFlight:
		return next == StatusSynced || next == StatusPending || next == StatusFailed
	case StatusFailed:
		return next == StatusPending
	default:
		return false
	}
}

// Terminal reports whether the synchronizer will never touch a record in s again.
func (s SyncStatus) Terminal() bool {
	return s == StatusSynced || s == StatusFailed
}

// MutationRecord is one local write waiting for (or done with) remote
// confirmation. ID doubles as the idempotency key sent to the server.
type MutationRecord struct {
	ID         string          `json:"id"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entityId"`
	Action     Action          `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	SyncStatus SyncStatus      `json:"syncStatus"`
	Attempts   int             `json:"attempts"`
	// Sent is set once the record has gone out. From then on the server may
	// hold its idempotency key, so the record must not be rewritten.
	Sent      bool      `json:"sent,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NeverSent reports whether the server cannot have seen the record.
func (r MutationRecord) NeverSent() bool {
	return !r.Sent && r.Attempts == 0
}

// Key identifies the logical entity the record mutates.
func (r MutationRecord) Key() EntityKey {
	return EntityKey{Entity: r.Entity, ID: r.EntityID}
}

// Validate checks the fields the queue relies on.
func (r MutationRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record without id")
	}
	if r.Entity == "" || r.EntityID == "" {
		return fmt.Errorf("record %s: entity and entity id are required", r.ID)
	}
	if _, err := ParseAction(string(r.Action)); err != nil {
		return fmt.Errorf("record %s: %w", r.ID, err)
	}
	switch r.SyncStatus {
	case StatusPending, StatusInFlight, StatusSynced, StatusFailed:
	default:
		return fmt.Errorf("record %s: unknown status %q", r.ID, r.SyncStatus)
	}
	return nil
}

// EntityKey is entity+id, the unit of ordering and caching.
type EntityKey struct {
	Entity string
	ID     string
}

func (k EntityKey) String() string {
	return k.Entity + "#" + k.ID
}

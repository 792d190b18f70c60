package models

import (
	"encoding/json"
	"time"
)

// Entity is the server copy of one record of a collection, owned by a user.
// Deleted rows are kept as tombstones so a late update cannot resurrect them.
type Entity struct {
	UserID    string
	Entity    string
	ID        string
	Value     json.RawMessage
	Version   int64
	Deleted   bool
	UpdatedAt time.Time
}

// Action is the mutation verb sent by clients.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Mutation is one client mutation as received by the server.
type Mutation struct {
	IdempotencyKey string
	UserID         string
	Entity         string
	EntityID       string
	Action         Action
	Payload        json.RawMessage
}

// AppliedMutation remembers the outcome of a mutation under its idempotency
// key so a resubmission returns the same result without re-applying it.
type AppliedMutation struct {
	Key       string
	UserID    string
	Entity    string
	EntityID  string
	Action    Action
	Version   int64
	AppliedAt time.Time
}

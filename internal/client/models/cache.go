package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is the last-known-good remote representation of an entity.
type CacheEntry struct {
	Entity    string          `json:"entity"`
	ID        string          `json:"id"`
	Value     json.RawMessage `json:"value"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Stale     bool            `json:"stale"`
}

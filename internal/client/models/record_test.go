package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncStatus_CanTransition(t *testing.T) {
	all := []SyncStatus{StatusPending, StatusInFlight, StatusSynced, StatusFailed}
	allowed := map[SyncStatus][]SyncStatus{
		StatusPending:  {StatusInFlight},
		StatusInFlight: {StatusSynced, StatusPending, StatusFailed},
		StatusFailed:   {StatusPending},
		StatusSynced:   nil,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equalf(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestSyncStatus_Terminal(t *testing.T) {
	assert.True(t, StatusSynced.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInFlight.Terminal())
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("delete")
	require.NoError(t, err)
	assert.Equal(t, ActionDelete, a)

	_, err = ParseAction("upsert")
	require.Error(t, err)
}

func TestMutationRecord_Validate(t *testing.T) {
	ok := MutationRecord{ID: "r1", Entity: "customers", EntityID: "1", Action: ActionCreate, SyncStatus: StatusPending}
	require.NoError(t, ok.Validate())

	noEntity := ok
	noEntity.EntityID = ""
	require.Error(t, noEntity.Validate())

	badStatus := ok
	badStatus.SyncStatus = "done"
	require.Error(t, badStatus.Validate())

	badAction := ok
	badAction.Action = "merge"
	require.Error(t, badAction.Validate())
}

func TestMutationRecord_PayloadRoundTripsExactly(t *testing.T) {
	payload := json.RawMessage(`{"id":1,"balance":12345678901234567890.125,"name":"Ada"}`)
	in := MutationRecord{
		ID: "r1", Entity: "customers", EntityID: "1", Action: ActionUpdate,
		Payload: payload, EnqueuedAt: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
		SyncStatus: StatusPending,
	}

	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out MutationRecord
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, string(payload), string(out.Payload))
	assert.True(t, in.EnqueuedAt.Equal(out.EnqueuedAt))
	assert.Equal(t, "customers#1", out.Key().String())
}

func TestUser_FullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", User{FirstName: "Ada", LastName: "Lovelace"}.FullName())
	assert.Equal(t, "Ada", User{FirstName: "Ada"}.FullName())
	assert.Equal(t, "Lovelace", User{LastName: "Lovelace"}.FullName())
}

func TestSession_ExpiresWithin(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(30 * time.Second)}
	assert.True(t, s.ExpiresWithin(now, time.Minute))
	assert.False(t, s.ExpiresWithin(now, 10*time.Second))
}

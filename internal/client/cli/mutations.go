package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/client/syncer"
)

// readPayload uses the inline JSON when given, otherwise asks for it.
func (a *App) readPayload(inline string) (json.RawMessage, error) {
	text := inline
	if text == "" {
		var err error
		text, err = getMultiline(a.reader, "Enter JSON payload", os.Stdout)
		if err != nil {
			return nil, err
		}
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(text), nil
}

func formatRecord(r models.MutationRecord) string {
	s := fmt.Sprintf("%s  %-7s %s/%s  %s  attempts=%d  queued %s",
		r.ID, r.Action, r.Entity, r.EntityID, r.SyncStatus, r.Attempts,
		r.EnqueuedAt.Local().Format(time.DateTime))
	if r.LastError != "" {
		s += "  error: " + r.LastError
	}
	return s
}

// Create queues a new entity: create <entity> [id] [json].
func (a *App) Create(ctx context.Context, args string) error {
	words, rest := splitArgs(args, 2)
	if len(words) == 0 {
		printlnFn("Usage: create <entity> [id] [json]")
		return nil
	}
	id := ""
	if len(words) > 1 {
		id = words[1]
	}
	payload, err := a.readPayload(rest)
	if err != nil {
		return err
	}

	rec, err := a.mutations.Create(ctx, words[0], id, payload)
	if err != nil {
		return err
	}
	printlnFn("Queued", rec.Entity+"/"+rec.EntityID)
	return nil
}

// Update queues a change: update <entity> <id> [json].
func (a *App) Update(ctx context.Context, args string) error {
	words, rest := splitArgs(args, 2)
	if len(words) < 2 {
		printlnFn("Usage: update <entity> <id> [json]")
		return nil
	}
	payload, err := a.readPayload(rest)
	if err != nil {
		return err
	}

	rec, err := a.mutations.Update(ctx, words[0], words[1], payload)
	if err != nil {
		return err
	}
	printlnFn("Queued", rec.Entity+"/"+rec.EntityID)
	return nil
}

// Delete queues a delete: delete <entity> <id>.
func (a *App) Delete(ctx context.Context, args string) error {
	words, _ := splitArgs(args, 2)
	if len(words) < 2 {
		printlnFn("Usage: delete <entity> <id>")
		return nil
	}

	rec, err := a.mutations.Delete(ctx, words[0], words[1])
	if err != nil {
		return err
	}
	if rec == nil {
		printlnFn("Dropped unsent", words[0]+"/"+words[1])
		return nil
	}
	printlnFn("Queued delete of", words[0]+"/"+words[1])
	return nil
}

// Get reads an entity through the cache: get <entity> <id>.
func (a *App) Get(ctx context.Context, args string) error {
	words, _ := splitArgs(args, 2)
	if len(words) < 2 {
		printlnFn("Usage: get <entity> <id>")
		return nil
	}

	e, err := a.mutations.Get(ctx, words[0], words[1])
	if err != nil {
		return err
	}
	if e.Stale {
		printlnFn(fmt.Sprintf("(stale, fetched %s)", e.FetchedAt.Local().Format(time.DateTime)))
	}
	printlnFn(string(e.Value))
	return nil
}

func (a *App) Queue(ctx context.Context) error {
	records, err := a.mutations.Pending(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		printlnFn("Nothing waiting to sync")
	}
	for _, r := range records {
		printlnFn(formatRecord(r))
	}

	q, err := a.mutations.Quarantined(ctx)
	if err != nil {
		return err
	}
	if len(q) > 0 {
		printlnFn(fmt.Sprintf("%d unreadable record(s) quarantined", len(q)))
	}
	return nil
}

func (a *App) Failed(ctx context.Context) error {
	records, err := a.mutations.Failed(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		printlnFn("No rejected changes")
	}
	for _, r := range records {
		printlnFn(formatRecord(r))
	}
	return nil
}

// Discard drops a rejected record: discard <record-id>.
func (a *App) Discard(ctx context.Context, args string) error {
	words, _ := splitArgs(args, 1)
	if len(words) == 0 {
		printlnFn("Usage: discard <record-id>")
		return nil
	}
	if err := a.mutations.Discard(ctx, words[0]); err != nil {
		return err
	}
	printlnFn("Discarded", words[0])
	return nil
}

// Resubmit retries a rejected record: resubmit <record-id> [json].
func (a *App) Resubmit(ctx context.Context, args string) error {
	words, rest := splitArgs(args, 1)
	if len(words) == 0 {
		printlnFn("Usage: resubmit <record-id> [json]")
		return nil
	}
	var payload json.RawMessage
	if strings.TrimSpace(rest) != "" {
		if !json.Valid([]byte(rest)) {
			return fmt.Errorf("payload is not valid JSON")
		}
		payload = json.RawMessage(rest)
	}
	if err := a.mutations.Resubmit(ctx, words[0], payload); err != nil {
		return err
	}
	printlnFn("Resubmitted", words[0])
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	r, err := a.mutations.SyncNow(ctx)
	if errors.Is(err, syncer.ErrOffline) {
		printlnFn("Offline, changes stay queued")
		return nil
	}
	printlnFn(fmt.Sprintf("synced %d, retried %d, failed %d, blocked %d", r.Synced, r.Retried, r.Failed, r.Blocked))
	return err
}

func (a *App) Purge(ctx context.Context) error {
	r, err := a.housekeeper.Run(ctx)
	if r.Archived > 0 {
		printlnFn(fmt.Sprintf("archived %d record(s) to %s", r.Archived, r.ArchiveKey))
	}
	printlnFn(fmt.Sprintf("purged %d record(s), collected %d cache entr(ies)", r.Purged, r.Collected))
	return err
}

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/dbx"
	"github.com/zelebiz/zelebiz/internal/logging"
	"github.com/zelebiz/zelebiz/internal/server/config"
	"github.com/zelebiz/zelebiz/internal/server/models"
	"github.com/zelebiz/zelebiz/internal/server/repositories/repomanager"
)

// ApplyResult is the outcome of a mutation. Replayed is set when the key had
// been applied before and nothing changed this time.
type ApplyResult struct {
	Version  int64
	Replayed bool
}

// MutationService applies client mutations exactly once per idempotency key
// and serves reads of single entities.
type MutationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	entities    map[string]struct{}
}

func NewMutationService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *MutationService {
	allowed := make(map[string]struct{}, len(cfg.Entities))
	for _, e := range cfg.Entities {
		allowed[e] = struct{}{}
	}
	return &MutationService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "mutations"),
		entities:    allowed,
	}
}

func (s *MutationService) checkEntity(entity string) error {
	if _, ok := s.entities[entity]; !ok {
		return fmt.Errorf("unknown entity %q: %w", entity, common.ErrValidation)
	}
	return nil
}

func (s *MutationService) validate(m *models.Mutation) error {
	if m.IdempotencyKey == "" {
		return fmt.Errorf("missing idempotency key: %w", common.ErrValidation)
	}
	if err := s.checkEntity(m.Entity); err != nil {
		return err
	}
	if m.EntityID == "" {
		return fmt.Errorf("missing entity id: %w", common.ErrValidation)
	}
	if !m.Action.Valid() {
		return fmt.Errorf("unknown action %q: %w", m.Action, common.ErrValidation)
	}
	if m.Action != models.ActionDelete && (len(m.Payload) == 0 || !json.Valid(m.Payload)) {
		return fmt.Errorf("payload is not valid JSON: %w", common.ErrValidation)
	}
	return nil
}

// Apply runs m inside one transaction together with its idempotency record.
// A key seen before returns the first result with Replayed set; a key reused
// for a different mutation is a conflict. Creating an existing entity is a
// conflict, updating a missing one is common.ErrNotFound, and deleting a
// missing one succeeds.
func (s *MutationService) Apply(ctx context.Context, m models.Mutation) (*ApplyResult, error) {
	if err := s.validate(&m); err != nil {
		return nil, err
	}

	var res *ApplyResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		log := s.repomanager.Mutations(tx)

		claimed, err := log.Claim(ctx, &models.AppliedMutation{
			Key:      m.IdempotencyKey,
			UserID:   m.UserID,
			Entity:   m.Entity,
			EntityID: m.EntityID,
			Action:   m.Action,
		})
		if err != nil {
			return err
		}

		if !claimed {
			prev, err := log.Find(ctx, m.UserID, m.IdempotencyKey)
			if err != nil {
				return err
			}
			if prev.Entity != m.Entity || prev.EntityID != m.EntityID || prev.Action != m.Action {
				return fmt.Errorf("idempotency key %s reused for another mutation: %w", m.IdempotencyKey, common.ErrConflict)
			}
			res = &ApplyResult{Version: prev.Version, Replayed: true}
			return nil
		}

		entities := s.repomanager.Entities(tx)
		var version int64
		switch m.Action {
		case models.ActionCreate:
			version, err = entities.Insert(ctx, m.UserID, m.Entity, m.EntityID, m.Payload)
		case models.ActionUpdate:
			version, err = entities.Update(ctx, m.UserID, m.Entity, m.EntityID, m.Payload)
		case models.ActionDelete:
			version, _, err = entities.Delete(ctx, m.UserID, m.Entity, m.EntityID)
		}
		if err != nil {
			return err
		}

		if err := log.SetVersion(ctx, m.UserID, m.IdempotencyKey, version); err != nil {
			return err
		}
		res = &ApplyResult{Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "mutation applied",
		"user_id", m.UserID, "entity", m.Entity, "id", m.EntityID,
		"action", m.Action, "version", res.Version, "replayed", res.Replayed)
	return res, nil
}

// Fetch returns the live entity. Tombstones read as common.ErrNotFound.
func (s *MutationService) Fetch(ctx context.Context, userID, entity, id string) (*models.Entity, error) {
	if err := s.checkEntity(entity); err != nil {
		return nil, err
	}
	e, err := s.repomanager.Entities(s.db).Get(ctx, userID, entity, id)
	if err != nil {
		return nil, err
	}
	if e.Deleted {
		return nil, fmt.Errorf("%s/%s deleted: %w", entity, id, common.ErrNotFound)
	}
	return e, nil
}

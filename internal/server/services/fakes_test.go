package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/dbx"
	"github.com/zelebiz/zelebiz/internal/server/config"
	"github.com/zelebiz/zelebiz/internal/server/models"
	"github.com/zelebiz/zelebiz/internal/server/repositories/entities"
	"github.com/zelebiz/zelebiz/internal/server/repositories/mutations"
	"github.com/zelebiz/zelebiz/internal/server/repositories/refreshtokens"
	"github.com/zelebiz/zelebiz/internal/server/repositories/users"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		Entities:                     []string{"customers", "sales"},
		S3Region:                     "us-east-1",
		S3RootUser:                   "minioadmin",
		S3RootPassword:               "minioadmin",
		S3BaseEndpoint:               "http://127.0.0.1:9000",
		S3Bucket:                     "zelebiz",
	}
}

// memStore is an in-memory stand-in for the Postgres tables. Writes made
// through a repository are visible immediately; transactions are not
// emulated beyond the Begin/Commit the sqlmock DB expects.
type memStore struct {
	mu        sync.Mutex
	users     map[string]*models.User
	tokens    map[string]*models.RefreshToken
	entities  map[string]*models.Entity
	applied   map[string]*models.AppliedMutation
	nextID    int
	failWith  error
	failOnSet bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*models.User{},
		tokens:   map[string]*models.RefreshToken{},
		entities: map[string]*models.Entity{},
		applied:  map[string]*models.AppliedMutation{},
	}
}

func (m *memStore) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memStore) Users(dbx.DBTX) users.Repository              { return (*memUsers)(m) }
func (m *memStore) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return (*memTokens)(m)
}
func (m *memStore) Entities(dbx.DBTX) entities.Repository   { return (*memEntities)(m) }
func (m *memStore) Mutations(dbx.DBTX) mutations.Repository { return (*memMutations)(m) }

type memUsers memStore

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, x := range r.users {
		if x.Email == u.Email {
			return nil, common.ErrConflict
		}
	}
	r.nextID++
	u.ID = fmt.Sprintf("u-%d", r.nextID)
	u.CreatedAt = time.Now()
	c := *u
	r.users[u.ID] = &c
	return u, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, x := range r.users {
		if x.Email == email {
			c := *x
			return &c, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if x, ok := r.users[id]; ok {
		c := *x
		return &c, nil
	}
	return nil, common.ErrNotFound
}

func (r *memUsers) UpdatePassword(_ context.Context, id string, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, ok := r.users[id]
	if !ok {
		return common.ErrNotFound
	}
	x.PasswordHash = hash
	return nil
}

type memTokens memStore

func (r *memTokens) Create(_ context.Context, userID, hash string, validity time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[hash] = &models.RefreshToken{UserID: userID, TokenHash: hash, Expires: time.Now().Add(validity)}
	return nil
}

func (r *memTokens) Find(_ context.Context, hash string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if x, ok := r.tokens[hash]; ok {
		c := *x
		return &c, nil
	}
	return nil, common.ErrNotFound
}

func (r *memTokens) Delete(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, hash)
	return nil
}

func (r *memTokens) DeleteForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, x := range r.tokens {
		if x.UserID == userID {
			delete(r.tokens, h)
		}
	}
	return nil
}

type memEntities memStore

func entityKey(userID, entity, id string) string { return userID + "/" + entity + "/" + id }

func (r *memEntities) Get(_ context.Context, userID, entity, id string) (*models.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if x, ok := r.entities[entityKey(userID, entity, id)]; ok {
		c := *x
		return &c, nil
	}
	return nil, common.ErrNotFound
}

func (r *memEntities) Insert(_ context.Context, userID, entity, id string, value json.RawMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := entityKey(userID, entity, id)
	if x, ok := r.entities[k]; ok {
		if !x.Deleted {
			return 0, common.ErrConflict
		}
		x.Value, x.Deleted = value, false
		x.Version++
		return x.Version, nil
	}
	r.entities[k] = &models.Entity{UserID: userID, Entity: entity, ID: id, Value: value, Version: 1, UpdatedAt: time.Now()}
	return 1, nil
}

func (r *memEntities) Update(_ context.Context, userID, entity, id string, value json.RawMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, ok := r.entities[entityKey(userID, entity, id)]
	if !ok || x.Deleted {
		return 0, common.ErrNotFound
	}
	x.Value = value
	x.Version++
	return x.Version, nil
}

func (r *memEntities) Delete(_ context.Context, userID, entity, id string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, ok := r.entities[entityKey(userID, entity, id)]
	if !ok || x.Deleted {
		return 0, false, nil
	}
	x.Deleted = true
	x.Value = json.RawMessage("null")
	x.Version++
	return x.Version, true, nil
}

type memMutations memStore

func (r *memMutations) Claim(_ context.Context, m *models.AppliedMutation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := m.UserID + "/" + m.Key
	if _, ok := r.applied[k]; ok {
		return false, nil
	}
	c := *m
	r.applied[k] = &c
	return true, nil
}

func (r *memMutations) Find(_ context.Context, userID, key string) (*models.AppliedMutation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if x, ok := r.applied[userID+"/"+key]; ok {
		c := *x
		return &c, nil
	}
	return nil, common.ErrNotFound
}

func (r *memMutations) SetVersion(_ context.Context, userID, key string, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOnSet {
		return fmt.Errorf("db error: set version")
	}
	r.applied[userID+"/"+key].Version = version
	return nil
}

// forget drops an idempotency record, as a rolled back transaction would.
func (m *memStore) forget(userID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.applied, userID+"/"+key)
}

package grpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/zelebiz/zelebiz/internal/server/models"
	"github.com/zelebiz/zelebiz/internal/server/services"
)

type fakeUsers struct {
	mu        sync.Mutex
	result    *services.AuthResult
	err       error
	signedOut []string
	changed   []string
}

func (f *fakeUsers) auth() (*services.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeUsers) SignUp(_ context.Context, email, _, first, last string) (*services.AuthResult, error) {
	res, err := f.auth()
	if err != nil {
		return nil, err
	}
	u := *res.User
	u.Email, u.FirstName, u.LastName = email, first, last
	cp := *res
	cp.User = &u
	return &cp, nil
}

func (f *fakeUsers) SignIn(context.Context, string, string) (*services.AuthResult, error) {
	return f.auth()
}

func (f *fakeUsers) Refresh(context.Context, string) (*services.AuthResult, error) {
	return f.auth()
}

func (f *fakeUsers) SignOut(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, token)
	return f.err
}

func (f *fakeUsers) ChangePassword(_ context.Context, userID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, userID)
	return f.err
}

type fakeMutations struct {
	mu      sync.Mutex
	applied []models.Mutation
	result  *services.ApplyResult
	entity  *models.Entity
	err     error
}

func (f *fakeMutations) Apply(_ context.Context, m models.Mutation) (*services.ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, m)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &services.ApplyResult{Version: 1}, nil
}

func (f *fakeMutations) Fetch(_ context.Context, userID, entity, id string) (*models.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.entity != nil {
		return f.entity, nil
	}
	return &models.Entity{
		UserID:    userID,
		Entity:    entity,
		ID:        id,
		Value:     json.RawMessage(`{"n":1}`),
		Version:   2,
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

type fakeArchives struct {
	users []string
	err   error
}

func (f *fakeArchives) UploadURL(_ context.Context, userID string) (string, string, error) {
	f.users = append(f.users, userID)
	if f.err != nil {
		return "", "", f.err
	}
	return "archives/" + userID + "/a.jsonl.sz", "https://s3.example/put", nil
}

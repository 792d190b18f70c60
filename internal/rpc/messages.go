package rpc

import (
	"encoding/json"
	"time"
)

type SignUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type SignOutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type UserInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// AuthResponse is returned by SignUp, SignIn and Refresh.
type AuthResponse struct {
	User         UserInfo  `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// MutationRequest applies one queued mutation. IdempotencyKey is the client
// record id; replays with the same key are answered from the first result.
type MutationRequest struct {
	IdempotencyKey string          `json:"idempotencyKey"`
	Entity         string          `json:"entity"`
	EntityID       string          `json:"entityId"`
	Action         string          `json:"action"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

type MutationResponse struct {
	Version  int64 `json:"version"`
	Replayed bool  `json:"replayed"`
}

type FetchRequest struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

type FetchResponse struct {
	Entity    string          `json:"entity"`
	ID        string          `json:"id"`
	Value     json.RawMessage `json:"value"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type ArchiveURLResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ErrorResponse is the body of every non-2xx REST reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

type PingResponse struct {
	Status string `json:"status"`
}

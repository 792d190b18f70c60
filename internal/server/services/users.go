// Package services contains the sync server's business logic: accounts and
// tokens, idempotent mutations, and presigned archive uploads.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/cryptox"
	"github.com/zelebiz/zelebiz/internal/dbx"
	"github.com/zelebiz/zelebiz/internal/logging"
	"github.com/zelebiz/zelebiz/internal/server/auth"
	"github.com/zelebiz/zelebiz/internal/server/config"
	"github.com/zelebiz/zelebiz/internal/server/models"
	"github.com/zelebiz/zelebiz/internal/server/repositories/repomanager"
)

// AuthResult is what a successful sign up, sign in or refresh hands back.
type AuthResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// UserService handles accounts and the access/refresh token pair.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		logger:                       logger.With("module", "users"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		now:                          time.Now,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("invalid email %q: %w", email, common.ErrValidation)
	}
	return email, nil
}

// SignUp creates an account and signs it in.
func (s *UserService) SignUp(ctx context.Context, email, password, firstName, lastName string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
	}

	var res *AuthResult
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return fmt.Errorf("error creating user: %w", err)
		}
		res, err = s.issue(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user signed up", "user_id", res.User.ID)
	return res, nil
}

// SignIn checks the credentials. Unknown emails and wrong passwords both
// give common.ErrUnauthorized after the same amount of hashing work.
func (s *UserService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			_ = cryptox.CheckPassword(s.dummyPasswordHash(), password)
			return nil, fmt.Errorf("%w: invalid credentials", common.ErrUnauthorized)
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if err := cryptox.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return nil, fmt.Errorf("%w: invalid credentials", common.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %w", common.ErrInternal, err)
	}

	return s.issue(ctx, s.db, user)
}

// Refresh exchanges a refresh token for a new pair. The old token is deleted
// in the same transaction, so each refresh token works once.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	hash := cryptox.HashToken(refreshToken)

	var res *AuthResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repomanager.RefreshTokens(tx)

		token, err := tokens.Find(ctx, hash)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("%w: unknown refresh token", common.ErrUnauthorized)
			}
			return fmt.Errorf("error searching refresh token: %w", err)
		}
		if token.Expires.Before(s.now()) {
			return common.ErrRefreshTokenExpired
		}
		if err := tokens.Delete(ctx, hash); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, token.UserID)
		if err != nil {
			return fmt.Errorf("error loading user: %w", err)
		}
		res, err = s.issue(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SignOut revokes refreshToken. Revoking an unknown token succeeds.
func (s *UserService) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, cryptox.HashToken(refreshToken)); err != nil {
		return fmt.Errorf("error deleting refresh token: %w", err)
	}
	return nil
}

// ChangePassword replaces the password of userID and revokes all of its
// refresh tokens. Existing access tokens stay valid until they expire.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)

		user, err := users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("%w: unknown user", common.ErrUnauthorized)
			}
			return fmt.Errorf("error loading user: %w", err)
		}
		if err := cryptox.CheckPassword(user.PasswordHash, oldPassword); err != nil {
			if errors.Is(err, cryptox.ErrPasswordMismatch) {
				return fmt.Errorf("%w: wrong password", common.ErrValidation)
			}
			return fmt.Errorf("%w: %w", common.ErrInternal, err)
		}

		hash, err := cryptox.HashPassword(newPassword)
		if err != nil {
			return err
		}
		if err := users.UpdatePassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		if err := s.repomanager.RefreshTokens(tx).DeleteForUser(ctx, userID); err != nil {
			return fmt.Errorf("error revoking refresh tokens: %w", err)
		}
		s.logger.Info(ctx, "password changed", "user_id", userID)
		return nil
	})
}

func (s *UserService) issue(ctx context.Context, db dbx.DBTX, user *models.User) (*AuthResult, error) {
	access, expires, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInternal, err)
	}
	refresh, err := cryptox.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInternal, err)
	}
	if err := s.repomanager.RefreshTokens(db).Create(ctx, user.ID, cryptox.HashToken(refresh), s.refreshTokenValidityDuration); err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}
	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh, ExpiresAt: expires}, nil
}

func (s *UserService) dummyPasswordHash() []byte {
	s.dummyOnce.Do(func() {
		pw, _ := common.MakeRandHexString(16)
		s.dummyHash, _ = cryptox.HashPassword(pw)
	})
	return s.dummyHash
}

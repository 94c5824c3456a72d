package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/newsdigest/internal/model"
)

// MinPasswordLength は管理者パスワードの最小文字数。
const MinPasswordLength = 10

// AdminLogin は管理者のメールアドレスとパスワードでログインし、セッションを発行する。
// 利用者の存在有無は応答から区別できないようにする。
func (s *Service) AdminLogin(ctx context.Context, email, password string) (*model.Session, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			slog.Warn("admin login failed", slog.String("user_id", user.ID))
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, fmt.Errorf("failed to compare password: %w", err)
	}

	isAdmin, err := s.IsAdmin(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check role: %w", err)
	}
	if !isAdmin {
		return nil, model.NewAccessDeniedError()
	}

	session, err := s.createSession(ctx, user.ID, model.ProviderPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	slog.Info("admin logged in", slog.String("user_id", user.ID))
	return session, nil
}

// CreateAdmin は管理者ユーザーを作成または更新する。
// 既存ユーザーの場合はパスワードを設定し直し、adminロールを付与する。
func (s *Service) CreateAdmin(ctx context.Context, email, name, password string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		now := time.Now()
		if name == "" {
			name = nameFromEmail(email)
		}
		user = &model.User{
			ID:           uuid.New().String(),
			Email:        email,
			Name:         name,
			PasswordHash: string(hash),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	} else {
		if err := s.userRepo.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
			return nil, fmt.Errorf("failed to update password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	if err := s.roleRepo.Grant(ctx, user.ID, model.RoleAdmin); err != nil {
		return nil, fmt.Errorf("failed to grant admin role: %w", err)
	}

	slog.Info("admin user ready", slog.String("user_id", user.ID))
	return user, nil
}

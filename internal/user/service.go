// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/repository"
)

// Profile はログイン中のユーザー情報を表す。
type Profile struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	IsAdmin   bool     `json:"is_admin"`
	Providers []string `json:"providers"`
}

// Service はユーザー管理のサービス層。
// プロフィール取得と退会処理を提供する。
type Service struct {
	userRepo     repository.UserRepository
	sessionRepo  repository.SessionRepository
	roleRepo     repository.RoleRepository
	identityRepo repository.IdentityRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	roleRepo repository.RoleRepository,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		roleRepo:    roleRepo,
	}
}

// WithIdentities はプロフィールに紐付け済みのログイン手段を含めるためのリポジトリを設定する。
func (s *Service) WithIdentities(identityRepo repository.IdentityRepository) *Service {
	s.identityRepo = identityRepo
	return s
}

// Profile はユーザーのプロフィール、管理者権限の有無、ログイン手段を返す。
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	isAdmin := false
	if s.roleRepo != nil {
		isAdmin, err = s.roleRepo.HasRole(ctx, userID, model.RoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("ロールの取得に失敗しました: %w", err)
		}
	}

	providers := []string{}
	if s.identityRepo != nil {
		providers, err = s.identityRepo.ListProvidersByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("ログイン手段の取得に失敗しました: %w", err)
		}
	}

	return &Profile{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		IsAdmin:   isAdmin,
		Providers: providers,
	}, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: identities, user_roles, reactions, bookmarks）
// ダイジェストと記事は共有コンテンツとして残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 2. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}

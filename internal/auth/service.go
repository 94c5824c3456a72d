// Package auth はOAuth認証フロー、メールのワンタイムリンク、管理者ログイン、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google", "github"
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はプロバイダー名（identities.provider の値）を返す。
	Name() string
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int           // セッション有効期間（秒）
	BaseURL       string        // ログインリンクの生成に使う公開URL
	MagicLinkTTL  time.Duration // ログインリンクの有効期間
}

// Repositories は認証サービスが使うリポジトリの組。
type Repositories struct {
	Users      repository.UserRepository
	Identities repository.IdentityRepository
	Roles      repository.RoleRepository
	Sessions   repository.SessionRepository
	MagicLinks repository.MagicLinkRepository
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers   map[string]OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	roleRepo    repository.RoleRepository
	sessionRepo repository.SessionRepository
	linkRepo    repository.MagicLinkRepository
	mailer      Mailer
	linkLimiter *LinkLimiter
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。providersには設定済みのOAuthプロバイダーのみを渡す。
func NewService(
	repos Repositories,
	providers []OAuthProvider,
	mailer Mailer,
	linkLimiter *LinkLimiter,
	config ServiceConfig,
) *Service {
	if config.MagicLinkTTL <= 0 {
		config.MagicLinkTTL = 15 * time.Minute
	}
	byName := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{
		providers:   byName,
		userRepo:    repos.Users,
		identRepo:   repos.Identities,
		roleRepo:    repos.Roles,
		sessionRepo: repos.Sessions,
		linkRepo:    repos.MagicLinks,
		mailer:      mailer,
		linkLimiter: linkLimiter,
		config:      config,
		now:         time.Now,
	}
}

// Providers は有効なOAuthプロバイダー名を返す。
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, name := range []string{model.ProviderGoogle, model.ProviderGitHub} {
		if _, ok := s.providers[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", model.NewProviderDisabledError(provider)
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// identityが未登録でも同じメールアドレスのユーザーがいればそのユーザーに紐付け、
// どちらもなければusersとidentitiesを同時に作成する。
func (s *Service) HandleCallback(ctx context.Context, provider, code string) (*model.Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, model.NewProviderDisabledError(provider)
	}

	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	userID, err := s.resolveUser(ctx, userInfo)
	if err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, userID, userInfo.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// resolveUser は外部IdPのユーザー情報から対応するユーザーIDを返す。必要ならユーザーを作成する。
func (s *Service) resolveUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, nil
	}

	now := s.now()
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if info.Email != "" {
		existing, err := s.userRepo.FindByEmail(ctx, info.Email)
		if err != nil {
			return "", fmt.Errorf("failed to find user by email: %w", err)
		}
		if existing != nil {
			newIdentity.UserID = existing.ID
			if err := s.identRepo.Create(ctx, newIdentity); err != nil {
				return "", fmt.Errorf("failed to link identity: %w", err)
			}
			slog.Info("identity linked to existing user",
				slog.String("user_id", existing.ID),
				slog.String("provider", info.Provider),
			)
			return existing.ID, nil
		}
	}

	newUser := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity.UserID = newUser.ID

	if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("provider", info.Provider),
	)
	return newUser.ID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// IsAdmin はユーザーが管理者ロールを持つかを返す。
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return s.roleRepo.HasRole(ctx, userID, model.RoleAdmin)
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID, provider string) (*model.Session, error) {
	sessionID, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Provider:  provider,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// randomToken は暗号的に安全な32バイトの乱数を16進文字列で返す。
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// normalizeEmail はメールアドレスの前後空白を除き小文字にする。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

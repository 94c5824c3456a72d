package user

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/hitoshi/newsdigest/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.User, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	return nil
}
func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return nil
}
func (m *mockUserRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

type mockRoleRepo struct {
	admins map[string]bool
}

func (m *mockRoleRepo) HasRole(ctx context.Context, userID, role string) (bool, error) {
	return role == model.RoleAdmin && m.admins[userID], nil
}
func (m *mockRoleRepo) Grant(ctx context.Context, userID, role string) error {
	return nil
}

type mockIdentityRepo struct {
	providers map[string][]string
	err       error
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	return nil, nil
}
func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	return nil
}
func (m *mockIdentityRepo) ListProvidersByUser(ctx context.Context, userID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.providers[userID], nil
}

// --- テスト ---

// TestService_Withdraw は退会処理がセッションとユーザーを削除することを検証する。
func TestService_Withdraw(t *testing.T) {
	var calls []string

	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "test@example.com"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			calls = append(calls, "user")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			calls = append(calls, "sessions")
			return nil
		},
	}

	svc := NewService(userRepo, sessionRepo, nil)

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	if len(calls) != 2 || calls[0] != "sessions" || calls[1] != "user" {
		t.Errorf("delete order = %v, want [sessions user]", calls)
	}
}

// TestService_Withdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}

	svc := NewService(userRepo, nil, nil)

	err := svc.Withdraw(context.Background(), "nonexistent-user")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

// TestService_Withdraw_SessionDeleteError はセッション削除の失敗でユーザーを削除しないことを検証する。
func TestService_Withdraw_SessionDeleteError(t *testing.T) {
	userDeleted := false
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			userDeleted = true
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return errors.New("db error")
		},
	}

	svc := NewService(userRepo, sessionRepo, nil)
	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if userDeleted {
		t.Error("user should not be deleted when session deletion fails")
	}
}

// TestService_Profile は管理者ロールの有無がプロフィールに反映されることを検証する。
func TestService_Profile(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id == "missing" {
				return nil, nil
			}
			return &model.User{ID: id, Email: id + "@example.com", Name: "Nom"}, nil
		},
	}
	svc := NewService(userRepo, nil, &mockRoleRepo{admins: map[string]bool{"admin-1": true}})

	tests := []struct {
		userID  string
		isAdmin bool
	}{
		{"admin-1", true},
		{"reader-1", false},
	}
	for _, tt := range tests {
		p, err := svc.Profile(context.Background(), tt.userID)
		if err != nil {
			t.Fatalf("Profile(%s) error: %v", tt.userID, err)
		}
		if p.IsAdmin != tt.isAdmin || p.Email != tt.userID+"@example.com" {
			t.Errorf("Profile(%s) = %+v", tt.userID, p)
		}
	}

	if _, err := svc.Profile(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing user")
	}
}

// TestService_Profile_Providers は紐付け済みのログイン手段がプロフィールに含まれることを検証する。
func TestService_Profile_Providers(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "lea@example.fr", Name: "Léa"}, nil
		},
	}

	t.Run("リポジトリ未設定なら空配列", func(t *testing.T) {
		svc := NewService(userRepo, nil, &mockRoleRepo{})
		p, err := svc.Profile(context.Background(), "u1")
		if err != nil {
			t.Fatalf("Profile error: %v", err)
		}
		if p.Providers == nil || len(p.Providers) != 0 {
			t.Errorf("Providers = %#v, want empty slice", p.Providers)
		}
	})

	t.Run("ログイン手段を返す", func(t *testing.T) {
		identities := &mockIdentityRepo{providers: map[string][]string{"u1": {"email", "google"}}}
		svc := NewService(userRepo, nil, &mockRoleRepo{}).WithIdentities(identities)
		p, err := svc.Profile(context.Background(), "u1")
		if err != nil {
			t.Fatalf("Profile error: %v", err)
		}
		if !slices.Equal(p.Providers, []string{"email", "google"}) {
			t.Errorf("Providers = %v", p.Providers)
		}
	})

	t.Run("取得失敗", func(t *testing.T) {
		identities := &mockIdentityRepo{err: errors.New("db down")}
		svc := NewService(userRepo, nil, &mockRoleRepo{}).WithIdentities(identities)
		if _, err := svc.Profile(context.Background(), "u1"); err == nil {
			t.Error("expected error")
		}
	})
}

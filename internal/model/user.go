// Package model はドメインモデルを定義する。
package model

import "time"

// RoleAdmin は管理画面へのアクセスを許可するロール。
const RoleAdmin = "admin"

// 認証プロバイダー名
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
	ProviderEmail  = "email"

	// ProviderPassword は管理者のパスワードログインを表す。identityは作らずセッションにのみ記録する。
	ProviderPassword = "password"
)

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string // 管理者のパスワードログイン用（bcrypt）。未設定の場合は空
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// Google、GitHub、メールリンク（provider=email）に対応する。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	Provider  string // ログイン方法（google、github、email、password）
	ExpiresAt time.Time
	CreatedAt time.Time
}

// MagicLink はメールで送信するワンタイムログインリンク。
// トークンはSHA-256ハッシュのみを保存する。
type MagicLink struct {
	ID           string
	Email        string
	TokenHash    string
	RedirectPath string
	ExpiresAt    time.Time
	UsedAt       *time.Time
	CreatedAt    time.Time
}

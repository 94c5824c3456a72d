package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hitoshi/newsdigest/internal/config"
	"github.com/hitoshi/newsdigest/internal/database"
)

// createAdminOptions は create-admin サブコマンドの引数。
type createAdminOptions struct {
	Email    string
	Name     string
	Password string
}

// parseCreateAdminArgs は create-admin サブコマンドの引数を解析する。
// パスワードはシェル履歴に残らないよう環境変数 ADMIN_PASSWORD から読む。
//
//	ADMIN_PASSWORD=... newsdigest create-admin -email admin@example.fr [-name Nom]
func parseCreateAdminArgs(args []string, getenv func(string) string) (createAdminOptions, error) {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "管理者のメールアドレス")
	name := fs.String("name", "", "表示名（省略時はメールアドレスから生成）")

	if err := fs.Parse(args); err != nil {
		return createAdminOptions{}, fmt.Errorf("invalid create-admin arguments: %w", err)
	}

	opts := createAdminOptions{
		Email:    strings.TrimSpace(*email),
		Name:     strings.TrimSpace(*name),
		Password: getenv("ADMIN_PASSWORD"),
	}
	if opts.Email == "" {
		return createAdminOptions{}, errors.New("-email is required")
	}
	if opts.Password == "" {
		return createAdminOptions{}, errors.New("ADMIN_PASSWORD is not set")
	}
	return opts, nil
}

// runCreateAdmin は管理者アカウントを作成し、adminロールを付与する。
func runCreateAdmin(w io.Writer, cfg *config.Config, args []string) error {
	opts, err := parseCreateAdminArgs(args, os.Getenv)
	if err != nil {
		return err
	}

	db, err := openDB(cfg, database.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	u, err := newAuthService(cfg, db).CreateAdmin(ctx, opts.Email, opts.Name, opts.Password)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("admin account ready", slog.String("user_id", u.ID))
	fmt.Fprintf(w, "administrateur %s prêt (id %s)\n", u.Email, u.ID)
	return nil
}

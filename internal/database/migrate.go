package database

import (
	"embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationAction は migrate サブコマンドの操作。
type MigrationAction string

const (
	MigrateUp      MigrationAction = "up"
	MigrateDown    MigrationAction = "down"
	MigrateVersion MigrationAction = "version"
)

// MigrationPlan は実行するマイグレーション操作。Steps は down のときだけ使う。
type MigrationPlan struct {
	Action MigrationAction
	Steps  int
}

// MigrationStatus は操作後のスキーマバージョン。Version 0 は未適用を表す。
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// ParseMigrationArgs は "migrate [up | down [N] | version]" の引数を解釈する。
// 引数なしは up。down の段数省略時は1段だけ戻す。
func ParseMigrationArgs(args []string) (MigrationPlan, error) {
	if len(args) == 0 {
		return MigrationPlan{Action: MigrateUp}, nil
	}

	switch action := MigrationAction(args[0]); action {
	case MigrateUp, MigrateVersion:
		if len(args) > 1 {
			return MigrationPlan{}, fmt.Errorf("migrate %s takes no arguments", action)
		}
		return MigrationPlan{Action: action}, nil
	case MigrateDown:
		plan := MigrationPlan{Action: MigrateDown, Steps: 1}
		if len(args) > 2 {
			return MigrationPlan{}, errors.New("migrate down takes at most one argument")
		}
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return MigrationPlan{}, fmt.Errorf("invalid step count: %q", args[1])
			}
			plan.Steps = n
		}
		return plan, nil
	default:
		return MigrationPlan{}, fmt.Errorf("unknown migrate action: %q", args[0])
	}
}

// NewMigrator は埋め込みSQLをソースとするmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations はすべての未適用マイグレーションを適用する。最新ならエラーなしで返る。
func RunMigrations(databaseURL string) error {
	_, err := ApplyMigrations(databaseURL, MigrationPlan{Action: MigrateUp})
	return err
}

// ApplyMigrations は plan を実行し、実行後のバージョンを返す。
func ApplyMigrations(databaseURL string, plan MigrationPlan) (MigrationStatus, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer m.Close()

	switch plan.Action {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Steps(-plan.Steps)
	case MigrateVersion:
	default:
		return MigrationStatus{}, fmt.Errorf("unknown migrate action: %q", plan.Action)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationStatus{}, fmt.Errorf("failed to run migrations (%s): %w", plan.Action, err)
	}

	return migrationStatus(m)
}

func migrationStatus(m *migrate.Migrate) (MigrationStatus, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to read migration version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/domain"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// pingTimeout bounds the connectivity check at open time.
const pingTimeout = 5 * time.Second

func init() {
	// modernc registers as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Repository implements app.Repository on sqlite or postgres.
type Repository struct {
	db     *sqlx.DB
	driver string
}

var _ app.Repository = (*Repository)(nil)

// Open opens a sqlite database file, creating its directory when needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	return openSQLite(dsn)
}

// OpenInMemory opens a private in-memory sqlite database.
func OpenInMemory() (*Repository, error) {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	return openSQLite(dsn)
}

func openSQLite(dsn string) (*Repository, error) {
	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers; waiting callers hit their deadline
	// and surface as transient failures.
	db.SetMaxOpenConns(1)
	return finishOpen(db, DriverSQLite)
}

// OpenPostgres connects to a postgres database by DSN.
func OpenPostgres(dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return finishOpen(db, DriverPostgres)
}

// OpenDriver dispatches on driver name.
func OpenDriver(driver, path, dsn string) (*Repository, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "", DriverSQLite:
		return Open(path)
	case DriverPostgres:
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func finishOpen(db *sqlx.DB, driver string) (*Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	repo := &Repository{db: db, driver: driver}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the store answers.
func (r *Repository) Ping(ctx context.Context) error {
	return classify(r.db.PingContext(ctx))
}

// Driver returns the driver name in use.
func (r *Repository) Driver() string {
	return r.driver
}

// InTx runs fn in one transaction. Postgres runs serializable so invariant
// checks inside fn cannot race concurrent writers.
func (r *Repository) InTx(ctx context.Context, fn func(app.Tx) error) (err error) {
	var opts *sql.TxOptions
	if r.driver == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := r.db.BeginTxx(ctx, opts)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&txStore{tx: tx}); err != nil {
		return classify(err)
	}
	if err = ctx.Err(); err != nil {
		return classify(err)
	}
	if err = tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// migrate creates the schema and backfills legacy rows.
func (r *Repository) migrate(ctx context.Context) error {
	eventID := `id INTEGER PRIMARY KEY AUTOINCREMENT`
	if r.driver == DriverPostgres {
		eventID = `id BIGSERIAL PRIMARY KEY`
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS memberships (
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY(project_id, user_id),
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS task_statuses (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			label TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL DEFAULT 0,
			show_strike_through INTEGER NOT NULL DEFAULT 0,
			hidden INTEGER NOT NULL DEFAULT 0,
			requires_comment INTEGER NOT NULL DEFAULT 0,
			allows_comment INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			status_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		)`,
		// comments.status_id is a snapshot of the workflow state, so it is not a foreign key.
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			body TEXT NOT NULL,
			status_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE,
			FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS change_events (
			` + eventID + `,
			project_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_parent ON projects(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_task_statuses_project_order ON task_statuses(project_id, sort_order, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_parent ON tasks(project_id, parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_task_created_at ON comments(task_id, created_at ASC, id ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_project_id ON change_events(project_id, id DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", r.driver, err)
		}
	}
	return r.backfillStatusColors(ctx)
}

// backfillStatusColors derives a color for every status row stored without one.
func (r *Repository) backfillStatusColors(ctx context.Context) error {
	var rows []struct {
		ID    string `db:"id"`
		Label string `db:"label"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, label FROM task_statuses WHERE TRIM(color) = ''`); err != nil {
		return fmt.Errorf("select statuses without color: %w", err)
	}
	for _, row := range rows {
		color := domain.BackfillColor(row.Label)
		if _, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE task_statuses SET color = ? WHERE id = ?`), color, row.ID); err != nil {
			return fmt.Errorf("backfill status color %q: %w", row.ID, err)
		}
	}
	return nil
}

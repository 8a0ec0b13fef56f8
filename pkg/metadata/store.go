package metadata

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/modeld/modeld/pkg/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds catalog store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the SQLite-backed catalog of model instances.
type Store struct {
	db   *sql.DB
	path string
	cfg  Config
}

// NewStore creates a catalog store; Init opens the database.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &Store{path: cfg.Path, cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded SQL files.
func (s *Store) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is usable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

const recordColumns = `id, name, title, description, tags, source, model, can_input, can_output, can_update, created_by, created_at, updated_at`

// CreateRecord inserts a catalog row for a new instance.
func (s *Store) CreateRecord(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO models (name, title, description, tags, source, model, can_input, can_output, can_update, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		rec.Name,
		rec.Title,
		rec.Description,
		joinTags(rec.Tags),
		rec.Source,
		rec.Model,
		rec.CanInput,
		rec.CanOutput,
		rec.CanUpdate,
		rec.CreatedBy,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.NewConflict("catalog record already exists").WithResource(rec.Name)
		}
		return model.NewIOFailure("failed to create catalog record", err).WithResource(rec.Name)
	}

	rec.ID, _ = res.LastInsertId()
	return nil
}

// GetRecord retrieves a catalog row by instance name.
func (s *Store) GetRecord(ctx context.Context, name string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM models WHERE name = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFound("catalog record not found").WithResource(name)
	}
	if err != nil {
		return nil, model.NewIOFailure("failed to get catalog record", err).WithResource(name)
	}
	return rec, nil
}

// UpdateRecord overwrites the descriptive fields of a catalog row.
func (s *Store) UpdateRecord(ctx context.Context, name string, title, description, source string, tags []string) error {
	query := `
		UPDATE models
		SET title = ?, description = ?, source = ?, tags = ?, updated_at = ?
		WHERE name = ?
	`

	res, err := s.db.ExecContext(ctx, query, title, description, source, joinTags(tags), time.Now().UTC(), name)
	if err != nil {
		return model.NewIOFailure("failed to update catalog record", err).WithResource(name)
	}
	return s.requireRow(res, name)
}

// Touch stamps the updated_at column for name. The orchestrator calls
// this when a job mutates an instance.
func (s *Store) Touch(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE models SET updated_at = ? WHERE name = ?`, time.Now().UTC(), name)
	if err != nil {
		return model.NewIOFailure("failed to touch catalog record", err).WithResource(name)
	}
	return s.requireRow(res, name)
}

// DeleteRecord removes the catalog row for name. Deleting a missing
// row is not an error: the catalog may lag behind the storage root.
func (s *Store) DeleteRecord(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE name = ?`, name); err != nil {
		return model.NewIOFailure("failed to delete catalog record", err).WithResource(name)
	}
	return nil
}

// Search lists catalog rows matching the filter, newest first.
func (s *Store) Search(ctx context.Context, f Filter) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM models`
	var conds []string
	var args []any

	if f.Model != "" {
		conds = append(conds, "model = ?")
		args = append(args, f.Model)
	}
	if f.Tag != "" {
		conds = append(conds, "(',' || tags || ',') LIKE ?")
		args = append(args, "%,"+f.Tag+",%")
	}
	if f.Text != "" {
		conds = append(conds, "(name LIKE ? OR title LIKE ? OR description LIKE ?)")
		pat := "%" + f.Text + "%"
		args = append(args, pat, pat, pat)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY updated_at DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.NewIOFailure("failed to search catalog", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, model.NewIOFailure("failed to scan catalog record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewIOFailure("failed to iterate catalog records", err)
	}
	return records, nil
}

func (s *Store) requireRow(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return model.NewIOFailure("failed to get rows affected", err).WithResource(name)
	}
	if n == 0 {
		return model.NewNotFound("catalog record not found").WithResource(name)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	rec := &Record{}
	var tags string
	err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Title,
		&rec.Description,
		&tags,
		&rec.Source,
		&rec.Model,
		&rec.CanInput,
		&rec.CanOutput,
		&rec.CanUpdate,
		&rec.CreatedBy,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Tags = splitTags(tags)
	return rec, nil
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

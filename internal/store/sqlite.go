package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pritzvi/linked-out/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

const sessionColumns = `s.id, s.phase, s.search_kind, s.search_label, s.profiles_needed, s.result_path, s.failure_reason, s.started_at, s.ended_at,
		(SELECT COUNT(*) FROM session_profiles p WHERE p.session_id = s.id AND p.status = 'completed'),
		(SELECT COUNT(*) FROM session_profiles p WHERE p.session_id = s.id AND p.status = 'failed')`

func (s *SQLiteStore) CreateSession(ctx context.Context, rec *models.SessionRecord) error {
	if rec.ID == "" {
		rec.ID = newULID()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.Phase == "" {
		rec.Phase = models.PhaseRunning
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, phase, search_kind, search_label, profiles_needed, result_path, failure_reason, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Phase), string(rec.SearchKind), rec.SearchLabel,
		rec.ProfilesNeeded, rec.ResultPath, rec.FailureReason, rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinishSession(ctx context.Context, rec *models.SessionRecord) error {
	if rec.EndedAt == nil {
		now := time.Now().UTC()
		rec.EndedAt = &now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET phase = ?, result_path = ?, failure_reason = ?, ended_at = ? WHERE id = ?`,
		string(rec.Phase), rec.ResultPath, rec.FailureReason, *rec.EndedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session not found: %s", rec.ID)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sessions[0], nil
}

// ListSessions returns sessions newest first. A limit <= 0 returns all.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*models.SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s ORDER BY s.started_at DESC, s.id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]*models.SessionRecord, error) {
	defer func() { _ = rows.Close() }()

	var sessions []*models.SessionRecord
	for rows.Next() {
		rec := &models.SessionRecord{}
		var phase, kind string
		var endedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &phase, &kind, &rec.SearchLabel, &rec.ProfilesNeeded,
			&rec.ResultPath, &rec.FailureReason, &rec.StartedAt, &endedAt,
			&rec.CompletedCount, &rec.FailedCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.Phase = models.Phase(phase)
		rec.SearchKind = models.SearchKind(kind)
		if endedAt.Valid {
			rec.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// --- Profiles ---

// UpsertProfile stores the latest state of a profile. First-seen order is
// kept in seq so ListProfiles matches the live discovery order.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, sessionID string, p models.ProfileRecord) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_profiles (session_id, profile_id, name, url, status, message, seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM session_profiles WHERE session_id = ?), ?)
		ON CONFLICT (session_id, profile_id) DO UPDATE SET
			name = excluded.name, url = excluded.url, status = excluded.status,
			message = excluded.message, updated_at = excluded.updated_at`,
		sessionID, p.ID, p.Name, p.URL, string(p.Status), p.Message, sessionID, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context, sessionID string) ([]models.ProfileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile_id, name, url, status, message, updated_at
		FROM session_profiles WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []models.ProfileRecord
	for rows.Next() {
		var p models.ProfileRecord
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &p.URL, &status, &p.Message, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.Status = models.ProfileStatus(status)
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id                  TEXT PRIMARY KEY,
	title               TEXT NOT NULL,
	original_filename   TEXT NOT NULL,
	file_path           TEXT NOT NULL,
	file_type           TEXT NOT NULL,
	file_size           INTEGER NOT NULL,
	status              TEXT NOT NULL,
	extracted_text      TEXT NOT NULL DEFAULT '',
	cat_narrative       TEXT NOT NULL DEFAULT '',
	formatted_narrative TEXT NOT NULL DEFAULT '',
	pdf_path            TEXT NOT NULL DEFAULT '',
	error_message       TEXT NOT NULL DEFAULT '',
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL,
	run_id              TEXT NOT NULL DEFAULT '',
	run_expires_at      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(created_at);
`

const projectColumns = `id, title, original_filename, file_path, file_type, file_size, status,
	extracted_text, cat_narrative, formatted_narrative, pdf_path, error_message, created_at, updated_at,
	run_id, run_expires_at`

// patchColumns maps Patch field names to their column.
var patchColumns = map[string]string{
	"extractedText":      "extracted_text",
	"catNarrative":       "cat_narrative",
	"formattedNarrative": "formatted_narrative",
	"pdfPath":            "pdf_path",
	"errorMessage":       "error_message",
}

// SQLite is the ProjectStore used by local CLI runs.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and migrates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes
	// writers without SQLITE_BUSY handling.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLite) Create(ctx context.Context, p *models.Project) error {
	if err := prepareCreate(p, uuid.NewString, s.now()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', 0)`,
		p.ID, p.Title, p.OriginalFilename, p.FilePath, string(p.FileType), p.FileSize, string(p.Status),
		p.ExtractedText, p.CatNarrative, p.FormattedNarrative, p.PDFPath, p.ErrorMessage,
		p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return p, err
}

// Transition is a single conditional UPDATE. When no row matches, a
// follow-up read tells a missing project apart from a status conflict.
func (s *SQLite) Transition(ctx context.Context, id string, from []models.Status, to models.Status, patch models.Patch) (*models.Project, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("transition for project %s needs at least one source status", id)
	}
	for _, f := range from {
		if !f.CanTransition(to) {
			return nil, fmt.Errorf("illegal transition %s -> %s for project %s", f, to, id)
		}
	}

	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(to), s.now().UnixNano()}
	for _, f := range patch.Fields() {
		sets = append(sets, patchColumns[f.Name]+" = ?")
		args = append(args, f.Value)
	}
	args = append(args, id)
	placeholders := make([]string, len(from))
	for i, f := range from {
		placeholders[i] = "?"
		args = append(args, string(f))
	}
	query := fmt.Sprintf("UPDATE projects SET %s WHERE id = ? AND status IN (%s)",
		strings.Join(sets, ", "), strings.Join(placeholders, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update project %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &ConflictError{ProjectID: id, Got: cur.Status, Want: from}
	}
	return cur, nil
}

// Claim takes the lease in the same conditional UPDATE that moves the
// status, so a held lease and a moved status both leave zero rows.
func (s *SQLite) Claim(ctx context.Context, id string, from, to models.Status, lease models.Lease) (*models.Project, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("illegal transition %s -> %s for project %s", from, to, id)
	}
	now := s.now().UnixNano()
	res, err := s.db.ExecContext(ctx, `UPDATE projects
		SET status = ?, updated_at = ?, run_id = ?, run_expires_at = ?
		WHERE id = ? AND status = ? AND (run_id = '' OR run_expires_at <= ?)`,
		string(to), now, lease.RunID, lease.ExpiresAt.UnixNano(), id, string(from), now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim project %s: %w", id, err)
	}
	return s.afterConditionalUpdate(ctx, res, id, from)
}

func (s *SQLite) Release(ctx context.Context, id, runID string, from, to models.Status, patch models.Patch) (*models.Project, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("illegal transition %s -> %s for project %s", from, to, id)
	}
	sets := []string{"status = ?", "updated_at = ?", "run_id = ''", "run_expires_at = 0"}
	args := []any{string(to), s.now().UnixNano()}
	for _, f := range patch.Fields() {
		sets = append(sets, patchColumns[f.Name]+" = ?")
		args = append(args, f.Value)
	}
	args = append(args, id, string(from), runID)
	query := fmt.Sprintf("UPDATE projects SET %s WHERE id = ? AND status = ? AND run_id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to release project %s: %w", id, err)
	}
	return s.afterConditionalUpdate(ctx, res, id, from)
}

func (s *SQLite) afterConditionalUpdate(ctx context.Context, res sql.Result, id string, from models.Status) (*models.Project, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &ConflictError{ProjectID: id, Got: cur.Status, Want: []models.Status{from}, RunID: cur.RunID}
	}
	return cur, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()
	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*models.Project, error) {
	var (
		p                         models.Project
		fileType, status          string
		created, updated, expires int64
	)
	err := row.Scan(&p.ID, &p.Title, &p.OriginalFilename, &p.FilePath, &fileType, &p.FileSize, &status,
		&p.ExtractedText, &p.CatNarrative, &p.FormattedNarrative, &p.PDFPath, &p.ErrorMessage,
		&created, &updated, &p.RunID, &expires)
	if err != nil {
		return nil, err
	}
	if p.Status, err = models.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("project %s: %w", p.ID, err)
	}
	p.FileType = models.FileType(fileType)
	p.CreatedAt = time.Unix(0, created).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()
	if expires != 0 {
		p.RunExpiresAt = time.Unix(0, expires).UTC()
	}
	return &p, nil
}

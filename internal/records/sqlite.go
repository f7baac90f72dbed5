package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rhyzero/file-organizer/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS document_extractions (
	id                 TEXT PRIMARY KEY,
	file_name          TEXT NOT NULL,
	remote_file_id     TEXT NOT NULL UNIQUE,
	mime_type          TEXT NOT NULL DEFAULT '',
	extracted_text     TEXT,
	extraction_time    TEXT NOT NULL,
	status             TEXT NOT NULL,
	tags               TEXT NOT NULL DEFAULT '',
	tag_classification TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_extractions_status ON document_extractions(status);
`

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `SELECT id, file_name, remote_file_id, mime_type, extracted_text,
	extraction_time, status, tags, tag_classification FROM document_extractions`

// SQLiteStore is the relational record store.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, rec *models.ExtractionRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("%w: generate id: %v", models.ErrPersistence, err)
	}
	if rec.ExtractionTime.IsZero() {
		rec.ExtractionTime = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO document_extractions
		(id, file_name, remote_file_id, mime_type, extracted_text, extraction_time, status, tags, tag_classification)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), rec.FileName, rec.RemoteFileID, rec.MimeType, nullString(rec.ExtractedText),
		rec.ExtractionTime.UTC().Format(timeLayout), rec.Status, rec.Tags, rec.TagClassification)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", models.ErrDuplicateRecord, rec.RemoteFileID)
		}
		return fmt.Errorf("%w: insert record: %v", models.ErrPersistence, err)
	}
	rec.ID = id.String()
	return nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*models.ExtractionRecord, error) {
	return s.getOne(ctx, selectColumns+` WHERE id = ?`, id)
}

func (s *SQLiteStore) GetByRemoteID(ctx context.Context, remoteFileID string) (*models.ExtractionRecord, error) {
	return s.getOne(ctx, selectColumns+` WHERE remote_file_id = ?`, remoteFileID)
}

func (s *SQLiteStore) UpdateFileName(ctx context.Context, remoteFileID, fileName string) error {
	return s.execOne(ctx, `UPDATE document_extractions SET file_name = ? WHERE remote_file_id = ?`, fileName, remoteFileID)
}

func (s *SQLiteStore) UpdateTags(ctx context.Context, id string, tags, snapshot *string) error {
	return s.execOne(ctx, `UPDATE document_extractions
		SET tags = COALESCE(?, tags), tag_classification = COALESCE(?, tag_classification)
		WHERE id = ?`, nullString(tags), nullString(snapshot), id)
}

func (s *SQLiteStore) UpdateExtraction(ctx context.Context, id string, text *string, status string) error {
	return s.execOne(ctx, `UPDATE document_extractions
		SET extracted_text = ?, status = ?, extraction_time = ?
		WHERE id = ?`, nullString(text), status, time.Now().UTC().Format(timeLayout), id)
}

func (s *SQLiteStore) DeleteByRemoteID(ctx context.Context, remoteFileID string) error {
	return s.execOne(ctx, `DELETE FROM document_extractions WHERE remote_file_id = ?`, remoteFileID)
}

func (s *SQLiteStore) FindByTag(ctx context.Context, tag string) ([]models.ExtractionRecord, error) {
	return s.FindByTags(ctx, []string{tag})
}

// FindByTags uses instr() so matching stays case-sensitive.
func (s *SQLiteStore) FindByTags(ctx context.Context, tags []string) ([]models.ExtractionRecord, error) {
	tags = nonEmpty(tags)
	if len(tags) == 0 {
		return s.All(ctx)
	}
	conds := make([]string, len(tags))
	args := make([]any, len(tags))
	for i, t := range tags {
		conds[i] = "instr(tags, ?) > 0"
		args[i] = t
	}
	return s.query(ctx, selectColumns+` WHERE `+strings.Join(conds, " AND ")+` ORDER BY extraction_time DESC`, args...)
}

func (s *SQLiteStore) FindByKeyword(ctx context.Context, keyword string) ([]models.ExtractionRecord, error) {
	return s.query(ctx, selectColumns+` WHERE extracted_text IS NOT NULL AND instr(extracted_text, ?) > 0
		ORDER BY extraction_time DESC`, keyword)
}

func (s *SQLiteStore) All(ctx context.Context) ([]models.ExtractionRecord, error) {
	return s.query(ctx, selectColumns+` ORDER BY extraction_time DESC`)
}

func (s *SQLiteStore) ListFailed(ctx context.Context) ([]models.ExtractionRecord, error) {
	return s.query(ctx, selectColumns+` WHERE substr(status, 1, ?) = ? ORDER BY extraction_time`,
		len(models.StatusFailedPrefix), models.StatusFailedPrefix)
}

func (s *SQLiteStore) getOne(ctx context.Context, q string, args ...any) (*models.ExtractionRecord, error) {
	recs, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, models.ErrRecordNotFound
	}
	return &recs[0], nil
}

func (s *SQLiteStore) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]models.ExtractionRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", models.ErrPersistence, err)
	}
	defer rows.Close()

	var out []models.ExtractionRecord
	for rows.Next() {
		var (
			rec     models.ExtractionRecord
			text    sql.NullString
			extTime string
		)
		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.RemoteFileID, &rec.MimeType, &text,
			&extTime, &rec.Status, &rec.Tags, &rec.TagClassification); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", models.ErrPersistence, err)
		}
		if text.Valid {
			t := text.String
			rec.ExtractedText = &t
		}
		if ts, err := time.Parse(time.RFC3339Nano, extTime); err == nil {
			rec.ExtractionTime = ts
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: iterate records: %v", models.ErrPersistence, err)
	}
	return out, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

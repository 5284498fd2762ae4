package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/lectura/internal/domain"
	"github.com/iconidentify/lectura/pkg/crypto"
)

// SQLiteRecordingRepository persists recordings in SQLite. CDN policy and
// signature tokens are sealed with the configured key before they hit the
// database; the key pair ID is a public identifier and stays plain.
type SQLiteRecordingRepository struct {
	db  *sql.DB
	key string
}

// NewSQLiteRecordingRepository opens (and migrates) the recordings database.
func NewSQLiteRecordingRepository(dbPath, encryptionKey string) (*SQLiteRecordingRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			base_url TEXT NOT NULL,
			start_index INTEGER NOT NULL,
			end_index INTEGER NOT NULL,
			key_pair_id TEXT NOT NULL DEFAULT '',
			policy_sealed BLOB,
			signature_sealed BLOB,
			clip_duration INTEGER NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			pattern_prefix TEXT,
			pattern_padding INTEGER,
			pattern_suffix TEXT,
			output_dir TEXT NOT NULL DEFAULT '',
			video_path TEXT NOT NULL DEFAULT '',
			segment_count INTEGER NOT NULL DEFAULT 0,
			clip_count INTEGER NOT NULL DEFAULT 0,
			duration_seconds REAL NOT NULL DEFAULT 0,
			transcript_path TEXT NOT NULL DEFAULT '',
			notes_path TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			processed_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_recordings_status ON recordings(status);
		CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings(created_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteRecordingRepository{db: db, key: encryptionKey}, nil
}

// Close closes the underlying database.
func (r *SQLiteRecordingRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRecordingRepository) seal(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	return crypto.Seal([]byte(value), r.key)
}

func (r *SQLiteRecordingRepository) unseal(blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}
	plain, err := crypto.Unseal(blob, r.key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Create persists a new recording.
func (r *SQLiteRecordingRepository) Create(ctx context.Context, rec *domain.Recording) error {
	policy, err := r.seal(rec.Auth.Policy)
	if err != nil {
		return fmt.Errorf("seal policy: %w", err)
	}
	signature, err := r.seal(rec.Auth.Signature)
	if err != nil {
		return fmt.Errorf("seal signature: %w", err)
	}

	var prefix, suffix sql.NullString
	var padding sql.NullInt64
	if rec.Pattern != nil {
		prefix = sql.NullString{String: rec.Pattern.Prefix, Valid: true}
		padding = sql.NullInt64{Int64: int64(rec.Pattern.Padding), Valid: true}
		suffix = sql.NullString{String: rec.Pattern.Suffix, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recordings (
			id, title, base_url, start_index, end_index,
			key_pair_id, policy_sealed, signature_sealed,
			clip_duration, status, error,
			pattern_prefix, pattern_padding, pattern_suffix,
			output_dir, video_path, segment_count, clip_count,
			duration_seconds, transcript_path, notes_path,
			created_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.Title, rec.BaseURL, rec.StartIndex, rec.EndIndex,
		rec.Auth.KeyPairID, policy, signature,
		rec.ClipDuration, rec.Status, rec.Error,
		prefix, padding, suffix,
		rec.OutputDir, rec.VideoPath, rec.SegmentCount, rec.ClipCount,
		rec.DurationSeconds, rec.TranscriptPath, rec.NotesPath,
		rec.CreatedAt, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

const recordingColumns = `
	id, title, base_url, start_index, end_index,
	key_pair_id, policy_sealed, signature_sealed,
	clip_duration, status, error,
	pattern_prefix, pattern_padding, pattern_suffix,
	output_dir, video_path, segment_count, clip_count,
	duration_seconds, transcript_path, notes_path,
	created_at, processed_at
`

func (r *SQLiteRecordingRepository) scan(row interface {
	Scan(dest ...any) error
}) (*domain.Recording, error) {
	rec := &domain.Recording{}
	var policy, signature []byte
	var prefix, suffix sql.NullString
	var padding sql.NullInt64
	var processedAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.Title, &rec.BaseURL, &rec.StartIndex, &rec.EndIndex,
		&rec.Auth.KeyPairID, &policy, &signature,
		&rec.ClipDuration, &rec.Status, &rec.Error,
		&prefix, &padding, &suffix,
		&rec.OutputDir, &rec.VideoPath, &rec.SegmentCount, &rec.ClipCount,
		&rec.DurationSeconds, &rec.TranscriptPath, &rec.NotesPath,
		&rec.CreatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.Auth.Policy, err = r.unseal(policy); err != nil {
		return nil, fmt.Errorf("unseal policy: %w", err)
	}
	if rec.Auth.Signature, err = r.unseal(signature); err != nil {
		return nil, fmt.Errorf("unseal signature: %w", err)
	}

	if prefix.Valid {
		rec.Pattern = &domain.SegmentNaming{
			Prefix:  prefix.String,
			Padding: int(padding.Int64),
			Suffix:  suffix.String,
		}
	}
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}

	return rec, nil
}

// Get retrieves a recording by ID.
func (r *SQLiteRecordingRepository) Get(ctx context.Context, id domain.RecordingID) (*domain.Recording, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)

	rec, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRecordingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// List returns recordings, newest first, optionally filtered by status.
func (r *SQLiteRecordingRepository) List(ctx context.Context, status *domain.RecordingStatus, limit, offset int) ([]*domain.Recording, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + recordingColumns + ` FROM recordings`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var result []*domain.Recording
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count returns the number of recordings.
func (r *SQLiteRecordingRepository) Count(ctx context.Context, status *domain.RecordingStatus) (int, error) {
	query := `SELECT COUNT(*) FROM recordings`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recordings: %w", err)
	}
	return count, nil
}

// Update persists the recording's mutable fields.
func (r *SQLiteRecordingRepository) Update(ctx context.Context, rec *domain.Recording) error {
	var prefix, suffix sql.NullString
	var padding sql.NullInt64
	if rec.Pattern != nil {
		prefix = sql.NullString{String: rec.Pattern.Prefix, Valid: true}
		padding = sql.NullInt64{Int64: int64(rec.Pattern.Padding), Valid: true}
		suffix = sql.NullString{String: rec.Pattern.Suffix, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE recordings SET
			status = ?, error = ?,
			pattern_prefix = ?, pattern_padding = ?, pattern_suffix = ?,
			output_dir = ?, video_path = ?, segment_count = ?, clip_count = ?,
			duration_seconds = ?, transcript_path = ?, notes_path = ?,
			processed_at = ?
		WHERE id = ?
	`,
		rec.Status, rec.Error,
		prefix, padding, suffix,
		rec.OutputDir, rec.VideoPath, rec.SegmentCount, rec.ClipCount,
		rec.DurationSeconds, rec.TranscriptPath, rec.NotesPath,
		rec.ProcessedAt,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	return r.requireRow(result)
}

// UpdateStatus changes recording status.
func (r *SQLiteRecordingRepository) UpdateStatus(ctx context.Context, id domain.RecordingID, status domain.RecordingStatus, errMsg string) error {
	query := `UPDATE recordings SET status = ?, error = ? WHERE id = ?`
	args := []any{status, errMsg, id}

	if status == domain.StatusCompleted || status == domain.StatusFailed {
		query = `UPDATE recordings SET status = ?, error = ?, processed_at = ? WHERE id = ?`
		args = []any{status, errMsg, time.Now(), id}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return r.requireRow(result)
}

// Delete removes a recording row. Files on disk are not touched.
func (r *SQLiteRecordingRepository) Delete(ctx context.Context, id domain.RecordingID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	return r.requireRow(result)
}

func (r *SQLiteRecordingRepository) requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrRecordingNotFound
	}
	return nil
}

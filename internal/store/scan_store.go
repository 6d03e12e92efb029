package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vbonduro/calscan/internal/domain"
)

// DefaultListLimit bounds history queries that do not pass a limit.
const DefaultListLimit = 50

type ScanStore struct {
	db *sql.DB
}

func NewScanStore(db *sql.DB) *ScanStore {
	return &ScanStore{db: db}
}

func (s *ScanStore) Create(ctx context.Context, kind domain.ResultKind, mimeType, text string) (*domain.Scan, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid result kind %q", kind)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (kind, mime_type, result_text) VALUES (?, ?, ?)
	`, string(kind), mimeType, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// Record stores a completed result; it satisfies scanner.Recorder.
func (s *ScanStore) Record(ctx context.Context, kind domain.ResultKind, mimeType, text string) error {
	_, err := s.Create(ctx, kind, mimeType, text)
	return err
}

func (s *ScanStore) GetByID(ctx context.Context, id int64) (*domain.Scan, error) {
	scan := &domain.Scan{}
	var kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, mime_type, result_text, created_at FROM scans WHERE id = ?
	`, id).Scan(&scan.ID, &kind, &scan.MimeType, &scan.Text, &scan.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}

	scan.Kind = domain.ResultKind(kind)
	return scan, nil
}

// List returns the newest scans first.
func (s *ScanStore) List(ctx context.Context, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, mime_type, result_text, created_at FROM scans
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return scanRows(rows)
}

// Search matches query case-insensitively against the result text.
func (s *ScanStore) Search(ctx context.Context, query string, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	pattern := "%" + strings.ToLower(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, mime_type, result_text, created_at FROM scans
		WHERE LOWER(result_text) LIKE ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search scans: %w", err)
	}
	return scanRows(rows)
}

func (s *ScanStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM scans WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("scan not found")
	}

	return nil
}

func scanRows(rows *sql.Rows) ([]*domain.Scan, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var scans []*domain.Scan
	for rows.Next() {
		scan := &domain.Scan{}
		var kind string
		if err := rows.Scan(&scan.ID, &kind, &scan.MimeType, &scan.Text, &scan.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scan.Kind = domain.ResultKind(kind)
		scans = append(scans, scan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scans: %w", err)
	}

	return scans, nil
}

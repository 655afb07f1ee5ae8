package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dhcgn/mail-merge/contacts"
	"github.com/dhcgn/mail-merge/model"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{1, `
		CREATE TABLE IF NOT EXISTS contacts (
			row_num      INTEGER PRIMARY KEY,
			name         TEXT NOT NULL DEFAULT '',
			last_name    TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT '',
			company      TEXT NOT NULL DEFAULT '',
			title        TEXT NOT NULL DEFAULT '',
			custom1      TEXT NOT NULL DEFAULT '',
			custom2      TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT '',
			status_color TEXT NOT NULL DEFAULT '',
			updated_at   DATETIME
		);
		CREATE TABLE IF NOT EXISTS template (
			position INTEGER PRIMARY KEY,
			label    TEXT NOT NULL,
			value    TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
		INSERT INTO schema_version (version) VALUES (1);`},
}

// SQLite keeps the contact table and template in a local database. Status
// writes are committed immediately, so Flush has nothing to do.
type SQLite struct {
	db *sqlx.DB
}

type contactRow struct {
	RowNum  int    `db:"row_num"`
	Name    string `db:"name"`
	Last    string `db:"last_name"`
	Email   string `db:"email"`
	Company string `db:"company"`
	Title   string `db:"title"`
	Custom1 string `db:"custom1"`
	Custom2 string `db:"custom2"`
	Status  string `db:"status"`
}

func (r contactRow) cells() []string {
	return []string{r.Name, r.Last, r.Email, r.Company, r.Title, r.Custom1, r.Custom2, r.Status}
}

// OpenSQLite opens (or creates) the database at path, enables WAL mode and
// applies pending migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLite) ReadRows(ctx context.Context) ([][]string, error) {
	var list []contactRow
	err := s.db.SelectContext(ctx, &list, `
		SELECT row_num, name, last_name, email, company, title, custom1, custom2, status
		FROM contacts ORDER BY row_num`)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}

	rows := [][]string{append([]string(nil), contacts.Header...)}
	for _, c := range list {
		// Gaps become empty rows so row numbers stay aligned.
		for len(rows) < c.RowNum-1 {
			rows = append(rows, nil)
		}
		rows = append(rows, c.cells())
	}
	return rows, nil
}

func (s *SQLite) WriteStatus(ctx context.Context, row int, text string, color model.Color) error {
	return s.updateStatus(ctx, row, text, color.Hex())
}

func (s *SQLite) WriteStatusValue(ctx context.Context, row int, text string) error {
	return s.updateStatus(ctx, row, text, "")
}

func (s *SQLite) updateStatus(ctx context.Context, row int, text, color string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE contacts SET status = ?, status_color = ?, updated_at = ? WHERE row_num = ?",
		text, color, time.Now().UTC(), row,
	)
	if err != nil {
		return fmt.Errorf("updating status of row %d: %w", row, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status of row %d: %w", row, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, row)
	}
	return nil
}

func (s *SQLite) Flush(ctx context.Context) error { return nil }

func (s *SQLite) ClearStatuses(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "UPDATE contacts SET status = '', status_color = '', updated_at = ?", time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clearing statuses: %w", err)
	}
	return nil
}

// StatusColor returns the stored background of row's status, "" when unset.
func (s *SQLite) StatusColor(ctx context.Context, row int) (string, error) {
	var color string
	err := s.db.GetContext(ctx, &color, "SELECT status_color FROM contacts WHERE row_num = ?", row)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", ErrRowOutOfRange, row)
	}
	if err != nil {
		return "", fmt.Errorf("reading status color of row %d: %w", row, err)
	}
	return color, nil
}

func (s *SQLite) TemplateSheet(ctx context.Context) ([][]string, error) {
	var values []struct {
		Position int    `db:"position"`
		Value    string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &values, "SELECT position, value FROM template ORDER BY position"); err != nil {
		return nil, fmt.Errorf("querying template: %w", err)
	}
	cells := make([]string, len(TemplateLabels))
	for _, v := range values {
		if v.Position >= 0 && v.Position < len(cells) {
			cells[v.Position] = v.Value
		}
	}
	return templateRows(cells), nil
}

// SaveTemplate stores a template sheet, replacing the previous one.
func (s *SQLite) SaveTemplate(ctx context.Context, sheet [][]string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM template"); err != nil {
		return fmt.Errorf("clearing template: %w", err)
	}
	for i, label := range TemplateLabels {
		value := ""
		if i < len(sheet) && len(sheet[i]) > 1 {
			value = sheet[i][1]
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO template (position, label, value) VALUES (?, ?, ?)", i, label, value); err != nil {
			return fmt.Errorf("saving template row %q: %w", label, err)
		}
	}
	return tx.Commit()
}

// ImportCSV loads contacts from CSV with a header row. Columns are matched
// by header name, falling back to the canonical column order. With replace
// the existing contacts are dropped first; otherwise rows are appended after
// the last one. It returns the number of imported rows.
func (s *SQLite) ImportCSV(ctx context.Context, r io.Reader, replace bool) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading csv header: %w", err)
	}
	index := columnIndex(header)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM contacts"); err != nil {
			return 0, fmt.Errorf("clearing contacts: %w", err)
		}
	}
	var last int
	if err := tx.GetContext(ctx, &last, "SELECT COALESCE(MAX(row_num), 1) FROM contacts"); err != nil {
		return 0, fmt.Errorf("reading last row: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO contacts (row_num, name, last_name, email, company, title, custom1, custom2, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	count := 0
	now := time.Now().UTC()
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading csv line %d: %w", count+2, err)
		}
		cell := func(col int) string {
			i := index[col]
			if i < 0 || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		last++
		_, err = stmt.ExecContext(ctx, last,
			cell(contacts.ColName), cell(contacts.ColLastName), cell(contacts.ColEmail),
			cell(contacts.ColCompany), cell(contacts.ColTitle),
			cell(contacts.ColCustom1), cell(contacts.ColCustom2),
			cell(contacts.ColStatus), now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting row %d: %w", last, err)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return count, nil
}

// columnIndex maps each canonical column to its CSV position, -1 when absent.
func columnIndex(header []string) []int {
	index := make([]int, contacts.NumColumns)
	matched := false
	for col := range index {
		index[col] = -1
		for i, h := range header {
			if normalizeHeader(h) == normalizeHeader(contacts.Header[col]) {
				index[col] = i
				matched = true
				break
			}
		}
	}
	if !matched {
		for col := range index {
			index[col] = col
		}
	}
	return index
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

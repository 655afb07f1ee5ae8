// Package sheets keeps the contact table and template configuration in a
// Google spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"github.com/dhcgn/mail-merge/contacts"
	"github.com/dhcgn/mail-merge/gauth"
	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/store"
)

const (
	DefaultContactsSheet = "Contacts"
	DefaultTemplateSheet = "Template"
)

type Options struct {
	SpreadsheetID   string
	ContactsSheet   string
	TemplateSheet   string
	CredentialsFile string
	// Subject is impersonated by service account credentials.
	Subject string
}

// Store implements store.Store and store.TemplateSource on one spreadsheet.
type Store struct {
	svc  *sheetsapi.Service
	opts Options

	mu      sync.Mutex
	sheetID *int64
	rows    int
}

func New(ctx context.Context, opts Options) (*Store, error) {
	client, err := gauth.HTTPClient(ctx, opts.CredentialsFile, opts.Subject, gauth.ScopeSheets)
	if err != nil {
		return nil, err
	}
	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, opts)
}

func NewWithService(svc *sheetsapi.Service, opts Options) (*Store, error) {
	if opts.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if opts.ContactsSheet == "" {
		opts.ContactsSheet = DefaultContactsSheet
	}
	if opts.TemplateSheet == "" {
		opts.TemplateSheet = DefaultTemplateSheet
	}
	return &Store{svc: svc, opts: opts}, nil
}

func (s *Store) ReadRows(ctx context.Context) ([][]string, error) {
	rows, err := s.values(ctx, quote(s.opts.ContactsSheet))
	if err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}
	s.mu.Lock()
	s.rows = len(rows)
	s.mu.Unlock()
	return rows, nil
}

func (s *Store) TemplateSheet(ctx context.Context) ([][]string, error) {
	rows, err := s.values(ctx, quote(s.opts.TemplateSheet))
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return rows, nil
}

func (s *Store) values(ctx context.Context, rng string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.opts.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = fmt.Sprint(v)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func (s *Store) WriteStatus(ctx context.Context, row int, text string, color model.Color) error {
	if err := s.checkRow(row); err != nil {
		return err
	}
	id, err := s.contactsSheetID(ctx)
	if err != nil {
		return err
	}
	r, g, b := color.Float()
	req := &sheetsapi.BatchUpdateSpreadsheetRequest{Requests: []*sheetsapi.Request{{
		RepeatCell: &sheetsapi.RepeatCellRequest{
			Range: statusRange(id, int64(row-1), int64(row)),
			Cell: &sheetsapi.CellData{
				UserEnteredValue: &sheetsapi.ExtendedValue{StringValue: &text},
				UserEnteredFormat: &sheetsapi.CellFormat{
					BackgroundColor: &sheetsapi.Color{Red: r, Green: g, Blue: b},
				},
			},
			Fields: "userEnteredValue,userEnteredFormat.backgroundColor",
		},
	}}}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.opts.SpreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("write status of row %d: %w", row, err)
	}
	return nil
}

func (s *Store) WriteStatusValue(ctx context.Context, row int, text string) error {
	if err := s.checkRow(row); err != nil {
		return err
	}
	rng := fmt.Sprintf("%s!%s%d", quote(s.opts.ContactsSheet), columnLetter(contacts.StatusColumn), row)
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{{text}}}
	_, err := s.svc.Spreadsheets.Values.Update(s.opts.SpreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write status value of row %d: %w", row, err)
	}
	return nil
}

// Flush is a no-op: every Sheets API write is visible once it returns.
func (s *Store) Flush(ctx context.Context) error { return nil }

func (s *Store) ClearStatuses(ctx context.Context) error {
	col := columnLetter(contacts.StatusColumn)
	rng := fmt.Sprintf("%s!%s2:%s", quote(s.opts.ContactsSheet), col, col)
	if _, err := s.svc.Spreadsheets.Values.Clear(s.opts.SpreadsheetID, rng, &sheetsapi.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear statuses: %w", err)
	}

	id, err := s.contactsSheetID(ctx)
	if err != nil {
		return err
	}
	req := &sheetsapi.BatchUpdateSpreadsheetRequest{Requests: []*sheetsapi.Request{{
		RepeatCell: &sheetsapi.RepeatCellRequest{
			Range:  statusRange(id, 1, 0),
			Cell:   &sheetsapi.CellData{UserEnteredFormat: &sheetsapi.CellFormat{}},
			Fields: "userEnteredFormat.backgroundColor",
		},
	}}}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.opts.SpreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear status colors: %w", err)
	}
	return nil
}

func (s *Store) checkRow(row int) error {
	s.mu.Lock()
	known := s.rows
	s.mu.Unlock()
	if row < 2 || (known > 0 && row > known) {
		return fmt.Errorf("%w: %d", store.ErrRowOutOfRange, row)
	}
	return nil
}

func (s *Store) contactsSheetID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.sheetID != nil {
		id := *s.sheetID
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	ss, err := s.svc.Spreadsheets.Get(s.opts.SpreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.opts.ContactsSheet {
			id := sh.Properties.SheetId
			s.mu.Lock()
			s.sheetID = &id
			s.mu.Unlock()
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", s.opts.ContactsSheet)
}

// statusRange covers the status column of rows [start, end). An end of 0
// leaves the range open.
func statusRange(sheetID, start, end int64) *sheetsapi.GridRange {
	return &sheetsapi.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    start,
		EndRowIndex:      end,
		StartColumnIndex: contacts.StatusColumn - 1,
		EndColumnIndex:   contacts.StatusColumn,
		ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}
}

func quote(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// columnLetter converts a 1-based column number to A1 notation.
func columnLetter(col int) string {
	var out []byte
	for col > 0 {
		col--
		out = append([]byte{byte('A' + col%26)}, out...)
		col /= 26
	}
	return string(out)
}

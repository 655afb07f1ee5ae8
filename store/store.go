// Package store defines the contact table and template configuration
// backends, and the retrying status writer the orchestrator uses.
package store

import (
	"context"
	"errors"

	"github.com/dhcgn/mail-merge/model"
)

// ErrRowOutOfRange is returned when a status write targets a row that is not
// part of the table.
var ErrRowOutOfRange = errors.New("row out of range")

// Store is the tabular contact table. Rows are 1-based with the header in
// row 1, matching model.Contact.Row.
type Store interface {
	// ReadRows returns every row including the header.
	ReadRows(ctx context.Context) ([][]string, error)
	// WriteStatus sets the status cell of row together with its background.
	WriteStatus(ctx context.Context, row int, text string, color model.Color) error
	// WriteStatusValue sets only the text of the status cell.
	WriteStatusValue(ctx context.Context, row int, text string) error
	// Flush makes previous writes visible to other readers.
	Flush(ctx context.Context) error
	// ClearStatuses empties every status cell and its formatting.
	ClearStatuses(ctx context.Context) error
}

// TemplateSource provides the template configuration sheet: one setting per
// row, the value in the second column.
type TemplateSource interface {
	TemplateSheet(ctx context.Context) ([][]string, error)
}

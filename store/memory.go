package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dhcgn/mail-merge/model"
)

// Memory is an in-process Store and TemplateSource.
type Memory struct {
	mu        sync.Mutex
	rows      [][]string
	colors    map[int]model.Color
	template  [][]string
	statusCol int
	writes    []Write
}

// Write records one status write made to a Memory store.
type Write struct {
	Row       int
	Text      string
	Formatted bool
}

// NewMemory copies rows into a new store. statusCol is the 1-based status
// column.
func NewMemory(rows [][]string, statusCol int) *Memory {
	m := &Memory{colors: make(map[int]model.Color), statusCol: statusCol}
	for _, r := range rows {
		m.rows = append(m.rows, append([]string(nil), r...))
	}
	return m
}

// SetTemplate sets the rows returned by TemplateSheet.
func (m *Memory) SetTemplate(rows [][]string) {
	m.mu.Lock()
	m.template = rows
	m.mu.Unlock()
}

func (m *Memory) ReadRows(ctx context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, append([]string(nil), r...))
	}
	return out, nil
}

func (m *Memory) WriteStatus(ctx context.Context, row int, text string, color model.Color) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.set(row, text); err != nil {
		return err
	}
	m.colors[row] = color
	m.writes = append(m.writes, Write{Row: row, Text: text, Formatted: true})
	return nil
}

func (m *Memory) WriteStatusValue(ctx context.Context, row int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.set(row, text); err != nil {
		return err
	}
	delete(m.colors, row)
	m.writes = append(m.writes, Write{Row: row, Text: text})
	return nil
}

func (m *Memory) set(row int, text string) error {
	if row < 2 || row > len(m.rows) {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, row)
	}
	r := m.rows[row-1]
	for len(r) < m.statusCol {
		r = append(r, "")
	}
	r[m.statusCol-1] = text
	m.rows[row-1] = r
	return nil
}

func (m *Memory) Flush(ctx context.Context) error { return nil }

func (m *Memory) ClearStatuses(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 1; i < len(m.rows); i++ {
		if len(m.rows[i]) >= m.statusCol {
			m.rows[i][m.statusCol-1] = ""
		}
	}
	m.colors = make(map[int]model.Color)
	return nil
}

func (m *Memory) TemplateSheet(ctx context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.template, nil
}

// Status returns the status text of row.
func (m *Memory) Status(row int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row < 1 || row > len(m.rows) || len(m.rows[row-1]) < m.statusCol {
		return ""
	}
	return m.rows[row-1][m.statusCol-1]
}

// Color returns the background of row's status cell.
func (m *Memory) Color(row int) (model.Color, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colors[row]
	return c, ok
}

// Writes returns every status write in order.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

// Package contacts turns raw contact table rows into typed records.
package contacts

import (
	"strings"

	"github.com/dhcgn/mail-merge/address"
	"github.com/dhcgn/mail-merge/model"
)

// Column positions of the contact table, 0-based.
const (
	ColName = iota
	ColLastName
	ColEmail
	ColCompany
	ColTitle
	ColCustom1
	ColCustom2
	ColStatus

	NumColumns
)

// Header is the canonical header row.
var Header = []string{"Name", "Last Name", "Email", "Company", "Title", "Custom1", "Custom2", "Successfully Sent"}

// StatusColumn is the 1-based column holding the status.
const StatusColumn = ColStatus + 1

// Load parses rows, where rows[0] is the header. Rows without name, last name
// and email are skipped. Contact.Row is the 1-based table row.
func Load(rows [][]string) []model.Contact {
	if len(rows) <= 1 {
		return nil
	}

	out := make([]model.Contact, 0, len(rows)-1)
	for i, raw := range rows[1:] {
		c, ok := parseRow(raw)
		if !ok {
			continue
		}
		c.Row = i + 2
		out = append(out, c)
	}
	return out
}

func parseRow(raw []string) (model.Contact, bool) {
	cell := func(i int) string {
		if i < len(raw) {
			return strings.TrimSpace(raw[i])
		}
		return ""
	}

	c := model.Contact{
		Name:     cell(ColName),
		LastName: cell(ColLastName),
		RawEmail: cell(ColEmail),
		Company:  cell(ColCompany),
		Title:    cell(ColTitle),
		Custom1:  cell(ColCustom1),
		Custom2:  cell(ColCustom2),
		Status:   cell(ColStatus),
	}
	if c.Name == "" && c.LastName == "" && c.RawEmail == "" {
		return model.Contact{}, false
	}

	if c.RawEmail != "" {
		email, matches := address.Extract(c.RawEmail)
		c.Email = email
		c.MultiEmail = matches > 1
		c.InvalidEmail = email == ""
	} else {
		c.InvalidEmail = true
	}
	return c, true
}

// Summary describes a loaded contact list for the pre-send confirmation.
type Summary struct {
	Total       int
	Valid       int
	Invalid     int
	MultiEmail  int
	AlreadySent int
	Pending     int
}

// Summarize counts contacts by state.
func Summarize(list []model.Contact) Summary {
	var s Summary
	for _, c := range list {
		s.Total++
		if c.StatusKind().Success() {
			s.AlreadySent++
			continue
		}
		s.Pending++
		switch {
		case c.InvalidEmail:
			s.Invalid++
		default:
			s.Valid++
			if c.MultiEmail {
				s.MultiEmail++
			}
		}
	}
	return s
}

// FirstValid returns the first pending contact with a usable address, falling
// back to the first contact with any address.
func FirstValid(list []model.Contact) (model.Contact, bool) {
	for _, c := range list {
		if c.HasEmail() && !c.StatusKind().Success() {
			return c, true
		}
	}
	for _, c := range list {
		if c.HasEmail() {
			return c, true
		}
	}
	return model.Contact{}, false
}

// FreshRun reports whether no contact carries any status.
func FreshRun(list []model.Contact) bool {
	for _, c := range list {
		if c.Status != "" {
			return false
		}
	}
	return true
}

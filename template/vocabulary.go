// Package template personalizes subject and body text with contact data and
// checks templates for tag mistakes before a batch is sent.
package template

import (
	"strings"

	"github.com/dhcgn/mail-merge/model"
)

// Tag is one placeholder of the merge vocabulary.
type Tag struct {
	// Label is the canonical spelling, as written between the braces.
	Label string
	// contactOnly tags are only substituted when a contact is supplied.
	contactOnly bool
	value       func(first, last string, c *model.Contact) string
}

// Tags lists the vocabulary in display order.
var Tags = []Tag{
	{Label: "Name", value: func(first, _ string, _ *model.Contact) string { return first }},
	{Label: "Last Name", value: func(_, last string, _ *model.Contact) string { return last }},
	{Label: "Email", contactOnly: true, value: func(_, _ string, c *model.Contact) string { return c.Email }},
	{Label: "Company", contactOnly: true, value: func(_, _ string, c *model.Contact) string { return c.Company }},
	{Label: "Title", contactOnly: true, value: func(_, _ string, c *model.Contact) string { return c.Title }},
	{Label: "Custom1", contactOnly: true, value: func(_, _ string, c *model.Contact) string { return c.Custom1 }},
	{Label: "Custom2", contactOnly: true, value: func(_, _ string, c *model.Contact) string { return c.Custom2 }},
}

// normalizeTag folds case and inner whitespace so "{{ last   NAME }}"
// resolves to "last name".
func normalizeTag(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// LookupTag finds the vocabulary entry for the text between braces.
func LookupTag(inner string) (Tag, bool) {
	key := normalizeTag(inner)
	for _, tag := range Tags {
		if normalizeTag(tag.Label) == key {
			return tag, true
		}
	}
	return Tag{}, false
}

// Placeholder returns the tag in its brace form.
func (t Tag) Placeholder() string {
	return "{{" + t.Label + "}}"
}

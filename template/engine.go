package template

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"

	"github.com/dhcgn/mail-merge/model"
)

// tagPattern matches a complete tag, optionally escaped with a backslash.
var tagPattern = regexp.MustCompile(`\\?\{\{([^{}]*)\}\}`)

// Personalize substitutes the vocabulary tags in text. Name and Last Name
// come from first and last; the remaining tags are only replaced when c is
// not nil. Escaped tags (\{{Tag}}) come out as the literal {{Tag}}, and tags
// outside the vocabulary are left untouched.
func Personalize(text, first, last string, c *model.Contact) string {
	return substitute(text, first, last, c, nil)
}

// PersonalizeContact is Personalize with the names taken from c.
func PersonalizeContact(text string, c model.Contact) string {
	return Personalize(text, c.Name, c.LastName, &c)
}

func substitute(text, first, last string, c *model.Contact, escape func(string) string) string {
	return tagPattern.ReplaceAllStringFunc(text, func(match string) string {
		if match[0] == '\\' {
			return match[1:]
		}
		inner := match[2 : len(match)-2]
		tag, ok := LookupTag(inner)
		if !ok {
			return match
		}
		if tag.contactOnly && c == nil {
			return match
		}
		value := tag.value(first, last, c)
		if escape != nil {
			value = escape(value)
		}
		return value
	})
}

// Renderer personalizes a full message. Values placed into the HTML body are
// stripped of markup so contact data cannot inject HTML.
type Renderer struct {
	policy *bluemonday.Policy
}

// NewRenderer returns a Renderer using bluemonday's strict policy.
func NewRenderer() *Renderer {
	return &Renderer{policy: bluemonday.StrictPolicy()}
}

// Subject personalizes the subject line.
func (r *Renderer) Subject(subject string, c model.Contact) string {
	return PersonalizeContact(subject, c)
}

// Body personalizes an HTML body.
func (r *Renderer) Body(body string, c model.Contact) string {
	return substitute(body, c.Name, c.LastName, &c, r.policy.Sanitize)
}

package template

import (
	"testing"

	"github.com/dhcgn/mail-merge/model"
)

func TestPersonalize(t *testing.T) {
	contact := &model.Contact{
		Name:     "Jane",
		LastName: "Doe",
		Email:    "jane@example.com",
		Company:  "Acme",
		Title:    "CTO",
		Custom1:  "blue",
	}

	tests := []struct {
		name    string
		text    string
		contact *model.Contact
		want    string
	}{
		{"names", "Hi {{Name}} {{Last Name}}", nil, "Hi Jane Doe"},
		{"case and spacing", "Hi {{ name }} {{LAST   name}}", nil, "Hi Jane Doe"},
		{"contact tags without contact", "{{Company}}", nil, "{{Company}}"},
		{"contact tags", "{{Email}} {{company}} {{Title}} {{Custom1}}", contact, "jane@example.com Acme CTO blue"},
		{"missing value", "[{{Custom2}}]", contact, "[]"},
		{"unknown tag", "Hi {{Nickname}}", contact, "Hi {{Nickname}}"},
		{"escaped tag", `Use \{{Name}} for {{Name}}`, contact, "Use {{Name}} for Jane"},
		{"no recursion", "{{Name}}", &model.Contact{Name: "{{Company}}", Company: "Acme"}, "Jane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Personalize(tt.text, "Jane", "Doe", tt.contact)
			if got != tt.want {
				t.Errorf("Personalize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestPersonalizeValueNotExpanded(t *testing.T) {
	c := model.Contact{Name: "{{Company}}", Company: "Acme"}
	got := PersonalizeContact("Hi {{Name}}", c)
	if got != "Hi {{Company}}" {
		t.Errorf("PersonalizeContact() = %q, want values inserted verbatim", got)
	}
}

func TestRendererBodyStripsMarkup(t *testing.T) {
	r := NewRenderer()
	c := model.Contact{Name: `<script>alert(1)</script>Jane`, Company: "<b>Acme</b>"}

	body := r.Body("<p>Hi {{Name}} from {{Company}}</p>", c)
	if want := "<p>Hi Jane from Acme</p>"; body != want {
		t.Errorf("Body() = %q, want %q", body, want)
	}

	subject := r.Subject("News for {{Name}}", model.Contact{Name: "Jane"})
	if subject != "News for Jane" {
		t.Errorf("Subject() = %q, want %q", subject, "News for Jane")
	}
}

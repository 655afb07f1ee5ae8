package contacts

import (
	"testing"

	"github.com/dhcgn/mail-merge/model"
)

func TestLoad(t *testing.T) {
	rows := [][]string{
		Header,
		{" Jane ", "Doe", "Jane Doe <jane@example.com>", "Acme", "CTO", "x", "y", ""},
		{"", "", "", "", "", "", "", ""},
		{"John", "", "not-an-email"},
		{"Max", "", "max@example.com, other@example.com", "", "", "", "", "SENT SUCCESSFULLY"},
		{"NoMail"},
	}

	got := Load(rows)
	if len(got) != 4 {
		t.Fatalf("Load() returned %d contacts, want 4", len(got))
	}

	tests := []struct {
		idx          int
		row          int
		email        string
		invalid      bool
		multi        bool
		name, status string
	}{
		{0, 2, "jane@example.com", false, false, "Jane", ""},
		{1, 4, "", true, false, "John", ""},
		{2, 5, "max@example.com", false, true, "Max", "SENT SUCCESSFULLY"},
		{3, 6, "", true, false, "NoMail", ""},
	}
	for _, tt := range tests {
		c := got[tt.idx]
		if c.Row != tt.row || c.Email != tt.email || c.InvalidEmail != tt.invalid ||
			c.MultiEmail != tt.multi || c.Name != tt.name || c.Status != tt.status {
			t.Errorf("contact %d = %+v", tt.idx, c)
		}
	}
	if got[0].Company != "Acme" || got[0].Custom2 != "y" || got[0].RawEmail != "Jane Doe <jane@example.com>" {
		t.Errorf("fields not copied: %+v", got[0])
	}
}

func TestLoadHeaderOnly(t *testing.T) {
	if got := Load([][]string{Header}); len(got) != 0 {
		t.Errorf("Load() = %v, want empty", got)
	}
	if got := Load(nil); len(got) != 0 {
		t.Errorf("Load(nil) = %v, want empty", got)
	}
}

func TestSummarize(t *testing.T) {
	list := []model.Contact{
		{Email: "a@example.com"},
		{Email: "b@example.com", MultiEmail: true},
		{InvalidEmail: true},
		{Email: "c@example.com", Status: "SENT SUCCESSFULLY - REPLY"},
	}

	s := Summarize(list)
	want := Summary{Total: 4, Valid: 2, Invalid: 1, MultiEmail: 1, AlreadySent: 1, Pending: 3}
	if s != want {
		t.Errorf("Summarize() = %+v, want %+v", s, want)
	}
}

func TestFreshRunAndFirstValid(t *testing.T) {
	list := []model.Contact{
		{Row: 2, InvalidEmail: true},
		{Row: 3, Email: "a@example.com", Status: "SENT SUCCESSFULLY"},
		{Row: 4, Email: "b@example.com"},
	}
	if FreshRun(list) {
		t.Error("FreshRun() = true, want false")
	}
	if c, ok := FirstValid(list); !ok || c.Row != 4 {
		t.Errorf("FirstValid() = %+v, %v, want row 4", c, ok)
	}

	list[1].Status = ""
	if !FreshRun(list) {
		t.Error("FreshRun() = false, want true")
	}
}

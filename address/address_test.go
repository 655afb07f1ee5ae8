package address

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      string
		wantCount int
	}{
		{name: "empty", raw: "", want: "", wantCount: 0},
		{name: "whitespace", raw: "   ", want: "", wantCount: 0},
		{name: "plain", raw: "jane@example.com", want: "jane@example.com", wantCount: 1},
		{name: "trimmed", raw: "  jane@example.com \n", want: "jane@example.com", wantCount: 1},
		{name: "display name", raw: "Jane Doe <jane@example.com>", want: "jane@example.com", wantCount: 1},
		{name: "bracket preferred over first match", raw: "jd@old.org, Jane <jane@example.com>", want: "jane@example.com", wantCount: 2},
		{name: "first of many", raw: "a@example.com, b@example.com c@example.com", want: "a@example.com", wantCount: 3},
		{name: "plus and dots", raw: "first.last+tag@sub.example.co.uk", want: "first.last+tag@sub.example.co.uk", wantCount: 1},
		{name: "no tld", raw: "jane@localhost", want: "", wantCount: 0},
		{name: "not an email", raw: "call me maybe", want: "", wantCount: 0},
		{name: "one letter tld", raw: "jane@example.c", want: "", wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, count := Extract(tt.raw)
			if got != tt.want {
				t.Errorf("Extract(%q) = %q, want %q", tt.raw, got, tt.want)
			}
			if count != tt.wantCount {
				t.Errorf("Extract(%q) count = %d, want %d", tt.raw, count, tt.wantCount)
			}
		})
	}
}

func TestValid(t *testing.T) {
	tests := map[string]bool{
		"a@b.co":           true,
		"a@b.c":            true,
		"a@b":              false,
		"a b@example.com":  false,
		"@example.com":     false,
		"jane@example.com": true,
	}
	for in, want := range tests {
		if got := Valid(in); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestKey(t *testing.T) {
	if got := Key("  Jane@Example.COM "); got != "jane@example.com" {
		t.Errorf("Key() = %q", got)
	}
}

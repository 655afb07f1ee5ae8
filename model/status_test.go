package model

import "testing"

func TestParseStatus_RoundTrip(t *testing.T) {
	for _, spec := range statusTable {
		plain := spec.kind.Format("")
		if got := ParseStatus(plain); got != spec.kind {
			t.Errorf("ParseStatus(%q) = %v, want %v", plain, got, spec.kind)
		}
		detailed := spec.kind.Format("2026-10-16 09:30")
		if got := ParseStatus(detailed); got != spec.kind {
			t.Errorf("ParseStatus(%q) = %v, want %v", detailed, got, spec.kind)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		text string
		want StatusKind
	}{
		{"", StatusNone},
		{"   ", StatusNone},
		{"sent successfully", StatusSent},
		{"SENT SUCCESSFULLY - REPLY: thread 123", StatusReplySent},
		{"SENT SUCCESSFULLY AGAIN", StatusUnknown},
		{"FAILED: quota exceeded", StatusFailed},
		{"FAILED - NO THREAD FOUND", StatusNoThread},
		{"hello", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ParseStatus(tt.text); got != tt.want {
				t.Errorf("ParseStatus(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestStatusKind_Success(t *testing.T) {
	success := map[StatusKind]bool{
		StatusSent:                   true,
		StatusSentVerifiedPrior:      true,
		StatusSentVerifiedAfterError: true,
		StatusSentMultiEmail:         true,
		StatusReplySent:              true,
	}
	for _, spec := range statusTable {
		if got := spec.kind.Success(); got != success[spec.kind] {
			t.Errorf("%v.Success() = %v, want %v", spec.kind, got, success[spec.kind])
		}
	}
}

func TestStatusColorsAreDistinct(t *testing.T) {
	seen := make(map[Color]StatusKind)
	for _, spec := range statusTable {
		if other, ok := seen[spec.color]; ok {
			t.Errorf("%v and %v share color %s", spec.kind, other, spec.color.Hex())
		}
		seen[spec.color] = spec.kind
	}
}

func TestParseReplyMode(t *testing.T) {
	tests := map[string]ReplyMode{
		"":          ReplyModeNew,
		"New":       ReplyModeNew,
		"Reply To":  ReplyModeTo,
		"reply-bcc": ReplyModeBcc,
		"ReplyBcc":  ReplyModeBcc,
		"garbage":   ReplyModeNew,
	}
	for in, want := range tests {
		if got := ParseReplyMode(in); got != want {
			t.Errorf("ParseReplyMode(%q) = %v, want %v", in, got, want)
		}
	}
}

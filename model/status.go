package model

import (
	"fmt"
	"strings"
)

// StatusKind is the typed outcome stored in the status column.
type StatusKind int

const (
	StatusNone StatusKind = iota
	StatusUnknown
	StatusSending
	StatusSent
	StatusSentVerifiedPrior
	StatusSentVerifiedAfterError
	StatusSentMultiEmail
	StatusReplySent
	StatusInvalidEmail
	StatusDuplicateCrossRun
	StatusDuplicateInRun
	StatusAmbiguousThread
	StatusFailed
	StatusReplyFailed
	StatusNoThread
)

// successPrefix starts every success status; other tools grep for it.
const successPrefix = "SENT SUCCESSFULLY"

// Color is a cell background color.
type Color struct {
	R, G, B uint8
}

// Hex renders the color as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Float returns the channels scaled to [0,1].
func (c Color) Float() (r, g, b float64) {
	return float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255
}

type statusSpec struct {
	kind   StatusKind
	prefix string
	color  Color
}

// statusTable is the bijective mapping between kinds and serialized
// prefixes. Parsing picks the longest matching prefix.
var statusTable = []statusSpec{
	{StatusSending, "SENDING", Color{0xff, 0xf2, 0xcc}},
	{StatusSent, successPrefix, Color{0xb7, 0xe1, 0xcd}},
	{StatusSentVerifiedPrior, successPrefix + " - VERIFIED PRIOR SEND", Color{0xa2, 0xd9, 0xce}},
	{StatusSentVerifiedAfterError, successPrefix + " - VERIFIED AFTER ERROR", Color{0xd9, 0xea, 0xd3}},
	{StatusSentMultiEmail, successPrefix + " - MULTIPLE EMAILS IN CELL", Color{0xd9, 0xe8, 0xa8}},
	{StatusReplySent, successPrefix + " - REPLY", Color{0xc9, 0xda, 0xf8}},
	{StatusInvalidEmail, "SKIPPED - INVALID EMAIL", Color{0xfc, 0xe5, 0xcd}},
	{StatusDuplicateCrossRun, "SKIPPED - PREVIOUSLY SENT", Color{0xef, 0xef, 0xef}},
	{StatusDuplicateInRun, "SKIPPED - DUPLICATE IN BATCH", Color{0xd9, 0xd9, 0xd9}},
	{StatusAmbiguousThread, "SKIPPED - MULTIPLE THREADS FOUND", Color{0xd9, 0xd2, 0xe9}},
	{StatusFailed, "FAILED", Color{0xf4, 0xcc, 0xcc}},
	{StatusReplyFailed, "FAILED - REPLY", Color{0xea, 0x99, 0x99}},
	{StatusNoThread, "FAILED - NO THREAD FOUND", Color{0xe6, 0xb8, 0xaf}},
}

func lookupStatus(kind StatusKind) (statusSpec, bool) {
	for _, spec := range statusTable {
		if spec.kind == kind {
			return spec, true
		}
	}
	return statusSpec{}, false
}

// Prefix returns the serialized prefix of the kind. StatusNone and
// StatusUnknown have none.
func (k StatusKind) Prefix() string {
	spec, _ := lookupStatus(k)
	return spec.prefix
}

// Color returns the background color associated with the kind.
func (k StatusKind) Color() Color {
	spec, ok := lookupStatus(k)
	if !ok {
		return Color{0xff, 0xff, 0xff}
	}
	return spec.color
}

// Success reports whether the kind records a delivered message.
func (k StatusKind) Success() bool {
	switch k {
	case StatusSent, StatusSentVerifiedPrior, StatusSentVerifiedAfterError, StatusSentMultiEmail, StatusReplySent:
		return true
	}
	return false
}

// Failure reports whether the kind records a failed attempt.
func (k StatusKind) Failure() bool {
	switch k {
	case StatusFailed, StatusReplyFailed, StatusNoThread:
		return true
	}
	return false
}

func (k StatusKind) String() string {
	switch k {
	case StatusNone:
		return "none"
	case StatusUnknown:
		return "unknown"
	}
	return k.Prefix()
}

// Format serializes the kind with an optional detail.
func (k StatusKind) Format(detail string) string {
	prefix := k.Prefix()
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return prefix
	}
	return prefix + ": " + detail
}

// ParseStatus maps a status cell back to its kind.
func ParseStatus(text string) StatusKind {
	text = strings.TrimSpace(text)
	if text == "" {
		return StatusNone
	}
	upper := strings.ToUpper(text)

	best := StatusUnknown
	bestLen := 0
	for _, spec := range statusTable {
		if !strings.HasPrefix(upper, spec.prefix) {
			continue
		}
		rest := upper[len(spec.prefix):]
		if rest != "" && !strings.HasPrefix(rest, ":") {
			continue
		}
		if len(spec.prefix) > bestLen {
			best = spec.kind
			bestLen = len(spec.prefix)
		}
	}
	return best
}

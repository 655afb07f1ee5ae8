package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dhcgn/mail-merge/model"
)

// Locations reported in validation messages.
const (
	LocationSubject = "subject line"
	LocationBody    = "email body"
)

const (
	contextRadius       = 10
	suggestionMinPrefix = 3
)

var (
	escapedTagPattern  = regexp.MustCompile(`\\\{\{[^{}]*\}\}`)
	completeTagPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)
	styleBlockPattern  = regexp.MustCompile(`(?is)<(style|script)\b.*?</(style|script)>`)
	markupPattern      = regexp.MustCompile(`<[^>]*>`)
	unbracketedPattern = regexp.MustCompile(`\b(Last Name|Name|Email|Company|Title|Custom1|Custom2)\b`)
)

// Result is the outcome of Validate. Errors block sending; warnings need an
// explicit confirmation.
type Result struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether there are no hard errors.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// HasWarnings reports whether any soft warnings were found.
func (r Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// ErrorMessage formats the hard errors for a notification dialog.
func (r Result) ErrorMessage() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return "Template errors must be fixed before sending:\n" + bullets(r.Errors)
}

// WarningMessage formats the warnings for a continue confirmation.
func (r Result) WarningMessage() string {
	if len(r.Warnings) == 0 {
		return ""
	}
	return "Template warnings:\n" + bullets(r.Warnings) + "\nContinue anyway?"
}

func bullets(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("  • ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (r *Result) addError(msg string) {
	r.Errors = appendUnique(r.Errors, msg)
}

func (r *Result) addWarning(msg string) {
	r.Warnings = appendUnique(r.Warnings, msg)
}

func appendUnique(list []string, msg string) []string {
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}

// Validate checks subject and body against the tag vocabulary. When sample is
// not nil, tags whose field is empty for that contact are reported as errors.
func Validate(subject, body string, sample *model.Contact) Result {
	var res Result
	checkText(&res, LocationSubject, subject, sample)
	checkText(&res, LocationBody, body, sample)
	return res
}

func checkText(res *Result, location, text string, sample *model.Contact) {
	if strings.TrimSpace(text) == "" {
		return
	}
	text = escapedTagPattern.ReplaceAllString(text, "")
	if location == LocationBody {
		text = styleBlockPattern.ReplaceAllString(text, "")
	}

	checkMalformed(res, location, text)
	checkForeign(res, location, text)
	checkTags(res, location, text, sample)
	checkUnbracketed(res, location, text)
}

// checkMalformed reports braces left over once every complete tag is blanked.
func checkMalformed(res *Result, location, text string) {
	rest := blankMatches(text, completeTagPattern)
	if i := strings.Index(rest, "{{"); i >= 0 {
		res.addError(fmt.Sprintf("Malformed tag in %s: unmatched \"{{\" near %s", location, snippet(text, i, 2)))
	}
	if i := strings.Index(rest, "}}"); i >= 0 {
		res.addError(fmt.Sprintf("Malformed tag in %s: unmatched \"}}\" near %s", location, snippet(text, i, 2)))
	}
	rest = strings.NewReplacer("{{", "  ", "}}", "  ").Replace(rest)
	if i := strings.IndexAny(rest, "{}"); i >= 0 {
		res.addError(fmt.Sprintf("Malformed tag in %s: stray %q near %s", location, rest[i:i+1], snippet(text, i, 1)))
	}
}

func checkForeign(res *Result, location, text string) {
	for _, m := range findForeign(text) {
		res.addWarning(fmt.Sprintf("%s looks like a %s placeholder from another mail-merge tool in %s near %s; use {{Tag}} instead",
			m.text, m.system, location, snippet(text, m.index, len(m.text))))
	}
}

func checkTags(res *Result, location, text string, sample *model.Contact) {
	for _, loc := range completeTagPattern.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		inner := strings.TrimSpace(match[2 : len(match)-2])
		if inner == "" {
			res.addError(fmt.Sprintf("Empty tag %s in %s near %s", match, location, snippet(text, loc[0], len(match))))
			continue
		}
		tag, ok := LookupTag(inner)
		if !ok {
			msg := fmt.Sprintf("Unknown tag %s in %s near %s", match, location, snippet(text, loc[0], len(match)))
			if s, found := suggest(inner); found {
				msg += fmt.Sprintf("; did you mean %s?", s.Placeholder())
			}
			res.addError(msg)
			continue
		}
		if sample == nil {
			continue
		}
		if strings.TrimSpace(tag.value(sample.Name, sample.LastName, sample)) == "" {
			res.addError(fmt.Sprintf("%s is used in the %s but the sample contact (row %d) has no %s",
				tag.Placeholder(), location, sample.Row, tag.Label))
		}
	}
}

// suggest finds the vocabulary tag closest to an unknown tag: containment in
// either direction first, then a shared leading fragment.
func suggest(inner string) (Tag, bool) {
	key := strings.ReplaceAll(normalizeTag(inner), " ", "")
	if key == "" {
		return Tag{}, false
	}
	for _, tag := range Tags {
		label := strings.ReplaceAll(normalizeTag(tag.Label), " ", "")
		if strings.Contains(label, key) || strings.Contains(key, label) {
			return tag, true
		}
	}
	if len(key) < suggestionMinPrefix {
		return Tag{}, false
	}
	prefix := key[:suggestionMinPrefix]
	for _, tag := range Tags {
		label := strings.ReplaceAll(normalizeTag(tag.Label), " ", "")
		if strings.Contains(label, prefix) {
			return tag, true
		}
	}
	return Tag{}, false
}

func checkUnbracketed(res *Result, location, text string) {
	plain := blankMatches(text, completeTagPattern)
	if location == LocationBody {
		plain = blankMatches(plain, markupPattern)
	}
	for _, loc := range unbracketedPattern.FindAllStringIndex(plain, -1) {
		word := plain[loc[0]:loc[1]]
		res.addWarning(fmt.Sprintf("%q appears in the %s without braces near %s; did you mean {{%s}}?",
			word, location, snippet(plain, loc[0], len(word)), word))
	}
}

// blankMatches replaces every match with spaces so offsets stay valid.
func blankMatches(text string, re *regexp.Regexp) string {
	return re.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
}

// snippet quotes the text around [i, i+n) with contextRadius characters on
// either side.
func snippet(text string, i, n int) string {
	start := i
	for k := 0; k < contextRadius && start > 0; k++ {
		start = prevRune(text, start)
	}
	end := i + n
	if end > len(text) {
		end = len(text)
	}
	for k := 0; k < contextRadius && end < len(text); k++ {
		end = nextRune(text, end)
	}
	s := strings.Join(strings.Fields(text[start:end]), " ")
	if start > 0 {
		s = "…" + s
	}
	if end < len(text) {
		s += "…"
	}
	return "\"" + s + "\""
}

func prevRune(s string, i int) int {
	i--
	for i > 0 && !isRuneStart(s[i]) {
		i--
	}
	return i
}

func nextRune(s string, i int) int {
	i++
	for i < len(s) && !isRuneStart(s[i]) {
		i++
	}
	return i
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// foreignSystem describes a placeholder convention of another mail-merge tool.
type foreignSystem struct {
	name    string
	pattern *regexp.Regexp
}

// mergeWords are the field names people type into foreign placeholders.
// Bracket, percent and dollar patterns only fire on these so ordinary
// bracketed prose is left alone.
const mergeWords = `(?:first ?name|last ?name|name|e-?mail|company|title|custom ?[12]|full ?name)`

var foreignSystems = mustCompileSystems(map[string]string{
	"<<Name>>":   `<<[^<>\n]{1,40}>>|&lt;&lt;.{1,40}?&gt;&gt;`,
	"«Name»":     `«[^«»\n]{1,40}»`,
	"*|NAME|*":   `\*\|[A-Za-z0-9_]{1,40}\|\*`,
	"[Name]":     `(?i)\[\s*` + mergeWords + `\s*\]`,
	"%Name%":     `(?i)%\s*` + mergeWords + `\s*%`,
	"$Name$":     `(?i)\$\s*` + mergeWords + `\s*\$`,
	"{Name}":     `(?i)(?:^|[^{])\{\s*` + mergeWords + `\s*\}(?:[^}]|$)`,
	"${Name}":    `(?i)\$\{\s*` + mergeWords + `\s*\}`,
	"{{.Name}}":  `\{\{\s*\.[A-Za-z_][A-Za-z0-9_]*\s*\}\}`,
	"[[Name]]":   `\[\[[^\[\]\n]{1,40}\]\]`,
	"{!Name}":    `\{![^{}\n]{1,40}\}`,
	"%%Name%%":   `%%[A-Za-z_ ]{1,40}%%`,
	"#{Name}":    `#\{[^{}\n]{1,40}\}`,
	"@@Name@@":   `@@[A-Za-z_ ]{1,40}@@`,
	"|*Name*|":   `\|\*[A-Za-z0-9_]{1,40}\*\|`,
	"((Name))":   `(?i)\(\(\s*` + mergeWords + `\s*\)\)`,
	"<%= Name%>": `<%=?[^%\n]{1,40}%>`,
})

func mustCompileSystems(patterns map[string]string) []foreignSystem {
	systems, err := compileSystems(patterns)
	if err != nil {
		panic(err)
	}
	return systems
}

func compileSystems(patterns map[string]string) ([]foreignSystem, error) {
	systems := make([]foreignSystem, 0, len(patterns))
	for name, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		systems = append(systems, foreignSystem{name: name, pattern: re})
	}
	// Map order is random; keep reports deterministic.
	sort.Slice(systems, func(i, j int) bool { return systems[i].name < systems[j].name })
	return systems, nil
}

// foreignMatch is the first occurrence of a foreign placeholder in text.
type foreignMatch struct {
	system string
	text   string
	index  int
}

func findForeign(text string) []foreignMatch {
	var found []foreignMatch
	for _, sys := range foreignSystems {
		loc := sys.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		found = append(found, foreignMatch{
			system: sys.name,
			text:   strings.TrimSpace(text[loc[0]:loc[1]]),
			index:  loc[0],
		})
	}
	return found
}

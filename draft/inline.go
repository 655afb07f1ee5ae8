package draft

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dhcgn/mail-merge/model"
)

// minNameMatch is the shortest normalized name accepted for a containment
// match between a content-id and a filename.
const minNameMatch = 4

var (
	imgTagPattern = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	cidSrcPattern = regexp.MustCompile(`(?i)\bsrc\s*=\s*["']?cid:([^"'\s>]+)`)
	altPattern    = regexp.MustCompile(`(?i)\balt\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

// imageRef is one cid: reference in a body, in document order.
type imageRef struct {
	cid string
	alt string
}

func findImageRefs(body string) []imageRef {
	var refs []imageRef
	seen := make(map[string]bool)
	for _, tag := range imgTagPattern.FindAllString(body, -1) {
		m := cidSrcPattern.FindStringSubmatch(tag)
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		ref := imageRef{cid: m[1]}
		if a := altPattern.FindStringSubmatch(tag); a != nil {
			ref.alt = strings.TrimSpace(a[1] + a[2] + a[3])
		}
		refs = append(refs, ref)
	}
	return refs
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, filepath.Ext(s))
	return nonAlnum.ReplaceAllString(s, "")
}

// ResolveInlineImages maps every cid: reference in body to one of parts.
// Each reference tries, in order: the part's own Content-ID, alt text equal
// to a filename, content-id and filename containing one another, the part
// at the same position when the counts agree, any unused part, and finally
// any part at all.
func ResolveInlineImages(body string, parts []model.InlinePart) map[string]model.Attachment {
	refs := findImageRefs(body)
	if len(refs) == 0 || len(parts) == 0 {
		return nil
	}

	used := make([]bool, len(parts))
	resolved := make(map[string]model.Attachment, len(refs))
	positional := len(refs) == len(parts)

	for i, ref := range refs {
		idx := matchPart(ref, i, parts, used, positional)
		if idx < 0 {
			continue
		}
		used[idx] = true
		p := parts[idx]
		resolved[ref.cid] = model.Attachment{Filename: p.Filename, ContentType: p.ContentType, Content: p.Content}
	}
	return resolved
}

func matchPart(ref imageRef, pos int, parts []model.InlinePart, used []bool, positional bool) int {
	unused := func(match func(model.InlinePart) bool) int {
		for i, p := range parts {
			if !used[i] && match(p) {
				return i
			}
		}
		return -1
	}

	if idx := unused(func(p model.InlinePart) bool {
		return p.ContentID != "" && strings.EqualFold(p.ContentID, ref.cid)
	}); idx >= 0 {
		return idx
	}

	if alt := normalizeName(ref.alt); alt != "" {
		if idx := unused(func(p model.InlinePart) bool {
			return strings.EqualFold(strings.TrimSpace(p.Filename), strings.TrimSpace(ref.alt)) || normalizeName(p.Filename) == alt
		}); idx >= 0 {
			return idx
		}
	}

	if cid := nonAlnum.ReplaceAllString(strings.ToLower(ref.cid), ""); len(cid) >= minNameMatch {
		if idx := unused(func(p model.InlinePart) bool {
			name := normalizeName(p.Filename)
			if len(name) < minNameMatch {
				return false
			}
			return strings.Contains(cid, name) || strings.Contains(name, cid)
		}); idx >= 0 {
			return idx
		}
	}

	if positional && pos < len(parts) && !used[pos] {
		return pos
	}

	if idx := unused(func(model.InlinePart) bool { return true }); idx >= 0 {
		return idx
	}

	if len(parts) > 0 {
		return pos % len(parts)
	}
	return -1
}

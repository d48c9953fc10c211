package assets

import (
	"path"
	"regexp"
	"slices"
	"strings"
)

var imageRefRe = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)[^)]*\)`)

var allowedExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "heic": true, "heif": true,
	"mp4": true, "mov": true, "m4v": true, "webm": true,
}

// AllowedExtension reports whether filename has a supported media
// extension.
func AllowedExtension(filename string) bool {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	return allowedExtensions[strings.ToLower(ext)]
}

// ExtractReferences returns the sorted set of asset filenames referenced by
// markdown image syntax in body.
func ExtractReferences(body string) []string {
	var out []string
	for _, m := range imageRefRe.FindAllStringSubmatch(body, -1) {
		name := baseName(m[1])
		if name == "" || !AllowedExtension(name) {
			continue
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func baseName(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	target = strings.TrimRight(target, "/")
	if target == "" {
		return ""
	}
	return path.Base(target)
}

// RewriteReference replaces every image reference whose target resolves to
// from with to. Alt text and titles are kept.
func RewriteReference(body, from, to string) string {
	return imageRefRe.ReplaceAllStringFunc(body, func(ref string) string {
		m := imageRefRe.FindStringSubmatch(ref)
		if baseName(m[1]) != from {
			return ref
		}
		return strings.Replace(ref, "("+m[1], "("+to, 1)
	})
}

// diffReferences returns names only in old and names only in new. Both
// inputs must be sorted.
func diffReferences(old, new []string) (removed, added []string) {
	i, j := 0, 0
	for i < len(old) && j < len(new) {
		switch {
		case old[i] == new[j]:
			i++
			j++
		case old[i] < new[j]:
			removed = append(removed, old[i])
			i++
		default:
			added = append(added, new[j])
			j++
		}
	}
	removed = append(removed, old[i:]...)
	added = append(added, new[j:]...)
	return removed, added
}

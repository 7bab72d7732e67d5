package artifacts

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// maxSlugRunes bounds the prompt-derived part of a filename.
	maxSlugRunes = 50

	// timestampLayout prefixes every generated filename.
	timestampLayout = "2006-01-02_15-04-05"
)

var (
	slugUnsafe    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugSeparator = regexp.MustCompile(`[-\s]+`)
)

// Slugify turns a prompt into a filesystem-safe fragment: punctuation is dropped,
// runs of spaces and dashes become one underscore, and the result is cut to 50 runes.
//
// Example:
//
//	Slugify("A human & a robot paint a mural!")  // "A_human_a_robot_paint_a_mural"
func Slugify(prompt string) string {
	s := slugUnsafe.ReplaceAllString(prompt, "")
	s = slugSeparator.ReplaceAllString(strings.TrimSpace(s), "_")
	if runes := []rune(s); len(runes) > maxSlugRunes {
		s = string(runes[:maxSlugRunes])
	}
	s = strings.Trim(s, "_")
	if s == "" {
		return "image"
	}
	return s
}

// baseName strips directories and any extension from a caller-chosen output name,
// then slugifies what is left.
func baseName(name string) string {
	name = filepath.Base(filepath.ToSlash(name))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return Slugify(name)
}

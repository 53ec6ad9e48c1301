package registry

import (
	"strings"
	"time"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxSafeTitleGraphemes bounds the user-perceived length of a safe title.
	MaxSafeTitleGraphemes = 80
	// UntitledSentinel replaces titles that are empty after sanitizing.
	UntitledSentinel = "untitled"

	fallbackPrefix = "law_"
	noteExt        = ".md"
)

// Entry maps one law ID to its display title and note file name.
type Entry struct {
	Title     string    `json:"title"`
	SafeTitle string    `json:"safe_title"`
	FileName  string    `json:"file_name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntry builds the entry for a law whose real title is known.
func NewEntry(id, title string, now time.Time) Entry {
	safe := SafeTitle(title)
	return Entry{
		Title:     title,
		SafeTitle: safe,
		FileName:  FileName(safe, id),
		UpdatedAt: now,
	}
}

// FallbackEntry builds the placeholder entry used until a real title is known.
func FallbackEntry(id string, now time.Time) Entry {
	name := FallbackTitle(id)
	return Entry{
		Title:     name,
		SafeTitle: name,
		FileName:  FallbackFileName(id),
		UpdatedAt: now,
	}
}

// FileName derives the note file name from a safe title and an ID.
func FileName(safeTitle, id string) string {
	return safeTitle + "_" + id + noteExt
}

// FallbackTitle is the title and safe title of a fallback entry for id.
func FallbackTitle(id string) string {
	return fallbackPrefix + id
}

// FallbackFileName is the file name of a fallback entry for id.
func FallbackFileName(id string) string {
	return fallbackPrefix + id + noteExt
}

// IsFallbackFor reports whether e is still the placeholder entry for id. A
// real title pointing at a placeholder note is not a fallback.
func (e Entry) IsFallbackFor(id string) bool {
	return e.Title == FallbackTitle(id) && e.FileName == FallbackFileName(id)
}

// sameContent compares everything except the timestamp.
func (e Entry) sameContent(other Entry) bool {
	return e.Title == other.Title && e.SafeTitle == other.SafeTitle && e.FileName == other.FileName
}

// IDFromFileName recovers the law ID from a note file name produced by
// FileName or FallbackFileName. IDs never contain underscores, so the ID is
// whatever follows the last one.
func IDFromFileName(name string) (string, bool) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	base, ok := strings.CutSuffix(name, noteExt)
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(base, '_')
	if i < 0 || i == len(base)-1 {
		return "", false
	}
	return base[i+1:], true
}

// SafeTitle normalizes a title for use in a file name and as a wiki-link
// target. Characters that are invalid in either become underscores.
func SafeTitle(title string) string {
	normalized := norm.NFC.String(title)
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '#', '^', '[', ']':
			return '_'
		}
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, normalized)
	collapsed := strings.Join(strings.Fields(replaced), " ")
	safe := trimTitle(truncateGraphemes(trimTitle(collapsed), MaxSafeTitleGraphemes))
	if safe == "" {
		return UntitledSentinel
	}
	return safe
}

func trimTitle(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ". ")
}

func truncateGraphemes(s string, limit int) string {
	if uniseg.GraphemeClusterCount(s) <= limit {
		return s
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(s)
	for n := 0; n < limit && g.Next(); n++ {
		b.WriteString(g.Str())
	}
	return b.String()
}

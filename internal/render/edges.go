package render

import (
	"regexp"

	"github.com/JakeFAU/law-notes-crawler/internal/registry"
)

// wikiLinkTarget matches "[[<file>.md(#anchor)?(|text)?]]" and captures the file.
var wikiLinkTarget = regexp.MustCompile(`\[\[([^\[\]|#]+\.md)(?:#[^\[\]|]*)?(?:\|[^\]]*)?\]\]`)

// ExtractEdges recovers the cross-document targets recorded in a rendered
// note, deduplicated and in order of first appearance.
func ExtractEdges(text string) []string {
	var ids []string
	seen := map[string]struct{}{}
	for _, m := range wikiLinkTarget.FindAllStringSubmatch(text, -1) {
		id, ok := registry.IDFromFileName(m[1])
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

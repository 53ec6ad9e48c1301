// Package unresolved records links the renderer could not fully resolve and
// persists them as an append-only, deduplicated log.
package unresolved

import "time"

// Reason explains why a link was recorded.
type Reason string

// Recognized reasons.
const (
	ReasonTargetNotBuilt Reason = "target_not_built"
	ReasonUnknownFormat  Reason = "unknown_format"
	ReasonDepthLimit     Reason = "depth_limit"
)

// Record is one unresolved link.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	RootID     string    `json:"root_id"`
	RootTitle  string    `json:"root_title"`
	SourceID   string    `json:"source_id,omitempty"`
	FromAnchor string    `json:"from_anchor"`
	RawText    string    `json:"raw_text"`
	Href       string    `json:"href"`
	Reason     Reason    `json:"reason"`
}

// Key is the deduplication key of a record.
type Key struct {
	RootID     string
	FromAnchor string
	RawText    string
	Href       string
}

// Key returns the record's deduplication key.
func (r Record) Key() Key {
	return Key{
		RootID:     r.RootID,
		FromAnchor: r.FromAnchor,
		RawText:    r.RawText,
		Href:       r.Href,
	}
}

// identity is what makes two records the same entry in a log. The reason is
// included because the fallback and depth checks fire independently on the
// same link.
type identity struct {
	Key
	Reason Reason
}

func (r Record) identity() identity {
	return identity{Key: r.Key(), Reason: r.Reason}
}

// Seen tracks record identities, e.g. across a whole crawl run.
type Seen map[identity]struct{}

// Add marks rec as seen and reports whether it was new.
func (s Seen) Add(rec Record) bool {
	id := rec.identity()
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

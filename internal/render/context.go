package render

import "github.com/JakeFAU/law-notes-crawler/internal/unresolved"

// RunContext carries crawl-wide rendering state. It lives for one crawl run
// and deduplicates unresolved records across every document rendered in it.
type RunContext struct {
	RootID     string
	RootTitle  string
	Unresolved []unresolved.Record

	seen unresolved.Seen
}

// NewRunContext starts a run rooted at rootID.
func NewRunContext(rootID, rootTitle string) *RunContext {
	return &RunContext{
		RootID:    rootID,
		RootTitle: rootTitle,
		seen:      unresolved.Seen{},
	}
}

// Record appends rec unless an identical record was already seen this run.
func (rc *RunContext) Record(rec unresolved.Record) bool {
	if rc.seen == nil {
		rc.seen = unresolved.Seen{}
	}
	if !rc.seen.Add(rec) {
		return false
	}
	rc.Unresolved = append(rc.Unresolved, rec)
	return true
}

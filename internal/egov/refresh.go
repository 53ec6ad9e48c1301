package egov

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/law-notes-crawler/internal/registry"
)

// RefreshPageSize is the page size used when walking the full law list.
const RefreshPageSize = 100

// Lister pages through the law list.
type Lister interface {
	ListLaws(ctx context.Context, limit, offset int) ([]Candidate, error)
}

// RefreshResult summarizes a refresh.
type RefreshResult struct {
	Pages   int
	Seen    int
	Updated int
	Saved   bool
}

// Refresh walks every page of the law list and gives real titles to IDs that
// are missing from the registry or still carry a fallback entry. Entries with
// a real title are left alone. The registry is saved only when it changed.
func Refresh(ctx context.Context, lister Lister, store registry.Store, now time.Time) (RefreshResult, error) {
	var res RefreshResult
	reg, err := store.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load registry: %w", err)
	}
	for offset := 0; ; offset += RefreshPageSize {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("refresh canceled: %w", err)
		}
		page, err := lister.ListLaws(ctx, RefreshPageSize, offset)
		if err != nil {
			return res, err
		}
		if len(page) == 0 {
			break
		}
		res.Pages++
		for _, cand := range page {
			res.Seen++
			if cand.LawID == "" || cand.Title == "" {
				continue
			}
			if _, ok := reg.Get(cand.LawID); ok && !reg.IsFallback(cand.LawID) {
				continue
			}
			if reg.Set(cand.LawID, registry.NewEntry(cand.LawID, cand.Title, now)) {
				res.Updated++
			}
		}
		if len(page) < RefreshPageSize {
			break
		}
	}
	if !reg.Dirty() {
		return res, nil
	}
	if err := store.Save(ctx, reg); err != nil {
		return res, fmt.Errorf("save registry: %w", err)
	}
	reg.MarkClean()
	res.Saved = true
	return res, nil
}

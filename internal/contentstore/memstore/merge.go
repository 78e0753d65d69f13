package memstore

import (
	"context"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ThreeWayMerge applies the base→mine changes onto theirs. Returns
// ok=false when any hunk fails to apply cleanly; the caller falls back
// to manual merge.
func (s *Store) ThreeWayMerge(ctx context.Context, base, mine, theirs string) (string, bool) {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(base, mine)
	merged, applied := dmp.PatchApply(patches, theirs)
	for _, ok := range applied {
		if !ok {
			return "", false
		}
	}
	return merged, true
}

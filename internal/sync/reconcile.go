package sync

import (
	"errors"
	"time"

	"github.com/cmlburnett/ydl/internal/extractor"
	"github.com/cmlburnett/ydl/internal/naming"
	"github.com/cmlburnett/ydl/internal/store"
)

// reconcile folds one enumeration into the catalog, inside the caller's
// transaction. Membership rows that fall out of the listing become
// tombstones (idx=-1) rather than deletions, preserving provenance.
func reconcile(tx *store.Tx, effKey string, listing *extractor.Listing, feedIIDs []string, force bool, now time.Time) error {
	working, err := tx.MembershipMap(effKey)
	if err != nil {
		return err
	}

	// Nothing new and not forced: only ghost ids need attention. Ghosts
	// are ids the feed exposes but the listing does not — typically
	// unreleased premieres. They get a tombstone membership plus a bare
	// item row so later runs can track them.
	if !force && allKnown(listing, working) {
		return ensureGhosts(tx, effKey, listing, feedIIDs, now)
	}

	for i, e := range listing.Entries {
		if err := tx.UpsertMembership(effKey, e.IID, int64(i+1), now); err != nil {
			return err
		}
		delete(working, e.IID)
	}
	for _, rowid := range working {
		if err := tx.TombstoneMembership(rowid); err != nil {
			return err
		}
	}

	for _, e := range listing.Entries {
		_, err := tx.VideoByIID(e.IID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := tx.InsertVideo(e.IID, effKey, &now); err != nil {
				return err
			}
			if e.Title != "" {
				if err := tx.ResetVideoATime(e.IID, e.Title, naming.TitleToName(e.Title)); err != nil {
					return err
				}
			}
		case err != nil:
			return err
		default:
			name := ""
			if e.Title != "" {
				name = naming.TitleToName(e.Title)
			}
			if err := tx.ResetVideoATime(e.IID, e.Title, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func allKnown(listing *extractor.Listing, working map[string]int64) bool {
	for _, e := range listing.Entries {
		if _, ok := working[e.IID]; !ok {
			return false
		}
	}
	return true
}

func ensureGhosts(tx *store.Tx, effKey string, listing *extractor.Listing, feedIIDs []string, now time.Time) error {
	if len(feedIIDs) == 0 {
		return nil
	}
	enumerated := make(map[string]bool, len(listing.Entries))
	for _, e := range listing.Entries {
		enumerated[e.IID] = true
	}
	for _, iid := range feedIIDs {
		if enumerated[iid] {
			continue
		}
		known, err := tx.HasMembership(effKey, iid)
		if err != nil {
			return err
		}
		if !known {
			if err := tx.UpsertMembership(effKey, iid, store.TombstoneIdx, now); err != nil {
				return err
			}
		}
		if _, err := tx.VideoByIID(iid); errors.Is(err, store.ErrNotFound) {
			// Ghost items keep every timestamp null until released.
			if err := tx.InsertVideo(iid, effKey, nil); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}

package identitylog

import (
	"sort"

	"github.com/nooterra/trustcore/pkg/errs"
)

// ValidatedLog is the result of ValidateLog: entries in canonical
// (logIndex ASC, entryId ASC) order, ready for Merkle root/checkpoint
// construction.
type ValidatedLog struct {
	Entries []*Entry
}

// ValidateLog validates an unordered set of log entries against the
// append-only rules of spec §4.7: each entry validates standalone,
// entryIds are unique, logIndex has no gaps or collisions, and each
// prevEntryHash chains to its predecessor in (logIndex, entryId) order.
func ValidateLog(entries []*Entry) (*ValidatedLog, error) {
	if len(entries) == 0 {
		return &ValidatedLog{Entries: []*Entry{}}, nil
	}

	seen := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		if err := Validate(e); err != nil {
			return nil, err
		}
		if existing, dup := seen[e.EntryID]; dup {
			if existing.EntryHash != e.EntryHash {
				return nil, errs.New("EQUIVOCATION", "entryId appears twice with different entryHash values")
			}
			return nil, errs.New("DUPLICATE_ENTRY_ID", "entryId appears more than once in the submitted entry set")
		}
		seen[e.EntryID] = e
	}

	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].LogIndex != sorted[j].LogIndex {
			return sorted[i].LogIndex < sorted[j].LogIndex
		}
		return sorted[i].EntryID < sorted[j].EntryID
	})

	var prevHash *string
	for i, e := range sorted {
		switch {
		case e.LogIndex < int64(i):
			return nil, errs.New("EQUIVOCATION", "logIndex collides with an earlier entry's position")
		case e.LogIndex > int64(i):
			return nil, errs.New("INDEX_GAP", "logIndex has a gap relative to the expected sequence")
		}
		if !samePrevEntryHash(e.PrevEntryHash, prevHash) {
			return nil, errs.New("IDENTITY_LOG_CHAIN_BROKEN", "prevEntryHash does not chain to the prior entry")
		}
		h := e.EntryHash
		prevHash = &h
	}

	return &ValidatedLog{Entries: sorted}, nil
}

func samePrevEntryHash(declared, expected *string) bool {
	if declared == nil && expected == nil {
		return true
	}
	if declared == nil || expected == nil {
		return false
	}
	return *declared == *expected
}

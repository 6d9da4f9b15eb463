package identitylog

import (
	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

// Checkpoint is the normalized IdentityLogCheckpoint.v1 record.
type Checkpoint struct {
	TenantID      string `json:"tenantId"`
	TreeSize      int64  `json:"treeSize"`
	RootHash      string `json:"rootHash"`
	HeadEntryID   string `json:"headEntryId"`
	HeadEntryHash string `json:"headEntryHash"`
	GeneratedAt   string `json:"generatedAt"`
	CheckpointHash string `json:"checkpointHash,omitempty"`
}

// ComputeRootHash computes the RFC-6962-style Merkle root over the
// entryHash of each entry, in the canonical (logIndex, entryId) order
// ValidateLog produces (spec §4.7).
func ComputeRootHash(log *ValidatedLog) (string, error) {
	if log == nil || len(log.Entries) == 0 {
		return "", errs.New("IDENTITY_LOG_EMPTY", "cannot compute a root hash over zero entries")
	}
	hashes := make([]string, len(log.Entries))
	for i, e := range log.Entries {
		hashes[i] = e.EntryHash
	}
	leaves, err := hexToBytesAll(hashes)
	if err != nil {
		return "", err
	}
	return bytesToHex(merkleRoot(leaves)), nil
}

// BuildCheckpoint derives an IdentityLogCheckpoint.v1 over a validated
// log at its current tree size and computes checkpointHash.
func BuildCheckpoint(log *ValidatedLog, tenantID, generatedAt string) (*Checkpoint, error) {
	tid, err := normalize.Identifier("tenantId", tenantID, 256)
	if err != nil {
		return nil, err
	}
	at, err := normalize.Timestamp("generatedAt", generatedAt)
	if err != nil {
		return nil, err
	}
	rootHash, err := ComputeRootHash(log)
	if err != nil {
		return nil, err
	}
	head := log.Entries[len(log.Entries)-1]

	cp := &Checkpoint{
		TenantID:      tid,
		TreeSize:      int64(len(log.Entries)),
		RootHash:      rootHash,
		HeadEntryID:   head.EntryID,
		HeadEntryHash: head.EntryHash,
		GeneratedAt:   at,
	}
	hash, err := canonical.HashJSON(withoutCheckpointHash(cp))
	if err != nil {
		return nil, err
	}
	cp.CheckpointHash = hash
	return cp, nil
}

// ValidateCheckpoint recomputes checkpointHash and compares it to the
// stored value.
func ValidateCheckpoint(cp *Checkpoint) error {
	if cp == nil {
		return errs.New("IDENTITY_LOG_CHECKPOINT_MISSING", "checkpoint is nil")
	}
	recomputed, err := canonical.HashJSON(withoutCheckpointHash(cp))
	if err != nil {
		return err
	}
	if recomputed != cp.CheckpointHash {
		return errs.New("IDENTITY_LOG_CHECKPOINT_HASH_MISMATCH", "recomputed checkpointHash does not match stored value")
	}
	return nil
}

func withoutCheckpointHash(cp *Checkpoint) *Checkpoint {
	c := *cp
	c.CheckpointHash = ""
	return &c
}

// CheckEquivocation implements the design note in spec §9: checkpoints
// are tracked by (tenantId, treeSize) → checkpointHash. observed is a
// newly produced checkpoint; known is the checkpoint this tenant/size
// pair was last seen with, if any. A mismatch at the same treeSize is
// an equivocation; any other relationship is accepted.
func CheckEquivocation(observed, known *Checkpoint) error {
	if known == nil || observed == nil {
		return nil
	}
	if known.TenantID != observed.TenantID || known.TreeSize != observed.TreeSize {
		return nil
	}
	if known.CheckpointHash != observed.CheckpointHash {
		return errs.New("EQUIVOCATION", "two distinct checkpoints observed for the same tenant and treeSize")
	}
	return nil
}

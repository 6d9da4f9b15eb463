package identitylog

import (
	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

// Proof is the normalized IdentityLogProof.v1 record: a Merkle
// inclusion proof for one entry, bound to the checkpoint it was issued
// against (spec §4.7).
type Proof struct {
	TenantID          string      `json:"tenantId"`
	EntryID           string      `json:"entryId"`
	Entry             *Entry      `json:"entry"`
	TreeSize          int64       `json:"treeSize"`
	LeafIndex         int64       `json:"leafIndex"`
	LeafHash          string      `json:"leafHash"`
	Siblings          []string    `json:"siblings"`
	RootHash          string      `json:"rootHash"`
	Checkpoint        *Checkpoint `json:"checkpoint"`
	GeneratedAt       string      `json:"generatedAt"`
	TrustedCheckpoint *Checkpoint `json:"trustedCheckpoint,omitempty"`
	ProofHash         string      `json:"proofHash,omitempty"`
}

// BuildProof constructs an IdentityLogProof.v1 for entryID against the
// Merkle tree formed by log's entries at its current tree size.
func BuildProof(log *ValidatedLog, entryID, generatedAt string) (*Proof, error) {
	if log == nil || len(log.Entries) == 0 {
		return nil, errs.New("IDENTITY_LOG_EMPTY", "cannot build a proof over zero entries")
	}
	eid, err := normalize.Identifier("entryId", entryID, 256)
	if err != nil {
		return nil, err
	}
	at, err := normalize.Timestamp("generatedAt", generatedAt)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, e := range log.Entries {
		if e.EntryID == eid {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errs.New("IDENTITY_LOG_ENTRY_NOT_FOUND", "entryId not present in the log")
	}

	hashes := make([]string, len(log.Entries))
	for i, e := range log.Entries {
		hashes[i] = e.EntryHash
	}
	leaves, err := hexToBytesAll(hashes)
	if err != nil {
		return nil, err
	}
	root := merkleRoot(leaves)
	siblingBytes := merkleProof(leaves, idx)
	siblings := make([]string, len(siblingBytes))
	for i, s := range siblingBytes {
		siblings[i] = bytesToHex(s)
	}

	cp, err := BuildCheckpoint(log, log.Entries[idx].TenantID, at)
	if err != nil {
		return nil, err
	}

	entryCopy := *log.Entries[idx]
	p := &Proof{
		TenantID:    entryCopy.TenantID,
		EntryID:     eid,
		Entry:       &entryCopy,
		TreeSize:    int64(len(log.Entries)),
		LeafIndex:   int64(idx),
		LeafHash:    entryCopy.EntryHash,
		Siblings:    siblings,
		RootHash:    bytesToHex(root),
		Checkpoint:  cp,
		GeneratedAt: at,
	}

	hash, err := canonical.HashJSON(withoutProofHash(p))
	if err != nil {
		return nil, err
	}
	p.ProofHash = hash
	return p, nil
}

// VerifyProof recomputes the Merkle root from p's leaf and siblings,
// checks every cross-field equality spec §4.7 names, and, when p
// carries a trustedCheckpoint, enforces no-equivocation and
// no-rollback against it.
func VerifyProof(p *Proof) error {
	if p == nil {
		return errs.New("IDENTITY_LOG_PROOF_MISSING", "proof is nil")
	}
	if p.Entry == nil || p.Checkpoint == nil {
		return errs.New("PROOF_ENTRY_MISMATCH", "proof is missing its entry or checkpoint")
	}
	recomputedProofHash, err := canonical.HashJSON(withoutProofHash(p))
	if err != nil {
		return err
	}
	if recomputedProofHash != p.ProofHash {
		return errs.New("IDENTITY_LOG_PROOF_HASH_MISMATCH", "recomputed proofHash does not match stored value")
	}
	if p.EntryID != p.Entry.EntryID {
		return errs.New("PROOF_ENTRY_MISMATCH", "entryId does not match the embedded entry")
	}
	if p.LeafIndex != p.Entry.LogIndex {
		return errs.New("PROOF_ENTRY_MISMATCH", "leafIndex does not match the embedded entry's logIndex")
	}
	if p.LeafHash != p.Entry.EntryHash {
		return errs.New("PROOF_ENTRY_MISMATCH", "leafHash does not match the embedded entry's entryHash")
	}
	if err := Validate(p.Entry); err != nil {
		return err
	}
	if err := ValidateCheckpoint(p.Checkpoint); err != nil {
		return err
	}
	if p.TreeSize != p.Checkpoint.TreeSize {
		return errs.New("PROOF_ENTRY_MISMATCH", "treeSize does not match the bound checkpoint")
	}
	if p.RootHash != p.Checkpoint.RootHash {
		return errs.New("PROOF_ENTRY_MISMATCH", "rootHash does not match the bound checkpoint")
	}

	leaf, err := hexToBytesAll([]string{p.LeafHash})
	if err != nil {
		return err
	}
	siblings, err := hexToBytesAll(p.Siblings)
	if err != nil {
		return err
	}
	root, err := merkleRootFromProof(int(p.LeafIndex), int(p.TreeSize), leaf[0], siblings)
	if err != nil {
		return err
	}
	if bytesToHex(root) != p.RootHash {
		return errs.New("PROOF_MERKLE_INVALID", "recomputed Merkle root does not match rootHash")
	}

	if p.TrustedCheckpoint != nil {
		if err := ValidateCheckpoint(p.TrustedCheckpoint); err != nil {
			return err
		}
		if p.TrustedCheckpoint.TenantID == p.Checkpoint.TenantID && p.TrustedCheckpoint.TreeSize == p.Checkpoint.TreeSize &&
			p.TrustedCheckpoint.CheckpointHash != p.Checkpoint.CheckpointHash {
			return errs.New("EQUIVOCATION", "trusted checkpoint disagrees with the proof's checkpoint at the same treeSize")
		}
		if p.TrustedCheckpoint.TreeSize > p.Checkpoint.TreeSize {
			return errs.New("CHECKPOINT_ROLLBACK", "trusted checkpoint is ahead of the checkpoint this proof was issued against")
		}
	}

	return nil
}

// withoutProofHash strips proofHash and trustedCheckpoint before
// hashing: trustedCheckpoint is a verifier-supplied input attached at
// verification time (spec §4.7: "if a trustedCheckpoint is supplied"),
// not part of what the proof's issuer attested to, so it must not
// affect proofHash.
func withoutProofHash(p *Proof) *Proof {
	cp := *p
	cp.ProofHash = ""
	cp.TrustedCheckpoint = nil
	return &cp
}

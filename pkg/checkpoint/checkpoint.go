// Package checkpoint implements StateCheckpoint.v1 and its
// LineageCompaction.v1 / LineageRestore.v1 companions (spec §3,
// component C4): a linear, non-branching parent→child chain of
// content-addressed state snapshots. Grounded on the teacher's
// pkg/contracts (content-addressed ArtifactRef-style state binding) and
// pkg/merkle's chain-hash discipline.
package checkpoint

import (
	"github.com/nooterra/trustcore/pkg/artifact"
	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

// Checkpoint is the normalized StateCheckpoint.v1 record.
type Checkpoint struct {
	CheckpointID       string         `json:"checkpointId"`
	TenantID           string         `json:"tenantId"`
	StateRef           artifact.Ref   `json:"stateRef"`
	DiffRefs           []artifact.Ref `json:"diffRefs"`
	ParentCheckpointID *string        `json:"parentCheckpointId"`
	Revision           int64          `json:"revision"`
	CreatedAt          string         `json:"createdAt"`
	CheckpointHash     string         `json:"checkpointHash,omitempty"`
}

// Input is the unnormalized set of fields used to build a Checkpoint.
type Input struct {
	CheckpointID       string
	TenantID           string
	StateRef           artifact.Input
	DiffRefs           []artifact.Input
	ParentCheckpointID *string
	Revision           int64
	CreatedAt          string
}

// Build normalizes in into a Checkpoint and computes checkpointHash.
func Build(in Input) (*Checkpoint, error) {
	checkpointID, err := normalize.Identifier("checkpointId", in.CheckpointID, 256)
	if err != nil {
		return nil, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return nil, err
	}
	stateRef, err := artifact.Build(in.StateRef)
	if err != nil {
		return nil, err
	}
	diffRefs := make([]artifact.Ref, 0, len(in.DiffRefs))
	for _, d := range in.DiffRefs {
		ref, err := artifact.Build(d)
		if err != nil {
			return nil, err
		}
		diffRefs = append(diffRefs, *ref)
	}
	revision, err := normalize.NonNegativeSafeInt("revision", in.Revision)
	if err != nil {
		return nil, err
	}
	if in.ParentCheckpointID != nil {
		v, err := normalize.Identifier("parentCheckpointId", *in.ParentCheckpointID, 256)
		if err != nil {
			return nil, err
		}
		in.ParentCheckpointID = &v
	}
	createdAt, err := normalize.Timestamp("createdAt", in.CreatedAt)
	if err != nil {
		return nil, err
	}

	c := &Checkpoint{
		CheckpointID:       checkpointID,
		TenantID:           tenantID,
		StateRef:           *stateRef,
		DiffRefs:           diffRefs,
		ParentCheckpointID: in.ParentCheckpointID,
		Revision:           revision,
		CreatedAt:          createdAt,
	}

	hash, err := canonical.HashJSON(withoutCheckpointHash(c))
	if err != nil {
		return nil, err
	}
	c.CheckpointHash = hash
	return c, nil
}

// Validate recomputes checkpointHash and compares it to the stored value.
func Validate(c *Checkpoint) error {
	if c == nil {
		return errs.New("STATE_CHECKPOINT_MISSING", "checkpoint is nil")
	}
	recomputed, err := canonical.HashJSON(withoutCheckpointHash(c))
	if err != nil {
		return err
	}
	if recomputed != c.CheckpointHash {
		return errs.New("STATE_CHECKPOINT_HASH_MISMATCH", "recomputed checkpointHash does not match stored value")
	}
	return nil
}

func withoutCheckpointHash(c *Checkpoint) *Checkpoint {
	cp := *c
	cp.CheckpointHash = ""
	return &cp
}

// ValidateLineage checks that checkpoints form exactly one linear,
// non-branching parent→child chain rooted at a single checkpoint with a
// nil ParentCheckpointID (spec §3).
func ValidateLineage(checkpoints []*Checkpoint) ([]*Checkpoint, error) {
	if len(checkpoints) == 0 {
		return nil, errs.New("LINEAGE_EMPTY", "lineage must contain at least one checkpoint")
	}

	byID := make(map[string]*Checkpoint, len(checkpoints))
	childOf := make(map[string]string, len(checkpoints))
	var root *Checkpoint

	for _, c := range checkpoints {
		if _, dup := byID[c.CheckpointID]; dup {
			return nil, errs.New("LINEAGE_DUPLICATE_CHECKPOINT", "duplicate checkpointId in lineage")
		}
		byID[c.CheckpointID] = c
		if c.ParentCheckpointID == nil {
			if root != nil {
				return nil, errs.New("LINEAGE_MULTIPLE_ROOTS", "lineage must be rooted at exactly one checkpoint")
			}
			root = c
		}
	}
	if root == nil {
		return nil, errs.New("LINEAGE_NO_ROOT", "lineage has no checkpoint with a nil parentCheckpointId")
	}

	for _, c := range checkpoints {
		if c.ParentCheckpointID == nil {
			continue
		}
		parentID := *c.ParentCheckpointID
		if _, ok := byID[parentID]; !ok {
			return nil, errs.New("LINEAGE_PARENT_MISSING", "checkpoint references a parentCheckpointId not present in the lineage")
		}
		if existing, ok := childOf[parentID]; ok && existing != c.CheckpointID {
			return nil, errs.New("LINEAGE_BRANCHING", "a checkpoint in this lineage has more than one child")
		}
		childOf[parentID] = c.CheckpointID
	}

	ordered := make([]*Checkpoint, 0, len(checkpoints))
	cur := root
	for {
		ordered = append(ordered, cur)
		nextID, ok := childOf[cur.CheckpointID]
		if !ok {
			break
		}
		cur = byID[nextID]
	}
	if len(ordered) != len(checkpoints) {
		return nil, errs.New("LINEAGE_DISCONNECTED", "lineage contains checkpoints unreachable from the root")
	}
	return ordered, nil
}

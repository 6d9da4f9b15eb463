package checkpoint

import (
	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

// Compaction is LineageCompaction.v1: a record that a contiguous range
// of a lineage was collapsed into a single resulting checkpoint.
type Compaction struct {
	LineageID          string `json:"lineageId"`
	TenantID           string `json:"tenantId"`
	FromCheckpointID   string `json:"fromCheckpointId"`
	ToCheckpointID      string `json:"toCheckpointId"`
	ResultCheckpointID  string `json:"resultCheckpointId"`
	CompactedAt        string `json:"compactedAt"`
	CompactionHash     string `json:"compactionHash,omitempty"`
}

// CompactionInput is the unnormalized set of fields used to build a Compaction.
type CompactionInput struct {
	LineageID          string
	TenantID           string
	FromCheckpointID   string
	ToCheckpointID      string
	ResultCheckpointID  string
	CompactedAt        string
}

// BuildCompaction validates that [fromCheckpointId, toCheckpointId] is a
// contiguous sub-range of the given ordered lineage and that
// resultCheckpointId is one of the checkpoints in that range, then
// computes compactionHash.
func BuildCompaction(orderedLineage []*Checkpoint, in CompactionInput) (*Compaction, error) {
	lineageID, err := normalize.Identifier("lineageId", in.LineageID, 256)
	if err != nil {
		return nil, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return nil, err
	}
	fromID, err := normalize.Identifier("fromCheckpointId", in.FromCheckpointID, 256)
	if err != nil {
		return nil, err
	}
	toID, err := normalize.Identifier("toCheckpointId", in.ToCheckpointID, 256)
	if err != nil {
		return nil, err
	}
	resultID, err := normalize.Identifier("resultCheckpointId", in.ResultCheckpointID, 256)
	if err != nil {
		return nil, err
	}
	compactedAt, err := normalize.Timestamp("compactedAt", in.CompactedAt)
	if err != nil {
		return nil, err
	}

	fromIdx, toIdx := -1, -1
	for i, c := range orderedLineage {
		if c.CheckpointID == fromID {
			fromIdx = i
		}
		if c.CheckpointID == toID {
			toIdx = i
		}
	}
	if fromIdx == -1 || toIdx == -1 || fromIdx > toIdx {
		return nil, errs.New("COMPACTION_RANGE_INVALID", "fromCheckpointId/toCheckpointId is not a valid contiguous range in the lineage")
	}
	found := false
	for _, c := range orderedLineage[fromIdx : toIdx+1] {
		if c.CheckpointID == resultID {
			found = true
			break
		}
	}
	if !found {
		return nil, errs.New("COMPACTION_RESULT_OUTSIDE_RANGE", "resultCheckpointId must be within the compacted range")
	}

	c := &Compaction{
		LineageID:         lineageID,
		TenantID:          tenantID,
		FromCheckpointID:  fromID,
		ToCheckpointID:     toID,
		ResultCheckpointID: resultID,
		CompactedAt:       compactedAt,
	}
	hash, err := canonical.HashJSON(withoutCompactionHash(c))
	if err != nil {
		return nil, err
	}
	c.CompactionHash = hash
	return c, nil
}

func withoutCompactionHash(c *Compaction) *Compaction {
	cp := *c
	cp.CompactionHash = ""
	return &cp
}

// Restore is LineageRestore.v1: a record that a lineage's head was
// rewound to an earlier checkpoint.
type Restore struct {
	LineageID           string  `json:"lineageId"`
	TenantID            string  `json:"tenantId"`
	RestoredCheckpointID string `json:"restoredCheckpointId"`
	ReasonCode          *string `json:"reasonCode"`
	RestoredAt          string  `json:"restoredAt"`
	RestoreHash         string  `json:"restoreHash,omitempty"`
}

// RestoreInput is the unnormalized set of fields used to build a Restore.
type RestoreInput struct {
	LineageID            string
	TenantID             string
	RestoredCheckpointID string
	ReasonCode           *string
	RestoredAt           string
}

// BuildRestore validates that restoredCheckpointId exists in the given
// ordered lineage, then computes restoreHash.
func BuildRestore(orderedLineage []*Checkpoint, in RestoreInput) (*Restore, error) {
	lineageID, err := normalize.Identifier("lineageId", in.LineageID, 256)
	if err != nil {
		return nil, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return nil, err
	}
	restoredID, err := normalize.Identifier("restoredCheckpointId", in.RestoredCheckpointID, 256)
	if err != nil {
		return nil, err
	}
	restoredAt, err := normalize.Timestamp("restoredAt", in.RestoredAt)
	if err != nil {
		return nil, err
	}

	found := false
	for _, c := range orderedLineage {
		if c.CheckpointID == restoredID {
			found = true
			break
		}
	}
	if !found {
		return nil, errs.New("RESTORE_TARGET_NOT_FOUND", "restoredCheckpointId is not present in the lineage")
	}

	r := &Restore{
		LineageID:            lineageID,
		TenantID:             tenantID,
		RestoredCheckpointID: restoredID,
		ReasonCode:           in.ReasonCode,
		RestoredAt:           restoredAt,
	}
	hash, err := canonical.HashJSON(withoutRestoreHash(r))
	if err != nil {
		return nil, err
	}
	r.RestoreHash = hash
	return r, nil
}

func withoutRestoreHash(r *Restore) *Restore {
	cp := *r
	cp.RestoreHash = ""
	return &cp
}

// Package workorder implements SubAgentWorkOrder.v1 and
// SubAgentCompletionReceipt.v1 (spec §3, component C4). Grounded on the
// teacher's pkg/contracts/receipt.go (receipt shape, provenance,
// monotonic progress tracking) adapted to the fixed-price sub-agent
// settlement model this spec describes.
package workorder

import (
	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

const PricingModelFixed = "fixed"

var allowedReceiptStatuses = []string{"success", "failed"}

type Pricing struct {
	Model       string `json:"model"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

// Constraints names the single bounding invariant spec §3 references
// directly (SubAgentCompletionReceipt.v1's settlementQuote is "bounded
// by the work order's constraints.maxCostCents").
type Constraints struct {
	MaxCostCents *int64 `json:"maxCostCents,omitempty"`
}

type ProgressEvent struct {
	EventID  string                 `json:"eventId"`
	At       string                 `json:"at"`
	Status   string                 `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type SettlementQuote struct {
	Currency    string `json:"currency"`
	AmountCents int64  `json:"amountCents"`
}

// WorkOrder is the normalized SubAgentWorkOrder.v1 record.
type WorkOrder struct {
	WorkOrderID     string                 `json:"workOrderId"`
	TenantID        string                 `json:"tenantId"`
	IntentID        string                 `json:"intentId"`
	RequesterAgentID string                `json:"requesterAgentId"`
	WorkerAgentID   string                 `json:"workerAgentId"`
	Pricing         Pricing                `json:"pricing"`
	Constraints     *Constraints           `json:"constraints,omitempty"`
	EvidencePolicy  map[string]interface{} `json:"evidencePolicy,omitempty"`
	Status          string                 `json:"status"`
	ProgressEvents  []ProgressEvent        `json:"progressEvents"`
	Settlement      *SettlementQuote       `json:"settlement"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt"`
	WorkOrderHash   string                 `json:"workOrderHash,omitempty"`
}

// Input is the unnormalized set of fields used to build a WorkOrder.
type Input struct {
	WorkOrderID      string
	TenantID         string
	IntentID         string
	RequesterAgentID string
	WorkerAgentID    string
	AmountCents      int64
	Currency         string
	MaxCostCents     *int64
	EvidencePolicy   map[string]interface{}
	Status           string
	CreatedAt        string
	UpdatedAt        string
}

// Build normalizes in into a fresh WorkOrder with no progress events and
// no settlement, and computes workOrderHash.
func Build(in Input) (*WorkOrder, error) {
	workOrderID, err := normalize.Identifier("workOrderId", in.WorkOrderID, 256)
	if err != nil {
		return nil, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return nil, err
	}
	intentID, err := normalize.Identifier("intentId", in.IntentID, 256)
	if err != nil {
		return nil, err
	}
	requesterAgentID, err := normalize.Identifier("requesterAgentId", in.RequesterAgentID, 256)
	if err != nil {
		return nil, err
	}
	workerAgentID, err := normalize.Identifier("workerAgentId", in.WorkerAgentID, 256)
	if err != nil {
		return nil, err
	}
	amountCents, err := normalize.PositiveSafeInt("pricing.amountCents", in.AmountCents)
	if err != nil {
		return nil, err
	}
	currency, err := normalize.Currency("pricing.currency", in.Currency)
	if err != nil {
		return nil, err
	}
	status, err := normalize.NonEmptyString("status", in.Status, 64)
	if err != nil {
		return nil, err
	}
	evidencePolicy, err := normalize.PlainObject("evidencePolicy", metaOrNil(in.EvidencePolicy))
	if err != nil {
		return nil, err
	}
	createdAt, err := normalize.Timestamp("createdAt", in.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := normalize.Timestamp("updatedAt", in.UpdatedAt)
	if err != nil {
		return nil, err
	}

	var constraints *Constraints
	if in.MaxCostCents != nil {
		v, err := normalize.NonNegativeSafeInt("constraints.maxCostCents", *in.MaxCostCents)
		if err != nil {
			return nil, err
		}
		constraints = &Constraints{MaxCostCents: &v}
	}

	w := &WorkOrder{
		WorkOrderID:      workOrderID,
		TenantID:         tenantID,
		IntentID:         intentID,
		RequesterAgentID: requesterAgentID,
		WorkerAgentID:    workerAgentID,
		Pricing:          Pricing{Model: PricingModelFixed, AmountCents: amountCents, Currency: currency},
		Constraints:      constraints,
		EvidencePolicy:   evidencePolicy,
		Status:           status,
		ProgressEvents:   []ProgressEvent{},
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}

	hash, err := canonical.HashJSON(withoutWorkOrderHash(w))
	if err != nil {
		return nil, err
	}
	w.WorkOrderHash = hash
	return w, nil
}

// AppendProgress appends a progress event (append-only, per spec §3)
// and recomputes workOrderHash.
func AppendProgress(w *WorkOrder, ev ProgressEvent, updatedAt string) (*WorkOrder, error) {
	if w == nil {
		return nil, errs.New("WORK_ORDER_MISSING", "work order is nil")
	}
	eventID, err := normalize.Identifier("progressEvents[].eventId", ev.EventID, 256)
	if err != nil {
		return nil, err
	}
	at, err := normalize.Timestamp("progressEvents[].at", ev.At)
	if err != nil {
		return nil, err
	}
	status, err := normalize.NonEmptyString("progressEvents[].status", ev.Status, 64)
	if err != nil {
		return nil, err
	}
	newUpdatedAt, err := normalize.Timestamp("updatedAt", updatedAt)
	if err != nil {
		return nil, err
	}

	next := *w
	next.ProgressEvents = append(append([]ProgressEvent{}, w.ProgressEvents...), ProgressEvent{
		EventID: eventID, At: at, Status: status, Message: ev.Message, Metadata: ev.Metadata,
	})
	next.UpdatedAt = newUpdatedAt
	next.WorkOrderHash = ""

	hash, err := canonical.HashJSON(withoutWorkOrderHash(&next))
	if err != nil {
		return nil, err
	}
	next.WorkOrderHash = hash
	return &next, nil
}

// Validate recomputes workOrderHash and compares it to the stored value.
func Validate(w *WorkOrder) error {
	if w == nil {
		return errs.New("WORK_ORDER_MISSING", "work order is nil")
	}
	recomputed, err := canonical.HashJSON(withoutWorkOrderHash(w))
	if err != nil {
		return err
	}
	if recomputed != w.WorkOrderHash {
		return errs.New("WORK_ORDER_HASH_MISMATCH", "recomputed workOrderHash does not match stored value")
	}
	return nil
}

func withoutWorkOrderHash(w *WorkOrder) *WorkOrder {
	cp := *w
	cp.WorkOrderHash = ""
	return &cp
}

// CompletionReceipt is the normalized SubAgentCompletionReceipt.v1 record.
type CompletionReceipt struct {
	ReceiptID       string          `json:"receiptId"`
	WorkOrderID     string          `json:"workOrderId"`
	TenantID        string          `json:"tenantId"`
	Status          string          `json:"status"`
	EvidenceRefs    []string        `json:"evidenceRefs"`
	SettlementQuote SettlementQuote `json:"settlementQuote"`
	CreatedAt       string          `json:"createdAt"`
	ReceiptHash     string          `json:"receiptHash,omitempty"`
}

// ReceiptInput is the unnormalized set of fields used to build a
// CompletionReceipt against its bound WorkOrder.
type ReceiptInput struct {
	ReceiptID          string
	Status             string
	EvidenceRefs       []string
	SettlementCurrency string
	SettlementCents    int64
	CreatedAt          string
}

// BuildReceipt normalizes in into a CompletionReceipt bound to w,
// enforcing that settlementQuote.amountCents is within
// w.Constraints.MaxCostCents when that bound is present (spec §3).
func BuildReceipt(w *WorkOrder, in ReceiptInput) (*CompletionReceipt, error) {
	if w == nil {
		return nil, errs.New("WORK_ORDER_MISSING", "work order is nil")
	}
	receiptID, err := normalize.Identifier("receiptId", in.ReceiptID, 256)
	if err != nil {
		return nil, err
	}
	status, err := normalize.AllowListEnum("status", in.Status, allowedReceiptStatuses...)
	if err != nil {
		return nil, err
	}
	evidenceRefs := in.EvidenceRefs
	if evidenceRefs == nil {
		evidenceRefs = []string{}
	}
	currency, err := normalize.Currency("settlementQuote.currency", in.SettlementCurrency)
	if err != nil {
		return nil, err
	}
	amountCents, err := normalize.NonNegativeSafeInt("settlementQuote.amountCents", in.SettlementCents)
	if err != nil {
		return nil, err
	}
	if w.Constraints != nil && w.Constraints.MaxCostCents != nil && amountCents > *w.Constraints.MaxCostCents {
		return nil, errs.New("SETTLEMENT_EXCEEDS_MAX_COST", "settlementQuote.amountCents exceeds the work order's constraints.maxCostCents")
	}
	createdAt, err := normalize.Timestamp("createdAt", in.CreatedAt)
	if err != nil {
		return nil, err
	}

	r := &CompletionReceipt{
		ReceiptID:       receiptID,
		WorkOrderID:     w.WorkOrderID,
		TenantID:        w.TenantID,
		Status:          status,
		EvidenceRefs:    evidenceRefs,
		SettlementQuote: SettlementQuote{Currency: currency, AmountCents: amountCents},
		CreatedAt:       createdAt,
	}

	hash, err := canonical.HashJSON(withoutReceiptHash(r))
	if err != nil {
		return nil, err
	}
	r.ReceiptHash = hash
	return r, nil
}

// ValidateReceipt recomputes receiptHash and compares it to the stored value.
func ValidateReceipt(r *CompletionReceipt) error {
	if r == nil {
		return errs.New("COMPLETION_RECEIPT_MISSING", "receipt is nil")
	}
	recomputed, err := canonical.HashJSON(withoutReceiptHash(r))
	if err != nil {
		return err
	}
	if recomputed != r.ReceiptHash {
		return errs.New("COMPLETION_RECEIPT_HASH_MISMATCH", "recomputed receiptHash does not match stored value")
	}
	return nil
}

func withoutReceiptHash(r *CompletionReceipt) *CompletionReceipt {
	cp := *r
	cp.ReceiptHash = ""
	return &cp
}

func metaOrNil(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}

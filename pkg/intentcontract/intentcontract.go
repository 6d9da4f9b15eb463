// Package intentcontract implements IntentContract.v1 (spec §3,
// component C4). Grounded on the teacher's pkg/contracts/receipt.go for
// record shape and pkg/canonicalize for the hash step; the strict
// unknown-field rejection follows the teacher's pattern of decoding
// wire payloads with json.Decoder.DisallowUnknownFields in pkg/manifest.
package intentcontract

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

var allowedDeterminism = []string{"deterministic", "bounded_nondeterministic", "open_nondeterministic"}

type SpendLimit struct {
	Currency      string `json:"currency"`
	MaxAmountCents int64  `json:"maxAmountCents"`
}

type Intent struct {
	TaskType             string                 `json:"taskType"`
	CapabilityID         string                 `json:"capabilityId"`
	RiskClass            string                 `json:"riskClass"`
	ExpectedDeterminism  string                 `json:"expectedDeterminism"`
	SideEffecting        bool                   `json:"sideEffecting"`
	MaxLossCents         int64                  `json:"maxLossCents"`
	SpendLimit           SpendLimit             `json:"spendLimit"`
	ParametersHash       string                 `json:"parametersHash,omitempty"`
	Constraints          map[string]interface{} `json:"constraints,omitempty"`
}

// Contract is the normalized IntentContract.v1 record.
type Contract struct {
	IntentID        string                 `json:"intentId"`
	NegotiationID    string                 `json:"negotiationId"`
	TenantID        string                 `json:"tenantId"`
	ProposerAgentID  string                 `json:"proposerAgentId"`
	ResponderAgentID string                 `json:"responderAgentId"`
	Intent          Intent                 `json:"intent"`
	IdempotencyKey  string                 `json:"idempotencyKey"`
	Nonce           string                 `json:"nonce"`
	ExpiresAt       string                 `json:"expiresAt"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt"`
	IntentHash      string                 `json:"intentHash,omitempty"`
}

// Input is the unnormalized set of fields used to build a Contract.
type Input struct {
	IntentID         string
	NegotiationID    string
	TenantID         string
	ProposerAgentID  string
	ResponderAgentID string
	TaskType         string
	CapabilityID     string
	RiskClass        string
	ExpectedDeterminism string
	SideEffecting    bool
	MaxLossCents     int64
	Currency         string
	MaxAmountCents   int64
	ParametersHash   string
	Constraints      map[string]interface{}
	IdempotencyKey   string
	Nonce            string
	ExpiresAt        string
	Metadata         map[string]interface{}
	CreatedAt        string
	UpdatedAt        string
}

// ParseStrict decodes raw as a Contract, rejecting any field at the
// root or within "intent" that is not part of the schema (spec §3:
// "Unknown root or intent fields are rejected").
func ParseStrict(raw []byte) (*Contract, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var c Contract
	if err := dec.Decode(&c); err != nil {
		return nil, errs.Wrap("INTENT_CONTRACT_SHAPE_INVALID", "unknown or malformed field in IntentContract.v1 payload", err)
	}
	return &c, nil
}

// Build normalizes in into a Contract and computes intentHash.
func Build(in Input) (*Contract, error) {
	intentID, err := normalize.Identifier("intentId", in.IntentID, 256)
	if err != nil {
		return nil, err
	}
	negotiationID, err := normalize.Identifier("negotiationId", in.NegotiationID, 256)
	if err != nil {
		return nil, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return nil, err
	}
	proposerAgentID, err := normalize.Identifier("proposerAgentId", in.ProposerAgentID, 256)
	if err != nil {
		return nil, err
	}
	responderAgentID, err := normalize.Identifier("responderAgentId", in.ResponderAgentID, 256)
	if err != nil {
		return nil, err
	}
	taskType, err := normalize.NonEmptyString("intent.taskType", in.TaskType, 256)
	if err != nil {
		return nil, err
	}
	capabilityID, err := normalize.Identifier("intent.capabilityId", in.CapabilityID, 256)
	if err != nil {
		return nil, err
	}
	riskClass, err := normalize.NonEmptyString("intent.riskClass", in.RiskClass, 64)
	if err != nil {
		return nil, err
	}
	expectedDeterminism, err := normalize.AllowListEnum("intent.expectedDeterminism", in.ExpectedDeterminism, allowedDeterminism...)
	if err != nil {
		return nil, err
	}
	maxLossCents, err := normalize.NonNegativeSafeInt("intent.maxLossCents", in.MaxLossCents)
	if err != nil {
		return nil, err
	}
	currency, err := normalize.Currency("intent.spendLimit.currency", in.Currency)
	if err != nil {
		return nil, err
	}
	maxAmountCents, err := normalize.NonNegativeSafeInt("intent.spendLimit.maxAmountCents", in.MaxAmountCents)
	if err != nil {
		return nil, err
	}
	var parametersHash string
	if in.ParametersHash != "" {
		parametersHash, err = normalize.HexSHA256("intent.parametersHash", in.ParametersHash)
		if err != nil {
			return nil, err
		}
	}
	constraints, err := normalize.PlainObject("intent.constraints", metaOrNil(in.Constraints))
	if err != nil {
		return nil, err
	}
	idempotencyKey, err := normalize.NonEmptyString("idempotencyKey", in.IdempotencyKey, 256)
	if err != nil {
		return nil, err
	}
	nonce, err := normalize.NonEmptyString("nonce", in.Nonce, 256)
	if err != nil {
		return nil, err
	}
	if len(nonce) < 8 {
		return nil, errs.New("NONCE_TOO_SHORT", "nonce must be at least 8 characters")
	}
	expiresAt, err := normalize.Timestamp("expiresAt", in.ExpiresAt)
	if err != nil {
		return nil, err
	}
	meta, err := normalize.PlainObject("metadata", metaOrNil(in.Metadata))
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
	createdT, _ := time.Parse(time.RFC3339Nano, createdAt)
	updatedT, _ := time.Parse(time.RFC3339Nano, updatedAt)
	if createdT.After(updatedT) {
		return nil, errs.New("TIMESTAMP_ORDER_INVALID", "createdAt must be <= updatedAt")
	}

	c := &Contract{
		IntentID:         intentID,
		NegotiationID:    negotiationID,
		TenantID:         tenantID,
		ProposerAgentID:  proposerAgentID,
		ResponderAgentID: responderAgentID,
		Intent: Intent{
			TaskType:            taskType,
			CapabilityID:        capabilityID,
			RiskClass:           riskClass,
			ExpectedDeterminism: expectedDeterminism,
			SideEffecting:       in.SideEffecting,
			MaxLossCents:        maxLossCents,
			SpendLimit:          SpendLimit{Currency: currency, MaxAmountCents: maxAmountCents},
			ParametersHash:      parametersHash,
			Constraints:         constraints,
		},
		IdempotencyKey: idempotencyKey,
		Nonce:          nonce,
		ExpiresAt:      expiresAt,
		Metadata:       meta,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}

	hash, err := canonical.HashJSON(withoutIntentHash(c))
	if err != nil {
		return nil, err
	}
	c.IntentHash = hash
	return c, nil
}

// Validate recomputes intentHash and compares it to the stored value.
func Validate(c *Contract) error {
	if c == nil {
		return errs.New("INTENT_CONTRACT_MISSING", "contract is nil")
	}
	recomputed, err := canonical.HashJSON(withoutIntentHash(c))
	if err != nil {
		return err
	}
	if recomputed != c.IntentHash {
		return errs.New("INTENT_CONTRACT_HASH_TAMPERED", "recomputed intentHash does not match stored value")
	}
	return nil
}

func withoutIntentHash(c *Contract) *Contract {
	cp := *c
	cp.IntentHash = ""
	return &cp
}

func metaOrNil(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}

// Package bundle implements the proof-bundle / close-pack assembler of
// spec §4.5 (component C9): a deterministic file-set manifest plus an
// optional signed bundle-head attestation. Grounded on the teacher's
// pkg/pack/fs_registry.go (sorted path listing, sha256-per-file) and
// pkg/pack/builder.go (content-hash-then-sign assembly), generalized
// from a single pack manifest to an arbitrary ordered file set.
package bundle

import (
	"crypto/ed25519"
	"sort"
	"strings"

	"github.com/nooterra/trustcore/pkg/canonical"
	"github.com/nooterra/trustcore/pkg/errs"
	"github.com/nooterra/trustcore/pkg/normalize"
)

const (
	ManifestSchema        = "ProofBundleManifest.v1"
	HeadAttestationSchema = "BundleHeadAttestation.v1"
)

// verifyExcludePrefix is the one hard-coded exclusion spec §4.5 names:
// "any path matching verify/** is excluded from the manifest so a
// verification report may reference manifestHash without circularity."
const verifyExcludePrefix = "verify/"

// FileEntry is one row of a manifest's files array.
type FileEntry struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Bytes  int64  `json:"bytes"`
}

// Hashing describes the deterministic rules the manifest was built
// under, echoed into the manifest itself per spec §4.5.
type Hashing struct {
	FileOrder string   `json:"fileOrder"`
	Excludes  []string `json:"excludes"`
}

// Manifest is the normalized ProofBundleManifest.v1 record.
type Manifest struct {
	Schema       string      `json:"schema"`
	Kind         string      `json:"kind"`
	TenantID     string      `json:"tenantId"`
	Scope        string      `json:"scope,omitempty"`
	GeneratedAt  string      `json:"generatedAt"`
	Hashing      Hashing     `json:"hashing"`
	Files        []FileEntry `json:"files"`
	ManifestHash string      `json:"manifestHash,omitempty"`
}

// BuildInput is the unnormalized set of fields used to assemble a
// Manifest. Files maps a bundle-relative path to its raw bytes; paths
// under verify/** are excluded from hashing (spec §4.5 rule ii).
type BuildInput struct {
	Kind        string
	TenantID    string
	Scope       string
	GeneratedAt string
	Files       map[string][]byte
}

// BuildManifest sorts Files by path ASC (code-point), excludes any path
// matching verify/**, binds each remaining entry's sha256 and byte
// length, and computes manifestHash over the result (spec §4.5).
func BuildManifest(in BuildInput) (*Manifest, error) {
	kind, err := normalize.NonEmptyString("kind", in.Kind, 64)
	if err != nil {
		return nil, err
	}
	tenantID, err := normalize.Identifier("tenantId", in.TenantID, 256)
	if err != nil {
		return nil, err
	}
	generatedAt, err := normalize.Timestamp("generatedAt", in.GeneratedAt)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(in.Files))
	for p := range in.Files {
		if strings.HasPrefix(p, verifyExcludePrefix) {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	files := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		b := in.Files[p]
		files = append(files, FileEntry{
			Name:   p,
			SHA256: canonical.SHA256Hex(b),
			Bytes:  int64(len(b)),
		})
	}

	m := &Manifest{
		Schema:      ManifestSchema,
		Kind:        kind,
		TenantID:    tenantID,
		Scope:       in.Scope,
		GeneratedAt: generatedAt,
		Hashing:     Hashing{FileOrder: "path_asc", Excludes: []string{"verify/**"}},
		Files:       files,
	}

	hash, err := canonical.HashJSON(withoutManifestHash(m))
	if err != nil {
		return nil, err
	}
	m.ManifestHash = hash
	return m, nil
}

// ValidateManifest recomputes manifestHash and compares it to the
// stored value.
func ValidateManifest(m *Manifest) error {
	if m == nil {
		return errs.New("PROOF_BUNDLE_MANIFEST_MISSING", "manifest is nil")
	}
	recomputed, err := canonical.HashJSON(withoutManifestHash(m))
	if err != nil {
		return err
	}
	if recomputed != m.ManifestHash {
		return errs.New("PROOF_BUNDLE_MANIFEST_HASH_MISMATCH", "recomputed manifestHash does not match stored value")
	}
	return nil
}

func withoutManifestHash(m *Manifest) *Manifest {
	cp := *m
	cp.ManifestHash = ""
	return &cp
}

// StreamHead names the last event/chainHash of one embedded stream
// (e.g. a job's or a month's event log, or a governance decision
// stream) folded into a head attestation (spec §4.5).
type StreamHead struct {
	Stream    string `json:"stream"`
	ChainHash string `json:"chainHash"`
}

// HeadAttestation is the normalized BundleHeadAttestation.v1 record.
type HeadAttestation struct {
	Schema          string                       `json:"schema"`
	Kind            string                       `json:"kind"`
	TenantID        string                       `json:"tenantId"`
	Scope           string                       `json:"scope,omitempty"`
	GeneratedAt     string                       `json:"generatedAt"`
	ManifestHash    string                       `json:"manifestHash"`
	Heads           []StreamHead                 `json:"heads"`
	SignedAt        string                       `json:"signedAt"`
	SignerKeyID     string                       `json:"signerKeyId"`
	AttestationHash string                       `json:"attestationHash,omitempty"`
	Signature       *canonical.SignatureEnvelope `json:"signature,omitempty"`
}

// BuildHeadAttestation derives a BundleHeadAttestation.v1 bound to m's
// manifestHash and, when priv is non-nil, signs it (spec §4.5: "a head
// attestation is produced when a signer is supplied"). Mirroring
// capability's build-then-sign lifecycle, attestationHash is computed
// first and the signature is produced over that hash, not over some
// caller-supplied envelope attached after the fact; signedAt is forced
// to equal generatedAt, matching spec §4.5's "signedAt=generatedAt".
func BuildHeadAttestation(m *Manifest, heads []StreamHead, priv ed25519.PrivateKey) (*HeadAttestation, error) {
	if m == nil {
		return nil, errs.New("PROOF_BUNDLE_MANIFEST_MISSING", "manifest is nil")
	}
	sortedHeads := make([]StreamHead, len(heads))
	copy(sortedHeads, heads)
	sort.Slice(sortedHeads, func(i, j int) bool { return sortedHeads[i].Stream < sortedHeads[j].Stream })

	h := &HeadAttestation{
		Schema:       HeadAttestationSchema,
		Kind:         m.Kind,
		TenantID:     m.TenantID,
		Scope:        m.Scope,
		GeneratedAt:  m.GeneratedAt,
		ManifestHash: m.ManifestHash,
		Heads:        sortedHeads,
		SignedAt:     m.GeneratedAt,
	}
	if priv != nil {
		keyID, err := canonical.DeriveKeyId(priv.Public().(ed25519.PublicKey))
		if err != nil {
			return nil, err
		}
		h.SignerKeyID = keyID
	}

	hash, err := canonical.HashJSON(withoutAttestationHash(h))
	if err != nil {
		return nil, err
	}
	h.AttestationHash = hash

	if priv != nil {
		env, err := canonical.SignEnvelope(hash, priv, h.SignedAt)
		if err != nil {
			return nil, err
		}
		h.Signature = env
	}
	return h, nil
}

// ValidateHeadAttestation recomputes attestationHash and compares it to
// the stored value.
func ValidateHeadAttestation(h *HeadAttestation) error {
	if h == nil {
		return errs.New("BUNDLE_HEAD_ATTESTATION_MISSING", "head attestation is nil")
	}
	recomputed, err := canonical.HashJSON(withoutAttestationHash(h))
	if err != nil {
		return err
	}
	if recomputed != h.AttestationHash {
		return errs.New("BUNDLE_HEAD_ATTESTATION_HASH_MISMATCH", "recomputed attestationHash does not match stored value")
	}
	return nil
}

// VerifyHeadAttestation checks h's signature against pub, binding it to
// the recomputed attestationHash rather than to h's own declaration, so
// a tampered-but-rehashed attestation cannot verify under a stale
// signature.
func VerifyHeadAttestation(h *HeadAttestation, pub ed25519.PublicKey) error {
	if h == nil {
		return errs.New("BUNDLE_HEAD_ATTESTATION_MISSING", "head attestation is nil")
	}
	if err := ValidateHeadAttestation(h); err != nil {
		return err
	}
	return canonical.VerifyEnvelope(h.AttestationHash, h.Signature, pub)
}

func withoutAttestationHash(h *HeadAttestation) *HeadAttestation {
	cp := *h
	cp.AttestationHash = ""
	cp.Signature = nil
	return &cp
}

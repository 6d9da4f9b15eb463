package canonical

import (
	"crypto/ed25519"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/nooterra/trustcore/pkg/errs"
)

const tenantKeyDerivationSalt = "trustcore-tenant-kdf"

// DeriveTenantKey derives a deterministic Ed25519 keypair for tenantID
// from a master seed using HKDF-SHA256, so test fixtures and local
// tooling can produce a stable, reproducible signing key per tenant
// without persisting one key per tenant on disk. Grounded on the
// teacher's pkg/governance/keyring.go Keyring.DeriveForTenant, which
// derives the same way from an Ed25519 master seed.
func DeriveTenantKey(masterSeed []byte, tenantID string) (ed25519.PrivateKey, error) {
	if len(masterSeed) == 0 {
		return nil, errs.New("KEY_DERIVATION_SEED_MISSING", "masterSeed must not be empty")
	}
	if tenantID == "" {
		return nil, errs.New("KEY_DERIVATION_TENANT_MISSING", "tenantID must not be empty")
	}

	reader := hkdf.New(sha256.New, masterSeed, []byte(tenantKeyDerivationSalt), []byte(tenantID))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, errs.Wrap("KEY_DERIVATION_FAILED", "HKDF derivation of tenant seed failed", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

package identitylog

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/nooterra/trustcore/pkg/errs"
)

// splitPoint returns the largest power of two strictly less than n, the
// RFC-6962-style left/right split point for a subtree of size n (n>1).
func splitPoint(n int) int {
	k := 1
	for k*2 < n {
		k *= 2
	}
	return k
}

func hashPair(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// merkleRoot computes the RFC-6962-style root over leaves, where each
// leaf is already a hash (no domain-separation tag is applied, which
// is where spec §4.7 differs from the conventional CT leaf-hash prefixing).
func merkleRoot(leaves [][]byte) []byte {
	n := len(leaves)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return leaves[0]
	}
	k := splitPoint(n)
	left := merkleRoot(leaves[:k])
	right := merkleRoot(leaves[k:])
	return hashPair(left, right)
}

// merkleProof returns the ordered sibling hashes (leaf-adjacent first,
// root-adjacent last) for the leaf at index m.
func merkleProof(leaves [][]byte, m int) [][]byte {
	n := len(leaves)
	if n <= 1 {
		return nil
	}
	k := splitPoint(n)
	if m < k {
		sub := merkleProof(leaves[:k], m)
		return append(sub, merkleRoot(leaves[k:]))
	}
	sub := merkleProof(leaves[k:], m-k)
	return append(sub, merkleRoot(leaves[:k]))
}

// merkleRootFromProof recomputes the root given a leaf's hash, its
// index, the total tree size, and its sibling proof, mirroring the
// recursion merkleProof used to produce that proof.
func merkleRootFromProof(index, size int, leafHash []byte, proof [][]byte) ([]byte, error) {
	pos := 0
	root, err := verifyStep(index, size, leafHash, proof, &pos)
	if err != nil {
		return nil, err
	}
	if pos != len(proof) {
		return nil, errs.New("PROOF_SIBLINGS_INVALID", "inclusion proof has unconsumed siblings")
	}
	return root, nil
}

func verifyStep(index, size int, hash []byte, proof [][]byte, pos *int) ([]byte, error) {
	if size == 1 {
		return hash, nil
	}
	k := splitPoint(size)
	var sub []byte
	var err error
	var combineLeft bool
	if index < k {
		sub, err = verifyStep(index, k, hash, proof, pos)
		combineLeft = true
	} else {
		sub, err = verifyStep(index-k, size-k, hash, proof, pos)
		combineLeft = false
	}
	if err != nil {
		return nil, err
	}
	if *pos >= len(proof) {
		return nil, errs.New("PROOF_SIBLINGS_INVALID", "inclusion proof is missing a sibling")
	}
	sibling := proof[*pos]
	*pos++
	if combineLeft {
		return hashPair(sub, sibling), nil
	}
	return hashPair(sibling, sub), nil
}

func hexToBytesAll(hexes []string) ([][]byte, error) {
	out := make([][]byte, len(hexes))
	for i, h := range hexes {
		b, err := hex.DecodeString(h)
		if err != nil || len(b) != sha256.Size {
			return nil, errs.New("HEX_SHA256_INVALID", "leaf hash is not a valid 32-byte hex digest")
		}
		out[i] = b
	}
	return out, nil
}

func bytesToHex(b []byte) string { return hex.EncodeToString(b) }

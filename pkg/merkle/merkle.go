package merkle

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/wealdtech/go-merkletree/v2/keccak256"
)

// DefaultHasher is keccak256, matching the on-chain verifier
func DefaultHasher() Hasher {
	return keccak256.New()
}

// BuildMerkleTree creates a binary merkle tree from encoded leaves using keccak256.
// See BuildMerkleTreeWithHasher.
func BuildMerkleTree(leaves [][]byte) (*MerkleTree, error) {
	return BuildMerkleTreeWithHasher(leaves, DefaultHasher())
}

// BuildMerkleTreeWithHasher creates a binary merkle tree from encoded leaves.
//
// Leaves are hashed, deduplicated and sorted by digest value, so the root does
// not depend on the order of the input. Each pair of nodes is combined as
// hash(min || max). If a level has an odd number of nodes the last one is
// promoted to the next level unchanged.
func BuildMerkleTreeWithHasher(leaves [][]byte, hasher Hasher) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build merkle tree from empty leaf list: %w", types.ErrEmptyInput)
	}
	if hasher == nil {
		hasher = DefaultHasher()
	}

	hashed := make([][32]byte, 0, len(leaves))
	seen := make(map[[32]byte]struct{}, len(leaves))
	for _, leaf := range leaves {
		h := LeafHash(hasher, leaf)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hashed = append(hashed, h)
	}
	sortHashes(hashed)

	// Build tree levels bottom-up
	levels := make([][][32]byte, 0)
	levels = append(levels, hashed)

	currentLevel := hashed
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 >= len(currentLevel) {
				// odd node out is promoted as-is
				nextLevel = append(nextLevel, currentLevel[i])
				continue
			}
			nextLevel = append(nextLevel, hashPair(hasher, currentLevel[i], currentLevel[i+1]))
		}

		if len(nextLevel) != (len(currentLevel)+1)/2 {
			return nil, fmt.Errorf("%w: level %d has %d nodes, expected %d",
				types.ErrInvariantViolation, len(levels), len(nextLevel), (len(currentLevel)+1)/2)
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	// The last level should contain only the root
	if len(currentLevel) != 1 {
		return nil, fmt.Errorf("%w: final level has %d nodes instead of 1", types.ErrInvariantViolation, len(currentLevel))
	}

	return &MerkleTree{
		Leaves: hashed,
		Root:   currentLevel[0],
		levels: levels,
		hasher: hasher,
	}, nil
}

// Depth is the number of levels above the leaves
func (mt *MerkleTree) Depth() int {
	return len(mt.levels) - 1
}

// Levels returns a copy of every level, leaves first and root last
func (mt *MerkleTree) Levels() [][][32]byte {
	out := make([][][32]byte, len(mt.levels))
	for i, level := range mt.levels {
		out[i] = append([][32]byte(nil), level...)
	}
	return out
}

// HashLeaf hashes an encoded leaf with the tree's hash function
func (mt *MerkleTree) HashLeaf(leaf []byte) [32]byte {
	return LeafHash(mt.hasher, leaf)
}

// IndexOf returns the position of a leaf hash in the sorted leaf level
func (mt *MerkleTree) IndexOf(leafHash [32]byte) (int, error) {
	idx := sort.Search(len(mt.Leaves), func(i int) bool {
		return bytes.Compare(mt.Leaves[i][:], leafHash[:]) >= 0
	})
	if idx >= len(mt.Leaves) || mt.Leaves[idx] != leafHash {
		return -1, fmt.Errorf("%w: %x", types.ErrLeafNotFound, leafHash)
	}
	return idx, nil
}

// ProofForLeaf creates a merkle proof for an encoded (pre-hash) leaf.
// Duplicate encodings resolve to the same leaf and therefore the same proof.
func (mt *MerkleTree) ProofForLeaf(leaf []byte) (*MerkleProof, error) {
	idx, err := mt.IndexOf(mt.HashLeaf(leaf))
	if err != nil {
		return nil, err
	}
	return mt.GenerateProof(idx)
}

// GenerateProof creates a merkle proof for the leaf at the given index of the
// sorted leaf level. The proof consists of sibling hashes along the path from
// leaf to root; levels where the node was promoted without a sibling are skipped.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	if leafIndex < 0 || leafIndex >= len(mt.Leaves) {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves)", leafIndex, len(mt.Leaves))
	}

	proof := make([][32]byte, 0, mt.Depth())
	index := leafIndex

	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		var siblingIndex int
		if index%2 == 0 {
			siblingIndex = index + 1
		} else {
			siblingIndex = index - 1
		}

		if siblingIndex < len(currentLevel) {
			proof = append(proof, currentLevel[siblingIndex])
		}

		index = index / 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.Leaves[leafIndex],
		Proof:     proof,
	}, nil
}

// VerifyProof verifies that a leaf is included in the merkle tree with the given root
// using keccak256.
func VerifyProof(proof *MerkleProof, root [32]byte) bool {
	return VerifyProofWithHasher(proof, root, DefaultHasher())
}

// VerifyProofWithHasher recomputes the root from the proof and compares it
func VerifyProofWithHasher(proof *MerkleProof, root [32]byte, hasher Hasher) bool {
	if proof == nil {
		return false
	}
	return ComputeRoot(hasher, proof.Leaf, proof.Proof) == root
}

// ComputeRoot folds the sibling hashes into the leaf hash. Because pairs are
// sorted before hashing the position of each node is not needed.
func ComputeRoot(hasher Hasher, leaf [32]byte, siblings [][32]byte) [32]byte {
	if hasher == nil {
		hasher = DefaultHasher()
	}
	current := leaf
	for _, sibling := range siblings {
		current = hashPair(hasher, current, sibling)
	}
	return current
}

// hashPair computes hash(min(a, b) || max(a, b))
func hashPair(hasher Hasher, a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var out [32]byte
	copy(out[:], hasher.Hash(a[:], b[:]))
	return out
}

// LeafHash hashes an encoded leaf the same way tree construction does
func LeafHash(hasher Hasher, leaf []byte) [32]byte {
	var out [32]byte
	copy(out[:], hasher.Hash(leaf))
	return out
}

func sortHashes(hashes [][32]byte) {
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})
}

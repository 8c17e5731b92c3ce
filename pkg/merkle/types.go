package merkle

// MerkleTree represents a binary merkle tree built from encoded claim leaves.
// The tree uses keccak256 hashing with sorted pairs for Solidity compatibility
// (OpenZeppelin MerkleProof).
type MerkleTree struct {
	// Leaves contains the unique leaf hashes sorted ascending
	Leaves [][32]byte

	// Root is the merkle root hash
	Root [32]byte

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][][32]byte

	hasher Hasher
}

// MerkleProof represents a proof that a leaf is included in the tree.
type MerkleProof struct {
	// LeafIndex is the index of the leaf in the sorted leaves array
	LeafIndex int

	// Leaf is the hash of the leaf being proven
	Leaf [32]byte

	// Proof contains the sibling hashes from leaf to root.
	// Levels where the node had no sibling contribute nothing.
	Proof [][32]byte
}

// Hasher produces a 32 byte digest over the concatenation of its inputs.
// keccak256.New() from go-merkletree satisfies it.
type Hasher interface {
	Hash(data ...[]byte) []byte
}

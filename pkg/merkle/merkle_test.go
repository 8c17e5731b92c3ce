package merkle

import (
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"testing"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// createTestLeaves creates n encoded claim leaves with unique accounts
func createTestLeaves(n int) [][]byte {
	rng := rand.New(rand.NewSource(int64(n)))
	leaves := make([][]byte, n)
	for i := 0; i < n; i++ {
		leaf, err := EncodeClaimLeaf(uint64(i), common.BigToAddress(big.NewInt(int64(i+1))), big.NewInt(1+rng.Int63n(1e18)))
		if err != nil {
			panic(err)
		}
		leaves[i] = leaf
	}
	return leaves
}

// referenceRoot builds the root with go-ethereum's keccak and no shared code
// with the package under test
func referenceRoot(leaves [][]byte) [32]byte {
	uniq := map[common.Hash]struct{}{}
	var layer []common.Hash
	for _, l := range leaves {
		h := crypto.Keccak256Hash(l)
		if _, ok := uniq[h]; ok {
			continue
		}
		uniq[h] = struct{}{}
		layer = append(layer, h)
	}
	for i := 1; i < len(layer); i++ {
		for j := i; j > 0 && layer[j].Big().Cmp(layer[j-1].Big()) < 0; j-- {
			layer[j], layer[j-1] = layer[j-1], layer[j]
		}
	}
	for len(layer) > 1 {
		var next []common.Hash
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				next = append(next, layer[i])
				continue
			}
			a, b := layer[i], layer[i+1]
			if a.Big().Cmp(b.Big()) > 0 {
				a, b = b, a
			}
			next = append(next, crypto.Keccak256Hash(a.Bytes(), b.Bytes()))
		}
		layer = next
	}
	return layer[0]
}

// TestBuildMerkleTree tests merkle tree construction with various numbers of leaves
func TestBuildMerkleTree(t *testing.T) {
	testCases := []struct {
		name      string
		numLeaves int
	}{
		{"Single leaf", 1},
		{"Two leaves", 2},
		{"Three leaves", 3},
		{"Four leaves (power of 2)", 4},
		{"Five leaves", 5},
		{"Seven leaves", 7},
		{"Eight leaves (power of 2)", 8},
		{"Fifteen leaves", 15},
		{"Sixteen leaves (power of 2)", 16},
		{"Seventeen leaves", 17},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			leaves := createTestLeaves(tc.numLeaves)
			tree, err := BuildMerkleTree(leaves)
			require.NoError(t, err)
			require.NotNil(t, tree)

			require.Equal(t, tc.numLeaves, len(tree.Leaves))
			require.NotEqual(t, [32]byte{}, tree.Root)
			require.Equal(t, referenceRoot(leaves), tree.Root)

			// Generate and verify proofs for all leaves, by index and by leaf
			for i := 0; i < tc.numLeaves; i++ {
				proof, err := tree.GenerateProof(i)
				require.NoError(t, err)
				require.Equal(t, i, proof.LeafIndex)
				require.Equal(t, tree.Leaves[i], proof.Leaf)
				require.True(t, VerifyProof(proof, tree.Root), "Proof for leaf %d should be valid", i)
			}
			for _, leaf := range leaves {
				proof, err := tree.ProofForLeaf(leaf)
				require.NoError(t, err)
				require.Equal(t, crypto.Keccak256Hash(leaf), common.Hash(proof.Leaf))
				require.True(t, VerifyProof(proof, tree.Root))
			}
		})
	}
}

func TestBuildMerkleTreeSingleLeaf(t *testing.T) {
	leaves := createTestLeaves(1)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	require.Equal(t, crypto.Keccak256Hash(leaves[0]), common.Hash(tree.Root))
	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)
	require.Empty(t, proof.Proof)
	require.Equal(t, 0, tree.Depth())
}

// TestBuildMerkleTreeEmpty tests that building a tree from no leaves fails
func TestBuildMerkleTreeEmpty(t *testing.T) {
	tree, err := BuildMerkleTree([][]byte{})
	require.Error(t, err)
	require.Nil(t, tree)
	require.True(t, errors.Is(err, types.ErrEmptyInput))
}

// TestOddLevelPassThrough checks that an unpaired node is promoted, not hashed with itself
func TestOddLevelPassThrough(t *testing.T) {
	leaves := createTestLeaves(3)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	levels := tree.Levels()
	require.Len(t, levels, 3)
	require.Len(t, levels[1], 2)
	require.Equal(t, levels[0][2], levels[1][1])

	// the promoted leaf has a single sibling: the hash of the first pair
	proof, err := tree.GenerateProof(2)
	require.NoError(t, err)
	require.Len(t, proof.Proof, 1)
	require.Equal(t, levels[1][0], proof.Proof[0])
	require.True(t, VerifyProof(proof, tree.Root))
}

func TestCombinedHashIsOrderIndependent(t *testing.T) {
	hasher := DefaultHasher()
	a := crypto.Keccak256Hash([]byte("a"))
	b := crypto.Keccak256Hash([]byte("b"))

	require.Equal(t, hashPair(hasher, a, b), hashPair(hasher, b, a))

	lo, hi := a, b
	if lo.Big().Cmp(hi.Big()) > 0 {
		lo, hi = hi, lo
	}
	require.Equal(t, crypto.Keccak256Hash(lo.Bytes(), hi.Bytes()), common.Hash(hashPair(hasher, a, b)))
}

// TestMerkleProofVerification tests proof verification with valid and invalid cases
func TestMerkleProofVerification(t *testing.T) {
	leaves := createTestLeaves(9)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	t.Run("Valid proof", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		require.True(t, VerifyProof(proof, tree.Root))
	})

	t.Run("Invalid proof - wrong root", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)

		invalidRoot := [32]byte{1, 2, 3, 4, 5}
		require.False(t, VerifyProof(proof, invalidRoot))
	})

	t.Run("Invalid proof - tampered leaf", func(t *testing.T) {
		for i := range tree.Leaves {
			proof, err := tree.GenerateProof(i)
			require.NoError(t, err)

			proof.Leaf[0] ^= 0xFF
			require.False(t, VerifyProof(proof, tree.Root))
		}
	})

	t.Run("Invalid proof - tampered sibling", func(t *testing.T) {
		for i := range tree.Leaves {
			for j := 0; ; j++ {
				proof, err := tree.GenerateProof(i)
				require.NoError(t, err)
				if j >= len(proof.Proof) {
					break
				}
				proof.Proof[j][31] ^= 0x01
				require.False(t, VerifyProof(proof, tree.Root), "leaf %d sibling %d", i, j)
			}
		}
	})

	t.Run("Invalid proof - dropped sibling", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		require.NotEmpty(t, proof.Proof)

		proof.Proof = proof.Proof[:len(proof.Proof)-1]
		require.False(t, VerifyProof(proof, tree.Root))
	})

	t.Run("Invalid proof - nil proof", func(t *testing.T) {
		require.False(t, VerifyProof(nil, tree.Root))
	})
}

// TestLeafHashMatchesTree checks that the standalone leaf hash is the one the
// tree stores, so proofs can be checked without building a tree
func TestLeafHashMatchesTree(t *testing.T) {
	leaves := createTestLeaves(7)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)
	hasher := DefaultHasher()

	for _, leaf := range leaves {
		leafHash := LeafHash(hasher, leaf)
		require.Equal(t, tree.HashLeaf(leaf), leafHash)
		require.Equal(t, crypto.Keccak256Hash(leaf), common.Hash(leafHash))

		proof, err := tree.ProofForLeaf(leaf)
		require.NoError(t, err)
		require.Equal(t, proof.Leaf, leafHash)
		require.Equal(t, tree.Root, ComputeRoot(hasher, leafHash, proof.Proof))
	}
}

// TestGenerateProofInvalidIndex tests proof generation with invalid indices
func TestGenerateProofInvalidIndex(t *testing.T) {
	tree, err := BuildMerkleTree(createTestLeaves(4))
	require.NoError(t, err)

	t.Run("Negative index", func(t *testing.T) {
		proof, err := tree.GenerateProof(-1)
		require.Error(t, err)
		require.Nil(t, proof)
	})

	t.Run("Index out of bounds", func(t *testing.T) {
		proof, err := tree.GenerateProof(10)
		require.Error(t, err)
		require.Nil(t, proof)
	})
}

func TestProofForUnknownLeaf(t *testing.T) {
	tree, err := BuildMerkleTree(createTestLeaves(4))
	require.NoError(t, err)

	unknown, err := EncodeClaimLeaf(99, common.HexToAddress("0xdead"), big.NewInt(1))
	require.NoError(t, err)

	proof, err := tree.ProofForLeaf(unknown)
	require.Error(t, err)
	require.Nil(t, proof)
	require.True(t, errors.Is(err, types.ErrLeafNotFound))
}

// TestMerkleTreeDuplicateLeaves tests that identical leaves collapse into one entry
func TestMerkleTreeDuplicateLeaves(t *testing.T) {
	leaves := createTestLeaves(5)
	withDupes := append([][]byte{}, leaves...)
	withDupes = append(withDupes, append([]byte{}, leaves[2]...), append([]byte{}, leaves[0]...))

	tree, err := BuildMerkleTree(withDupes)
	require.NoError(t, err)
	require.Len(t, tree.Leaves, 5)

	plain, err := BuildMerkleTree(leaves)
	require.NoError(t, err)
	require.Equal(t, plain.Root, tree.Root)

	p1, err := tree.ProofForLeaf(withDupes[2])
	require.NoError(t, err)
	p2, err := tree.ProofForLeaf(withDupes[5])
	require.NoError(t, err)
	require.Equal(t, p1.LeafIndex, p2.LeafIndex)
	require.Equal(t, p1.Proof, p2.Proof)
}

// TestMerkleTreeLargeSet tests with a larger number of leaves
func TestMerkleTreeLargeSet(t *testing.T) {
	sizes := []int{50, 100, 200, 1000}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("Size_%d", size), func(t *testing.T) {
			leaves := createTestLeaves(size)
			tree, err := BuildMerkleTree(leaves)
			require.NoError(t, err)
			require.Equal(t, size, len(tree.Leaves))
			require.Equal(t, referenceRoot(leaves), tree.Root)

			for idx := range tree.Leaves {
				proof, err := tree.GenerateProof(idx)
				require.NoError(t, err)
				require.True(t, VerifyProof(proof, tree.Root))
			}
		})
	}
}

// TestMerkleProofLength tests that proof length is logarithmic
func TestMerkleProofLength(t *testing.T) {
	testCases := []struct {
		numLeaves     int
		maxProofDepth int
	}{
		{1, 0},
		{2, 1},
		{3, 2},
		{4, 2},
		{8, 3},
		{16, 4},
		{100, 7},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d_leaves", tc.numLeaves), func(t *testing.T) {
			tree, err := BuildMerkleTree(createTestLeaves(tc.numLeaves))
			require.NoError(t, err)
			require.Equal(t, tc.maxProofDepth, tree.Depth())

			for i := range tree.Leaves {
				proof, err := tree.GenerateProof(i)
				require.NoError(t, err)
				require.LessOrEqual(t, len(proof.Proof), tc.maxProofDepth)
			}
		})
	}
}

// TestMerkleTreeDeterminism tests that the same leaves always produce the same tree
func TestMerkleTreeDeterminism(t *testing.T) {
	leaves := createTestLeaves(10)

	tree1, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	tree2, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	require.Equal(t, tree1.Root, tree2.Root)
	require.Equal(t, tree1.Leaves, tree2.Leaves)
}

// TestMerkleTreeWithShuffledLeaves tests that input order doesn't affect the tree
func TestMerkleTreeWithShuffledLeaves(t *testing.T) {
	leaves := createTestLeaves(23)

	tree1, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := make([][]byte, len(leaves))
		copy(shuffled, leaves)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		tree2, err := BuildMerkleTree(shuffled)
		require.NoError(t, err)
		require.Equal(t, tree1.Root, tree2.Root)
	}
}

// TestLeavesSortedNumerically checks the leaf level is ordered by digest value
func TestLeavesSortedNumerically(t *testing.T) {
	tree, err := BuildMerkleTree(createTestLeaves(33))
	require.NoError(t, err)

	for i := 1; i < len(tree.Leaves); i++ {
		prev := new(big.Int).SetBytes(tree.Leaves[i-1][:])
		cur := new(big.Int).SetBytes(tree.Leaves[i][:])
		require.Equal(t, -1, prev.Cmp(cur))
	}
}

package distribution

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/allocation"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Result bundles the artifact with the intermediate values it was built from
type Result struct {
	Distribution *types.Distribution
	Allocation   *allocation.Allocation
	Tree         *merkle.MerkleTree
	Leaves       []*types.ClaimLeaf
}

// Build allocates total across balances and assembles the claim tree.
//
// Recipients are indexed by ascending address, their (index, account, amount)
// leaves are packed and hashed into the tree, and each claim carries its proof.
// Either the whole artifact is returned or an error; nothing partial.
func Build(balances map[common.Address]*big.Int, total *big.Int, snapshotBlock uint64) (*Result, error) {
	alloc, err := allocation.Allocate(balances, total)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate distribution: %w", err)
	}

	accounts := alloc.SortedAddresses()
	leaves := make([]*types.ClaimLeaf, len(accounts))
	encoded := make([][]byte, len(accounts))
	for i, account := range accounts {
		leaves[i] = &types.ClaimLeaf{
			Index:   uint64(i),
			Account: account,
			Amount:  new(big.Int).Set(alloc.Amounts[account]),
		}
		encoded[i], err = merkle.EncodeClaimLeaf(uint64(i), account, alloc.Amounts[account])
		if err != nil {
			return nil, fmt.Errorf("failed to encode leaf for %s: %w", account.Hex(), err)
		}
	}

	tree, err := merkle.BuildMerkleTree(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}
	if len(tree.Leaves) != len(encoded) {
		return nil, fmt.Errorf("%w: %d claims produced %d unique leaves", types.ErrInvariantViolation, len(encoded), len(tree.Leaves))
	}

	claims := make(map[string]*types.Claim, len(leaves))
	for i, leaf := range leaves {
		proof, err := tree.ProofForLeaf(encoded[i])
		if err != nil {
			return nil, fmt.Errorf("failed to generate proof for %s: %w", leaf.Account.Hex(), err)
		}
		claims[AddressKey(leaf.Account)] = &types.Claim{
			Index:  leaf.Index,
			Amount: hexutil.EncodeBig(leaf.Amount),
			Proof:  EncodeProof(proof.Proof),
		}
	}

	dist := &types.Distribution{
		MerkleRoot:  hexutil.Encode(tree.Root[:]),
		TokenTotal:  hexutil.EncodeBig(alloc.Sum()),
		BlockHeight: snapshotBlock,
		Claims:      claims,
	}

	return &Result{
		Distribution: dist,
		Allocation:   alloc,
		Tree:         tree,
		Leaves:       leaves,
	}, nil
}

// Verify checks a distribution artifact on its own: every claim's proof must lead
// to the merkle root, indices must be 0..n-1 in address order, and the amounts
// must add up to tokenTotal.
func Verify(dist *types.Distribution) error {
	if dist == nil {
		return fmt.Errorf("cannot verify nil distribution")
	}
	if len(dist.Claims) == 0 {
		return fmt.Errorf("distribution has no claims: %w", types.ErrEmptyInput)
	}

	root, err := decodeHash(dist.MerkleRoot)
	if err != nil {
		return fmt.Errorf("invalid merkle root: %w", err)
	}
	tokenTotal, err := hexutil.DecodeBig(dist.TokenTotal)
	if err != nil {
		return fmt.Errorf("invalid token total %q: %w", dist.TokenTotal, err)
	}

	accounts := make(map[common.Address]*types.Claim, len(dist.Claims))
	for key, claim := range dist.Claims {
		if !common.IsHexAddress(key) {
			return fmt.Errorf("invalid claim address %q", key)
		}
		accounts[common.HexToAddress(key)] = claim
	}

	hasher := merkle.DefaultHasher()
	sum := new(big.Int)
	for i, account := range allocation.SortAddresses(accounts) {
		claim := accounts[account]
		if claim.Index != uint64(i) {
			return fmt.Errorf("claim for %s has index %d, expected %d", account.Hex(), claim.Index, i)
		}
		amount, err := hexutil.DecodeBig(claim.Amount)
		if err != nil {
			return fmt.Errorf("invalid amount for %s: %w", account.Hex(), err)
		}
		if amount.Sign() <= 0 {
			return fmt.Errorf("claim for %s has non-positive amount", account.Hex())
		}
		sum.Add(sum, amount)

		proof, err := DecodeProof(claim.Proof)
		if err != nil {
			return fmt.Errorf("invalid proof for %s: %w", account.Hex(), err)
		}
		leaf, err := merkle.EncodeClaimLeaf(claim.Index, account, amount)
		if err != nil {
			return err
		}
		if merkle.ComputeRoot(hasher, merkle.LeafHash(hasher, leaf), proof) != root {
			return fmt.Errorf("proof for %s does not lead to merkle root %s", account.Hex(), dist.MerkleRoot)
		}
	}

	if sum.Cmp(tokenTotal) != 0 {
		return fmt.Errorf("%w: claims sum to %s, token total is %s", types.ErrInvariantViolation, sum.String(), tokenTotal.String())
	}
	return nil
}

// ClaimFor looks up the claim of an account in a distribution
func ClaimFor(dist *types.Distribution, account common.Address) (*types.Claim, error) {
	claim, ok := dist.Claims[AddressKey(account)]
	if !ok {
		return nil, fmt.Errorf("account %s has no claim in distribution for block %d", account.Hex(), dist.BlockHeight)
	}
	return claim, nil
}

// AddressKey is the lowercase hex form used as the claims map key
func AddressKey(account common.Address) string {
	return strings.ToLower(account.Hex())
}

// EncodeProof renders a proof as 0x-prefixed hex strings
func EncodeProof(proof [][32]byte) []string {
	out := make([]string, len(proof))
	for i, p := range proof {
		out[i] = hexutil.Encode(p[:])
	}
	return out
}

// DecodeProof parses 0x-prefixed hex strings back into digests
func DecodeProof(proof []string) ([][32]byte, error) {
	out := make([][32]byte, len(proof))
	for i, p := range proof {
		h, err := decodeHash(p)
		if err != nil {
			return nil, fmt.Errorf("proof element %d: %w", i, err)
		}
		out[i] = h
	}
	return out, nil
}

func decodeHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

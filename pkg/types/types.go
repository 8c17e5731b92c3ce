package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Distribution is the result artifact of a single distribution run.
// The JSON layout is consumed by claim front-ends and must stay bit-reproducible:
// identical balances, total and snapshot block always produce identical bytes.
type Distribution struct {
	// MerkleRoot is the 0x-prefixed hex root of the claim tree
	MerkleRoot string `json:"merkleRoot"`

	// TokenTotal is the hex quantity of tokens distributed (sum of all claim amounts)
	TokenTotal string `json:"tokenTotal"`

	// BlockHeight is the snapshot block the balances were measured at
	BlockHeight uint64 `json:"blockHeight"`

	// Claims maps lowercase hex address -> claim
	Claims map[string]*Claim `json:"claims"`
}

// Claim is a single recipient's entry in a Distribution.
type Claim struct {
	Index  uint64   `json:"index"`
	Amount string   `json:"amount"`
	Proof  []string `json:"proof"`
}

// ClaimLeaf is the decoded form of a merkle leaf: (index, account, amount).
type ClaimLeaf struct {
	Index   uint64
	Account common.Address
	Amount  *big.Int
}

// BalanceEntry is one row of the balance report written next to a distribution.
type BalanceEntry struct {
	TotalBalance   *big.Int `json:"totalBalance"`
	StakingBalance *big.Int `json:"stakingBalance"`
	HoldingBalance *big.Int `json:"holdingBalance"`
}

// BalanceReport maps lowercase hex address -> balance breakdown
type BalanceReport map[string]*BalanceEntry

// AddressSet is the cache of known token participants.
type AddressSet struct {
	// Addresses are lowercase hex, sorted ascending
	Addresses []string `json:"addresses"`

	// Latest is the last block that was scanned for transfer participants
	Latest uint64 `json:"latest"`
}

// Balances maps an account to a raw balance
type Balances map[common.Address]*big.Int

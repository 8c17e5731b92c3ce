package distribution

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MergeBalances adds balances from several sources per account
func MergeBalances(sources ...types.Balances) types.Balances {
	merged := make(types.Balances)
	for _, source := range sources {
		for account, balance := range source {
			if balance == nil {
				continue
			}
			if existing, ok := merged[account]; ok {
				existing.Add(existing, balance)
				continue
			}
			merged[account] = new(big.Int).Set(balance)
		}
	}
	return merged
}

// BuildBalanceReport breaks each account's total into holding and staking parts.
// Accounts with a zero total are left out.
func BuildBalanceReport(holder, staker types.Balances) types.BalanceReport {
	report := make(types.BalanceReport)
	for account, total := range MergeBalances(holder, staker) {
		if total.Sign() == 0 {
			continue
		}
		report[AddressKey(account)] = &types.BalanceEntry{
			TotalBalance:   total,
			StakingBalance: valueOrZero(staker[account]),
			HoldingBalance: valueOrZero(holder[account]),
		}
	}
	return report
}

// ParseBalances reads a JSON object of address -> balance. Balances may be JSON
// numbers, decimal strings or 0x-prefixed hex strings.
func ParseBalances(data []byte) (types.Balances, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal balances: %w", err)
	}

	balances := make(types.Balances, len(raw))
	for key, value := range raw {
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("invalid address %q", key)
		}
		balance, err := parseQuantity(value)
		if err != nil {
			return nil, fmt.Errorf("invalid balance for %s: %w", key, err)
		}
		if balance.Sign() < 0 {
			return nil, fmt.Errorf("negative balance for %s", key)
		}
		account := common.HexToAddress(key)
		if existing, ok := balances[account]; ok {
			// same account written with different casing
			existing.Add(existing, balance)
			continue
		}
		balances[account] = balance
	}
	return balances, nil
}

func parseQuantity(value json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(value, &n); err != nil {
			return nil, err
		}
		s = n.String()
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return hexutil.DecodeBig(s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	return v, nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

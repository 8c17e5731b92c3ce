package allocation

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// Allocation is the integer split of a fixed total across accounts.
// Every amount is strictly positive and the amounts sum to the total exactly.
type Allocation struct {
	// Amounts maps account -> allocated token amount
	Amounts map[common.Address]*big.Int

	// Shortfall is the number of units that were handed out after flooring
	Shortfall *big.Int

	total *big.Int
}

// Allocate splits total across balances proportionally.
//
// Each account first receives floor(balance * total / sum(balances)) using exact
// integer arithmetic. Accounts whose share floors to zero are dropped. The units
// lost to flooring are then handed out one at a time in ascending address order,
// a full pass over every account before any account gets a second extra unit.
func Allocate(balances map[common.Address]*big.Int, total *big.Int) (*Allocation, error) {
	if total == nil || total.Sign() < 0 {
		return nil, fmt.Errorf("distribution total must be a non-negative integer")
	}

	sum := new(big.Int)
	for account, balance := range balances {
		if balance == nil {
			continue
		}
		if balance.Sign() < 0 {
			return nil, fmt.Errorf("negative balance %s for account %s", balance.String(), account.Hex())
		}
		sum.Add(sum, balance)
	}
	if sum.Sign() == 0 {
		return nil, fmt.Errorf("total balance is zero, nothing to allocate: %w", types.ErrEmptyInput)
	}

	amounts := make(map[common.Address]*big.Int, len(balances))
	allocated := new(big.Int)
	for account, balance := range balances {
		if balance == nil || balance.Sign() == 0 {
			continue
		}
		amount := new(big.Int).Mul(balance, total)
		amount.Quo(amount, sum)
		if amount.Sign() == 0 {
			continue
		}
		amounts[account] = amount
		allocated.Add(allocated, amount)
	}

	shortfall := new(big.Int).Sub(total, allocated)
	if shortfall.Sign() < 0 {
		return nil, fmt.Errorf("%w: floored amounts %s exceed total %s", types.ErrInvariantViolation, allocated.String(), total.String())
	}

	alloc := &Allocation{
		Amounts:   amounts,
		Shortfall: new(big.Int).Set(shortfall),
		total:     new(big.Int).Set(total),
	}

	if shortfall.Sign() > 0 {
		if err := alloc.distributeShortfall(shortfall); err != nil {
			return nil, err
		}
	}

	if err := alloc.checkSum(); err != nil {
		return nil, err
	}
	return alloc, nil
}

// distributeShortfall hands out units in ascending address order. Rather than
// looping unit by unit, every account gets shortfall/n and the first
// shortfall%n accounts one more, which is the same outcome.
func (a *Allocation) distributeShortfall(shortfall *big.Int) error {
	accounts := a.SortedAddresses()
	if len(accounts) == 0 {
		return fmt.Errorf("every share floors to zero, %s units left unallocated: %w", shortfall.String(), types.ErrEmptyInput)
	}

	n := big.NewInt(int64(len(accounts)))
	perAccount, extra := new(big.Int).QuoRem(shortfall, n, new(big.Int))

	if perAccount.Sign() > 0 {
		for _, account := range accounts {
			a.Amounts[account].Add(a.Amounts[account], perAccount)
		}
	}
	one := big.NewInt(1)
	for i := int64(0); i < extra.Int64(); i++ {
		account := accounts[i]
		a.Amounts[account].Add(a.Amounts[account], one)
	}
	return nil
}

func (a *Allocation) checkSum() error {
	sum := a.Sum()
	if sum.Cmp(a.total) != 0 {
		return fmt.Errorf("%w: allocation sums to %s, expected %s", types.ErrInvariantViolation, sum.String(), a.total.String())
	}
	for account, amount := range a.Amounts {
		if amount.Sign() <= 0 {
			return fmt.Errorf("%w: non-positive amount for %s", types.ErrInvariantViolation, account.Hex())
		}
	}
	return nil
}

// Total is the amount that was distributed
func (a *Allocation) Total() *big.Int {
	return new(big.Int).Set(a.total)
}

// Sum adds up the allocated amounts
func (a *Allocation) Sum() *big.Int {
	sum := new(big.Int)
	for _, amount := range a.Amounts {
		sum.Add(sum, amount)
	}
	return sum
}

// SortedAddresses returns the allocated accounts in ascending byte order,
// which is the same order as their lowercase hex strings.
func (a *Allocation) SortedAddresses() []common.Address {
	return SortAddresses(a.Amounts)
}

// SortAddresses returns the keys of m in ascending byte order
func SortAddresses[V any](m map[common.Address]V) []common.Address {
	accounts := make([]common.Address, 0, len(m))
	for account := range m {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i][:], accounts[j][:]) < 0
	})
	return accounts
}

package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
)

// buildCommand handles the build subcommand
func buildCommand(c *cli.Context) error {
	data, err := os.ReadFile(c.String("balances"))
	if err != nil {
		return fmt.Errorf("failed to read balances: %w", err)
	}
	balances, err := distribution.ParseBalances(data)
	if err != nil {
		return err
	}

	total, ok := new(big.Int).SetString(strings.TrimSpace(c.String("total")), 10)
	if !ok || total.Sign() < 0 {
		return fmt.Errorf("total %q must be a non-negative decimal integer", c.String("total"))
	}

	result, err := distribution.Build(balances, total, c.Uint64("block"))
	if err != nil {
		return fmt.Errorf("failed to build distribution: %w", err)
	}
	if err := distribution.Verify(result.Distribution); err != nil {
		return fmt.Errorf("built distribution failed verification: %w", err)
	}

	out, err := distribution.MarshalDistribution(result.Distribution)
	if err != nil {
		return err
	}

	outputFile := c.String("output")
	if outputFile == "" {
		_, err := fmt.Fprintln(c.App.Writer, string(out))
		return err
	}
	if err := os.WriteFile(outputFile, out, 0644); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "Distribution with %d claims and root %s written to: %s\n",
		len(result.Distribution.Claims), result.Distribution.MerkleRoot, outputFile)
	return nil
}

type claimOutput struct {
	Address    string   `json:"address"`
	Index      uint64   `json:"index"`
	Amount     string   `json:"amount"`
	Proof      []string `json:"proof"`
	MerkleRoot string   `json:"merkleRoot"`
}

// proofCommand handles the proof subcommand
func proofCommand(c *cli.Context) error {
	dist, err := loadDistribution(c)
	if err != nil {
		return err
	}

	address := c.String("address")
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address %q", address)
	}
	account := common.HexToAddress(address)

	claim, err := distribution.ClaimFor(dist, account)
	if err != nil {
		return err
	}
	amount, err := hexutil.DecodeBig(claim.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount for %s: %w", account.Hex(), err)
	}

	out, err := json.MarshalIndent(&claimOutput{
		Address:    account.Hex(),
		Index:      claim.Index,
		Amount:     amount.String(),
		Proof:      claim.Proof,
		MerkleRoot: dist.MerkleRoot,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal claim: %w", err)
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}

// verifyCommand handles the verify subcommand
func verifyCommand(c *cli.Context) error {
	dist, err := loadDistribution(c)
	if err != nil {
		return err
	}
	if err := distribution.Verify(dist); err != nil {
		return fmt.Errorf("distribution is invalid: %w", err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "Distribution at block %d is valid: %d claims, root %s, total %s\n",
		dist.BlockHeight, len(dist.Claims), dist.MerkleRoot, dist.TokenTotal)
	return nil
}

func readDistribution(path string) (*types.Distribution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read distribution: %w", err)
	}
	return distribution.UnmarshalDistribution(data)
}

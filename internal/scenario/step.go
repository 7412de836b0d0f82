package scenario

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gagliardetto/solana-go"

	"rugpullsim/internal/model"
)

// Op names the action a Step performs.
type Op string

const (
	OpCreatePool Op = "create_pool"
	OpMint       Op = "mint"
	OpProvide    Op = "provide"
	OpSwap       Op = "swap"
	OpRemove     Op = "remove"
	OpDrain      Op = "drain"
)

// Step is one line of a replay script. Actors and mints are given either as
// base58 keys or as short names that are turned into keys with ResolveKey.
//
// Expect checks the primary result (minted tokens, LP shares, amount out,
// amount A paid out). ExpectB checks amount B for remove and drain.
// ExpectError requires the step to fail with the given amm.Kind.
type Step struct {
	Op        Op              `json:"op"`
	Pool      model.PoolID    `json:"pool"`
	User      string          `json:"user,omitempty"`
	Mint      string          `json:"mint,omitempty"`
	MintA     string          `json:"mint_a,omitempty"`
	MintB     string          `json:"mint_b,omitempty"`
	Authority string          `json:"authority,omitempty"`
	Direction model.Direction `json:"direction,omitempty"`

	Amount       uint64 `json:"amount,omitempty"`
	AmountIn     uint64 `json:"amount_in,omitempty"`
	MinAmountOut uint64 `json:"min_amount_out,omitempty"`
	AmountA      uint64 `json:"amount_a,omitempty"`
	AmountB      uint64 `json:"amount_b,omitempty"`
	MinShares    uint64 `json:"min_shares,omitempty"`
	LPAmount     uint64 `json:"lp_amount,omitempty"`
	MinAmountA   uint64 `json:"min_amount_a,omitempty"`
	MinAmountB   uint64 `json:"min_amount_b,omitempty"`

	Expect      *uint64 `json:"expect,omitempty"`
	ExpectB     *uint64 `json:"expect_b,omitempty"`
	ExpectError string  `json:"expect_error,omitempty"`
}

// Validate checks that the fields an op needs are present.
func (s Step) Validate() error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("%s: %s is required", s.Op, field)
		}
		return nil
	}
	switch s.Op {
	case OpCreatePool:
		for field, value := range map[string]string{"mint_a": s.MintA, "mint_b": s.MintB, "authority": s.Authority} {
			if err := need(field, value); err != nil {
				return err
			}
		}
		return nil
	case OpMint:
		if err := need("mint", s.Mint); err != nil {
			return err
		}
		return need("user", s.User)
	case OpProvide, OpSwap, OpRemove, OpDrain:
		return need("user", s.User)
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}

// ParseSteps reads a JSONL script. Blank lines and lines starting with '#'
// are skipped; unknown fields are rejected.
func ParseSteps(r io.Reader) ([]Step, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var steps []Step
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.DisallowUnknownFields()
		var step Step
		if err := dec.Decode(&step); err != nil {
			return nil, fmt.Errorf("decode step line %d: %w", lineNo, err)
		}
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("step line %d: %w", lineNo, err)
		}
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan script: %w", err)
	}
	return steps, nil
}

// LoadSteps reads a script file.
func LoadSteps(path string) ([]Step, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer file.Close()
	return ParseSteps(file)
}

// ResolveKey returns name itself when it is a base58 public key, otherwise a
// key derived from name with program as base and owner.
func ResolveKey(program solana.PublicKey, name string) (solana.PublicKey, error) {
	if key, err := solana.PublicKeyFromBase58(name); err == nil {
		return key, nil
	}
	key, err := solana.CreateWithSeed(program, name, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("resolve %q: %w", name, err)
	}
	return key, nil
}

package core

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

const (
	ConsensusPoW = "pow"
	ConsensusPoS = "pos"
)

// Allocation funds an address in the genesis block.
type Allocation struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// Config holds everything a node needs to derive its genesis block and run.
type Config struct {
	Consensus       string
	Target          string
	GenesisProof    uint64
	GenesisTime     int64
	FeeRate         float64
	StakeMultiplier float64
	Scheme          string
	Allocations     []Allocation
	Validators      []Validator
	Contracts       []Contract

	// MiningReward is paid to MinerAddress in every block this node mines.
	// Zero disables rewards.
	MiningReward float64
	MinerAddress string

	// Store persists the chain when set.
	Store *Store
	// Clock returns the current unix time in seconds.
	Clock func() int64
	// Rand drives proof-of-stake draws and scores.
	Rand *rand.Rand
}

// DefaultConfig returns a proof-of-work configuration with the built-in contracts.
func DefaultConfig() Config {
	return Config{
		Consensus:       ConsensusPoW,
		Target:          "0000",
		GenesisProof:    100,
		GenesisTime:     1700000000,
		FeeRate:         0.1,
		StakeMultiplier: 0.1,
		Scheme:          SchemeECDSA,
		Contracts: []Contract{
			HighFeeContract(10),
			LargeAmountContract(100),
		},
	}
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = func() int64 { return time.Now().Unix() }
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// Validate rejects configurations a node cannot run with.
func (c Config) Validate() error {
	switch c.Consensus {
	case ConsensusPoW:
		if c.Target == "" || strings.Trim(c.Target, "0123456789abcdef") != "" {
			return fmt.Errorf("invalid proof-of-work target %q", c.Target)
		}
	case ConsensusPoS:
	default:
		return fmt.Errorf("unknown consensus %q", c.Consensus)
	}
	if c.FeeRate < 0 {
		return fmt.Errorf("fee rate must be non-negative, got %v", c.FeeRate)
	}
	if c.StakeMultiplier < 0 {
		return fmt.Errorf("stake multiplier must be non-negative, got %v", c.StakeMultiplier)
	}
	if _, err := SchemeByName(c.Scheme); err != nil {
		return err
	}
	if c.MiningReward < 0 || math.IsNaN(c.MiningReward) || math.IsInf(c.MiningReward, 0) {
		return fmt.Errorf("invalid mining reward %v", c.MiningReward)
	}
	if c.MiningReward > 0 && c.MinerAddress == "" {
		return fmt.Errorf("mining reward needs a miner address")
	}
	for _, alloc := range c.Allocations {
		if alloc.Address == "" || alloc.Amount < 0 {
			return fmt.Errorf("invalid allocation %+v", alloc)
		}
	}
	for _, v := range c.Validators {
		if v.ID == "" || v.Stake < 0 {
			return fmt.Errorf("invalid validator %+v", v)
		}
	}
	return nil
}

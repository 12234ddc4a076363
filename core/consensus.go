package core

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Engine produces and checks the proof carried by each block. Validate is
// always relative to the proof of the preceding block.
type Engine interface {
	Name() string
	Propose(ctx context.Context, prior Proof) (Proof, error)
	Validate(prior, proof Proof) bool
}

// NewEngine builds the engine selected by cfg.Consensus.
func NewEngine(cfg Config, validators *Validators) (Engine, error) {
	switch cfg.Consensus {
	case ConsensusPoW:
		return NewProofOfWork(cfg.Target), nil
	case ConsensusPoS:
		return NewProofOfStake(validators, cfg.StakeMultiplier, cfg.Rand), nil
	default:
		return nil, fmt.Errorf("unknown consensus %q", cfg.Consensus)
	}
}

// ProofOfWork searches for the first nonce whose digest, seeded with the prior
// proof, starts with Target.
type ProofOfWork struct {
	Target string
	// CheckEvery is how many nonces are tried between cancellation checks.
	CheckEvery uint64
}

// NewProofOfWork creates a proof-of-work engine for target.
func NewProofOfWork(target string) *ProofOfWork {
	return &ProofOfWork{Target: target, CheckEvery: 4096}
}

func (p *ProofOfWork) Name() string { return ConsensusPoW }

// Propose never fails on its own; it returns early only when ctx is done.
func (p *ProofOfWork) Propose(ctx context.Context, prior Proof) (Proof, error) {
	seed := prior.String()
	every := max(p.CheckEvery, 1)
	for nonce := uint64(0); ; nonce++ {
		if nonce%every == 0 {
			if err := ctx.Err(); err != nil {
				return Proof{}, err
			}
		}
		if p.valid(seed, nonce) {
			return Proof{Nonce: nonce}, nil
		}
	}
}

// Validate recomputes the digest of prior and proof.Nonce.
func (p *ProofOfWork) Validate(prior, proof Proof) bool {
	if proof.Creator != "" || proof.Score != 0 {
		return false
	}
	return p.valid(prior.String(), proof.Nonce)
}

func (p *ProofOfWork) valid(seed string, nonce uint64) bool {
	guess := Digest([]byte(seed + strconv.FormatUint(nonce, 10)))
	return strings.HasPrefix(guess, p.Target)
}

// ProofOfStake picks a creator weighted by stake and scores the block with a
// random scalar times the multiplier times the creator's stake.
//
// Validate is weaker than proof-of-work: the random draw cannot be replayed, so
// it only checks that the score is a non-negative number and that the creator
// was registered with this node at some point.
type ProofOfStake struct {
	validators *Validators
	multiplier float64
	rng        *rand.Rand
	rngMu      sync.Mutex
}

// NewProofOfStake creates a proof-of-stake engine drawing from rng.
func NewProofOfStake(validators *Validators, multiplier float64, rng *rand.Rand) *ProofOfStake {
	return &ProofOfStake{validators: validators, multiplier: multiplier, rng: rng}
}

func (p *ProofOfStake) Name() string { return ConsensusPoS }

// Propose selects a creator from the current stakes. It fails with
// ErrNoValidators when no validator holds stake.
func (p *ProofOfStake) Propose(ctx context.Context, _ Proof) (Proof, error) {
	if err := ctx.Err(); err != nil {
		return Proof{}, err
	}
	snapshot := p.validators.Snapshot()
	total := totalStake(snapshot)
	if total <= 0 {
		return Proof{}, ErrNoValidators
	}
	p.rngMu.Lock()
	draw := p.rng.Float64() * total
	scalar := p.rng.Float64()
	p.rngMu.Unlock()

	creator, err := SelectWeighted(snapshot, draw)
	if err != nil {
		return Proof{}, err
	}
	return Proof{Score: scalar * p.multiplier * creator.Stake, Creator: creator.ID}, nil
}

func (p *ProofOfStake) Validate(_, proof Proof) bool {
	if proof.Creator == "" || proof.Nonce != 0 {
		return false
	}
	if math.IsNaN(proof.Score) || math.IsInf(proof.Score, 0) || proof.Score < 0 {
		return false
	}
	return p.validators.Known(proof.Creator)
}

func totalStake(validators []Validator) float64 {
	stakes := make([]float64, len(validators))
	for i, v := range validators {
		stakes[i] = v.Stake
	}
	return floats.Sum(stakes)
}

// SelectWeighted walks validators in the given order accumulating stake and
// returns the first whose cumulative stake exceeds draw. draw must lie in
// [0, total stake).
func SelectWeighted(validators []Validator, draw float64) (Validator, error) {
	if len(validators) == 0 {
		return Validator{}, ErrNoValidators
	}
	stakes := make([]float64, len(validators))
	for i, v := range validators {
		stakes[i] = v.Stake
	}
	cum := floats.CumSum(make([]float64, len(stakes)), stakes)
	if cum[len(cum)-1] <= 0 {
		return Validator{}, ErrNoValidators
	}
	for i, c := range cum {
		if draw < c {
			return validators[i], nil
		}
	}
	// draw == total only through rounding; the last staked validator wins.
	for i := len(validators) - 1; i >= 0; i-- {
		if validators[i].Stake > 0 {
			return validators[i], nil
		}
	}
	return Validator{}, ErrNoValidators
}

// SelectionReport summarises repeated weighted draws over a fixed validator set.
type SelectionReport struct {
	Draws     int                `json:"draws"`
	Counts    map[string]int     `json:"counts"`
	Shares    map[string]float64 `json:"shares"`
	Expected  map[string]float64 `json:"expected"`
	ChiSquare float64            `json:"chi_square"`
}

// SelectionShares draws draws times from validators with rng and compares the
// observed selection counts with the stake-proportional expectation.
func SelectionShares(validators []Validator, draws int, rng *rand.Rand) (SelectionReport, error) {
	total := totalStake(validators)
	if len(validators) == 0 || total <= 0 {
		return SelectionReport{}, ErrNoValidators
	}
	report := SelectionReport{
		Draws:    draws,
		Counts:   make(map[string]int, len(validators)),
		Shares:   make(map[string]float64, len(validators)),
		Expected: make(map[string]float64, len(validators)),
	}
	for range draws {
		v, err := SelectWeighted(validators, rng.Float64()*total)
		if err != nil {
			return SelectionReport{}, err
		}
		report.Counts[v.ID]++
	}

	var observed, expected []float64
	for _, v := range validators {
		share := v.Stake / total
		report.Expected[v.ID] = share
		if draws > 0 {
			report.Shares[v.ID] = float64(report.Counts[v.ID]) / float64(draws)
		}
		if share > 0 {
			observed = append(observed, float64(report.Counts[v.ID]))
			expected = append(expected, share*float64(draws))
		}
	}
	if draws > 0 {
		report.ChiSquare = stat.ChiSquare(observed, expected)
	}
	return report, nil
}

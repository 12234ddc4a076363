package core

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestChain(t *testing.T, cfg Config) *Chain {
	t.Helper()
	cfg = cfg.withDefaults()
	engine, err := NewEngine(cfg, NewValidators(cfg.Validators...))
	require.NoError(t, err)
	return NewChain(NewGenesisBlock(cfg), engine, cfg.Clock)
}

// grow appends n blocks, each carrying one transfer.
func grow(t *testing.T, c *Chain, n int) {
	t.Helper()
	for range n {
		tip := c.Tip()
		proof, err := c.Engine().Propose(context.Background(), tip.Proof)
		require.NoError(t, err)
		tx := Transaction{Kind: KindTransfer, Sender: "a", Recipient: "b", Amount: float64(tip.Index + 1), Timestamp: c.clock()}
		tx.Hash = HashTransaction(tx)
		_, err = c.AppendBlock(proof, []Transaction{tx})
		require.NoError(t, err)
	}
}

func TestAppendBlock(t *testing.T) {
	c := newTestChain(t, testConfig())
	genesis := c.Tip()

	txs := testTxs(2)
	_, err := c.admit(txs[0], nil)
	require.NoError(t, err)
	_, err = c.admit(txs[1], nil)
	require.NoError(t, err)

	proof, err := c.Engine().Propose(context.Background(), genesis.Proof)
	require.NoError(t, err)
	block, err := c.AppendBlock(proof, txs[:1])
	require.NoError(t, err)

	require.Equal(t, 1, block.Index)
	require.Equal(t, HashBlock(genesis), block.PreviousHash)
	root, _ := TransactionsRoot(txs[:1])
	require.Equal(t, root, block.MerkleRoot)
	require.Equal(t, 2, c.Len())

	// Only the included transaction leaves the pool.
	require.Equal(t, []Transaction{txs[1]}, c.Pending())
}

func TestAppendBlockRejectsBadProof(t *testing.T) {
	c := newTestChain(t, testConfig())
	proof, err := c.Engine().Propose(context.Background(), c.Tip().Proof)
	require.NoError(t, err)

	_, err = c.AppendBlock(Proof{Nonce: proof.Nonce, Creator: "x"}, nil)
	require.ErrorIs(t, err, ErrChainValidation)
	require.Equal(t, 1, c.Len())
}

func TestAppendOnStaleTip(t *testing.T) {
	c := newTestChain(t, testConfig())
	stale := c.Tip()
	grow(t, c, 1)

	proof, err := c.Engine().Propose(context.Background(), stale.Proof)
	require.NoError(t, err)
	_, err = c.appendOnTip(stale.Hash, proof, nil)
	require.ErrorIs(t, err, ErrStaleTip)
	require.Equal(t, 2, c.Len())
}

func TestValidateChain(t *testing.T) {
	c := newTestChain(t, testConfig())
	grow(t, c, 4)
	require.NoError(t, c.ValidateChain(c.Blocks()))
	require.True(t, c.IsValidChain(c.Blocks()))

	tests := []struct {
		name   string
		tamper func(blocks []Block)
	}{
		{"transaction amount", func(b []Block) { b[2].Transactions[0].Amount++ }},
		{"stale merkle root", func(b []Block) {
			tx := &b[2].Transactions[0]
			tx.Amount++
			tx.Hash = HashTransaction(*tx)
		}},
		{"root recomputed but hash stale", func(b []Block) {
			tx := &b[2].Transactions[0]
			tx.Amount++
			tx.Hash = HashTransaction(*tx)
			b[2].MerkleRoot = blockRoot(b[2].Transactions)
		}},
		{"rehashed block breaks linkage", func(b []Block) {
			tx := &b[2].Transactions[0]
			tx.Amount++
			tx.Hash = HashTransaction(*tx)
			b[2].MerkleRoot = blockRoot(b[2].Transactions)
			b[2].Hash = HashBlock(b[2])
		}},
		{"previous hash", func(b []Block) { b[3].PreviousHash = b[1].Hash }},
		{"index gap", func(b []Block) { b[4].Index = 7 }},
		{"proof", func(b []Block) {
			b[1].Proof.Nonce++
			b[1].Hash = HashBlock(b[1])
		}},
		{"genesis sentinel", func(b []Block) { b[0].PreviousHash = "1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := c.Blocks()
			tt.tamper(blocks)
			err := c.ValidateChain(blocks)
			require.ErrorIs(t, err, ErrChainValidation)
			require.False(t, c.IsValidChain(blocks))
		})
	}

	require.ErrorIs(t, c.ValidateChain(nil), ErrChainValidation)
}

func TestResolveConflicts(t *testing.T) {
	cfg := testConfig()
	local := newTestChain(t, cfg)

	cfg5 := cfg
	cfg5.Clock = fixedClock(1700000500)
	peer5 := newTestChain(t, cfg5)
	grow(t, peer5, 4)

	cfg6 := cfg
	cfg6.Clock = fixedClock(1700000600)
	peer6 := newTestChain(t, cfg6)
	grow(t, peer6, 5)
	require.NotEqual(t, peer5.Tip().Hash, peer6.Tip().Hash)

	replaced := local.ResolveConflicts([]ChainSnapshot{peer5.Snapshot(), peer6.Snapshot()})
	require.True(t, replaced)
	require.Equal(t, 6, local.Len())
	require.Equal(t, peer6.Tip().Hash, local.Tip().Hash)

	// Order of snapshots does not matter.
	other := newTestChain(t, cfg)
	require.True(t, other.ResolveConflicts([]ChainSnapshot{peer6.Snapshot(), peer5.Snapshot()}))
	require.Equal(t, peer6.Tip().Hash, other.Tip().Hash)
}

func TestResolveConflictsKeepsLocal(t *testing.T) {
	cfg := testConfig()
	local := newTestChain(t, cfg)
	grow(t, local, 4)
	tip := local.Tip().Hash

	cfgPeer := cfg
	cfgPeer.Clock = fixedClock(1700000900)
	tie := newTestChain(t, cfgPeer)
	grow(t, tie, 4)
	shorter := newTestChain(t, cfgPeer)
	grow(t, shorter, 2)

	longerInvalid := newTestChain(t, cfgPeer)
	grow(t, longerInvalid, 6)
	bad := longerInvalid.Snapshot()
	bad.Chain[3].Transactions[0].Amount = 1000

	lying := tie.Snapshot()
	lying.Length = 10

	otherGenesisCfg := cfg
	otherGenesisCfg.Allocations = []Allocation{{Address: "mallory", Amount: 1e9}}
	foreign := newTestChain(t, otherGenesisCfg)
	grow(t, foreign, 8)

	tests := []struct {
		name string
		snap ChainSnapshot
	}{
		{"equal length", tie.Snapshot()},
		{"shorter", shorter.Snapshot()},
		{"longer but invalid", bad},
		{"declared length mismatch", lying},
		{"different genesis", foreign.Snapshot()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.False(t, local.ResolveConflicts([]ChainSnapshot{tt.snap}))
			require.Equal(t, tip, local.Tip().Hash)
		})
	}
	require.False(t, local.ResolveConflicts(nil))
}

func TestResolveConflictsPrunesPending(t *testing.T) {
	cfg := testConfig()
	local := newTestChain(t, cfg)

	peer := newTestChain(t, cfg)
	grow(t, peer, 2)
	mined := peer.Blocks()[1].Transactions[0]

	_, err := local.admit(mined, nil)
	require.NoError(t, err)
	keep := testTxs(1)[0]
	keep.Sender = "z"
	keep.Hash = HashTransaction(keep)
	_, err = local.admit(keep, nil)
	require.NoError(t, err)

	require.True(t, local.ResolveConflicts([]ChainSnapshot{peer.Snapshot()}))
	require.Equal(t, []Transaction{keep}, local.Pending())

	_, err = local.admit(mined, nil)
	require.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestProofOfStakeChain(t *testing.T) {
	cfg := testConfig()
	cfg.Consensus = ConsensusPoS
	cfg.Validators = []Validator{{ID: "V1", Stake: 100}, {ID: "V2", Stake: 300}}
	cfg.Rand = rand.New(rand.NewSource(3))
	c := newTestChain(t, cfg)
	grow(t, c, 5)

	blocks := c.Blocks()
	require.NoError(t, c.ValidateChain(blocks))
	for _, b := range blocks[1:] {
		require.Contains(t, []string{"V1", "V2"}, b.Proof.Creator)
	}

	blocks[3].Proof.Creator = "intruder"
	blocks[3].Hash = HashBlock(blocks[3])
	blocks[4].PreviousHash = blocks[3].Hash
	blocks[4].Hash = HashBlock(blocks[4])
	blocks[5].PreviousHash = blocks[4].Hash
	blocks[5].Hash = HashBlock(blocks[5])
	require.ErrorIs(t, c.ValidateChain(blocks), ErrChainValidation)
}

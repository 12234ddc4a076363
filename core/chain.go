package core

import (
	"fmt"
	"log/slog"
	"sync"
)

// Chain owns the block sequence, the pending pool and the seen-transaction set.
// Every mutation happens under its write lock, so a chain swap is atomic with
// respect to appends and admissions.
type Chain struct {
	blocks  []Block
	pending *PendingPool
	seen    *SeenSet
	engine  Engine
	clock   func() int64

	// store, when set, is written under the same lock as the mutation it records.
	store *Store
	mutex sync.RWMutex
}

// NewChain creates a chain holding only genesis.
func NewChain(genesis Block, engine Engine, clock func() int64) *Chain {
	c := &Chain{
		blocks:  []Block{genesis.clone()},
		pending: NewPendingPool(),
		seen:    NewSeenSet(),
		engine:  engine,
		clock:   clock,
	}
	for _, tx := range genesis.Transactions {
		c.seen.Add(tx.Hash)
	}
	return c
}

// Blocks returns a copy of the chain.
func (c *Chain) Blocks() []Block {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return cloneBlocks(c.blocks)
}

// Snapshot returns the chain in its transmitted form.
func (c *Chain) Snapshot() ChainSnapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return ChainSnapshot{Length: len(c.blocks), Chain: cloneBlocks(c.blocks)}
}

// Len returns the number of blocks, genesis included.
func (c *Chain) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.blocks)
}

// Tip returns the last block.
func (c *Chain) Tip() Block {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.blocks[len(c.blocks)-1].clone()
}

// Genesis returns block 0.
func (c *Chain) Genesis() Block {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.blocks[0].clone()
}

// Pending returns the pool in insertion order.
func (c *Chain) Pending() []Transaction {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.pending.Transactions()
}

// persistTo makes every later append and replacement write through to store.
func (c *Chain) persistTo(store *Store) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.store = store
}

// Engine is the consensus rule the chain validates against.
func (c *Chain) Engine() Engine {
	return c.engine
}

// admit rejects already seen hashes, runs check against the current chain and
// pool, then pools tx. It returns the index of the next block.
func (c *Chain) admit(tx Transaction, check func(blocks []Block, pending []Transaction) error) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.seen.Has(tx.Hash) {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.Hash)
	}
	if check != nil {
		if err := check(c.blocks, c.pending.txs); err != nil {
			return 0, err
		}
	}
	c.pending.Add(tx)
	c.seen.Add(tx.Hash)
	return c.blocks[len(c.blocks)-1].Index + 1, nil
}

// AppendBlock builds a block over txs on the current tip and appends it. The
// proof must satisfy the engine relative to the tip's proof. Included
// transactions leave the pending pool.
func (c *Chain) AppendBlock(proof Proof, txs []Transaction) (Block, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.appendLocked(proof, txs)
}

// appendOnTip appends only if the tip is still tipHash.
func (c *Chain) appendOnTip(tipHash string, proof Proof, txs []Transaction) (Block, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if tip := c.blocks[len(c.blocks)-1]; tip.Hash != tipHash {
		return Block{}, fmt.Errorf("%w: expected %s, tip is %s", ErrStaleTip, tipHash, tip.Hash)
	}
	return c.appendLocked(proof, txs)
}

func (c *Chain) appendLocked(proof Proof, txs []Transaction) (Block, error) {
	tip := c.blocks[len(c.blocks)-1]
	if !c.engine.Validate(tip.Proof, proof) {
		return Block{}, fmt.Errorf("%w: proof %s does not follow %s", ErrChainValidation, proof, tip.Proof)
	}
	block := NewBlock(tip.Index+1, tip.Hash, c.clock(), txs, proof)
	c.blocks = append(c.blocks, block)

	included := make(map[string]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		included[tx.Hash] = struct{}{}
		c.seen.Add(tx.Hash)
	}
	c.pending.Remove(included)
	if c.store != nil {
		if err := c.store.PutBlock(block); err != nil {
			slog.Error("Failed to persist block", "index", block.Index, "error", err)
		}
	}
	slog.Info("Block appended", "index", block.Index, "hash", block.Hash, "txs", len(block.Transactions))
	return block.clone(), nil
}

// ValidateChain checks a candidate chain block by block and stops at the first
// failure. It checks index continuity, previous-hash linkage, stored block and
// transaction hashes, the Merkle root, and each proof against its predecessor.
func (c *Chain) ValidateChain(blocks []Block) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: empty chain", ErrChainValidation)
	}
	genesis := blocks[0]
	if genesis.Index != 0 || genesis.PreviousHash != GenesisPreviousHash {
		return fmt.Errorf("%w: malformed genesis block", ErrChainValidation)
	}
	if err := checkBlockContent(genesis); err != nil {
		return err
	}
	for i := 1; i < len(blocks); i++ {
		prior, cur := blocks[i-1], blocks[i]
		if cur.Index != prior.Index+1 {
			return fmt.Errorf("%w: block %d: index %d does not follow %d", ErrChainValidation, i, cur.Index, prior.Index)
		}
		if cur.PreviousHash != HashBlock(prior) {
			return fmt.Errorf("%w: block %d: previous hash mismatch", ErrChainValidation, i)
		}
		if err := checkBlockContent(cur); err != nil {
			return err
		}
		if !c.engine.Validate(prior.Proof, cur.Proof) {
			return fmt.Errorf("%w: block %d: invalid proof", ErrChainValidation, i)
		}
	}
	return nil
}

// IsValidChain reports whether ValidateChain accepts blocks.
func (c *Chain) IsValidChain(blocks []Block) bool {
	return c.ValidateChain(blocks) == nil
}

func checkBlockContent(b Block) error {
	if b.Hash != HashBlock(b) {
		return fmt.Errorf("%w: block %d: stored hash mismatch", ErrChainValidation, b.Index)
	}
	for _, tx := range b.Transactions {
		if tx.Hash != HashTransaction(tx) {
			return fmt.Errorf("%w: block %d: transaction hash mismatch", ErrChainValidation, b.Index)
		}
	}
	if b.MerkleRoot != blockRoot(b.Transactions) {
		return fmt.Errorf("%w: block %d: merkle root mismatch", ErrChainValidation, b.Index)
	}
	return nil
}

// ResolveConflicts adopts the longest valid peer chain that is strictly longer
// than the local chain and shares its genesis block. Equal-length chains are
// never adopted. It reports whether the local chain was replaced.
func (c *Chain) ResolveConflicts(snapshots []ChainSnapshot) bool {
	c.mutex.RLock()
	maxLength := len(c.blocks)
	genesisHash := c.blocks[0].Hash
	c.mutex.RUnlock()

	var candidate []Block
	for _, snap := range snapshots {
		if snap.Length != len(snap.Chain) {
			slog.Warn("Peer chain length mismatch", "declared", snap.Length, "actual", len(snap.Chain))
			continue
		}
		if snap.Length <= maxLength {
			continue
		}
		if snap.Chain[0].Hash != genesisHash {
			slog.Warn("Peer chain has a different genesis", "length", snap.Length)
			continue
		}
		if err := c.ValidateChain(snap.Chain); err != nil {
			slog.Warn("Peer chain rejected", "length", snap.Length, "error", err)
			continue
		}
		maxLength = snap.Length
		candidate = snap.Chain
	}
	if candidate == nil {
		return false
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	// The local chain may have grown while candidates were validated.
	if len(candidate) <= len(c.blocks) {
		return false
	}
	c.replaceLocked(candidate)
	if c.store != nil {
		if err := c.store.ReplaceChain(c.blocks); err != nil {
			slog.Error("Failed to persist replaced chain", "error", err)
		}
	}
	slog.Info("Chain replaced", "length", len(c.blocks), "tip", c.blocks[len(c.blocks)-1].Hash)
	return true
}

// load replaces the chain with blocks read from storage after validating them.
func (c *Chain) load(blocks []Block) error {
	if err := c.ValidateChain(blocks); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if blocks[0].Hash != c.blocks[0].Hash {
		return fmt.Errorf("%w: stored genesis differs from configuration", ErrChainValidation)
	}
	c.replaceLocked(blocks)
	return nil
}

func (c *Chain) replaceLocked(blocks []Block) {
	c.blocks = cloneBlocks(blocks)
	included := make(map[string]struct{})
	for _, b := range c.blocks {
		for _, tx := range b.Transactions {
			included[tx.Hash] = struct{}{}
			c.seen.Add(tx.Hash)
		}
	}
	c.pending.Remove(included)
}

package core

import (
	"fmt"
	"strconv"
)

// TxKind distinguishes value transfers from the other records a block can carry.
type TxKind string

const (
	KindTransfer     TxKind = "transfer"
	KindAllocation   TxKind = "allocation"
	KindNotarization TxKind = "notarization"
	KindReward       TxKind = "reward"
)

const (
	// GenesisPreviousHash is the sentinel previous hash of block 0.
	GenesisPreviousHash = "0"
	// GenesisSender funds the genesis allocations and mining rewards.
	GenesisSender = "0"
	// GenesisCreator is the proof-of-stake creator recorded on block 0.
	GenesisCreator = "genesis"
)

// Transaction is immutable once admitted. Hash is derived by HashTransaction.
type Transaction struct {
	Kind         TxKind  `json:"kind"`
	Sender       string  `json:"sender"`
	Recipient    string  `json:"recipient"`
	Amount       float64 `json:"amount"`
	Fee          float64 `json:"fee"`
	Message      string  `json:"message,omitempty"`
	DocumentHash string  `json:"document_hash,omitempty"`
	Owner        string  `json:"owner,omitempty"`
	Timestamp    int64   `json:"timestamp"`
	Signature    string  `json:"signature,omitempty"`
	Hash         string  `json:"hash"`
}

// Proof is either a proof-of-work nonce or a proof-of-stake score with the
// creator it was derived for.
type Proof struct {
	Nonce   uint64  `json:"nonce"`
	Score   float64 `json:"score"`
	Creator string  `json:"creator,omitempty"`
}

// String is the form a proof takes when it seeds the next proof search.
func (p Proof) String() string {
	if p.Creator == "" {
		return strconv.FormatUint(p.Nonce, 10)
	}
	return fmt.Sprintf("%s:%s", p.Creator, strconv.FormatFloat(p.Score, 'g', -1, 64))
}

// Validator is a proof-of-stake participant and its current stake.
type Validator struct {
	ID    string  `json:"id"`
	Stake float64 `json:"stake"`
}

// ChainSnapshot is the transmitted form of a chain.
type ChainSnapshot struct {
	Length int     `json:"length"`
	Chain  []Block `json:"chain"`
}

// Notarization is the confirmed record of a notarized document.
type Notarization struct {
	DocumentHash string `json:"document_hash"`
	Owner        string `json:"owner"`
	Timestamp    int64  `json:"timestamp"`
	BlockIndex   int    `json:"block_index"`
}

// PendingPool holds admitted transactions in insertion order until they are mined.
type PendingPool struct {
	txs []Transaction
}

// NewPendingPool creates an empty pool.
func NewPendingPool() *PendingPool {
	return &PendingPool{}
}

// Add appends tx to the pool.
func (p *PendingPool) Add(tx Transaction) {
	p.txs = append(p.txs, tx)
}

// Len returns the number of pooled transactions.
func (p *PendingPool) Len() int {
	return len(p.txs)
}

// Transactions returns a copy of the pool in insertion order.
func (p *PendingPool) Transactions() []Transaction {
	out := make([]Transaction, len(p.txs))
	copy(out, p.txs)
	return out
}

// Remove drops every pooled transaction whose hash is in included.
func (p *PendingPool) Remove(included map[string]struct{}) {
	kept := p.txs[:0]
	for _, tx := range p.txs {
		if _, ok := included[tx.Hash]; ok {
			continue
		}
		kept = append(kept, tx)
	}
	clear(p.txs[len(kept):])
	p.txs = kept
}

// Clear empties the pool and keeps it usable.
func (p *PendingPool) Clear() {
	clear(p.txs)
	p.txs = p.txs[:0]
}

// SeenSet records every transaction hash ever admitted to the pool or chain.
// It only grows.
type SeenSet struct {
	hashes map[string]struct{}
}

// NewSeenSet creates an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{hashes: make(map[string]struct{})}
}

// Add records hash.
func (s *SeenSet) Add(hash string) {
	s.hashes[hash] = struct{}{}
}

// Has reports whether hash was recorded.
func (s *SeenSet) Has(hash string) bool {
	_, ok := s.hashes[hash]
	return ok
}

// Len returns the number of recorded hashes.
func (s *SeenSet) Len() int {
	return len(s.hashes)
}

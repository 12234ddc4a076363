package core

import "slices"

// Block is appended once and never mutated afterwards.
type Block struct {
	Index        int           `json:"index"`
	PreviousHash string        `json:"previous_hash"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	MerkleRoot   string        `json:"merkle_root"`
	Proof        Proof         `json:"proof"`
	Hash         string        `json:"hash"`
}

// NewBlock builds a block over txs and derives its Merkle root and hash.
func NewBlock(index int, previousHash string, timestamp int64, txs []Transaction, proof Proof) Block {
	b := Block{
		Index:        index,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
		Transactions: slices.Clone(txs),
		MerkleRoot:   blockRoot(txs),
		Proof:        proof,
	}
	if b.Transactions == nil {
		b.Transactions = []Transaction{}
	}
	b.Hash = b.calculateHash()
	return b
}

func (b Block) calculateHash() string {
	return HashBlock(b)
}

func (b Block) clone() Block {
	b.Transactions = slices.Clone(b.Transactions)
	return b
}

// NewGenesisBlock derives block 0 from cfg. Every field comes from configuration,
// so nodes sharing a configuration share a genesis hash.
func NewGenesisBlock(cfg Config) Block {
	txs := make([]Transaction, 0, len(cfg.Allocations))
	for _, alloc := range cfg.Allocations {
		tx := Transaction{
			Kind:      KindAllocation,
			Sender:    GenesisSender,
			Recipient: alloc.Address,
			Amount:    alloc.Amount,
			Timestamp: cfg.GenesisTime,
		}
		tx.Hash = HashTransaction(tx)
		txs = append(txs, tx)
	}
	proof := Proof{Nonce: cfg.GenesisProof}
	if cfg.Consensus == ConsensusPoS {
		proof = Proof{Creator: GenesisCreator}
	}
	return NewBlock(0, GenesisPreviousHash, cfg.GenesisTime, txs, proof)
}

func cloneBlocks(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.clone()
	}
	return out
}

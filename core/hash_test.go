package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalSortsKeys(t *testing.T) {
	a, err := Canonical(map[string]any{"b": 1, "a": 2, "c": map[string]int{"z": 1, "y": 2}})
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1,"c":{"y":2,"z":1}}`, string(a))

	b, err := Canonical(struct {
		Z int `json:"z"`
		A int `json:"a"`
	}{1, 2})
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"z":1}`, string(b))
}

func TestCanonicalKeepsHTMLCharacters(t *testing.T) {
	data, err := Canonical(map[string]string{"message": "<a & b>"})
	require.NoError(t, err)
	require.Equal(t, `{"message":"<a & b>"}`, string(data))

	tx := Transaction{Kind: KindTransfer, Sender: "a", Recipient: "b", Message: "<a & b>", Timestamp: 1}
	require.Equal(t, Digest([]byte(`{"amount":0,"document_hash":"","fee":0,"kind":"transfer","message":"<a & b>","owner":"","recipient":"b","sender":"a","timestamp":1}`)), HashTransaction(tx))
}

func TestHashTransactionIgnoresHashAndSignature(t *testing.T) {
	tx := Transaction{Kind: KindTransfer, Sender: "a", Recipient: "b", Amount: 5, Fee: 0.5, Timestamp: 42}
	h := HashTransaction(tx)

	tx.Hash = "something"
	tx.Signature = "sig"
	require.Equal(t, h, HashTransaction(tx))

	tx.Amount = 6
	require.NotEqual(t, h, HashTransaction(tx))
}

func TestHashBlockDeterministic(t *testing.T) {
	b := NewBlock(1, "prev", 100, nil, Proof{Nonce: 7})
	require.Equal(t, b.Hash, HashBlock(b))
	require.Equal(t, HashBlock(b), HashBlock(b.clone()))
	require.Len(t, b.Hash, 64)

	b.Timestamp++
	require.NotEqual(t, b.Hash, HashBlock(b))
}

func TestGenesisBlockFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Allocations = []Allocation{{Address: "alice", Amount: 100}}
	g1 := NewGenesisBlock(cfg)
	g2 := NewGenesisBlock(cfg)

	require.Equal(t, g1.Hash, g2.Hash)
	require.Equal(t, GenesisPreviousHash, g1.PreviousHash)
	require.Equal(t, 0, g1.Index)
	require.Equal(t, uint64(100), g1.Proof.Nonce)
	require.Len(t, g1.Transactions, 1)
	require.Equal(t, HashTransaction(g1.Transactions[0]), g1.MerkleRoot)

	cfg.Allocations = nil
	empty := NewGenesisBlock(cfg)
	require.Equal(t, EmptyMerkleRoot, empty.MerkleRoot)
	require.NotNil(t, empty.Transactions)

	cfg.Consensus = ConsensusPoS
	require.Equal(t, GenesisCreator, NewGenesisBlock(cfg).Proof.Creator)
}

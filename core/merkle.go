package core

import (
	"fmt"
	"slices"
	"strings"
)

// EmptyMerkleRoot is stored on blocks that carry no transactions.
var EmptyMerkleRoot = strings.Repeat("0", 64)

// MerkleRoot reduces leaf digests to a single root. Adjacent digests are paired
// left to right and the hex concatenation of each pair is hashed. A level with an
// odd count pairs its last digest with itself. A single leaf is its own root.
func MerkleRoot(leaves []string) (string, error) {
	if len(leaves) == 0 {
		return "", ErrEmptyInput
	}
	level := slices.Clone(leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, Digest([]byte(level[i]+level[i+1])))
		}
		level = next
	}
	return level[0], nil
}

// TransactionsRoot recomputes every transaction's hash and reduces them to a root.
func TransactionsRoot(txs []Transaction) (string, error) {
	leaves := make([]string, len(txs))
	for i, tx := range txs {
		leaves[i] = HashTransaction(tx)
	}
	return MerkleRoot(leaves)
}

// blockRoot is the root stored on a block, EmptyMerkleRoot for an empty block.
func blockRoot(txs []Transaction) string {
	root, err := TransactionsRoot(txs)
	if err != nil {
		return EmptyMerkleRoot
	}
	return root
}

// VerifyTransaction reports whether target is present in txs and the root
// recomputed over the whole of txs equals expectedRoot.
//
// This is a whole-set recomputation, not a Merkle path proof. It only confirms
// that expectedRoot matches the supplied set; a set whose count or order was
// altered consistently with its root still verifies.
func VerifyTransaction(txs []Transaction, target Transaction, expectedRoot string) bool {
	targetHash := HashTransaction(target)
	found := slices.ContainsFunc(txs, func(tx Transaction) bool {
		return HashTransaction(tx) == targetHash
	})
	if !found {
		return false
	}
	root, err := TransactionsRoot(txs)
	if err != nil {
		return false
	}
	return root == expectedRoot
}

// MerkleTree manages an ordered transaction sequence and recomputes its root
// on every change.
type MerkleTree struct {
	txs []Transaction
}

// NewMerkleTree creates a tree over a copy of txs.
func NewMerkleTree(txs []Transaction) *MerkleTree {
	return &MerkleTree{txs: slices.Clone(txs)}
}

// Root returns the current root, or ErrEmptyInput for an empty tree.
func (t *MerkleTree) Root() (string, error) {
	return TransactionsRoot(t.txs)
}

// Transactions returns a copy of the managed sequence.
func (t *MerkleTree) Transactions() []Transaction {
	return slices.Clone(t.txs)
}

// Len returns the number of managed transactions.
func (t *MerkleTree) Len() int {
	return len(t.txs)
}

// Add appends tx and returns the new root.
func (t *MerkleTree) Add(tx Transaction) (string, error) {
	t.txs = append(t.txs, tx)
	return t.Root()
}

// Remove deletes the first transaction with the same content hash as tx and
// returns the new root. Removing the last transaction leaves the tree empty and
// returns ErrEmptyInput.
func (t *MerkleTree) Remove(tx Transaction) (string, error) {
	hash := HashTransaction(tx)
	i := slices.IndexFunc(t.txs, func(candidate Transaction) bool {
		return HashTransaction(candidate) == hash
	})
	if i < 0 {
		return "", fmt.Errorf("remove %s: %w", hash, ErrNotFound)
	}
	t.txs = slices.Delete(t.txs, i, i+1)
	return t.Root()
}

// Verify checks target against expectedRoot over the managed sequence.
func (t *MerkleTree) Verify(target Transaction, expectedRoot string) bool {
	return VerifyTransaction(t.txs, target, expectedRoot)
}

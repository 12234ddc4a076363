package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Canonical returns the JSON serialization of v with every object's keys sorted.
// Struct field order and map iteration order never leak into the output, so two
// processes holding the same logical value always produce the same bytes. HTML
// characters are written as is.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return bytes.TrimSuffix(out.Bytes(), []byte("\n")), nil
}

// Digest is the hex-encoded SHA-256 of data.
func Digest(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// Hash digests the canonical serialization of v.
func Hash(v any) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return Digest(data), nil
}

// HashTransaction derives a transaction's content hash from every field except
// the hash itself and the signature.
func HashTransaction(tx Transaction) string {
	data, _ := Canonical(struct {
		Kind         TxKind  `json:"kind"`
		Sender       string  `json:"sender"`
		Recipient    string  `json:"recipient"`
		Amount       float64 `json:"amount"`
		Fee          float64 `json:"fee"`
		Message      string  `json:"message"`
		DocumentHash string  `json:"document_hash"`
		Owner        string  `json:"owner"`
		Timestamp    int64   `json:"timestamp"`
	}{
		Kind:         tx.Kind,
		Sender:       tx.Sender,
		Recipient:    tx.Recipient,
		Amount:       tx.Amount,
		Fee:          tx.Fee,
		Message:      tx.Message,
		DocumentHash: tx.DocumentHash,
		Owner:        tx.Owner,
		Timestamp:    tx.Timestamp,
	})
	return Digest(data)
}

// HashBlock derives a block's hash from every field except the hash itself.
func HashBlock(b Block) string {
	txs := b.Transactions
	if txs == nil {
		txs = []Transaction{}
	}
	data, _ := Canonical(struct {
		Index        int           `json:"index"`
		PreviousHash string        `json:"previous_hash"`
		Timestamp    int64         `json:"timestamp"`
		Transactions []Transaction `json:"transactions"`
		MerkleRoot   string        `json:"merkle_root"`
		Proof        Proof         `json:"proof"`
	}{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp,
		Transactions: txs,
		MerkleRoot:   b.MerkleRoot,
		Proof:        b.Proof,
	})
	return Digest(data)
}

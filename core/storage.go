package core

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	blockPrefix = "block:"
	txPrefix    = "tx:"
)

// Store persists blocks under block:<index> and indexes every transaction under
// tx:<address>:<block index>:<hash> for both sender and recipient.
type Store struct {
	db *leveldb.DB
}

// OpenStore opens or creates a LevelDB database at path.
func OpenStore(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	return &Store{db: db}, nil
}

// NewMemoryStore returns a Store backed by memory.
func NewMemoryStore() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(index int) []byte {
	return []byte(fmt.Sprintf("%s%010d", blockPrefix, index))
}

func txKey(address string, index int, hash string) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d:%s", txPrefix, address, index, hash))
}

func putBlock(batch *leveldb.Batch, b Block) error {
	dataBytes, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal block: %v", err)
	}
	batch.Put(blockKey(b.Index), dataBytes)
	for _, tx := range b.Transactions {
		txBytes, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("failed to marshal transaction: %v", err)
		}
		batch.Put(txKey(tx.Sender, b.Index, tx.Hash), txBytes)
		if tx.Recipient != "" && tx.Recipient != tx.Sender {
			batch.Put(txKey(tx.Recipient, b.Index, tx.Hash), txBytes)
		}
	}
	return nil
}

// PutBlock stores b and its transaction index entries atomically.
func (s *Store) PutBlock(b Block) error {
	batch := new(leveldb.Batch)
	if err := putBlock(batch, b); err != nil {
		return err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to store block: %v", err)
	}
	return nil
}

// ReplaceChain drops every stored block and index entry and writes blocks in
// one batch.
func (s *Store) ReplaceChain(blocks []Block) error {
	batch := new(leveldb.Batch)
	for _, prefix := range []string{blockPrefix, txPrefix} {
		iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for iter.Next() {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return fmt.Errorf("iterator error: %v", err)
		}
	}
	for _, b := range blocks {
		if err := putBlock(batch, b); err != nil {
			return err
		}
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to replace chain: %v", err)
	}
	return nil
}

// Blocks returns the stored chain in index order.
func (s *Store) Blocks() ([]Block, error) {
	var blocks []Block
	iter := s.db.NewIterator(util.BytesPrefix([]byte(blockPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		var b Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal block %q: %v", iter.Key(), err)
		}
		blocks = append(blocks, b)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %v", err)
	}
	return blocks, nil
}

// Transactions returns every stored transaction sent or received by address,
// ordered by block.
func (s *Store) Transactions(address string) ([]Transaction, error) {
	var transactions []Transaction
	iter := s.db.NewIterator(util.BytesPrefix([]byte(txPrefix+address+":")), nil)
	defer iter.Release()
	for iter.Next() {
		var tx Transaction
		if err := json.Unmarshal(iter.Value(), &tx); err != nil {
			continue
		}
		transactions = append(transactions, tx)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %v", err)
	}
	return transactions, nil
}

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	EventBlock    = "block"
	EventReplaced = "replaced"
)

// Event is published after every append and every chain replacement.
type Event struct {
	Type   string `json:"type"`
	Block  *Block `json:"block,omitempty"`
	Length int    `json:"length"`
}

// Node ties the chain, ledger, consensus engine and optional store together.
// It is the boundary the REST layer and peer sync call into.
type Node struct {
	cfg        Config
	chain      *Chain
	ledger     *Ledger
	validators *Validators
	scheme     Scheme
	store      *Store

	mutex       sync.Mutex
	subscribers []chan Event
	mining      map[int]context.CancelFunc
	nextMiner   int
}

// NewNode builds a node from cfg. With a store configured, a previously
// persisted chain is validated and loaded; an empty store is seeded with genesis.
func NewNode(cfg Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	scheme, err := SchemeByName(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	validators := NewValidators(cfg.Validators...)
	engine, err := NewEngine(cfg, validators)
	if err != nil {
		return nil, err
	}
	chain := NewChain(NewGenesisBlock(cfg), engine, cfg.Clock)
	n := &Node{
		cfg:        cfg,
		chain:      chain,
		ledger:     NewLedger(chain, scheme, validators, cfg),
		validators: validators,
		scheme:     scheme,
		store:      cfg.Store,
		mining:     make(map[int]context.CancelFunc),
	}
	if n.store != nil {
		if err := n.loadStore(); err != nil {
			return nil, err
		}
	}
	slog.Info("Node ready", "consensus", engine.Name(), "scheme", scheme.Name(), "length", chain.Len(), "genesis", chain.Genesis().Hash)
	return n, nil
}

func (n *Node) loadStore() error {
	blocks, err := n.store.Blocks()
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		if err := n.store.PutBlock(n.chain.Genesis()); err != nil {
			return err
		}
	} else if err := n.chain.load(blocks); err != nil {
		return fmt.Errorf("load stored chain: %w", err)
	}
	n.chain.persistTo(n.store)
	return nil
}

// Config returns the configuration the node runs with, defaults filled in.
func (n *Node) Config() Config { return n.cfg }

// Scheme returns the signature scheme transfers are verified with.
func (n *Node) Scheme() Scheme { return n.scheme }

// ChainStore returns the underlying chain.
func (n *Node) ChainStore() *Chain { return n.chain }

// Ledger returns the admission ledger.
func (n *Node) Ledger() *Ledger { return n.ledger }

// Chain returns a copy of the blocks.
func (n *Node) Chain() []Block { return n.chain.Blocks() }

// Snapshot returns the chain in its transmitted form.
func (n *Node) Snapshot() ChainSnapshot { return n.chain.Snapshot() }

// Pending returns the transactions waiting to be mined.
func (n *Node) Pending() []Transaction { return n.chain.Pending() }

// SubmitTransaction admits a signed transfer and returns the block index it
// should be mined into.
func (n *Node) SubmitTransaction(sender, recipient string, amount float64, signature, message string) (int, error) {
	index, err := n.ledger.CreateTransaction(sender, recipient, amount, signature, message)
	if err != nil {
		return 0, err
	}
	slog.Info("Transaction admitted", "sender", sender, "recipient", recipient, "amount", amount, "index", index)
	return index, nil
}

// SubmitNotarization admits a document notarization.
func (n *Node) SubmitNotarization(documentHash, owner string) (int, error) {
	index, err := n.ledger.CreateNotarization(documentHash, owner)
	if err != nil {
		return 0, err
	}
	slog.Info("Notarization admitted", "document", documentHash, "owner", owner, "index", index)
	return index, nil
}

// Balance returns the confirmed balance of address.
func (n *Node) Balance(address string) float64 {
	return n.ledger.Balance(address)
}

// VerifyDocument looks documentHash up in the confirmed chain.
func (n *Node) VerifyDocument(documentHash string) (Notarization, bool) {
	return FindDocument(n.chain.Blocks(), documentHash)
}

// TransactionsFor answers from the store index when one is configured.
func (n *Node) TransactionsFor(address string) ([]Transaction, error) {
	if n.store != nil {
		return n.store.Transactions(address)
	}
	return TransactionsOf(n.chain.Blocks(), address), nil
}

// Validators returns the staked validators sorted by id.
func (n *Node) Validators() []Validator {
	return n.validators.Snapshot()
}

// RegisterValidator adds a validator or replaces its stake.
func (n *Node) RegisterValidator(id string, stake float64) {
	n.validators.Register(id, stake)
	slog.Info("Validator registered", "id", id, "stake", stake)
}

// Mine searches for a proof on the current tip without holding the chain lock
// and appends a block over the pending pool, plus the mining reward when one is
// configured. It returns ErrStaleTip when the
// tip moved during the search, and ctx's error when ctx is cancelled or the
// chain is replaced while mining.
func (n *Node) Mine(ctx context.Context) (Block, error) {
	ctx, cancel := context.WithCancel(ctx)
	id := n.trackMiner(cancel)
	defer func() {
		n.untrackMiner(id)
		cancel()
	}()

	tip := n.chain.Tip()
	txs := n.chain.Pending()
	proof, err := n.chain.Engine().Propose(ctx, tip.Proof)
	if err != nil {
		return Block{}, fmt.Errorf("propose: %w", err)
	}
	if n.cfg.MiningReward > 0 {
		txs = append(txs, n.rewardFor(tip.Index+1))
	}
	block, err := n.chain.appendOnTip(tip.Hash, proof, txs)
	if err != nil {
		if errors.Is(err, ErrStaleTip) {
			slog.Warn("Discarding proof for stale tip", "tip", tip.Hash)
		}
		return Block{}, err
	}
	n.publish(Event{Type: EventBlock, Block: &block, Length: block.Index + 1})
	return block, nil
}

// rewardFor pays the configured reward for block index to the miner.
func (n *Node) rewardFor(index int) Transaction {
	tx := Transaction{
		Kind:      KindReward,
		Sender:    GenesisSender,
		Recipient: n.cfg.MinerAddress,
		Amount:    n.cfg.MiningReward,
		Message:   fmt.Sprintf("reward for block %d", index),
		Timestamp: n.cfg.Clock(),
	}
	tx.Hash = HashTransaction(tx)
	return tx
}

// ResolveConflicts adopts a longer valid peer chain and cancels mining on the
// old tip. The chain persists the swap itself.
func (n *Node) ResolveConflicts(snapshots []ChainSnapshot) bool {
	if !n.chain.ResolveConflicts(snapshots) {
		return false
	}
	n.cancelMiners()
	blocks := n.chain.Blocks()
	tip := blocks[len(blocks)-1]
	n.publish(Event{Type: EventReplaced, Block: &tip, Length: len(blocks)})
	return true
}

// Subscribe returns a channel receiving every subsequent event. Slow
// subscribers miss events rather than block the node.
func (n *Node) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	n.mutex.Lock()
	n.subscribers = append(n.subscribers, ch)
	n.mutex.Unlock()
	return ch
}

func (n *Node) publish(ev Event) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Warn("Dropping event for slow subscriber", "type", ev.Type)
		}
	}
}

func (n *Node) trackMiner(cancel context.CancelFunc) int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.nextMiner++
	n.mining[n.nextMiner] = cancel
	return n.nextMiner
}

func (n *Node) untrackMiner(id int) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.mining, id)
}

func (n *Node) cancelMiners() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	for id, cancel := range n.mining {
		cancel()
		delete(n.mining, id)
	}
}

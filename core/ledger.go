package core

import (
	"fmt"
	"math"
)

// Ledger admits signed transfers and notarizations into the chain's pending pool.
type Ledger struct {
	chain      *Chain
	scheme     Scheme
	validators *Validators
	contracts  []Contract
	feeRate    float64
	clock      func() int64
}

// NewLedger creates a ledger admitting into chain with the fee rate and
// contracts of cfg.
func NewLedger(chain *Chain, scheme Scheme, validators *Validators, cfg Config) *Ledger {
	cfg = cfg.withDefaults()
	return &Ledger{
		chain:      chain,
		scheme:     scheme,
		validators: validators,
		contracts:  cfg.Contracts,
		feeRate:    cfg.FeeRate,
		clock:      cfg.Clock,
	}
}

// Fee is the amount burned on top of a transfer of amount.
func (l *Ledger) Fee(amount float64) float64 {
	return amount * l.feeRate
}

// CreateTransaction verifies and admits a transfer and returns the index of the
// block it is expected to be mined into. message is optional free text; it is
// part of the transaction hash but not of the signed payload.
//
// The sender must be able to cover amount plus fee out of its confirmed balance
// less whatever it already has pending. Validator stakes are adjusted as soon as
// the transfer is admitted and are not rolled back if the block is later lost to
// a chain replacement.
func (l *Ledger) CreateTransaction(sender, recipient string, amount float64, signature, message string) (int, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if err := l.scheme.Verify(sender, recipient, amount, signature); err != nil {
		return 0, err
	}

	tx := Transaction{
		Kind:      KindTransfer,
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Fee:       l.Fee(amount),
		Message:   message,
		Timestamp: l.clock(),
		Signature: signature,
	}
	tx.Hash = HashTransaction(tx)

	index, err := l.chain.admit(tx, func(blocks []Block, pending []Transaction) error {
		spendable := BalanceOf(blocks, sender) - pendingOutgoing(pending, sender)
		if spendable < tx.Amount+tx.Fee {
			return fmt.Errorf("%w: %s has %v, needs %v", ErrInsufficientFunds, sender, spendable, tx.Amount+tx.Fee)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.validators.Adjust(sender, -(tx.Amount + tx.Fee))
	l.validators.Adjust(recipient, tx.Amount)
	runContracts(l.contracts, tx)
	return index, nil
}

// CreateNotarization admits a record binding documentHash to owner.
func (l *Ledger) CreateNotarization(documentHash, owner string) (int, error) {
	if documentHash == "" || owner == "" {
		return 0, fmt.Errorf("%w: document hash and owner are required", ErrMissingField)
	}
	tx := Transaction{
		Kind:         KindNotarization,
		Sender:       owner,
		DocumentHash: documentHash,
		Owner:        owner,
		Timestamp:    l.clock(),
	}
	tx.Hash = HashTransaction(tx)
	return l.chain.admit(tx, nil)
}

// Balance is the confirmed balance of address.
func (l *Ledger) Balance(address string) float64 {
	return BalanceOf(l.chain.Blocks(), address)
}

// BalanceOf scans every block: senders pay amount plus fee, recipients gain
// amount. Notarizations move no value.
func BalanceOf(blocks []Block, address string) float64 {
	balance := 0.0
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			if tx.Kind == KindNotarization {
				continue
			}
			if tx.Sender == address {
				balance -= tx.Amount + tx.Fee
			}
			if tx.Recipient == address {
				balance += tx.Amount
			}
		}
	}
	return balance
}

func pendingOutgoing(pending []Transaction, address string) float64 {
	total := 0.0
	for _, tx := range pending {
		if tx.Kind != KindNotarization && tx.Sender == address {
			total += tx.Amount + tx.Fee
		}
	}
	return total
}

// FindDocument returns the first confirmed notarization of documentHash.
func FindDocument(blocks []Block, documentHash string) (Notarization, bool) {
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			if tx.Kind == KindNotarization && tx.DocumentHash == documentHash {
				return Notarization{
					DocumentHash: tx.DocumentHash,
					Owner:        tx.Owner,
					Timestamp:    tx.Timestamp,
					BlockIndex:   b.Index,
				}, true
			}
		}
	}
	return Notarization{}, false
}

// TransactionsOf returns every confirmed transaction sent or received by address.
func TransactionsOf(blocks []Block, address string) []Transaction {
	var out []Transaction
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			if tx.Sender == address || tx.Recipient == address {
				out = append(out, tx)
			}
		}
	}
	return out
}

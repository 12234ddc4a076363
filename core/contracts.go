package core

import "log/slog"

// Contract runs Action for every admitted transaction that satisfies Condition.
type Contract struct {
	Name      string
	Condition func(tx Transaction) bool
	Action    func(tx Transaction)
}

// HighFeeContract warns about transfers whose fee exceeds threshold.
func HighFeeContract(threshold float64) Contract {
	return Contract{
		Name:      "high_fee",
		Condition: func(tx Transaction) bool { return tx.Fee > threshold },
		Action: func(tx Transaction) {
			slog.Warn("High fee detected", "tx", tx.Hash, "sender", tx.Sender, "fee", tx.Fee)
		},
	}
}

// LargeAmountContract warns about transfers larger than threshold.
func LargeAmountContract(threshold float64) Contract {
	return Contract{
		Name:      "large_amount",
		Condition: func(tx Transaction) bool { return tx.Amount > threshold },
		Action: func(tx Transaction) {
			slog.Warn("Large transfer detected", "tx", tx.Hash, "sender", tx.Sender, "amount", tx.Amount)
		},
	}
}

func runContracts(contracts []Contract, tx Transaction) {
	for _, c := range contracts {
		if c.Condition != nil && c.Action != nil && c.Condition(tx) {
			c.Action(tx)
		}
	}
}

package models

import "math/big"

type FundingOutcome string

const (
	OutcomeConfirmed       FundingOutcome = "confirmed"
	OutcomeSentUnconfirmed FundingOutcome = "sent_unconfirmed"
	OutcomeRejected        FundingOutcome = "rejected"
)

// FundingRequest describes one transfer from the funder wallet. A rejected
// request never carries a TxHash, the other outcomes always do.
type FundingRequest struct {
	Destination string
	Amount      string
	AmountWei   *big.Int
	Outcome     FundingOutcome
	TxHash      string
	BlockNumber uint64
	Error       string
}

func (f *FundingRequest) Funded() bool {
	return f.Outcome == OutcomeConfirmed
}

// Sent reports whether the transfer reached the ledger's pending pool.
func (f *FundingRequest) Sent() bool {
	return f.Outcome == OutcomeConfirmed || f.Outcome == OutcomeSentUnconfirmed
}

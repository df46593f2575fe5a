package service

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"voting-gateway/blockchain"
	"voting-gateway/encryption"
	"voting-gateway/logging"
	"voting-gateway/models"
)

const (
	DefaultFundAmount = "0.01"
	DefaultReserve    = "0.001"
	DefaultMinBalance = "0.0001"
)

// Ledger is the chain access the orchestrator needs.
// *blockchain.Client implements it.
type Ledger interface {
	Balance(ctx context.Context, address common.Address) (*big.Int, error)
	SendValue(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *big.Int) (*types.Transaction, error)
	AwaitConfirmation(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type FundingConfig struct {
	// DefaultAmount is used when a request names no amount, in ether.
	DefaultAmount string
	// Reserve must remain in the funder wallet after a transfer, in wei.
	Reserve *big.Int
	// MinBalance is the voter balance below which gas is needed, in wei.
	MinBalance *big.Int
}

func DefaultFundingConfig() FundingConfig {
	return FundingConfig{
		DefaultAmount: DefaultFundAmount,
		Reserve:       blockchain.MustParseEther(DefaultReserve),
		MinBalance:    blockchain.MustParseEther(DefaultMinBalance),
	}
}

type FundingInput struct {
	To     string
	Amount string
	// FunderKey overrides the configured funder key for one request.
	FunderKey string
}

// TxStatus is the reconciliation view of an earlier transfer.
type TxStatus struct {
	Hash        string
	Confirmed   bool
	Succeeded   bool
	BlockNumber uint64
}

// FundingOrchestrator moves gas money from the custodial funder wallet to
// voter wallets and classifies every attempt as confirmed, sent but
// unconfirmed, or rejected.
type FundingOrchestrator struct {
	ledger        Ledger
	funderKey     *ecdsa.PrivateKey
	cryptoService *encryption.CryptoService
	config        FundingConfig
}

// NewFundingOrchestrator builds an orchestrator. ledger and funderKey may be
// nil; operations needing them then fail with models.ErrUnconfigured.
func NewFundingOrchestrator(ledger Ledger, funderKey *ecdsa.PrivateKey, config FundingConfig) *FundingOrchestrator {
	defaults := DefaultFundingConfig()
	if config.DefaultAmount == "" {
		config.DefaultAmount = defaults.DefaultAmount
	}
	if config.Reserve == nil {
		config.Reserve = defaults.Reserve
	}
	if config.MinBalance == nil {
		config.MinBalance = defaults.MinBalance
	}
	return &FundingOrchestrator{
		ledger:        ledger,
		funderKey:     funderKey,
		cryptoService: encryption.NewCryptoService(),
		config:        config,
	}
}

// Enabled reports whether both the ledger and a funder key are configured.
func (f *FundingOrchestrator) Enabled() bool {
	return f.ledger != nil && f.funderKey != nil
}

func (f *FundingOrchestrator) DefaultAmount() string {
	return f.config.DefaultAmount
}

// FunderStatus returns the funder address and its current balance.
func (f *FundingOrchestrator) FunderStatus(ctx context.Context) (common.Address, *big.Int, error) {
	if !f.Enabled() {
		return common.Address{}, nil, fmt.Errorf("%w: RPC_URL and FUNDER_PRIVATE_KEY are required", models.ErrUnconfigured)
	}
	from := f.cryptoService.Address(f.funderKey)
	balance, err := f.ledger.Balance(ctx, from)
	if err != nil {
		return from, nil, err
	}
	return from, balance, nil
}

// EnsureFunded runs balance check, broadcast and confirmation wait in that
// order. Admission failures return an error and no request; once a
// broadcast is attempted the outcome is carried in the returned request.
func (f *FundingOrchestrator) EnsureFunded(ctx context.Context, in FundingInput) (*models.FundingRequest, error) {
	start := time.Now()

	to, amount, err := f.validate(in)
	if err != nil {
		return nil, err
	}

	if f.ledger == nil {
		return nil, fmt.Errorf("%w: RPC_URL is not set", models.ErrUnconfigured)
	}

	key, err := f.signer(in.FunderKey)
	if err != nil {
		return nil, err
	}
	from := f.cryptoService.Address(key)

	balance, err := f.ledger.Balance(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to read funder balance: %w", err)
	}

	needed := new(big.Int).Add(amount, f.config.Reserve)
	if balance.Cmp(needed) < 0 {
		fundingOutcomesTotal.WithLabelValues("insufficient").Inc()
		logging.Logger.Warn().
			Str("funder", from.Hex()).
			Str("balance", blockchain.FormatEther(balance)).
			Str("needed", blockchain.FormatEther(needed)).
			Msg("funder balance too low")
		return nil, fmt.Errorf("%w: funder %s holds %s, needs %s", models.ErrInsufficientFunderBalance,
			from.Hex(), blockchain.FormatEther(balance), blockchain.FormatEther(needed))
	}

	req := &models.FundingRequest{
		Destination: to.Hex(),
		Amount:      blockchain.FormatEther(amount),
		AmountWei:   amount,
	}
	defer func() {
		fundingOutcomesTotal.WithLabelValues(string(req.Outcome)).Inc()
		fundingDuration.WithLabelValues(string(req.Outcome)).Observe(time.Since(start).Seconds())
	}()

	tx, err := f.ledger.SendValue(ctx, key, to, amount)
	if err != nil {
		req.Outcome = models.OutcomeRejected
		req.Error = err.Error()
		logging.Logger.Error().Err(err).Str("to", req.Destination).Msg("funding broadcast rejected")
		return req, nil
	}
	req.TxHash = tx.Hash().Hex()

	receipt, err := f.ledger.AwaitConfirmation(ctx, tx)
	if err != nil {
		req.Outcome = models.OutcomeSentUnconfirmed
		req.Error = "Transaction sent but not confirmed: " + err.Error()
		if receipt != nil && receipt.BlockNumber != nil {
			req.BlockNumber = receipt.BlockNumber.Uint64()
		}
		logging.Logger.Warn().Err(err).Str("tx", req.TxHash).Msg("funding not confirmed")
		return req, nil
	}

	req.Outcome = models.OutcomeConfirmed
	req.BlockNumber = receipt.BlockNumber.Uint64()
	logging.Logger.Info().
		Str("tx", req.TxHash).
		Str("to", req.Destination).
		Str("amount", req.Amount).
		Uint64("block", req.BlockNumber).
		Msg("voter funded")

	return req, nil
}

// NeedsFunding reports whether address holds less than threshold wei,
// together with the balance read. A nil threshold uses the configured
// minimum balance.
func (f *FundingOrchestrator) NeedsFunding(ctx context.Context, address string, threshold *big.Int) (bool, *big.Int, error) {
	address = strings.TrimSpace(address)
	if threshold != nil && threshold.Sign() < 0 {
		return false, nil, fmt.Errorf("%w: threshold must not be negative", models.ErrValidation)
	}
	if !common.IsHexAddress(address) {
		return false, nil, fmt.Errorf("%w: %q is not a valid address", models.ErrValidation, address)
	}
	if f.ledger == nil {
		return false, nil, fmt.Errorf("%w: RPC_URL is not set", models.ErrUnconfigured)
	}

	balance, err := f.ledger.Balance(ctx, common.HexToAddress(address))
	if err != nil {
		return false, nil, err
	}
	if threshold == nil {
		threshold = f.config.MinBalance
	}
	return balance.Cmp(threshold) < 0, balance, nil
}

// Reconcile looks up a transfer reported as sent but unconfirmed.
func (f *FundingOrchestrator) Reconcile(ctx context.Context, hash string) (*TxStatus, error) {
	hash = strings.TrimSpace(hash)
	if !isTxHash(hash) {
		return nil, fmt.Errorf("%w: %q is not a transaction hash", models.ErrValidation, hash)
	}
	if f.ledger == nil {
		return nil, fmt.Errorf("%w: RPC_URL is not set", models.ErrUnconfigured)
	}

	h := common.HexToHash(hash)
	receipt, err := f.ledger.Receipt(ctx, h)
	if err != nil {
		return nil, err
	}

	status := &TxStatus{Hash: h.Hex()}
	if receipt == nil {
		return status, nil
	}
	status.Confirmed = true
	status.Succeeded = receipt.Status == types.ReceiptStatusSuccessful
	if receipt.BlockNumber != nil {
		status.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return status, nil
}

func (f *FundingOrchestrator) validate(in FundingInput) (common.Address, *big.Int, error) {
	to := strings.TrimSpace(in.To)
	if to == "" {
		return common.Address{}, nil, fmt.Errorf("%w: 'to' is required", models.ErrValidation)
	}
	if !common.IsHexAddress(to) {
		return common.Address{}, nil, fmt.Errorf("%w: 'to' %q is not a valid address", models.ErrValidation, to)
	}

	raw := strings.TrimSpace(in.Amount)
	if raw == "" {
		raw = f.config.DefaultAmount
	}
	amount, err := blockchain.ParseEther(raw)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if amount.Sign() <= 0 {
		return common.Address{}, nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}

	return common.HexToAddress(to), amount, nil
}

func (f *FundingOrchestrator) signer(override string) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(override) != "" {
		key, err := f.cryptoService.ParsePrivateKey(override)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid funder key: %v", models.ErrValidation, err)
		}
		return key, nil
	}
	if f.funderKey == nil {
		return nil, fmt.Errorf("%w: FUNDER_PRIVATE_KEY is not set", models.ErrUnconfigured)
	}
	return f.funderKey, nil
}

func isTxHash(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	s = s[2:]
	if len(s) != 2*common.HashLength {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

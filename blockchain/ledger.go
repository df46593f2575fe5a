package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"

	"voting-gateway/logging"
	"voting-gateway/models"
)

// DefaultConfirmTimeout bounds how long a transfer is awaited before it is
// reported as sent but unconfirmed.
const DefaultConfirmTimeout = 2 * time.Minute

// Backend is the subset of an Ethereum JSON-RPC client the ledger needs.
// *ethclient.Client and the simulated backend client both satisfy it.
type Backend interface {
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type Client struct {
	backend        Backend
	confirmTimeout time.Duration

	mu      sync.Mutex // guards nonce selection and chainID
	chainID *big.Int
}

// Dial connects to the node at rpcURL.
func Dial(ctx context.Context, rpcURL string, confirmTimeout time.Duration) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger rpc: %w", err)
	}
	return NewClient(ec, confirmTimeout), nil
}

func NewClient(backend Backend, confirmTimeout time.Duration) *Client {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &Client{
		backend:        backend,
		confirmTimeout: confirmTimeout,
	}
}

// Balance returns the latest balance of address in wei.
func (c *Client) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", address.Hex(), err)
	}
	return balance, nil
}

// SendValue signs and broadcasts a plain value transfer. Any failure before
// the node accepts the transaction is wrapped in models.ErrBroadcastRejected.
func (c *Client) SendValue(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *big.Int) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := ecdsaAddress(key)

	chainID, err := c.chainIDLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBroadcastRejected, err)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get nonce: %v", models.ErrBroadcastRejected, err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get gas price: %v", models.ErrBroadcastRejected, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(amount),
		Gas:      params.TxGas,
		GasPrice: gasPrice,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign: %v", models.ErrBroadcastRejected, err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBroadcastRejected, err)
	}

	logging.Logger.Info().
		Str("tx", signed.Hash().Hex()).
		Str("from", from.Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Msg("transfer broadcast")

	return signed, nil
}

// AwaitConfirmation blocks until tx is mined or the confirmation timeout
// elapses. A timeout yields models.ErrConfirmationTimeout; a mined but
// failed transaction yields its receipt and models.ErrTransactionReverted.
func (c *Client) AwaitConfirmation(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w after %s", models.ErrConfirmationTimeout, c.confirmTimeout)
		}
		return nil, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w in block %d", models.ErrTransactionReverted, receipt.BlockNumber.Uint64())
	}

	return receipt, nil
}

// Receipt looks up the receipt of a previously broadcast transaction. It
// returns nil and no error while the transaction is still pending.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if notMinedYet(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// txIndexingInProgress is what geth answers for a hash its transaction
// indexer has not reached yet. It travels over RPC as a plain message.
const txIndexingInProgress = "transaction indexing is in progress"

func notMinedYet(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ethereum.NotFound) || strings.Contains(err.Error(), txIndexingInProgress)
}

func (c *Client) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (c *Client) chainIDLocked(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	c.chainID = id
	return id, nil
}

func ecdsaAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"voting-gateway/blockchain"
	"voting-gateway/models"
	"voting-gateway/otp"
	"voting-gateway/service"
	"voting-gateway/storage"
)

const goodCode = "123456"

// codeProvider approves goodCode and denies anything else.
type codeProvider struct{}

func (codeProvider) Name() string { return "test" }

func (codeProvider) Send(context.Context, string) (string, error) { return "pending", nil }

func (codeProvider) Check(_ context.Context, _ string, code string) (string, error) {
	if code == goodCode {
		return models.ProviderApproved, nil
	}
	return "pending", nil
}

type stubLedger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	receipts map[common.Hash]*types.Receipt
	sendErr  error
	awaitErr error
	sent     int
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		balances: make(map[common.Address]*big.Int),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (l *stubLedger) setBalance(addr common.Address, ether string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = blockchain.MustParseEther(ether)
}

func (l *stubLedger) Balance(_ context.Context, addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (l *stubLedger) SendValue(_ context.Context, _ *ecdsa.PrivateKey, to common.Address, amount *big.Int) (*types.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return nil, l.sendErr
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    uint64(l.sent),
		To:       &to,
		Value:    amount,
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	l.sent++
	return tx, nil
}

func (l *stubLedger) AwaitConfirmation(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.awaitErr != nil {
		return nil, l.awaitErr
	}
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(42),
	}
	l.receipts[tx.Hash()] = receipt
	return receipt, nil
}

func (l *stubLedger) Receipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.receipts[hash], nil
}

type testEnv struct {
	server *httptest.Server
	store  *storage.MemoryStore
	ledger *stubLedger
	funder common.Address
}

type envOption func(*envConfig)

type envConfig struct {
	provider  otp.Provider
	ledger    bool
	chain     service.Ledger
	funderKey *ecdsa.PrivateKey
}

func withoutProvider() envOption {
	return func(c *envConfig) { c.provider = nil }
}

func withoutLedger() envOption {
	return func(c *envConfig) { c.ledger = false }
}

// withChain funds through a real ledger client instead of the stub.
func withChain(ledger service.Ledger, funderKey *ecdsa.PrivateKey) envOption {
	return func(c *envConfig) {
		c.chain = ledger
		c.funderKey = funderKey
	}
}

func startTestServer(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{provider: codeProvider{}, ledger: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	env := &testEnv{store: storage.NewMemoryStore()}

	var ledger service.Ledger
	var key *ecdsa.PrivateKey
	switch {
	case cfg.chain != nil:
		ledger = cfg.chain
		key = cfg.funderKey
		env.funder = crypto.PubkeyToAddress(key.PublicKey)
	case cfg.ledger:
		var err error
		key, err = crypto.GenerateKey()
		require.NoError(t, err)
		env.funder = crypto.PubkeyToAddress(key.PublicKey)
		env.ledger = newStubLedger()
		ledger = env.ledger
	}

	deps := Dependencies{
		Registration: service.NewRegistrationService(env.store),
		Gate:         service.NewAuthorizationGate(cfg.provider, service.NewMemoryApprovalStore(), 0),
		Funding:      service.NewFundingOrchestrator(ledger, key, service.DefaultFundingConfig()),
		Store:        env.store,
	}

	srv, err := NewServer(deps, ServerConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)

	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func postJSON[T any](t *testing.T, url string, body any) (int, T) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func getJSON[T any](t *testing.T, url string) (int, T) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"voting-gateway/blockchain"
	"voting-gateway/models"
	"voting-gateway/storage"
)

// fakeLedger records transfers instead of talking to a node.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	receipts map[common.Hash]*types.Receipt
	sent     []*types.Transaction
	sendErr  error
	awaitErr error
	block    uint64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[common.Address]*big.Int),
		receipts: make(map[common.Hash]*types.Receipt),
		block:    7,
	}
}

func (l *fakeLedger) setBalance(addr common.Address, ether string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = blockchain.MustParseEther(ether)
}

func (l *fakeLedger) sentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}

func (l *fakeLedger) Balance(_ context.Context, addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (l *fakeLedger) SendValue(_ context.Context, _ *ecdsa.PrivateKey, to common.Address, amount *big.Int) (*types.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return nil, l.sendErr
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    uint64(len(l.sent)),
		To:       &to,
		Value:    amount,
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	l.sent = append(l.sent, tx)
	return tx, nil
}

func (l *fakeLedger) AwaitConfirmation(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.awaitErr != nil {
		return nil, l.awaitErr
	}
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(l.block),
	}
	l.receipts[tx.Hash()] = receipt
	return receipt, nil
}

func (l *fakeLedger) Receipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.receipts[hash], nil
}

// fakeProvider returns canned statuses and counts calls.
type fakeProvider struct {
	mu          sync.Mutex
	sendStatus  string
	sendErr     error
	checkStatus string
	checkErr    error
	sends       int
	checks      int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(context.Context, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends++
	if p.sendErr != nil {
		return "", p.sendErr
	}
	if p.sendStatus == "" {
		return "pending", nil
	}
	return p.sendStatus, nil
}

func (p *fakeProvider) Check(context.Context, string, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks++
	if p.checkErr != nil {
		return "", p.checkErr
	}
	return p.checkStatus, nil
}

// countingStore counts writes and can fail or fake a lost insert race.
type countingStore struct {
	*storage.MemoryStore
	mu         sync.Mutex
	inserts    int
	updates    int
	failAll    bool
	hideOnFind bool
}

var errStoreDown = errors.New("connection refused")

func (s *countingStore) FindByNationalID(ctx context.Context, id string) (*models.VoterRecord, error) {
	if s.failAll {
		return nil, errStoreDown
	}
	if s.hideOnFind {
		return nil, models.ErrNotFound
	}
	return s.MemoryStore.FindByNationalID(ctx, id)
}

func (s *countingStore) Insert(ctx context.Context, rec *models.VoterRecord) (*models.VoterRecord, error) {
	s.mu.Lock()
	s.inserts++
	s.mu.Unlock()
	if s.failAll {
		return nil, errStoreDown
	}
	return s.MemoryStore.Insert(ctx, rec)
}

func (s *countingStore) Update(ctx context.Context, rec *models.VoterRecord) (*models.VoterRecord, error) {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	if s.failAll {
		return nil, errStoreDown
	}
	return s.MemoryStore.Update(ctx, rec)
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts + s.updates
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

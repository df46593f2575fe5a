package encryption

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

var ErrEmptyKey = errors.New("private key is empty")

type CryptoService struct{}

func NewCryptoService() *CryptoService {
	return &CryptoService{}
}

// NormalizeKey removes any whitespace pasted into a key and prefixes it with
// 0x when the prefix is missing.
func NormalizeKey(raw string) string {
	key := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if key == "" {
		return ""
	}
	if !strings.HasPrefix(key, "0x") && !strings.HasPrefix(key, "0X") {
		key = "0x" + key
	}
	return key
}

// ParsePrivateKey decodes a hex encoded secp256k1 key.
func (cs *CryptoService) ParsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	key := NormalizeKey(raw)
	if key == "" {
		return nil, ErrEmptyKey
	}

	keyBytes, err := hex.DecodeString(key[2:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key hex string: %w", err)
	}

	privateKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return privateKey, nil
}

// Address derives the account address controlled by the key.
func (cs *CryptoService) Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// HashDestination returns a stable, non-reversible key for an OTP destination
// so phone numbers never appear in the approval store.
func (cs *CryptoService) HashDestination(destination string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(destination)))
	return hex.EncodeToString(sum[:])
}

// Fingerprint builds the biometric placeholder hash assigned on scan.
func (cs *CryptoService) Fingerprint(nationalID string, at time.Time) string {
	return fmt.Sprintf("fp_%s_%d", nationalID, at.UnixMilli())
}
